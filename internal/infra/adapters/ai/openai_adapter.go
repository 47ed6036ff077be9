package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
	"multi-llm-gateway/internal/domain/ports/adapter"
)

var (
	_ adapter.AIServiceAdapter     = (*OpenAIAdapter)(nil)
	_ adapter.BatchProviderAdapter = (*OpenAIAdapter)(nil)
)

// OpenAIAdapter implements chat through the official SDK and the Batch API
// through plain HTTP. Batches are file-based on both ends: the request set is
// a JSONL file uploaded through the File Transport, and results land in a
// downloadable JSONL output file referenced by the status payload.
type OpenAIAdapter struct {
	sdk    openai.Client
	apiKey string
	base   string
	model  string
	maxOut int
	httpc  *http.Client
	files  adapter.FileTransport
}

func NewOpenAIAdapter(apiKey, baseURL, model string, maxOut int, files adapter.FileTransport) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &OpenAIAdapter{
		sdk:    openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL)),
		apiKey: apiKey,
		base:   baseURL,
		model:  model,
		maxOut: maxOut,
		httpc:  &http.Client{Timeout: 60 * time.Second},
		files:  files,
	}, nil
}

func (o *OpenAIAdapter) ProviderID() string { return "openai" }

// --- chat (SDK) ---

func (o *OpenAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return estimateTokens(modelOrDefault(model, o.model), messages)
}

func (o *OpenAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := o.ChatWithUsage(ctx, model, messages)
	return reply, err
}

func (o *OpenAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch strings.ToLower(m.Role) {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	resp, err := o.sdk.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelOrDefault(model, o.model)),
		Messages: msgs,
	})
	if err != nil {
		return "", adapter.Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", adapter.Usage{}, errors.New("openai: no choice content")
	}
	u := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return resp.Choices[0].Message.Content, u, nil
}

// --- batch wire types ---

type openaiChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiBatchLineBody struct {
	Model       string              `json:"model"`
	Messages    []openaiChatMessage `json:"messages"`
	Temperature *float64            `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type openaiBatchLine struct {
	CustomID string              `json:"custom_id"`
	Method   string              `json:"method"`
	URL      string              `json:"url"`
	Body     openaiBatchLineBody `json:"body"`
}

type openaiBatchStatus struct {
	ID           string `json:"id"`
	Object       string `json:"object"`
	Status       string `json:"status"`
	OutputFileID string `json:"output_file_id"`
	ErrorFileID  string `json:"error_file_id"`
	Errors       *struct {
		Data []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"data"`
	} `json:"errors"`
}

type openaiResultLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int `json:"status_code"`
		Body       struct {
			Choices []struct {
				Message openaiChatMessage `json:"message"`
			} `json:"choices"`
			Usage *struct {
				PromptTokens        int `json:"prompt_tokens"`
				CompletionTokens    int `json:"completion_tokens"`
				TotalTokens         int `json:"total_tokens"`
				PromptTokensDetails *struct {
					CachedTokens int `json:"cached_tokens"`
				} `json:"prompt_tokens_details"`
				CompletionTokensDetails *struct {
					ReasoningTokens int `json:"reasoning_tokens"`
				} `json:"completion_tokens_details"`
			} `json:"usage"`
			Error *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		} `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// openaiStatusTable maps provider status vocabulary onto the normalized enum
// by substring, first match wins. Kept as data so adding a vocabulary entry
// never touches engine logic.
var openaiStatusTable = []struct {
	pattern string
	status  model.BatchJobStatus
}{
	{"completed", model.BatchJobStatusCompleted},
	{"failed", model.BatchJobStatusFailed},
	{"expired", model.BatchJobStatusFailed},
	{"cancel", model.BatchJobStatusFailed},
	{"in_progress", model.BatchJobStatusRunning},
	{"finalizing", model.BatchJobStatusRunning},
	{"validating", model.BatchJobStatusRunning},
	{"running", model.BatchJobStatusRunning},
}

func mapOpenAIStatus(s string) model.BatchJobStatus {
	l := strings.ToLower(s)
	for _, e := range openaiStatusTable {
		if strings.Contains(l, e.pattern) {
			return e.status
		}
	}
	return model.BatchJobStatusPending
}

// --- batch operations ---

// FormatBatchRequest renders the JSONL request document, one chat completion
// call per line.
func (o *OpenAIAdapter) FormatBatchRequest(req adapter.BatchRequest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	var temp *float64
	if req.Temperature > 0 {
		t := req.Temperature
		temp = &t
	}
	sys := func() []openaiChatMessage {
		if req.SystemPrompt == "" {
			return nil
		}
		return []openaiChatMessage{{Role: "system", Content: req.SystemPrompt}}
	}

	if req.SingleChat {
		msgs := sys()
		for _, p := range req.Prompts {
			msgs = append(msgs, openaiChatMessage{Role: "user", Content: p})
		}
		if err := enc.Encode(openaiBatchLine{
			CustomID: model.RequestKey(1),
			Method:   http.MethodPost,
			URL:      "/v1/chat/completions",
			Body:     openaiBatchLineBody{Model: o.model, Messages: msgs, Temperature: temp, MaxTokens: o.maxOut},
		}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	for i, p := range req.Prompts {
		msgs := append(sys(), openaiChatMessage{Role: "user", Content: p})
		if err := enc.Encode(openaiBatchLine{
			CustomID: model.RequestKey(i + 1),
			Method:   http.MethodPost,
			URL:      "/v1/chat/completions",
			Body:     openaiBatchLineBody{Model: o.model, Messages: msgs, Temperature: temp, MaxTokens: o.maxOut},
		}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (o *OpenAIAdapter) CreateBatch(ctx context.Context, req adapter.BatchRequest) (string, error) {
	if o.files == nil {
		return "", domain.ErrUnsupportedMethod
	}

	var handle string
	var err error
	if req.Method == model.SubmissionFileUpload {
		handle, err = o.files.Upload(ctx, req.FilePath, "batch-input.jsonl", "application/jsonl")
	} else {
		var doc []byte
		doc, err = o.FormatBatchRequest(req)
		if err != nil {
			return "", err
		}
		handle, err = o.files.UploadReader(ctx, "batch-input.jsonl", "application/jsonl", bytes.NewReader(doc))
	}
	if err != nil {
		return "", fmt.Errorf("openai: upload batch file: %w", err)
	}

	body, err := json.Marshal(map[string]string{
		"input_file_id":     handle,
		"endpoint":          "/v1/chat/completions",
		"completion_window": "24h",
	})
	if err != nil {
		return "", err
	}
	var st openaiBatchStatus
	if _, err := o.doJSON(ctx, http.MethodPost, o.base+"/batches", body, &st); err != nil {
		return "", err
	}
	if st.ID == "" {
		return "", errors.New("openai: batch create returned no id")
	}
	return st.ID, nil
}

func (o *OpenAIAdapter) PollStatus(ctx context.Context, providerJobID string) (adapter.StatusUpdate, error) {
	var st openaiBatchStatus
	raw, err := o.doJSON(ctx, http.MethodGet, o.base+"/batches/"+providerJobID, nil, &st)
	if err != nil {
		return adapter.StatusUpdate{}, err
	}

	upd := adapter.StatusUpdate{
		Status:          mapOpenAIStatus(st.Status),
		Raw:             raw,
		LocatorRequired: true,
	}
	switch {
	case st.OutputFileID != "":
		upd.ResultsLocator = st.OutputFileID
	case st.ErrorFileID != "":
		upd.ResultsLocator = st.ErrorFileID
	}
	if upd.Status == model.BatchJobStatusFailed {
		msg := "batch " + st.Status
		if st.Errors != nil && len(st.Errors.Data) > 0 {
			msg = st.Errors.Data[0].Message
		}
		upd.Err = &domain.ProviderError{Kind: domain.KindProvider, Message: msg, ProviderDetail: st.Status}
	}
	return upd, nil
}

func (o *OpenAIAdapter) FetchResults(ctx context.Context, providerJobID string, raw []byte) ([]adapter.ResultItem, []byte, error) {
	if o.files == nil {
		return nil, nil, domain.ErrUnsupportedMethod
	}

	var st openaiBatchStatus
	if len(raw) > 0 && json.Unmarshal(raw, &st) == nil && st.Status != "" {
		// raw is a cached status payload; reuse its locator.
	} else if len(raw) > 0 {
		// raw is an already-downloaded results document.
		return parseLines(o, string(raw)), raw, nil
	} else {
		upd, err := o.PollStatus(ctx, providerJobID)
		if err != nil {
			return nil, nil, err
		}
		if err := json.Unmarshal(upd.Raw, &st); err != nil {
			return nil, nil, fmt.Errorf("openai: parse status payload: %w", err)
		}
	}

	locator := st.OutputFileID
	if locator == "" {
		locator = st.ErrorFileID
	}
	if locator == "" {
		return nil, nil, errors.New("openai: no results file referenced by batch status")
	}
	text, err := o.files.Download(ctx, locator)
	if err != nil {
		return nil, nil, fmt.Errorf("openai: download results file: %w", err)
	}
	return parseLines(o, text), []byte(text), nil
}

// ParseResultLine parses one line of a batch output file.
func (o *OpenAIAdapter) ParseResultLine(line string) (adapter.ResultItem, error) {
	var rl openaiResultLine
	if err := json.Unmarshal([]byte(line), &rl); err != nil {
		return adapter.ResultItem{}, err
	}
	item := adapter.ResultItem{Key: rl.CustomID}
	if rl.Error != nil {
		item.Err = &domain.ProviderError{
			Kind:           domain.KindProvider,
			Message:        rl.Error.Message,
			ProviderDetail: rl.Error.Code,
		}
		return item, nil
	}
	if rl.Response == nil {
		item.Err = &domain.ProviderError{Kind: domain.KindParse, Message: "result line has neither response nor error"}
		return item, nil
	}
	body := rl.Response.Body
	if body.Error != nil {
		item.Err = &domain.ProviderError{
			Kind:           domain.KindProvider,
			Message:        body.Error.Message,
			ProviderDetail: body.Error.Code,
		}
		return item, nil
	}
	for _, c := range body.Choices {
		if c.Message.Content != "" {
			item.Content = c.Message.Content
			break
		}
	}
	if u := body.Usage; u != nil {
		item.Usage = model.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
		if u.CompletionTokensDetails != nil {
			item.Usage.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
		}
		if u.PromptTokensDetails != nil {
			item.Usage.CachedPromptTokens = u.PromptTokensDetails.CachedTokens
		}
	}
	return item, nil
}

func (o *OpenAIAdapter) doJSON(ctx context.Context, method, url string, body []byte, out any) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := o.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai http %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("openai: parse response: %w", err)
		}
	}
	return respBody, nil
}
