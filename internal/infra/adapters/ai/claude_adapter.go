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

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
	"multi-llm-gateway/internal/domain/ports/adapter"
)

var (
	_ adapter.AIServiceAdapter     = (*ClaudeAdapter)(nil)
	_ adapter.BatchProviderAdapter = (*ClaudeAdapter)(nil)
)

// ClaudeAdapter talks to the Anthropic Messages API. Batches are submitted
// inline; a terminal batch exposes a results URL whose document is
// newline-delimited JSON with succeeded/errored/expired item types.
type ClaudeAdapter struct {
	apiKey  string
	base    string // e.g., https://api.anthropic.com/v1
	version string // anthropic-version header
	model   string
	maxOut  int
	httpc   *http.Client
	files   adapter.FileTransport
}

func NewClaudeAdapter(apiKey, baseURL, version, model string, maxOut int, files adapter.FileTransport) (*ClaudeAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("claude api key empty")
	}
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	if version == "" {
		version = "2023-06-01"
	}
	if maxOut <= 0 {
		maxOut = 1024
	}
	return &ClaudeAdapter{
		apiKey:  apiKey,
		base:    strings.TrimRight(baseURL, "/"),
		version: version,
		model:   model,
		maxOut:  maxOut,
		httpc:   &http.Client{Timeout: 60 * time.Second},
		files:   files,
	}, nil
}

func (c *ClaudeAdapter) ProviderID() string { return "claude" }

// --- chat ---

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeChatRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeUsage struct {
	InputTokens          int `json:"input_tokens"`
	OutputTokens         int `json:"output_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeChatResponse struct {
	Content []claudeContentBlock `json:"content"`
	Usage   *claudeUsage         `json:"usage"`
}

func (c *ClaudeAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return estimateTokens(modelOrDefault(model, c.model), messages)
}

func (c *ClaudeAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := c.ChatWithUsage(ctx, model, messages)
	return reply, err
}

func (c *ClaudeAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	req := claudeChatRequest{
		Model:     modelOrDefault(model, c.model),
		MaxTokens: c.maxOut,
	}
	for _, m := range messages {
		if strings.ToLower(m.Role) == "system" {
			req.System = m.Content
			continue
		}
		req.Messages = append(req.Messages, claudeMessage{Role: m.Role, Content: m.Content})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", adapter.Usage{}, err
	}

	var payload claudeChatResponse
	if _, err := c.doJSON(ctx, http.MethodPost, c.base+"/messages", body, &payload); err != nil {
		return "", adapter.Usage{}, err
	}
	text := firstText(payload.Content)
	if text == "" {
		return "", adapter.Usage{}, errors.New("claude: no text content")
	}
	u := adapter.Usage{}
	if payload.Usage != nil {
		u.PromptTokens = payload.Usage.InputTokens
		u.CompletionTokens = payload.Usage.OutputTokens
		u.TotalTokens = payload.Usage.InputTokens + payload.Usage.OutputTokens
	}
	return text, u, nil
}

func firstText(content []claudeContentBlock) string {
	for _, blk := range content {
		if blk.Type == "text" && blk.Text != "" {
			return blk.Text
		}
	}
	return ""
}

// --- batch wire types ---

type claudeBatchItem struct {
	CustomID string            `json:"custom_id"`
	Params   claudeChatRequest `json:"params"`
}

type claudeBatchStatus struct {
	ID               string `json:"id"`
	ProcessingStatus string `json:"processing_status"`
	ResultsURL       string `json:"results_url"`
}

type claudeResultLine struct {
	CustomID string `json:"custom_id"`
	Result   struct {
		Type    string `json:"type"` // succeeded | errored | canceled | expired
		Message *struct {
			Content []claudeContentBlock `json:"content"`
			Usage   *claudeUsage         `json:"usage"`
		} `json:"message"`
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"result"`
}

// claudeStatusTable is this provider's status vocabulary mapping, substring
// matched in order.
var claudeStatusTable = []struct {
	pattern string
	status  model.BatchJobStatus
}{
	{"ended", model.BatchJobStatusCompleted},
	{"completed", model.BatchJobStatusCompleted},
	{"failed", model.BatchJobStatusFailed},
	{"in_progress", model.BatchJobStatusRunning},
	{"canceling", model.BatchJobStatusRunning},
	{"running", model.BatchJobStatusRunning},
}

func mapClaudeStatus(s string) model.BatchJobStatus {
	l := strings.ToLower(s)
	for _, e := range claudeStatusTable {
		if strings.Contains(l, e.pattern) {
			return e.status
		}
	}
	return model.BatchJobStatusPending
}

// --- batch operations ---

func (c *ClaudeAdapter) FormatBatchRequest(req adapter.BatchRequest) ([]byte, error) {
	var temp *float64
	if req.Temperature > 0 {
		t := req.Temperature
		temp = &t
	}
	item := func(key string, msgs []claudeMessage) claudeBatchItem {
		return claudeBatchItem{
			CustomID: key,
			Params: claudeChatRequest{
				Model:       c.model,
				MaxTokens:   c.maxOut,
				System:      req.SystemPrompt,
				Temperature: temp,
				Messages:    msgs,
			},
		}
	}

	var items []claudeBatchItem
	if req.SingleChat {
		msgs := make([]claudeMessage, 0, len(req.Prompts))
		for _, p := range req.Prompts {
			msgs = append(msgs, claudeMessage{Role: "user", Content: p})
		}
		items = []claudeBatchItem{item(model.RequestKey(1), msgs)}
	} else {
		items = make([]claudeBatchItem, 0, len(req.Prompts))
		for i, p := range req.Prompts {
			items = append(items, item(model.RequestKey(i+1), []claudeMessage{{Role: "user", Content: p}}))
		}
	}
	return json.Marshal(map[string]any{"requests": items})
}

func (c *ClaudeAdapter) CreateBatch(ctx context.Context, req adapter.BatchRequest) (string, error) {
	if req.Method == model.SubmissionFileUpload {
		// The Message Batches API takes requests inline only.
		return "", domain.ErrUnsupportedMethod
	}
	body, err := c.FormatBatchRequest(req)
	if err != nil {
		return "", err
	}
	var st claudeBatchStatus
	if _, err := c.doJSON(ctx, http.MethodPost, c.base+"/messages/batches", body, &st); err != nil {
		return "", err
	}
	if st.ID == "" {
		return "", errors.New("claude: batch create returned no id")
	}
	return st.ID, nil
}

func (c *ClaudeAdapter) PollStatus(ctx context.Context, providerJobID string) (adapter.StatusUpdate, error) {
	var st claudeBatchStatus
	raw, err := c.doJSON(ctx, http.MethodGet, c.base+"/messages/batches/"+providerJobID, nil, &st)
	if err != nil {
		return adapter.StatusUpdate{}, err
	}
	upd := adapter.StatusUpdate{
		Status:          mapClaudeStatus(st.ProcessingStatus),
		ResultsLocator:  st.ResultsURL,
		LocatorRequired: true,
		Raw:             raw,
	}
	if upd.Status == model.BatchJobStatusFailed {
		upd.Err = &domain.ProviderError{
			Kind:           domain.KindProvider,
			Message:        "batch processing failed",
			ProviderDetail: st.ProcessingStatus,
		}
	}
	return upd, nil
}

func (c *ClaudeAdapter) FetchResults(ctx context.Context, providerJobID string, raw []byte) ([]adapter.ResultItem, []byte, error) {
	var st claudeBatchStatus
	if len(raw) > 0 && json.Unmarshal(raw, &st) == nil && st.ProcessingStatus != "" {
		// cached status payload
	} else if len(raw) > 0 {
		return parseLines(c, string(raw)), raw, nil
	} else {
		upd, err := c.PollStatus(ctx, providerJobID)
		if err != nil {
			return nil, nil, err
		}
		if err := json.Unmarshal(upd.Raw, &st); err != nil {
			return nil, nil, fmt.Errorf("claude: parse status payload: %w", err)
		}
	}

	if st.ResultsURL == "" {
		return nil, nil, errors.New("claude: no results url referenced by batch status")
	}
	var text string
	var err error
	if c.files != nil {
		text, err = c.files.Download(ctx, st.ResultsURL)
	} else {
		text, err = c.download(ctx, st.ResultsURL)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("claude: download results: %w", err)
	}
	return parseLines(c, text), []byte(text), nil
}

// ParseResultLine parses one line of a batch results document.
func (c *ClaudeAdapter) ParseResultLine(line string) (adapter.ResultItem, error) {
	var rl claudeResultLine
	if err := json.Unmarshal([]byte(line), &rl); err != nil {
		return adapter.ResultItem{}, err
	}
	item := adapter.ResultItem{Key: rl.CustomID}
	switch rl.Result.Type {
	case "succeeded":
		if rl.Result.Message != nil {
			item.Content = firstText(rl.Result.Message.Content)
			if u := rl.Result.Message.Usage; u != nil {
				item.Usage = model.Usage{
					PromptTokens:       u.InputTokens,
					CompletionTokens:   u.OutputTokens,
					TotalTokens:        u.InputTokens + u.OutputTokens,
					CachedPromptTokens: u.CacheReadInputTokens,
				}
			}
		}
	case "expired":
		item.Expired = true
	case "errored", "canceled":
		msg := "request " + rl.Result.Type
		detail := ""
		if rl.Result.Error != nil {
			msg = rl.Result.Error.Message
			detail = rl.Result.Error.Type
		}
		item.Err = &domain.ProviderError{Kind: domain.KindProvider, Message: msg, ProviderDetail: detail}
	default:
		item.Err = &domain.ProviderError{
			Kind:    domain.KindParse,
			Message: fmt.Sprintf("unknown result type %q", rl.Result.Type),
		}
	}
	return item, nil
}

func (c *ClaudeAdapter) doJSON(ctx context.Context, method, url string, body []byte, out any) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("claude http %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("claude: parse response: %w", err)
		}
	}
	return respBody, nil
}

func (c *ClaudeAdapter) download(ctx context.Context, url string) (string, error) {
	body, err := c.doJSON(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
