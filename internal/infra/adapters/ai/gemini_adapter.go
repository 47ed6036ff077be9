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

	"google.golang.org/genai"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
	"multi-llm-gateway/internal/domain/ports/adapter"
)

var (
	_ adapter.AIServiceAdapter     = (*GeminiAdapter)(nil)
	_ adapter.BatchProviderAdapter = (*GeminiAdapter)(nil)
)

// GeminiAdapter speaks both surfaces of the Gemini API: per-turn chat through
// the official SDK and the batch endpoints through plain HTTP. Batch jobs are
// long-running operations: status is a done flag plus an optional error, and
// results come back inlined in the operation payload.
type GeminiAdapter struct {
	client *genai.Client
	apiKey string
	base   string
	model  string
	maxOut int
	httpc  *http.Client
	files  adapter.FileTransport
}

func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, model string, maxOut int, files adapter.FileTransport) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{
		client: c,
		apiKey: apiKey,
		base:   strings.TrimRight(baseURL, "/"),
		model:  model,
		maxOut: maxOut,
		httpc:  &http.Client{Timeout: 60 * time.Second},
		files:  files,
	}, nil
}

func (g *GeminiAdapter) ProviderID() string { return "gemini" }

// --- chat (SDK) ---

func (g *GeminiAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	contents := toGenAIHistory(messages)
	resp, err := g.client.Models.CountTokens(ctx, modelOrDefault(model, g.model), contents, nil)
	if err != nil {
		return 0, err
	}
	return int(resp.TotalTokens), nil
}

func (g *GeminiAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := g.chatCore(ctx, model, messages)
	return reply, err
}

func (g *GeminiAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	return g.chatCore(ctx, model, messages)
}

func (g *GeminiAdapter) chatCore(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if len(messages) == 0 {
		return "", adapter.Usage{}, errors.New("gemini: no messages")
	}
	history := toGenAIHistory(messages[:len(messages)-1])

	chat, err := g.client.Chats.Create(
		ctx,
		modelOrDefault(model, g.model),
		&genai.GenerateContentConfig{
			MaxOutputTokens: int32(g.maxOut),
		},
		history,
	)
	if err != nil {
		return "", adapter.Usage{}, err
	}

	last := messages[len(messages)-1]
	if strings.ToLower(last.Role) != "user" {
		return "", adapter.Usage{}, errors.New("gemini: last message must be from user")
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: last.Content})
	if err != nil {
		return "", adapter.Usage{}, err
	}

	text := ""
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		if t := resp.Candidates[0].Content.Parts[0].Text; t != "" {
			text = t
		}
	}
	u := adapter.Usage{}
	if resp != nil && resp.UsageMetadata != nil {
		u.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		u.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		u.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return text, u, nil
}

func toGenAIHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		switch strings.ToLower(m.Role) {
		case "assistant", "model":
			role = genai.RoleModel
		case "system":
			// Gemini has no separate "system" role in history; treat as a
			// user instruction.
			role = genai.RoleUser
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}

// --- batch (raw HTTP) wire types ---

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiItemRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiBatchItem struct {
	Request  geminiItemRequest `json:"request"`
	Metadata map[string]string `json:"metadata"`
}

type geminiOpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type geminiUsage struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	TotalTokenCount         int `json:"totalTokenCount"`
	ThoughtsTokenCount      int `json:"thoughtsTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *geminiUsage `json:"usageMetadata"`
}

type geminiInlineItem struct {
	Key      string                  `json:"key"` // file-based result lines
	Metadata map[string]string       `json:"metadata"`
	Response *geminiGenerateResponse `json:"response"`
	Error    *geminiOpError          `json:"error"`
}

type geminiInlinedList struct {
	InlinedResponses []json.RawMessage `json:"inlinedResponses"`
}

type geminiOpResponse struct {
	InlinedResponses *geminiInlinedList `json:"inlinedResponses"`
	ResponsesFile    string             `json:"responsesFile"`
}

type geminiOpMetadata struct {
	State  string            `json:"state"`
	Output *geminiOpResponse `json:"output"`
}

// geminiOperation is the long-running operation wrapper returned by both the
// create and get endpoints.
type geminiOperation struct {
	Name     string            `json:"name"`
	Done     bool              `json:"done"`
	Error    *geminiOpError    `json:"error"`
	Metadata geminiOpMetadata  `json:"metadata"`
	Response *geminiOpResponse `json:"response"`
}

// --- batch operations ---

func (g *GeminiAdapter) FormatBatchRequest(req adapter.BatchRequest) ([]byte, error) {
	items := g.buildItems(req)
	payload := map[string]any{
		"batch": map[string]any{
			"input_config": map[string]any{
				"requests": map[string]any{
					"requests": items,
				},
			},
		},
	}
	return json.Marshal(payload)
}

func (g *GeminiAdapter) buildItems(req adapter.BatchRequest) []geminiBatchItem {
	var gc *geminiGenConfig
	if req.Temperature > 0 || g.maxOut > 0 {
		gc = &geminiGenConfig{MaxOutputTokens: g.maxOut}
		if req.Temperature > 0 {
			t := req.Temperature
			gc.Temperature = &t
		}
	}
	var sys *geminiContent
	if req.SystemPrompt != "" {
		sys = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	if req.SingleChat {
		// One multi-turn conversation: every prompt is a sequential user turn
		// in a single batch item.
		contents := make([]geminiContent, 0, len(req.Prompts))
		for _, p := range req.Prompts {
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: p}}})
		}
		return []geminiBatchItem{{
			Request:  geminiItemRequest{Contents: contents, SystemInstruction: sys, GenerationConfig: gc},
			Metadata: map[string]string{"key": model.RequestKey(1)},
		}}
	}

	items := make([]geminiBatchItem, 0, len(req.Prompts))
	for i, p := range req.Prompts {
		items = append(items, geminiBatchItem{
			Request: geminiItemRequest{
				Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: p}}}},
				SystemInstruction: sys,
				GenerationConfig:  gc,
			},
			Metadata: map[string]string{"key": model.RequestKey(i + 1)},
		})
	}
	return items
}

func (g *GeminiAdapter) CreateBatch(ctx context.Context, req adapter.BatchRequest) (string, error) {
	var body []byte
	if req.Method == model.SubmissionFileUpload {
		if g.files == nil {
			return "", domain.ErrUnsupportedMethod
		}
		handle, err := g.files.Upload(ctx, req.FilePath, "batch-input", "application/jsonl")
		if err != nil {
			return "", fmt.Errorf("gemini: upload batch file: %w", err)
		}
		payload := map[string]any{
			"batch": map[string]any{
				"input_config": map[string]any{"file_name": handle},
			},
		}
		body, err = json.Marshal(payload)
		if err != nil {
			return "", err
		}
	} else {
		var err error
		body, err = g.FormatBatchRequest(req)
		if err != nil {
			return "", err
		}
	}

	url := fmt.Sprintf("%s/models/%s:batchGenerateContent?key=%s", g.base, g.model, g.apiKey)
	op, _, err := g.doOperation(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", errors.New("gemini: batch create returned no operation name")
	}
	return op.Name, nil
}

func (g *GeminiAdapter) PollStatus(ctx context.Context, providerJobID string) (adapter.StatusUpdate, error) {
	url := fmt.Sprintf("%s/%s?key=%s", g.base, providerJobID, g.apiKey)
	op, raw, err := g.doOperation(ctx, http.MethodGet, url, nil)
	if err != nil {
		return adapter.StatusUpdate{}, err
	}

	// Operation payloads carry no results locator field, so terminal states
	// are authoritative on their own.
	upd := adapter.StatusUpdate{Raw: raw, LocatorRequired: false}
	switch {
	case !op.Done:
		upd.Status = model.BatchJobStatusRunning
	case op.Error != nil:
		upd.Status = model.BatchJobStatusFailed
		upd.Err = &domain.ProviderError{
			Kind:           domain.KindProvider,
			Message:        op.Error.Message,
			ProviderDetail: fmt.Sprintf("code %d", op.Error.Code),
		}
	default:
		upd.Status = model.BatchJobStatusCompleted
		if out := op.output(); out != nil {
			upd.ResultsLocator = out.ResponsesFile
		}
	}
	return upd, nil
}

func (g *GeminiAdapter) FetchResults(ctx context.Context, providerJobID string, raw []byte) ([]adapter.ResultItem, []byte, error) {
	if len(raw) == 0 {
		url := fmt.Sprintf("%s/%s?key=%s", g.base, providerJobID, g.apiKey)
		_, body, err := g.doOperation(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, nil, err
		}
		raw = body
	}

	var op geminiOperation
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, nil, fmt.Errorf("gemini: parse operation payload: %w", err)
	}
	out := op.output()
	if out == nil {
		return nil, nil, errors.New("gemini: no results in batch response")
	}

	// File-based submissions write results to a downloadable file instead of
	// inlining them.
	if out.InlinedResponses == nil && out.ResponsesFile != "" {
		if g.files == nil {
			return nil, nil, domain.ErrUnsupportedMethod
		}
		text, err := g.files.Download(ctx, out.ResponsesFile)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini: download results file: %w", err)
		}
		items := parseLines(g, text)
		return items, raw, nil
	}

	if out.InlinedResponses == nil {
		return nil, nil, errors.New("gemini: no results in batch response")
	}
	items := make([]adapter.ResultItem, 0, len(out.InlinedResponses.InlinedResponses))
	for i, rawItem := range out.InlinedResponses.InlinedResponses {
		item, err := g.ParseResultLine(string(rawItem))
		if err != nil {
			items = append(items, adapter.ResultItem{
				Err: &domain.ProviderError{
					Kind:    domain.KindParse,
					Message: fmt.Sprintf("malformed inline response at index %d: %v", i, err),
				},
			})
			continue
		}
		items = append(items, item)
	}
	return items, raw, nil
}

// ParseResultLine parses one inlined response object (or one line of a
// results file).
func (g *GeminiAdapter) ParseResultLine(line string) (adapter.ResultItem, error) {
	var it geminiInlineItem
	if err := json.Unmarshal([]byte(line), &it); err != nil {
		return adapter.ResultItem{}, err
	}
	item := adapter.ResultItem{Key: it.Key}
	if k := it.Metadata["key"]; k != "" {
		item.Key = k
	}
	if it.Error != nil {
		item.Err = &domain.ProviderError{
			Kind:           domain.KindProvider,
			Message:        it.Error.Message,
			ProviderDetail: fmt.Sprintf("code %d", it.Error.Code),
		}
		return item, nil
	}
	if it.Response != nil {
		var sb strings.Builder
		if len(it.Response.Candidates) > 0 {
			for _, p := range it.Response.Candidates[0].Content.Parts {
				sb.WriteString(p.Text)
			}
		}
		item.Content = sb.String()
		if u := it.Response.UsageMetadata; u != nil {
			item.Usage = model.Usage{
				PromptTokens:       u.PromptTokenCount,
				CompletionTokens:   u.CandidatesTokenCount,
				TotalTokens:        u.TotalTokenCount,
				ReasoningTokens:    u.ThoughtsTokenCount,
				CachedPromptTokens: u.CachedContentTokenCount,
			}
		}
	}
	return item, nil
}

func (op *geminiOperation) output() *geminiOpResponse {
	if op.Response != nil {
		return op.Response
	}
	return op.Metadata.Output
}

func (g *GeminiAdapter) doOperation(ctx context.Context, method, url string, body []byte) (*geminiOperation, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.httpc.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("gemini http %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}
	var op geminiOperation
	if err := json.Unmarshal(respBody, &op); err != nil {
		return nil, nil, fmt.Errorf("gemini: parse operation payload: %w", err)
	}
	return &op, respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
