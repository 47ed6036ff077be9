package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
	"multi-llm-gateway/internal/usecase"
)

// ---- Fakes ----

type fakeBatchUC struct{}

func (f *fakeBatchUC) Submit(ctx context.Context, params usecase.SubmitParams) ([]usecase.SubmissionAck, error) {
	if len(params.ProviderIDs) == 0 {
		return nil, domain.ErrNoProviders
	}
	if len(params.Prompts) == 0 {
		return nil, domain.ErrNoPrompts
	}
	acks := make([]usecase.SubmissionAck, 0, len(params.ProviderIDs))
	for i, pid := range params.ProviderIDs {
		acks = append(acks, usecase.SubmissionAck{
			JobID:         model.RequestKey(i + 1),
			ProviderID:    pid,
			ProviderJobID: pid + "-remote",
			Status:        model.BatchJobStatusRunning,
		})
	}
	return acks, nil
}

func (f *fakeBatchUC) Status(ctx context.Context, jobIDs []string) ([]usecase.StatusView, error) {
	if len(jobIDs) == 0 {
		return nil, domain.ErrNoJobIDs
	}
	views := make([]usecase.StatusView, 0, len(jobIDs))
	for _, id := range jobIDs {
		status := string(model.BatchJobStatusRunning)
		if id == "ghost" {
			status = usecase.StatusNotFound
		}
		views = append(views, usecase.StatusView{JobID: id, Status: status})
	}
	return views, nil
}

func (f *fakeBatchUC) StatusByProviderJob(ctx context.Context, providerID, providerJobID string) (usecase.StatusView, error) {
	if providerID != "openai" {
		return usecase.StatusView{}, domain.ErrUnknownProvider
	}
	return usecase.StatusView{ProviderID: providerID, Status: string(model.BatchJobStatusRunning)}, nil
}

func (f *fakeBatchUC) Results(ctx context.Context, jobIDs []string) ([]usecase.ResultView, error) {
	if len(jobIDs) == 0 {
		return nil, domain.ErrNoJobIDs
	}
	views := make([]usecase.ResultView, 0, len(jobIDs))
	for _, id := range jobIDs {
		views = append(views, usecase.ResultView{
			JobID:  id,
			Status: string(model.BatchJobStatusCompleted),
			Result: "Request Key: request-1\nPrompt: a\nResponse: done",
		})
	}
	return views, nil
}

type fakeChatUC struct {
	sessions map[string]*model.ChatSession
}

func (f *fakeChatUC) StartSession(ctx context.Context, providerID, chatModel string) (*model.ChatSession, error) {
	if providerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	s := model.NewChatSession("sess-1", providerID, chatModel)
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeChatUC) SendMessage(ctx context.Context, sessionID, text string) (string, error) {
	if _, ok := f.sessions[sessionID]; !ok {
		return "", domain.ErrNotFound
	}
	return "echo: " + text, nil
}

func (f *fakeChatUC) GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeChatUC) EndSession(ctx context.Context, sessionID string) error {
	delete(f.sessions, sessionID)
	return nil
}

type fakeHistoryUC struct{}

func (f *fakeHistoryUC) DeleteMessage(ctx context.Context, sessionID string, index int) error {
	if index > 10 {
		return domain.ErrInvalidArgument
	}
	return nil
}

func (f *fakeHistoryUC) MoveMessage(ctx context.Context, sessionID string, from, to int) error {
	return nil
}

func (f *fakeHistoryUC) TruncateAfter(ctx context.Context, sessionID string, index int) error {
	return nil
}

func (f *fakeHistoryUC) ClearLast(ctx context.Context, sessionID string, count int) (int, error) {
	if count <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	if count%2 == 1 {
		count++
	}
	return count, nil
}

func newTestServer() *httptest.Server {
	nop := zerolog.Nop()
	s := NewServer(&fakeBatchUC{}, &fakeChatUC{sessions: make(map[string]*model.ChatSession)}, &fakeHistoryUC{}, &nop)
	return httptest.NewServer(s.Router())
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

// ---- Tests ----

func TestBatchSubmitEndpoint(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/v1/batch", map[string]any{
		"prompts":   []string{"a", "b"},
		"providers": []string{"gemini", "openai"},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: %d", resp.StatusCode)
	}

	var out struct {
		Jobs []usecase.SubmissionAck `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Jobs) != 2 || out.Jobs[0].ProviderID != "gemini" {
		t.Fatalf("jobs: %+v", out.Jobs)
	}
}

func TestBatchSubmitValidationStatus(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	cases := []map[string]any{
		{"prompts": []string{"a"}},                // no providers
		{"providers": []string{"gemini"}},         // no prompts
	}
	for i, body := range cases {
		resp := postJSON(t, srv.URL+"/api/v1/batch", body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("case %d: status %d, want 400", i, resp.StatusCode)
		}
	}

	resp, err := http.Post(srv.URL+"/api/v1/batch", "application/json", bytes.NewReader([]byte("{broken")))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d", resp.StatusCode)
	}
}

func TestBatchStatusEndpoint(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	// Unknown ids come back in-band, not as a transport error.
	resp := postJSON(t, srv.URL+"/api/v1/batch/status", map[string]any{
		"job_ids": []string{"j1", "ghost"},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var out struct {
		Statuses []usecase.StatusView `json:"statuses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Statuses[0].Status != string(model.BatchJobStatusRunning) || out.Statuses[1].Status != usecase.StatusNotFound {
		t.Fatalf("statuses: %+v", out.Statuses)
	}

	// Empty id list is the caller's mistake.
	resp2 := postJSON(t, srv.URL+"/api/v1/batch/status", map[string]any{"job_ids": []string{}})
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty ids: status %d", resp2.StatusCode)
	}
}

func TestBatchStatusByProviderJobEndpoint(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/v1/batch/status", map[string]any{
		"provider":        "openai",
		"provider_job_id": "batch_7",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}

	resp2 := postJSON(t, srv.URL+"/api/v1/batch/status", map[string]any{
		"provider":        "mistral",
		"provider_job_id": "batch_7",
	})
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown provider: status %d", resp2.StatusCode)
	}
}

func TestBatchResultsEndpoint(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/v1/batch/results", map[string]any{"job_ids": []string{"j1"}})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var out struct {
		Results []usecase.ResultView `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 1 || out.Results[0].Result == "" {
		t.Fatalf("results: %+v", out.Results)
	}
}

func TestChatEndpoints(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/v1/chat/sessions", map[string]any{"provider": "openai"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start: %d", resp.StatusCode)
	}
	var session model.ChatSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/v1/chat/sessions/"+session.ID+"/messages", map[string]any{"text": "hi"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send: %d", resp.StatusCode)
	}
	var reply struct {
		Reply string `json:"reply"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if reply.Reply != "echo: hi" {
		t.Fatalf("reply: %s", reply.Reply)
	}

	resp = postJSON(t, srv.URL+"/api/v1/chat/sessions/unknown/messages", map[string]any{"text": "hi"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session: %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/chat/sessions/"+session.ID, nil)
	dresp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	dresp.Body.Close()
	if dresp.StatusCode != http.StatusNoContent {
		t.Fatalf("end: %d", dresp.StatusCode)
	}
}

func TestHistoryEditEndpoint(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	patch := func(body any) *http.Response {
		b, _ := json.Marshal(body)
		req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/api/v1/chat/sessions/sess-1/messages", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	resp := patch(map[string]any{"op": "clear_last", "count": 3})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear_last: %d", resp.StatusCode)
	}
	var out struct {
		Removed int `json:"removed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if out.Removed != 4 {
		t.Fatalf("odd count must round up, removed=%d", out.Removed)
	}

	resp = patch(map[string]any{"op": "move", "from": 0, "to": 2})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("move: %d", resp.StatusCode)
	}

	resp = patch(map[string]any{"op": "rewrite_history"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown op: %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", resp.StatusCode)
	}
}
