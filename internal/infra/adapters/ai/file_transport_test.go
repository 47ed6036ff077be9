package ai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"multi-llm-gateway/internal/domain"
)

func TestOpenAIFileTransportUploadReader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" || r.Method != http.MethodPost {
			t.Errorf("unexpected call: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("multipart: %v", err)
		}
		if got := r.FormValue("purpose"); got != "batch" {
			t.Errorf("purpose: %s", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "batch-input.jsonl" {
			t.Errorf("filename: %s", hdr.Filename)
		}
		body, _ := io.ReadAll(f)
		if string(body) != `{"custom_id":"request-1"}` {
			t.Errorf("file body: %s", body)
		}
		_, _ = w.Write([]byte(`{"id":"file-123"}`))
	}))
	defer srv.Close()

	tr := NewOpenAIFileTransport("k", srv.URL)
	id, err := tr.UploadReader(context.Background(), "batch-input.jsonl", "application/jsonl",
		strings.NewReader(`{"custom_id":"request-1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if id != "file-123" {
		t.Fatalf("handle: %s", id)
	}
}

func TestOpenAIFileTransportDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/file-123/content" {
			t.Errorf("path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte("line1\nline2\n"))
	}))
	defer srv.Close()

	tr := NewOpenAIFileTransport("k", srv.URL)
	text, err := tr.Download(context.Background(), "file-123")
	if err != nil {
		t.Fatal(err)
	}
	if text != "line1\nline2\n" {
		t.Fatalf("content: %q", text)
	}
}

func TestGeminiFileTransportUploadReader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/upload/v1beta/files") {
			t.Errorf("path: %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Goog-Upload-Protocol"); got != "raw" {
			t.Errorf("upload protocol: %s", got)
		}
		_, _ = w.Write([]byte(`{"file":{"name":"files/abc123"}}`))
	}))
	defer srv.Close()

	tr := NewGeminiFileTransport("k", srv.URL+"/v1beta")
	handle, err := tr.UploadReader(context.Background(), "batch-input", "application/jsonl", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if handle != "files/abc123" {
		t.Fatalf("handle: %s", handle)
	}
}

func TestClaudeFileTransportRejectsUploads(t *testing.T) {
	tr := NewClaudeFileTransport("k", "")
	if _, err := tr.Upload(context.Background(), "/tmp/x.jsonl", "", ""); err != domain.ErrUnsupportedMethod {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
	if _, err := tr.UploadReader(context.Background(), "", "", strings.NewReader("")); err != domain.ErrUnsupportedMethod {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
}

func TestClaudeFileTransportDownloadSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "k" {
			t.Errorf("x-api-key: %s", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("anthropic-version: %s", got)
		}
		_, _ = w.Write([]byte("results"))
	}))
	defer srv.Close()

	tr := NewClaudeFileTransport("k", "")
	text, err := tr.Download(context.Background(), srv.URL+"/v1/messages/batches/mb/results")
	if err != nil {
		t.Fatal(err)
	}
	if text != "results" {
		t.Fatalf("content: %q", text)
	}
}

