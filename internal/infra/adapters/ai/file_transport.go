package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/ports/adapter"
)

var (
	_ adapter.FileTransport = (*OpenAIFileTransport)(nil)
	_ adapter.FileTransport = (*GeminiFileTransport)(nil)
	_ adapter.FileTransport = (*ClaudeFileTransport)(nil)
)

// OpenAIFileTransport moves batch documents through the OpenAI Files API.
// Upload returns the file id; Download takes a file id and streams its
// content endpoint.
type OpenAIFileTransport struct {
	apiKey string
	base   string
	httpc  *http.Client
}

func NewOpenAIFileTransport(apiKey, baseURL string) *OpenAIFileTransport {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIFileTransport{
		apiKey: apiKey,
		base:   strings.TrimRight(baseURL, "/"),
		httpc:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (t *OpenAIFileTransport) Upload(ctx context.Context, localPath, displayName, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if displayName == "" {
		displayName = filepath.Base(localPath)
	}
	return t.UploadReader(ctx, displayName, contentType, f)
}

func (t *OpenAIFileTransport) UploadReader(ctx context.Context, displayName, contentType string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", "batch"); err != nil {
		return "", err
	}
	fw, err := mw.CreateFormFile("file", displayName)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.base+"/files", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai files http %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("openai files: parse upload response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("openai files: upload returned no id")
	}
	return out.ID, nil
}

func (t *OpenAIFileTransport) Download(ctx context.Context, locator string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/files/"+locator+"/content", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai files http %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return string(body), nil
}

// GeminiFileTransport uses the generative language media upload/download
// endpoints. Upload returns the file resource name ("files/...").
type GeminiFileTransport struct {
	apiKey       string
	uploadBase   string
	downloadBase string
	httpc        *http.Client
}

func NewGeminiFileTransport(apiKey, baseURL string) *GeminiFileTransport {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	host := strings.TrimSuffix(baseURL, "/v1beta")
	return &GeminiFileTransport{
		apiKey:       apiKey,
		uploadBase:   host + "/upload/v1beta",
		downloadBase: host + "/download/v1beta",
		httpc:        &http.Client{Timeout: 120 * time.Second},
	}
}

func (t *GeminiFileTransport) Upload(ctx context.Context, localPath, displayName, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if displayName == "" {
		displayName = filepath.Base(localPath)
	}
	return t.UploadReader(ctx, displayName, contentType, f)
}

func (t *GeminiFileTransport) UploadReader(ctx context.Context, displayName, contentType string, r io.Reader) (string, error) {
	url := fmt.Sprintf("%s/files?key=%s", t.uploadBase, t.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, r)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Goog-Upload-Protocol", "raw")
	req.Header.Set("X-Goog-File-Name", displayName)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("gemini files http %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	var out struct {
		File struct {
			Name string `json:"name"`
		} `json:"file"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("gemini files: parse upload response: %w", err)
	}
	if out.File.Name == "" {
		return "", fmt.Errorf("gemini files: upload returned no file name")
	}
	return out.File.Name, nil
}

func (t *GeminiFileTransport) Download(ctx context.Context, locator string) (string, error) {
	url := fmt.Sprintf("%s/%s:download?alt=media&key=%s", t.downloadBase, locator, t.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("gemini files http %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return string(body), nil
}

// ClaudeFileTransport only downloads: the Message Batches API takes requests
// inline but serves results from an authenticated URL.
type ClaudeFileTransport struct {
	apiKey  string
	version string
	httpc   *http.Client
}

func NewClaudeFileTransport(apiKey, version string) *ClaudeFileTransport {
	if version == "" {
		version = "2023-06-01"
	}
	return &ClaudeFileTransport{
		apiKey:  apiKey,
		version: version,
		httpc:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (t *ClaudeFileTransport) Upload(ctx context.Context, localPath, displayName, contentType string) (string, error) {
	return "", domain.ErrUnsupportedMethod
}

func (t *ClaudeFileTransport) UploadReader(ctx context.Context, displayName, contentType string, r io.Reader) (string, error) {
	return "", domain.ErrUnsupportedMethod
}

func (t *ClaudeFileTransport) Download(ctx context.Context, locator string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("x-api-key", t.apiKey)
	req.Header.Set("anthropic-version", t.version)

	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("claude results http %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return string(body), nil
}
