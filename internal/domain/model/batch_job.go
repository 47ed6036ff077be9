package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type BatchJobStatus string

const (
	BatchJobStatusPending   BatchJobStatus = "PENDING"
	BatchJobStatusRunning   BatchJobStatus = "RUNNING"
	BatchJobStatusCompleted BatchJobStatus = "COMPLETED"
	BatchJobStatusFailed    BatchJobStatus = "FAILED"
)

// Terminal reports whether the status is absorbing. Once a job reaches a
// terminal status, reconciliation must not query the provider again.
func (s BatchJobStatus) Terminal() bool {
	return s == BatchJobStatusCompleted || s == BatchJobStatusFailed
}

type SubmissionMethod string

const (
	SubmissionTextInput  SubmissionMethod = "text_input"
	SubmissionFileUpload SubmissionMethod = "file_upload"
)

// Usage aggregates token accounting for one batch job across all of its
// items. Fields absent on a given provider item contribute zero.
type Usage struct {
	PromptTokens       int `json:"prompt_tokens"`
	CompletionTokens   int `json:"completion_tokens"`
	TotalTokens        int `json:"total_tokens"`
	ReasoningTokens    int `json:"reasoning_tokens,omitempty"`
	CachedPromptTokens int `json:"cached_prompt_tokens,omitempty"`
}

func (u *Usage) Add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
	u.ReasoningTokens += o.ReasoningTokens
	u.CachedPromptTokens += o.CachedPromptTokens
}

// BatchJob tracks one asynchronous submission to one provider's bulk API.
type BatchJob struct {
	ID            string           // internal id, stable for the job's lifetime
	ProviderID    string           // "gemini" | "openai" | "claude"
	Method        SubmissionMethod
	Prompts       []string // canonical ordering for presenting results
	SingleChat    bool     // prompts form one multi-turn conversation
	ProviderJobID string   // provider handle; empty until accepted
	Status        BatchJobStatus
	Result        string // rendered summary or diagnostic once available
	Usage         *Usage
	CreatedAt     time.Time
	LastCheckedAt time.Time

	// RawSuccessPayload caches the last complete provider payload so a
	// completed job is never re-fetched.
	RawSuccessPayload []byte
}

func (j *BatchJob) Terminal() bool { return j.Status.Terminal() }

// PromptJoiner separates prompts when a single-conversation submission is
// attributed to one joined prompt line.
const PromptJoiner = "__"

func (j *BatchJob) JoinedPrompt() string {
	return strings.Join(j.Prompts, PromptJoiner)
}

// RequestKey is the positional key attached to batch item n (1-indexed).
func RequestKey(n int) string { return fmt.Sprintf("request-%d", n) }

// PromptForKey resolves a positional key back to the original prompt text.
func (j *BatchJob) PromptForKey(key string) (string, bool) {
	n, ok := ParseRequestKey(key)
	if !ok || n < 1 || n > len(j.Prompts) {
		return "", false
	}
	return j.Prompts[n-1], true
}

// ParseRequestKey extracts n from "request-{n}".
func ParseRequestKey(key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, "request-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}
