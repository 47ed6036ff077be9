package adapter

import (
	"context"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
)

// BatchRequest is the normalized submission input handed to a provider
// adapter. For file uploads, FileHandle carries the provider file handle
// returned by the FileTransport; Prompts may then be empty.
type BatchRequest struct {
	Method       model.SubmissionMethod
	Prompts      []string
	SingleChat   bool
	Temperature  float64
	SystemPrompt string
	FilePath     string // local path for file_upload submissions
}

// StatusUpdate is the normalized outcome of one provider status poll.
type StatusUpdate struct {
	Status model.BatchJobStatus

	// ResultsLocator references where final results live (an output file id,
	// a results URL). Empty for providers that inline results in Raw.
	ResultsLocator string

	// LocatorRequired is true when this provider's status payload carries a
	// results locator field, making a terminal status without one suspect.
	// Providers with no such field report terminal states authoritatively.
	LocatorRequired bool

	// Err carries the provider-reported job-level error, if any.
	Err *domain.ProviderError

	// Raw is the complete status payload as received.
	Raw []byte
}

// ResultItem is one parsed per-prompt outcome within a batch.
type ResultItem struct {
	Key     string // positional key, "request-{n}"
	Content string
	Err     *domain.ProviderError
	Expired bool
	Usage   model.Usage
}

// BatchProviderAdapter is the per-provider contract the batch engines
// dispatch through. Engines never branch on provider id outside adapter
// selection.
type BatchProviderAdapter interface {
	ProviderID() string

	// FormatBatchRequest builds the provider wire body for a submission.
	// Pure; exposed separately from CreateBatch for testability.
	FormatBatchRequest(req BatchRequest) ([]byte, error)

	// CreateBatch submits the batch and returns the provider's job handle.
	CreateBatch(ctx context.Context, req BatchRequest) (string, error)

	// PollStatus queries the provider for the job's current state.
	PollStatus(ctx context.Context, providerJobID string) (StatusUpdate, error)

	// FetchResults retrieves and parses final results. raw is the cached
	// payload from a previous poll (nil forces an authoritative fetch); the
	// returned payload replaces the cache. A malformed item yields an error
	// entry for that item, never a call-level error.
	FetchResults(ctx context.Context, providerJobID string, raw []byte) ([]ResultItem, []byte, error)

	// ParseResultLine parses one provider result document line/item. Pure.
	ParseResultLine(line string) (ResultItem, error)
}
