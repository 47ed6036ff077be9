package ai

import (
	"context"

	"multi-llm-gateway/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.BatchProviderAdapter = (*limitedBatch)(nil)

// limitedBatch bounds concurrent provider calls with a semaphore. Pure
// methods pass through unguarded.
type limitedBatch struct {
	inner adapter.BatchProviderAdapter
	sem   chan struct{}
}

func NewLimitedBatch(inner adapter.BatchProviderAdapter, maxConcurrent int) adapter.BatchProviderAdapter {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedBatch{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedBatch) ProviderID() string { return l.inner.ProviderID() }

func (l *limitedBatch) FormatBatchRequest(req adapter.BatchRequest) ([]byte, error) {
	return l.inner.FormatBatchRequest(req)
}

func (l *limitedBatch) ParseResultLine(line string) (adapter.ResultItem, error) {
	return l.inner.ParseResultLine(line)
}

func (l *limitedBatch) CreateBatch(ctx context.Context, req adapter.BatchRequest) (string, error) {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	return l.inner.CreateBatch(ctx, req)
}

func (l *limitedBatch) PollStatus(ctx context.Context, providerJobID string) (adapter.StatusUpdate, error) {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	return l.inner.PollStatus(ctx, providerJobID)
}

func (l *limitedBatch) FetchResults(ctx context.Context, providerJobID string, raw []byte) ([]adapter.ResultItem, []byte, error) {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	return l.inner.FetchResults(ctx, providerJobID, raw)
}
