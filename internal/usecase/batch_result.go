package usecase

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
	"multi-llm-gateway/internal/domain/ports/adapter"
	"multi-llm-gateway/internal/infra/logging"
	"multi-llm-gateway/internal/infra/metrics"
)

// Results fetches, normalizes and renders final outputs for completed jobs.
// A job that already carries a rendered result is answered from the store; a
// non-completed job reports its current status without touching the provider.
func (uc *batchUC) Results(ctx context.Context, jobIDs []string) ([]ResultView, error) {
	defer logging.TraceDuration(uc.log, "BatchUC.Results")()

	if len(jobIDs) == 0 {
		return nil, domain.ErrNoJobIDs
	}

	views := make([]ResultView, len(jobIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range jobIDs {
		i, id := i, id
		g.Go(func() error {
			views[i] = uc.resultOne(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return views, nil
}

func (uc *batchUC) resultOne(ctx context.Context, jobID string) ResultView {
	job, err := uc.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ResultView{JobID: jobID, Status: StatusNotFound}
		}
		return ResultView{JobID: jobID, Status: StatusNotFound, Result: err.Error()}
	}
	if job.Status != model.BatchJobStatusCompleted || job.Result != "" {
		return resultViewOf(job)
	}
	ad := uc.adapters[job.ProviderID]
	if ad == nil {
		return ResultView{JobID: jobID, ProviderID: job.ProviderID, Status: StatusNotFound, Result: domain.ErrUnknownProvider.Error()}
	}
	uc.materialize(ctx, job, ad)
	return resultViewOf(job)
}

// materialize turns a completed job's raw payload into the rendered result
// and aggregate usage, fetching from the provider when the cached payload is
// not enough. A fetch error fails the job; item-level errors do not.
func (uc *batchUC) materialize(ctx context.Context, job *model.BatchJob, ad adapter.BatchProviderAdapter) {
	ctx = logging.WithJobID(logging.WithProvider(ctx, job.ProviderID), job.ID)
	log := logging.With(ctx, uc.log)

	start := uc.now()
	items, raw, err := ad.FetchResults(ctx, job.ProviderJobID, job.RawSuccessPayload)
	metrics.ObserveProviderCall(job.ProviderID, "fetch_results", int(uc.now().Sub(start).Milliseconds()), err == nil)
	job.LastCheckedAt = uc.now()

	if err != nil {
		pe := domain.WrapProviderError(domain.KindTransport, err)
		job.Status = model.BatchJobStatusFailed
		job.Result = pe.Render()
		uc.persist(ctx, job, log)
		metrics.IncBatchJob(job.ProviderID, string(model.BatchJobStatusFailed))
		log.Warn().Err(err).Msg("result fetch failed")
		return
	}
	if raw != nil {
		job.RawSuccessPayload = raw
	}

	rendered, usage := renderResults(job, items)
	job.Result = rendered
	job.Usage = &usage
	uc.persist(ctx, job, log)

	for _, it := range items {
		switch {
		case it.Expired:
			metrics.IncResultItem(job.ProviderID, "expired")
		case it.Err != nil:
			metrics.IncResultItem(job.ProviderID, "error")
		default:
			metrics.IncResultItem(job.ProviderID, "ok")
		}
	}
	metrics.ObserveBatchUsage(job.ProviderID, "", usage.PromptTokens, usage.CompletionTokens,
		usage.ReasoningTokens, usage.CachedPromptTokens, usage.TotalTokens)
	log.Info().Int("items", len(items)).Msg("batch results rendered")
}

// renderResults re-aligns parsed items to the job's original prompt order via
// their positional keys and renders one text block per expected item, blocks
// separated by a blank line. Usage sums across every returned item; fields a
// provider does not report contribute zero.
func renderResults(job *model.BatchJob, items []adapter.ResultItem) (string, model.Usage) {
	var usage model.Usage
	byKey := make(map[string]adapter.ResultItem, len(items))
	var unkeyed []adapter.ResultItem
	for _, it := range items {
		usage.Add(it.Usage)
		if it.Key == "" {
			unkeyed = append(unkeyed, it)
			continue
		}
		byKey[it.Key] = it
	}

	expected := len(job.Prompts)
	if job.SingleChat {
		expected = 1
	}

	blocks := make([]string, 0, expected+len(unkeyed))
	for n := 1; n <= expected; n++ {
		key := model.RequestKey(n)
		prompt := ""
		if job.SingleChat {
			prompt = job.JoinedPrompt()
		} else {
			prompt = job.Prompts[n-1]
		}

		var b strings.Builder
		b.WriteString("Request Key: ")
		b.WriteString(key)
		b.WriteString("\nPrompt: ")
		b.WriteString(prompt)
		b.WriteString("\n")

		it, ok := byKey[key]
		switch {
		case !ok:
			b.WriteString("Error: no result returned for this request")
		case it.Expired:
			b.WriteString("Error: result expired before retrieval")
		case it.Err != nil:
			b.WriteString("Error: ")
			b.WriteString(it.Err.Render())
		default:
			b.WriteString("Response: ")
			b.WriteString(it.Content)
		}
		blocks = append(blocks, b.String())
	}

	// Items the parser could not attribute to an expected request (malformed
	// lines, keys outside the prompt range) still surface, after the aligned
	// blocks.
	for _, it := range items {
		if it.Key == "" {
			continue
		}
		if n, ok := model.ParseRequestKey(it.Key); ok && n >= 1 && n <= expected {
			continue
		}
		blocks = append(blocks, renderStrayBlock(it.Key, it))
	}
	for _, it := range unkeyed {
		blocks = append(blocks, renderStrayBlock("(unknown)", it))
	}

	return strings.Join(blocks, "\n\n"), usage
}

func renderStrayBlock(key string, it adapter.ResultItem) string {
	var b strings.Builder
	b.WriteString("Request Key: ")
	b.WriteString(key)
	b.WriteString("\n")
	if it.Err != nil {
		b.WriteString("Error: ")
		b.WriteString(it.Err.Render())
	} else {
		b.WriteString("Response: ")
		b.WriteString(it.Content)
	}
	return b.String()
}

func resultViewOf(job *model.BatchJob) ResultView {
	v := ResultView{
		JobID:         job.ID,
		ProviderID:    job.ProviderID,
		Status:        string(job.Status),
		Result:        job.Result,
		LastCheckedAt: job.LastCheckedAt,
	}
	if job.Usage != nil {
		u := *job.Usage
		v.Usage = &u
	}
	return v
}
