package ai

import (
	"github.com/pkoukk/tiktoken-go"

	"multi-llm-gateway/internal/domain/ports/adapter"
)

// estimateTokens counts prompt tokens locally with tiktoken. Used by
// providers whose API offers no counting endpoint; the count is an estimate,
// not billing truth.
func estimateTokens(model string, messages []adapter.Message) (int, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, err
		}
	}
	total := 0
	for _, m := range messages {
		// Role framing costs a few tokens per message on chat endpoints.
		total += 4
		total += len(enc.Encode(m.Content, nil, nil))
	}
	return total, nil
}
