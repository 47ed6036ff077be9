package ai

import (
	"fmt"
	"strings"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/ports/adapter"
)

// lineParser is the slice of the adapter contract needed to walk a
// newline-delimited result document.
type lineParser interface {
	ParseResultLine(line string) (adapter.ResultItem, error)
}

// parseLines walks a newline-delimited JSON document one line at a time. A
// malformed line becomes an error entry for that line; it never aborts the
// remaining lines.
func parseLines(p lineParser, text string) []adapter.ResultItem {
	var items []adapter.ResultItem
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		item, err := p.ParseResultLine(line)
		if err != nil {
			items = append(items, adapter.ResultItem{
				Err: &domain.ProviderError{
					Kind:    domain.KindParse,
					Message: fmt.Sprintf("malformed result line %d: %v", i+1, err),
				},
			})
			continue
		}
		items = append(items, item)
	}
	return items
}
