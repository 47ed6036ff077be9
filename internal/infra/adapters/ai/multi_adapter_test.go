package ai

import (
	"context"
	"testing"

	"multi-llm-gateway/internal/domain/ports/adapter"
)

type stubChat struct{ name string }

func (s *stubChat) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return 0, nil
}

func (s *stubChat) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	return s.name, nil
}

func (s *stubChat) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	return s.name, adapter.Usage{}, nil
}

func TestMultiAIAdapterRouting(t *testing.T) {
	m := NewMultiAIAdapter("gemini",
		map[string]adapter.AIServiceAdapter{
			"gemini": &stubChat{name: "gemini"},
			"openai": &stubChat{name: "openai"},
			"claude": &stubChat{name: "claude"},
		},
		map[string]string{"my-finetune": "openai"},
	)

	cases := []struct {
		model string
		want  string
	}{
		{"gemini-2.0-flash", "gemini"},
		{"gpt-4o-mini", "openai"},
		{"claude-sonnet-4-20250514", "claude"},
		{"my-finetune", "openai"}, // explicit mapping beats prefix heuristics
		{"mystery-model", "gemini"},
		{"", "gemini"},
	}
	for _, c := range cases {
		got, err := m.Chat(context.Background(), c.model, nil)
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Errorf("model %q routed to %s, want %s", c.model, got, c.want)
		}
	}
}

func TestMultiAIAdapterPickByProvider(t *testing.T) {
	openai := &stubChat{name: "openai"}
	m := NewMultiAIAdapter("openai", map[string]adapter.AIServiceAdapter{"openai": openai}, nil)

	if got := m.PickByProvider("openai"); got != adapter.AIServiceAdapter(openai) {
		t.Fatal("PickByProvider lost the registered adapter")
	}
	if got := m.PickByProvider("mistral"); got != nil {
		t.Fatal("unknown provider must yield nil")
	}
}
