package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/genkit"

	"github.com/kmu-usr/airqa/internal/log"
	"github.com/kmu-usr/airqa/internal/testutil"
)

func newTestRegistry(t *testing.T, mock *testutil.MockLLM) *Registry {
	t.Helper()

	g := genkit.Init(context.Background())
	mock.RegisterModel(g)

	return NewRegistry(g, Config{
		Provider:    "mock",
		Supported:   []string{"test-model"},
		Default:     "test-model",
		Temperature: 0.1,
		TopP:        0.8,
		Timeout:     10 * time.Second,
		Logger:      log.NewNop(),
	})
}

func TestResolve(t *testing.T) {
	r := NewRegistry(nil, Config{
		Supported: []string{"gemma3:12b", "qwen3:14b"},
		Default:   "gemma3:12b",
		Logger:    log.NewNop(),
	})

	tests := []struct {
		name      string
		requested string
		want      string
	}{
		{name: "empty falls back to default", requested: "", want: "gemma3:12b"},
		{name: "whitespace falls back to default", requested: "   ", want: "gemma3:12b"},
		{name: "supported name passes through", requested: "qwen3:14b", want: "qwen3:14b"},
		{name: "unsupported falls back to default", requested: "gpt-4", want: "gemma3:12b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.requested); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.requested, got, tt.want)
			}
		})
	}
}

func TestNewRegistry_DeduplicatesSupported(t *testing.T) {
	r := NewRegistry(nil, Config{
		Supported: []string{"a", "b", "a", "", "c"},
		Default:   "a",
		Logger:    log.NewNop(),
	})

	got := r.Models()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Models() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Models()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGenerate_WarmsUpOnFirstUse(t *testing.T) {
	mock := testutil.NewMockLLM("大家好，我是測試模型。")
	mock.AddResponse("空污", "高雄小港的空污來源包含工業排放。")

	r := newTestRegistry(t, mock)
	ctx := context.Background()

	got, err := r.Generate(ctx, "test-model", "小港空污的主要來源？")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "高雄小港的空污來源包含工業排放。" {
		t.Errorf("Generate() = %q, want the registered answer", got)
	}

	calls := mock.Calls()
	if len(calls) != 2 {
		t.Fatalf("recorded %d calls, want 2 (warm-up plus generation)", len(calls))
	}
	if calls[0].UserMessage != warmupPrompt {
		t.Errorf("first call = %q, want warm-up prompt", calls[0].UserMessage)
	}

	// A second generation must reuse the warm model.
	if _, err := r.Generate(ctx, "test-model", "空污還有哪些來源？"); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := len(mock.Calls()); got != 3 {
		t.Errorf("recorded %d calls after second generation, want 3", got)
	}
}

func TestGenerate_UnknownModel(t *testing.T) {
	r := NewRegistry(nil, Config{
		Supported: []string{"gemma3:12b"},
		Default:   "gemma3:12b",
		Logger:    log.NewNop(),
	})

	_, err := r.Generate(context.Background(), "made-up", "question")
	if !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Generate() error = %v, want ErrUnknownModel", err)
	}
}

func TestEvictColdest(t *testing.T) {
	r := NewRegistry(nil, Config{
		Supported: []string{"a"},
		Default:   "a",
		Logger:    log.NewNop(),
	})

	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < maxWarmModels+2; i++ {
		r.warm[string(rune('a'+i))] = base.Add(time.Duration(i) * time.Minute)
	}

	r.mu.Lock()
	r.evictColdest()
	r.mu.Unlock()

	if len(r.warm) != maxWarmModels {
		t.Fatalf("warm set size = %d, want %d", len(r.warm), maxWarmModels)
	}
	for _, cold := range []string{"a", "b"} {
		if _, ok := r.warm[cold]; ok {
			t.Errorf("coldest entry %q not evicted", cold)
		}
	}
	if _, ok := r.warm["c"]; !ok {
		t.Error("recent entry evicted")
	}
}
