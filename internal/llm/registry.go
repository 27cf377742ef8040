// Package llm manages the pool of chat models served by Ollama. It
// resolves requested model names against the supported list, keeps a
// bounded set of warmed models, and runs generations with the configured
// sampling parameters.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/kmu-usr/airqa/internal/log"
)

// ErrUnknownModel is returned by Generate for a model outside the
// supported list. Resolve never produces such a name.
var ErrUnknownModel = errors.New("unknown model")

const (
	// warmupPrompt is sent once per model to pull the weights into
	// memory before the first real question hits it.
	warmupPrompt = "請用繁體中文做個簡短的自我介紹"

	// maxWarmModels bounds how many models stay warm at once. The
	// least recently used entry is dropped beyond this.
	maxWarmModels = 5
)

// Config carries the registry settings.
type Config struct {
	// Provider is the Genkit model name prefix, "ollama" in production.
	Provider string

	// Supported lists the model names clients may request. The first
	// use of each must already be registered with Genkit.
	Supported []string

	// Default is used when a request names no model or an unsupported one.
	Default string

	Temperature float64
	TopP        float64

	// Timeout bounds a single generation call.
	Timeout time.Duration

	Logger log.Logger
}

// Registry resolves model names and runs generations. It is safe for
// concurrent use.
type Registry struct {
	g            *genkit.Genkit
	provider     string
	supported    map[string]bool
	order        []string
	defaultModel string
	temperature  float64
	topP         float64
	timeout      time.Duration
	logger       log.Logger

	mu   sync.Mutex
	warm map[string]time.Time
	now  func() time.Time
}

// NewRegistry creates a Registry. The models in cfg.Supported must be
// registered with the Genkit instance before Generate is called.
func NewRegistry(g *genkit.Genkit, cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "ollama"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}

	supported := make(map[string]bool, len(cfg.Supported))
	order := make([]string, 0, len(cfg.Supported))
	for _, name := range cfg.Supported {
		if name == "" || supported[name] {
			continue
		}
		supported[name] = true
		order = append(order, name)
	}

	return &Registry{
		g:            g,
		provider:     provider,
		supported:    supported,
		order:        order,
		defaultModel: cfg.Default,
		temperature:  cfg.Temperature,
		topP:         cfg.TopP,
		timeout:      timeout,
		logger:       logger,
		warm:         make(map[string]time.Time),
		now:          time.Now,
	}
}

// Models returns the supported model names in configuration order.
func (r *Registry) Models() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Default returns the fallback model name.
func (r *Registry) Default() string {
	return r.defaultModel
}

// Resolve maps a requested model name to a supported one. Empty and
// unsupported names fall back to the default; an unsupported name is
// logged but not rejected, so a stale client keeps working.
func (r *Registry) Resolve(requested string) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		return r.defaultModel
	}
	if !r.supported[name] {
		r.logger.Warn("unsupported model requested, using default",
			"requested", name, "default", r.defaultModel)
		return r.defaultModel
	}
	return name
}

// Generate runs one prompt through the named model and returns the raw
// response text.
func (r *Registry) Generate(ctx context.Context, model, prompt string) (string, error) {
	if !r.supported[model] {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}

	r.ensureWarm(ctx, model)

	genCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := genkit.Generate(genCtx, r.g,
		ai.WithModelName(r.provider+"/"+model),
		ai.WithPrompt(prompt),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature: r.temperature,
			TopP:        r.topP,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("generation failed for model %q: %w", model, err)
	}
	return resp.Text(), nil
}

// ensureWarm runs the warm-up prompt the first time a model is used and
// tracks recency so at most maxWarmModels stay resident. Warm-up failure
// is logged and the real generation proceeds regardless.
func (r *Registry) ensureWarm(ctx context.Context, model string) {
	r.mu.Lock()
	if _, ok := r.warm[model]; ok {
		r.warm[model] = r.now()
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	start := time.Now()
	warmCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := genkit.Generate(warmCtx, r.g,
		ai.WithModelName(r.provider+"/"+model),
		ai.WithPrompt(warmupPrompt),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature: r.temperature,
			TopP:        r.topP,
		}),
	)
	if err != nil {
		r.logger.Warn("model warm-up failed", "model", model, "error", err)
		return
	}
	r.logger.Info("model warmed up", "model", model, "duration", time.Since(start))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.warm[model] = r.now()
	r.evictColdest()
}

// evictColdest drops least recently used warm entries beyond the cap.
// Caller holds r.mu.
func (r *Registry) evictColdest() {
	for len(r.warm) > maxWarmModels {
		var coldest string
		var coldestAt time.Time
		for name, at := range r.warm {
			if coldest == "" || at.Before(coldestAt) {
				coldest = name
				coldestAt = at
			}
		}
		delete(r.warm, coldest)
		r.logger.Debug("evicted cold model from warm set", "model", coldest)
	}
}
