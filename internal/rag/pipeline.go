// Package rag orchestrates the question answering flow: session history
// and corpus retrieval feed a selected prompt template, the rendered
// prompt runs through the language model with bounded retries, and the
// sanitized answer is persisted back to the session and QA log.
package rag

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kmu-usr/airqa/internal/format"
	"github.com/kmu-usr/airqa/internal/history"
	"github.com/kmu-usr/airqa/internal/knowledge"
	"github.com/kmu-usr/airqa/internal/log"
	"github.com/kmu-usr/airqa/internal/prompt"
	"github.com/kmu-usr/airqa/internal/qalog"
	"github.com/kmu-usr/airqa/internal/session"
)

// NoContextPlaceholder stands in for retrieved context when the corpus
// returns nothing for a question.
const NoContextPlaceholder = "沒有找到相關的背景資料。"

// Retriever fetches corpus passages relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]knowledge.Result, error)
}

// Generator resolves model names and runs text generation.
type Generator interface {
	Resolve(requested string) string
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// SessionStore provides the slice of session behavior the pipeline needs.
type SessionStore interface {
	Ensure(user, id, question string) error
	History(user, id string) []session.Message
	AppendTurn(user, id, question, answer string) error
}

// QALogger records answered questions. Logging failures never fail the
// request.
type QALogger interface {
	Append(user string, rec qalog.Record) error
}

// Request is one question to answer.
type Request struct {
	User       string
	SessionID  string
	Question   string
	Model      string // requested model name, may be empty or unsupported
	PromptMode string // "default" or "research"
}

// Source is one retrieved passage returned alongside the answer.
type Source struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// Result is a fully processed answer with its provenance and timings.
type Result struct {
	Answer           string
	Model            string
	PromptMode       prompt.Mode
	FormatMode       format.Mode
	TemplateLabel    string
	Sources          []Source
	SessionID        string
	Attempts         int
	LLMSeconds       float64
	RetrievalSeconds float64
	TotalSeconds     float64
}

// Config wires a Pipeline.
type Config struct {
	Retriever Retriever
	Generator Generator
	Sessions  SessionStore
	Selector  *prompt.Selector
	QALog     QALogger

	// MaxRetries is how many extra generation attempts follow a failed
	// or empty first attempt.
	MaxRetries int

	// AttemptLimiter paces generation attempts across all requests so a
	// retry storm cannot pile onto a struggling Ollama server. Nil
	// means unlimited.
	AttemptLimiter *rate.Limiter

	Logger log.Logger
}

// Pipeline answers questions. It is safe for concurrent use.
type Pipeline struct {
	retriever  Retriever
	generator  Generator
	sessions   SessionStore
	selector   *prompt.Selector
	qa         QALogger
	maxRetries int
	limiter    *rate.Limiter
	logger     log.Logger

	// Injectable for deterministic tests.
	sleep  func(ctx context.Context, d time.Duration)
	jitter func() time.Duration
}

// NewPipeline creates a Pipeline from the given wiring.
func NewPipeline(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	limiter := cfg.AttemptLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Pipeline{
		retriever:  cfg.Retriever,
		generator:  cfg.Generator,
		sessions:   cfg.Sessions,
		selector:   cfg.Selector,
		qa:         cfg.QALog,
		maxRetries: maxRetries,
		limiter:    limiter,
		logger:     logger,
		sleep:      sleepCtx,
		jitter:     errorRetryJitter,
	}
}

// Process answers one question end to end.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	model := p.generator.Resolve(req.Model)
	promptMode := prompt.ParseMode(req.PromptMode)

	if err := p.sessions.Ensure(req.User, req.SessionID, question); err != nil {
		return nil, fmt.Errorf("failed to ensure session %q: %w", req.SessionID, err)
	}

	formatMode := format.Detect(question)
	p.logger.Info("rag request",
		"user", req.User,
		"session_id", req.SessionID,
		"model", model,
		"prompt_mode", promptMode,
		"format_mode", formatMode,
		"question", truncateRunes(question, 200))

	historyText := history.Assemble(p.sessions.History(req.User, req.SessionID))

	retrieveStart := time.Now()
	docs, err := p.retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}
	retrievalSeconds := time.Since(retrieveStart).Seconds()

	contextStr := NoContextPlaceholder
	var sources []Source
	if len(docs) > 0 {
		contents := make([]string, 0, len(docs))
		sources = make([]Source, 0, len(docs))
		for _, doc := range docs {
			contents = append(contents, doc.Document.Content)
			sources = append(sources, Source{
				Content:  doc.Document.Content,
				Metadata: doc.Document.Metadata,
			})
		}
		contextStr = strings.Join(contents, "\n\n")
	}
	p.logger.Info("retrieval finished",
		"user", req.User, "docs", len(docs), "seconds", retrievalSeconds)

	tmpl, label, err := p.selector.Select(promptMode, formatMode)
	if err != nil {
		return nil, fmt.Errorf("failed to select prompt template: %w", err)
	}
	p.logger.Info("template selected", "user", req.User, "template", label)

	rendered, err := tmpl.Render(map[string]string{
		prompt.SlotContext:    contextStr,
		prompt.SlotQuestion:   question,
		prompt.SlotHistory:    historyText,
		prompt.SlotFormatMode: string(formatMode),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	llmStart := time.Now()
	answer, attempts, err := p.generate(ctx, req.User, model, rendered, formatMode)
	if err != nil {
		return nil, err
	}
	llmSeconds := time.Since(llmStart).Seconds()

	if err := p.sessions.AppendTurn(req.User, req.SessionID, question, answer); err != nil {
		p.logger.Warn("failed to persist chat turn",
			"user", req.User, "session_id", req.SessionID, "error", err)
	}

	totalSeconds := time.Since(start).Seconds()

	if p.qa != nil {
		rec := qalog.Record{
			SessionID:           req.SessionID,
			Model:               model,
			PromptModeRequested: string(promptMode),
			FormatModeDetected:  string(formatMode),
			Question:            question,
			Answer:              answer,
			LLMAttempts:         attempts,
			TemplateUsed:        label,
			RetrievedDocsCount:  len(docs),
			TotalSeconds:        round2(totalSeconds),
		}
		if err := p.qa.Append(req.User, rec); err != nil {
			p.logger.Error("failed to save qa record",
				"user", req.User, "session_id", req.SessionID, "error", err)
		}
	}

	return &Result{
		Answer:           answer,
		Model:            model,
		PromptMode:       promptMode,
		FormatMode:       formatMode,
		TemplateLabel:    label,
		Sources:          sources,
		SessionID:        req.SessionID,
		Attempts:         attempts,
		LLMSeconds:       round2(llmSeconds),
		RetrievalSeconds: round2(retrievalSeconds),
		TotalSeconds:     round2(totalSeconds),
	}, nil
}

// generate runs the retry loop. An empty answer after sanitization waits
// a fixed second before retrying; a backend error waits a randomized one
// to three seconds so synchronized clients do not hammer a recovering
// server.
func (p *Pipeline) generate(ctx context.Context, user, model, rendered string, formatMode format.Mode) (string, int, error) {
	attempts := 0
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		attempts = attempt + 1

		if err := p.limiter.Wait(ctx); err != nil {
			return "", attempts, fmt.Errorf("%w: %v", ErrLLMBackend, err)
		}

		attemptStart := time.Now()
		raw, err := p.generator.Generate(ctx, model, rendered)
		if err != nil {
			p.logger.Error("llm generation failed",
				"user", user, "model", model, "attempt", attempts, "error", err)
			if attempt < p.maxRetries {
				p.sleep(ctx, p.jitter())
				continue
			}
			return "", attempts, fmt.Errorf("%w: %v", ErrLLMBackend, err)
		}
		p.logger.Info("llm response",
			"user", user, "attempt", attempts,
			"seconds", time.Since(attemptStart).Seconds(), "length", len(raw))

		processed := Sanitize(raw, formatMode)
		if strings.TrimSpace(processed) == "" {
			p.logger.Warn("empty answer after sanitization",
				"user", user, "attempt", attempts, "raw", truncateRunes(raw, 200))
			if attempt < p.maxRetries {
				p.sleep(ctx, time.Second)
				continue
			}
			return "", attempts, ErrEmptyAnswer
		}

		return processed, attempts, nil
	}
	return "", attempts, ErrEmptyAnswer
}

// sleepCtx waits for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// errorRetryJitter picks a pause between one and three seconds.
func errorRetryJitter() time.Duration {
	return time.Duration((1 + 2*rand.Float64()) * float64(time.Second))
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
