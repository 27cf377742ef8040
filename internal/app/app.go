// Package app wires the application together: configuration, tracing,
// the vector database, Genkit with the Ollama plugin, the file stores,
// and the RAG pipeline behind the HTTP server.
package app

import (
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmu-usr/airqa/api"
	"github.com/kmu-usr/airqa/internal/config"
	"github.com/kmu-usr/airqa/internal/knowledge"
	"github.com/kmu-usr/airqa/internal/llm"
	"github.com/kmu-usr/airqa/internal/log"
	"github.com/kmu-usr/airqa/internal/qalog"
	"github.com/kmu-usr/airqa/internal/rag"
	"github.com/kmu-usr/airqa/internal/session"
)

// App is the application container. Setup builds it; Close releases
// everything in reverse order.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit    *genkit.Genkit
	Pool      *pgxpool.Pool
	Knowledge *knowledge.Store
	Sessions  *session.Store
	Feedback  *qalog.FeedbackStore
	QALog     *qalog.QAStore
	Registry  *llm.Registry
	Pipeline  *rag.Pipeline
	Server    *api.Server

	otelShutdown func()
}

// Close releases held resources. Safe to call on a partially built App;
// Setup relies on that for error-path cleanup.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Pool = nil
	}
	if a.otelShutdown != nil {
		a.otelShutdown()
		a.otelShutdown = nil
	}
}
