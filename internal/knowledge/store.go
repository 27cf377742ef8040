package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/kmu-usr/airqa/internal/log"
)

// Querier defines the database operations Store needs. Interfaces are
// defined by the consumer, not the provider (similar to http.RoundTripper,
// io.Reader), so Store depends on abstraction rather than *pgxpool.Pool.
//
// *pgxpool.Pool satisfies this interface.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store manages corpus documents with vector search over PostgreSQL +
// pgvector. Nearest candidates come from the database and the final
// ranking applies Maximal Marginal Relevance in process.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       Querier
	embedder ai.Embedder
	logger   log.Logger
	defaults []SearchOption
}

// New creates a Store. The trailing options become the defaults applied by
// Retrieve, on top of the package-level search defaults.
func New(db Querier, embedder ai.Embedder, logger log.Logger, defaults ...SearchOption) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		db:       db,
		embedder: embedder,
		logger:   logger,
		defaults: defaults,
	}
}

// Add inserts or updates a document. The content is embedded with the
// configured embedder before the upsert.
func (s *Store) Add(ctx context.Context, doc Document) error {
	embedding, err := s.embedText(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("failed to embed document %q: %w", doc.ID, err)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	createdAt := pgtype.Timestamptz{Time: doc.CreateAt, Valid: !doc.CreateAt.IsZero()}

	_, err = s.db.Exec(ctx, `
		INSERT INTO documents (id, content, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		doc.ID, doc.Content, pgvector.NewVector(embedding), metadataJSON, createdAt)
	if err != nil {
		return fmt.Errorf("failed to upsert document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// Search embeds the query, fetches the fetchK nearest candidates by cosine
// distance, then re-ranks them with MMR down to topK.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	// Bound the whole search, embedding included, so a slow vector scan
	// cannot block the request path.
	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	queryEmbedding, err := s.embedText(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := s.fetchCandidates(queryCtx, queryEmbedding, cfg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, err
	}

	return mmrSelect(queryEmbedding, candidates, cfg.topK, cfg.lambda), nil
}

// Retrieve runs Search with the defaults configured at construction. It
// exists so callers can depend on a single-method retrieval interface.
func (s *Store) Retrieve(ctx context.Context, query string) ([]Result, error) {
	return s.Search(ctx, query, s.defaults...)
}

// fetchCandidates pulls the nearest fetchK rows, embeddings included, for
// in-process re-ranking. The filter uses the JSONB containment operator
// with parameters marshaled by json.Marshal, never raw user input.
func (s *Store) fetchCandidates(ctx context.Context, queryEmbedding []float32, cfg *searchConfig) ([]candidate, error) {
	sql := `
		SELECT id, content, metadata, created_at, embedding,
		       1 - (embedding <=> $1) AS similarity
		FROM documents`
	args := []any{pgvector.NewVector(queryEmbedding)}

	if len(cfg.filter) > 0 {
		filterJSON, err := json.Marshal(cfg.filter)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal filter: %w", err)
		}
		sql += ` WHERE metadata @> $2`
		args = append(args, filterJSON)
	}

	sql += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, cfg.fetchK)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var candidates []candidate
	for rows.Next() {
		var (
			id         string
			content    string
			metadata   []byte
			createdAt  pgtype.Timestamptz
			embedding  pgvector.Vector
			similarity float64
		)
		if err := rows.Scan(&id, &content, &metadata, &createdAt, &embedding, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}

		var meta map[string]string
		if err := json.Unmarshal(metadata, &meta); err != nil {
			s.logger.Warn("failed to parse metadata", "document_id", id, "error", err)
			meta = make(map[string]string)
		}

		var createAt time.Time
		if createdAt.Valid {
			createAt = createdAt.Time
		}

		candidates = append(candidates, candidate{
			result: Result{
				Document: Document{
					ID:       id,
					Content:  content,
					Metadata: meta,
					CreateAt: createAt,
				},
				Similarity: float32(similarity),
			},
			embedding: embedding.Slice(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return candidates, nil
}

// Count returns the number of documents matching the filter, or the total
// count when the filter is empty.
func (s *Store) Count(ctx context.Context, filter map[string]string) (int, error) {
	var count int64
	var err error

	if len(filter) > 0 {
		filterJSON, marshalErr := json.Marshal(filter)
		if marshalErr != nil {
			return 0, fmt.Errorf("failed to marshal filter: %w", marshalErr)
		}
		err = s.db.QueryRow(ctx, `SELECT count(*) FROM documents WHERE metadata @> $1`, filterJSON).Scan(&count)
	} else {
		err = s.db.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}

	// Overflow protection for 32-bit platforms.
	if count > math.MaxInt {
		return 0, fmt.Errorf("document count %d exceeds platform int capacity", count)
	}

	return int(count), nil
}

// Delete removes a document by ID. Deleting a missing ID is not an error.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID); err != nil {
		return fmt.Errorf("failed to delete document %q: %w", docID, err)
	}

	s.logger.Debug("deleted document", "id", docID)
	return nil
}

// embedText produces the embedding vector for one piece of text.
func (s *Store) embedText(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return resp.Embeddings[0].Embedding, nil
}
