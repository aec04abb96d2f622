package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/flowmesh/swarmcore/core"
)

// VectorSearchResult is one hit from a similarity search, nearest first.
type VectorSearchResult struct {
	ID      string
	Payload map[string]any
	Score   float64 // cosine similarity, higher is closer
}

// Vector is the semantic-retrieval tier (spec §4.2), scoped per collection.
type Vector interface {
	Upsert(ctx context.Context, collection, id string, embedding []float32, payload map[string]any) error
	Search(ctx context.Context, collection string, queryEmbedding []float32, k int, filter map[string]any) ([]VectorSearchResult, error)
}

// PgVector implements Vector atop Postgres using the pgvector extension: cosine
// similarity search via `ORDER BY embedding <=> $1 LIMIT k`, grounded on
// original_source/backend/memory/vector_store.py.
type PgVector struct {
	pool *pgxpool.Pool
}

// NewPgVector connects to a Postgres instance with the pgvector extension installed.
func NewPgVector(ctx context.Context, dsn string) (*PgVector, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("memory: connect vector store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("memory: vector store unreachable: %w", err)
	}
	return &PgVector{pool: pool}, nil
}

func (v *PgVector) Upsert(ctx context.Context, collection, id string, embedding []float32, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return core.NewTaskError("memory.Vector.Upsert", core.KindParseFailed, id, err)
	}

	_, err = v.pool.Exec(ctx, `
		INSERT INTO vector_entries (collection, id, embedding, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, id) DO UPDATE
		SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload
	`, collection, id, pgvector.NewVector(embedding), data)
	if err != nil {
		return core.NewTaskError("memory.Vector.Upsert", core.KindPersistenceFailed, id, err)
	}
	return nil
}

func (v *PgVector) Search(ctx context.Context, collection string, queryEmbedding []float32, k int, filter map[string]any) ([]VectorSearchResult, error) {
	rows, err := v.pool.Query(ctx, `
		SELECT id, payload, 1 - (embedding <=> $1) AS score
		FROM vector_entries
		WHERE collection = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(queryEmbedding), collection, k)
	if err != nil {
		return nil, core.NewTaskError("memory.Vector.Search", core.KindPersistenceFailed, collection, err)
	}
	defer rows.Close()

	var results []VectorSearchResult
	for rows.Next() {
		var id string
		var payloadRaw []byte
		var score float64
		if err := rows.Scan(&id, &payloadRaw, &score); err != nil {
			return nil, core.NewTaskError("memory.Vector.Search", core.KindParseFailed, collection, err)
		}
		var payload map[string]any
		if err := json.Unmarshal(payloadRaw, &payload); err != nil {
			payload = map[string]any{}
		}
		results = append(results, VectorSearchResult{ID: id, Payload: payload, Score: score})
	}
	return results, rows.Err()
}

var _ Vector = (*PgVector)(nil)
