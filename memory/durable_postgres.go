package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowmesh/swarmcore/core"
)

// Durable is the authoritative store for tasks, subtasks, and memory entries (spec §4.2,
// §6 schema).
type Durable interface {
	SaveTask(ctx context.Context, task *core.Task) error
	GetTask(ctx context.Context, id string) (*core.Task, error)
	ListTasks(ctx context.Context, status core.TaskStatus, limit, offset int) ([]*core.Task, error)
	DeleteTask(ctx context.Context, id string) error

	Save(ctx context.Context, entry *core.MemoryEntry) error
	Query(ctx context.Context, namespace string, scope core.MemoryScope, limit int) ([]*core.MemoryEntry, error)
}

// PgDurable implements Durable on Postgres. Writers are idempotent on id (upsert
// semantics, spec §5), grounded on original_source/backend/memory/postgres_store.py.
type PgDurable struct {
	pool *pgxpool.Pool
}

// NewPgDurable connects to a Postgres instance. Schema migrations are applied
// separately via memory/migrations (golang-migrate).
func NewPgDurable(ctx context.Context, dsn string) (*PgDurable, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("memory: connect durable store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("memory: durable store unreachable: %w", err)
	}
	return &PgDurable{pool: pool}, nil
}

func (p *PgDurable) SaveTask(ctx context.Context, task *core.Task) error {
	contextJSON, _ := json.Marshal(task.Context)
	resultJSON, _ := json.Marshal(task.Result)
	subtasksJSON, _ := json.Marshal(task.SubTasks)

	_, err := p.pool.Exec(ctx, `
		INSERT INTO tasks (id, description, status, provider, context, result, error,
			created_at, updated_at, completed_at, tokens_used, agents_count, progress, subtasks)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			provider = EXCLUDED.provider,
			context = EXCLUDED.context,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at,
			tokens_used = EXCLUDED.tokens_used,
			agents_count = EXCLUDED.agents_count,
			progress = EXCLUDED.progress,
			subtasks = EXCLUDED.subtasks
	`, task.ID, task.Description, task.Status, task.Provider, contextJSON, resultJSON, task.Error,
		task.CreatedAt, task.UpdatedAt, task.CompletedAt, task.TokensUsed, task.AgentsCount, task.Progress, subtasksJSON)
	if err != nil {
		return core.NewTaskError("memory.Durable.SaveTask", core.KindPersistenceFailed, task.ID, err)
	}
	return nil
}

func (p *PgDurable) GetTask(ctx context.Context, id string) (*core.Task, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, description, status, provider, context, result, error,
			created_at, updated_at, completed_at, tokens_used, agents_count, progress, subtasks
		FROM tasks WHERE id = $1
	`, id)

	var task core.Task
	var contextJSON, resultJSON, subtasksJSON []byte
	err := row.Scan(&task.ID, &task.Description, &task.Status, &task.Provider, &contextJSON, &resultJSON,
		&task.Error, &task.CreatedAt, &task.UpdatedAt, &task.CompletedAt, &task.TokensUsed, &task.AgentsCount,
		&task.Progress, &subtasksJSON)
	if err != nil {
		return nil, core.NewTaskError("memory.Durable.GetTask", core.KindPersistenceFailed, id, core.ErrTaskNotFound)
	}

	_ = json.Unmarshal(contextJSON, &task.Context)
	_ = json.Unmarshal(resultJSON, &task.Result)
	_ = json.Unmarshal(subtasksJSON, &task.SubTasks)
	return &task, nil
}

func (p *PgDurable) ListTasks(ctx context.Context, status core.TaskStatus, limit, offset int) ([]*core.Task, error) {
	query := `SELECT id, description, status, provider, created_at, updated_at, completed_at, tokens_used, agents_count, progress FROM tasks`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, core.NewTaskError("memory.Durable.ListTasks", core.KindPersistenceFailed, "", err)
	}
	defer rows.Close()

	var tasks []*core.Task
	for rows.Next() {
		var t core.Task
		if err := rows.Scan(&t.ID, &t.Description, &t.Status, &t.Provider, &t.CreatedAt, &t.UpdatedAt,
			&t.CompletedAt, &t.TokensUsed, &t.AgentsCount, &t.Progress); err != nil {
			return nil, core.NewTaskError("memory.Durable.ListTasks", core.KindParseFailed, "", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func (p *PgDurable) DeleteTask(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return core.NewTaskError("memory.Durable.DeleteTask", core.KindPersistenceFailed, id, err)
	}
	return nil
}

func (p *PgDurable) Save(ctx context.Context, entry *core.MemoryEntry) error {
	metadataJSON, _ := json.Marshal(entry.Metadata)
	_, err := p.pool.Exec(ctx, `
		INSERT INTO memory_entries (id, scope, namespace, content, entry_metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, entry_metadata = EXCLUDED.entry_metadata
	`, entry.ID, entry.Scope, entry.Namespace, entry.Content, metadataJSON, entry.CreatedAt)
	if err != nil {
		return core.NewTaskError("memory.Durable.Save", core.KindPersistenceFailed, entry.ID, err)
	}
	return nil
}

func (p *PgDurable) Query(ctx context.Context, namespace string, scope core.MemoryScope, limit int) ([]*core.MemoryEntry, error) {
	query := `SELECT id, scope, namespace, content, entry_metadata, created_at FROM memory_entries WHERE namespace = $1`
	args := []any{namespace}
	if scope != "" {
		query += ` AND scope = $2`
		args = append(args, scope)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, core.NewTaskError("memory.Durable.Query", core.KindPersistenceFailed, namespace, err)
	}
	defer rows.Close()

	var entries []*core.MemoryEntry
	for rows.Next() {
		var e core.MemoryEntry
		var metadataJSON []byte
		if err := rows.Scan(&e.ID, &e.Scope, &e.Namespace, &e.Content, &metadataJSON, &e.CreatedAt); err != nil {
			return nil, core.NewTaskError("memory.Durable.Query", core.KindParseFailed, namespace, err)
		}
		_ = json.Unmarshal(metadataJSON, &e.Metadata)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

var _ Durable = (*PgDurable)(nil)
