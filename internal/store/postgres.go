package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"streamd/pkg/types"
)

// Postgres is a Store backed by PostgreSQL via pgxpool. The chunks table
// carries a (task_id, seq) primary key, so a violated contiguity assumption
// fails loudly instead of silently reordering.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres connects a pool and verifies connectivity.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 1 * time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() { p.db.Close() }

// Ping verifies the pool can still reach the database.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.Ping(ctx) }

// EnsureSchema creates the tasks and chunks tables when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			temperature DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_fragments INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			progress_count INT NOT NULL DEFAULT 0,
			from_cache BOOLEAN NOT NULL DEFAULT FALSE,
			error_detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			last_updated_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS tasks_owner_idx ON tasks (owner_id, last_updated_at DESC)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			seq INT NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (task_id, seq)
		)`,
	}
	for _, q := range ddl {
		if _, err := p.db.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Create(ctx context.Context, t types.Task) error {
	query := `
		INSERT INTO tasks (id, owner_id, prompt, provider, model, temperature, max_fragments,
			status, progress_count, from_cache, error_detail, created_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := p.db.Exec(ctx, query,
		t.ID, t.OwnerID, t.Prompt, t.Provider, t.Model, t.Temperature, t.MaxFragments,
		t.Status, t.ProgressCount, t.FromCache, t.ErrorDetail, t.CreatedAt, t.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskExists
	}
	return nil
}

const taskColumns = `id, owner_id, prompt, provider, model, temperature, max_fragments,
	status, progress_count, from_cache, error_detail, created_at, last_updated_at, completed_at`

func scanTask(row pgx.Row) (types.Task, error) {
	var t types.Task
	var completed *time.Time
	err := row.Scan(&t.ID, &t.OwnerID, &t.Prompt, &t.Provider, &t.Model, &t.Temperature,
		&t.MaxFragments, &t.Status, &t.ProgressCount, &t.FromCache, &t.ErrorDetail,
		&t.CreatedAt, &t.LastUpdatedAt, &completed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, fmt.Errorf("scan task: %w", err)
	}
	if completed != nil {
		t.CompletedAt = *completed
	}
	return t, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (types.Task, error) {
	row := p.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

func (p *Postgres) UpdateStatus(ctx context.Context, id string, status types.TaskStatus, errorDetail string) error {
	if status != types.StatusError {
		errorDetail = ""
	}
	query := `
		UPDATE tasks
		SET status = $2,
			error_detail = CASE WHEN $2 = 'error' THEN $3 ELSE error_detail END,
			last_updated_at = $4,
			completed_at = CASE WHEN $2 IN ('completed', 'error', 'cancelled') THEN $4 ELSE completed_at END
		WHERE id = $1 AND status NOT IN ('completed', 'error', 'cancelled')
	`
	tag, err := p.db.Exec(ctx, query, id, status, errorDetail, time.Now())
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either unknown or already terminal; disambiguate for the caller.
		if _, gerr := p.Get(ctx, id); gerr != nil {
			return gerr
		}
		return ErrTerminal
	}
	return nil
}

func (p *Postgres) IncrementProgress(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE tasks SET progress_count = progress_count + 1, last_updated_at = $2 WHERE id = $1`,
		id, time.Now())
	if err != nil {
		return fmt.Errorf("increment progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListByOwner(ctx context.Context, ownerID string, statuses []types.TaskStatus, since time.Time) ([]types.TaskSummary, error) {
	filter := make([]string, 0, len(statuses))
	for _, s := range statuses {
		filter = append(filter, string(s))
	}
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE owner_id = $1
		  AND last_updated_at >= $2
		  AND (cardinality($3::text[]) = 0 OR status = ANY($3::text[]))
		ORDER BY last_updated_at DESC
	`
	rows, err := p.db.Query(ctx, query, ownerID, since, filter)
	if err != nil {
		return nil, fmt.Errorf("list by owner: %w", err)
	}
	defer rows.Close()
	var out []types.TaskSummary
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, summarize(t))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list by owner: %w", err)
	}
	return out, nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM tasks WHERE last_updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := p.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM tasks),
			(SELECT COUNT(*) FROM tasks WHERE from_cache),
			(SELECT COUNT(*) FROM chunks)
	`).Scan(&s.TotalTasks, &s.CachedTasks, &s.TotalChunks)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return s, nil
}

func (p *Postgres) Append(ctx context.Context, taskID, text string) (int, error) {
	// Single writer per task makes MAX(seq)+1 race-free; the primary key
	// still rejects duplicates if that discipline is ever broken.
	query := `
		INSERT INTO chunks (task_id, seq, text)
		SELECT $1, COALESCE(MAX(seq) + 1, 0), $2 FROM chunks WHERE task_id = $1
		RETURNING seq
	`
	var seq int
	if err := p.db.QueryRow(ctx, query, taskID, text).Scan(&seq); err != nil {
		return 0, fmt.Errorf("append chunk: %w", err)
	}
	return seq, nil
}

func (p *Postgres) ReadFrom(ctx context.Context, taskID string, offset int) ([]types.Chunk, error) {
	rows, err := p.db.Query(ctx, `
		SELECT task_id, seq, text, created_at
		FROM chunks
		WHERE task_id = $1 AND seq >= $2
		ORDER BY seq
	`, taskID, offset)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	defer rows.Close()
	var out []types.Chunk
	for rows.Next() {
		var c types.Chunk
		if err := rows.Scan(&c.TaskID, &c.Seq, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	if out == nil {
		// Distinguish "no chunks yet" from "no such task" for readers.
		if _, err := p.Get(ctx, taskID); err != nil {
			return nil, err
		}
	}
	return out, nil
}
