// Package store persists task records and the per-task chunk ledger.
//
// The ledger contract is the core of the system: chunk sequence numbers are
// zero-based, contiguous and unique per task. Exactly one writer (the
// coordinator goroutine owning the task) appends; readers are unbounded and
// never observe a chunk before its append has completed.
package store

import (
	"context"
	"errors"
	"time"

	"streamd/pkg/types"
)

// ErrNotFound is returned when a task id is unknown.
var ErrNotFound = errors.New("task not found")

// ErrTaskExists is returned by Create when the task id is already present.
var ErrTaskExists = errors.New("task already exists")

// ErrTerminal is returned by UpdateStatus when the task already reached a
// terminal state. Terminal states are immutable.
var ErrTerminal = errors.New("task is in a terminal state")

// TaskStore persists task records. Mutations are last-writer-wins on the full
// record; only the coordinator that owns a task mutates it.
type TaskStore interface {
	Create(ctx context.Context, t types.Task) error
	Get(ctx context.Context, id string) (types.Task, error)
	// UpdateStatus transitions the task and stamps LastUpdatedAt (and
	// CompletedAt for terminal states). errorDetail is recorded only for
	// StatusError. Transitions out of a terminal state return ErrTerminal.
	UpdateStatus(ctx context.Context, id string, status types.TaskStatus, errorDetail string) error
	// IncrementProgress bumps the task's durable chunk counter by one.
	IncrementProgress(ctx context.Context, id string) error
	// ListByOwner returns summaries for an owner's tasks updated at or after
	// since, filtered to the given statuses (empty = all), most recent first.
	ListByOwner(ctx context.Context, ownerID string, statuses []types.TaskStatus, since time.Time) ([]types.TaskSummary, error)
	// Delete removes the task record and its chunks.
	Delete(ctx context.Context, id string) error
	// PurgeOlderThan deletes tasks (and their chunks) whose last update is
	// before cutoff, returning how many were removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	Stats(ctx context.Context) (Stats, error)
}

// ChunkLedger is the append-only ordered log of fragments per task.
type ChunkLedger interface {
	// Append durably persists text under the next contiguous sequence number
	// and returns it. Must only be called by the task's single owning writer.
	Append(ctx context.Context, taskID, text string) (int, error)
	// ReadFrom returns all chunks with sequence number >= offset, in order.
	// Safe for unbounded concurrent callers.
	ReadFrom(ctx context.Context, taskID string, offset int) ([]types.Chunk, error)
}

// Store combines the task record store and the chunk ledger, which every
// backend here implements together so the pair shares one storage engine.
type Store interface {
	TaskStore
	ChunkLedger
}

// Stats aggregates storage-wide counters for the stats endpoint.
type Stats struct {
	TotalTasks  int
	CachedTasks int
	TotalChunks int
}

// truncatePrompt shortens a prompt for listing payloads.
func truncatePrompt(p string) string {
	const max = 100
	r := []rune(p)
	if len(r) <= max {
		return p
	}
	return string(r[:max])
}

func matchesStatus(s types.TaskStatus, filter []types.TaskStatus) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if s == f {
			return true
		}
	}
	return false
}

func summarize(t types.Task) types.TaskSummary {
	return types.TaskSummary{
		ID:            t.ID,
		Status:        t.Status,
		Prompt:        truncatePrompt(t.Prompt),
		ProgressCount: t.ProgressCount,
		FromCache:     t.FromCache,
		CreatedAt:     t.CreatedAt,
		LastUpdatedAt: t.LastUpdatedAt,
	}
}
