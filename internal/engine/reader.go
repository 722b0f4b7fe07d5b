package engine

import (
	"context"
	"fmt"
	"time"

	"streamd/pkg/types"
)

// PollResult is one resumable-read response: every chunk at or after the
// caller's offset plus the task status observed before the read, so a
// terminal status is only ever reported alongside the complete tail.
type PollResult struct {
	Chunks      []types.Chunk
	Status      types.TaskStatus
	ErrorDetail string
	// Progress is the task's durable chunk counter at read time.
	Progress int
}

// Poll returns all chunks with sequence number >= fromOffset together with
// the task's status. It is stateless and idempotent: any number of readers
// may call it concurrently with independent offsets, and repeating a call
// with no intervening append yields the same (possibly empty) result. The
// status is read before the ledger so a terminal status never hides chunks
// appended before it.
func (e *Engine) Poll(ctx context.Context, taskID string, fromOffset int) (PollResult, error) {
	t, err := e.store.Get(ctx, taskID)
	if err != nil {
		return PollResult{}, err
	}
	chunks, err := e.store.ReadFrom(ctx, taskID, fromOffset)
	if err != nil {
		return PollResult{}, err
	}
	return PollResult{
		Chunks:      chunks,
		Status:      t.Status,
		ErrorDetail: t.ErrorDetail,
		Progress:    t.ProgressCount,
	}, nil
}

// Status returns the current task record.
func (e *Engine) Status(ctx context.Context, taskID string) (types.Task, error) {
	return e.store.Get(ctx, taskID)
}

// recoveryStatuses are the states worth surfacing to a reconnecting client:
// tasks it may still want to resume or display.
var recoveryStatuses = []types.TaskStatus{types.StatusCreated, types.StatusRunning, types.StatusCompleted}

// ListSessions returns an owner's recent tasks, most recent first, limited to
// the given recency window.
func (e *Engine) ListSessions(ctx context.Context, ownerID string, window time.Duration) ([]types.TaskSummary, error) {
	since := time.Now().Add(-window)
	return e.store.ListByOwner(ctx, ownerID, recoveryStatuses, since)
}

// DeleteSession removes a task and its ledger after verifying ownership.
func (e *Engine) DeleteSession(ctx context.Context, ownerID, taskID string) error {
	t, err := e.store.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if t.OwnerID != ownerID {
		return ErrNotOwner
	}
	return e.store.Delete(ctx, taskID)
}

// Cleanup purges tasks whose last update is older than maxAge. Retention is
// policy, not core logic: running tasks touched within the window survive.
func (e *Engine) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	return e.store.PurgeOlderThan(ctx, time.Now().Add(-maxAge))
}

// Stats reports storage-wide totals for the stats endpoint.
func (e *Engine) Stats(ctx context.Context) (types.StatsResponse, error) {
	s, err := e.store.Stats(ctx)
	if err != nil {
		return types.StatsResponse{}, err
	}
	rate := "0%"
	if s.TotalTasks > 0 {
		rate = fmt.Sprintf("%.1f%%", float64(s.CachedTasks)/float64(s.TotalTasks)*100)
	}
	return types.StatsResponse{
		TotalTasks:   s.TotalTasks,
		CachedTasks:  s.CachedTasks,
		CacheHitRate: rate,
		TotalChunks:  s.TotalChunks,
	}, nil
}
