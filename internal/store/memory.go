package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"streamd/pkg/types"
)

// Memory is an in-process Store. Tasks live in a map for O(1) lookup plus an
// insertion-order slice for stable iteration; all access goes through one
// mutex. All reads return copies, never interior pointers.
type Memory struct {
	mu     sync.Mutex
	tasks  map[string]*types.Task
	chunks map[string][]types.Chunk
	order  []string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks:  make(map[string]*types.Task),
		chunks: make(map[string][]types.Chunk),
	}
}

func (m *Memory) Create(ctx context.Context, t types.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; ok {
		return ErrTaskExists
	}
	cp := t
	m.tasks[t.ID] = &cp
	m.order = append(m.order, t.ID)
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return types.Task{}, ErrNotFound
	}
	return *t, nil
}

func (m *Memory) UpdateStatus(ctx context.Context, id string, status types.TaskStatus, errorDetail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status.Terminal() {
		return ErrTerminal
	}
	now := time.Now()
	t.Status = status
	t.LastUpdatedAt = now
	if status == types.StatusError {
		t.ErrorDetail = errorDetail
	}
	if status.Terminal() {
		t.CompletedAt = now
	}
	return nil
}

func (m *Memory) IncrementProgress(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.ProgressCount++
	t.LastUpdatedAt = time.Now()
	return nil
}

func (m *Memory) ListByOwner(ctx context.Context, ownerID string, statuses []types.TaskStatus, since time.Time) ([]types.TaskSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.TaskSummary
	for _, id := range m.order {
		t := m.tasks[id]
		if t.OwnerID != ownerID {
			continue
		}
		if !matchesStatus(t.Status, statuses) {
			continue
		}
		if t.LastUpdatedAt.Before(since) {
			continue
		}
		out = append(out, summarize(*t))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUpdatedAt.After(out[j].LastUpdatedAt)
	})
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	delete(m.chunks, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keep []string
	removed := 0
	for _, id := range m.order {
		t := m.tasks[id]
		if t.LastUpdatedAt.Before(cutoff) {
			delete(m.tasks, id)
			delete(m.chunks, id)
			removed++
			continue
		}
		keep = append(keep, id)
	}
	m.order = keep
	return removed, nil
}

func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{TotalTasks: len(m.tasks)}
	for _, t := range m.tasks {
		if t.FromCache {
			s.CachedTasks++
		}
	}
	for _, cs := range m.chunks {
		s.TotalChunks += len(cs)
	}
	return s, nil
}

func (m *Memory) Append(ctx context.Context, taskID, text string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; !ok {
		return 0, ErrNotFound
	}
	seq := len(m.chunks[taskID])
	m.chunks[taskID] = append(m.chunks[taskID], types.Chunk{
		TaskID:    taskID,
		Seq:       seq,
		Text:      text,
		CreatedAt: time.Now(),
	})
	return seq, nil
}

func (m *Memory) ReadFrom(ctx context.Context, taskID string, offset int) ([]types.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; !ok {
		return nil, ErrNotFound
	}
	cs := m.chunks[taskID]
	if offset < 0 {
		offset = 0
	}
	if offset >= len(cs) {
		return nil, nil
	}
	out := make([]types.Chunk, len(cs)-offset)
	copy(out, cs[offset:])
	return out, nil
}
