package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"streamd/internal/common/fsutil"
	"streamd/pkg/types"
)

// File is a Store backed by plain files: one <id>.state.json per task,
// written whole via temp-file-and-rename, and one <id>.chunks.jsonl ledger
// appended line by line with O_APPEND. Appends are never rewritten, so the
// single-writer discipline alone keeps sequence numbers contiguous; a reader
// racing an in-flight append sees at worst a trailing partial line, which is
// skipped until the write completes.
type File struct {
	dir string

	mu      sync.Mutex
	nextSeq map[string]int
}

// NewFile creates the data directory if needed and returns a file store.
func NewFile(dir string) (*File, error) {
	dir, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &File{dir: dir, nextSeq: make(map[string]int)}, nil
}

func (f *File) statePath(id string) string  { return filepath.Join(f.dir, id+".state.json") }
func (f *File) chunksPath(id string) string { return filepath.Join(f.dir, id+".chunks.jsonl") }

// writeState persists a task record atomically (temp file + rename).
func (f *File) writeState(t types.Task) error {
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.statePath(t.ID) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, f.statePath(t.ID)); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

func (f *File) readState(id string) (types.Task, error) {
	b, err := os.ReadFile(f.statePath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, fmt.Errorf("read state: %w", err)
	}
	var t types.Task
	if err := json.Unmarshal(b, &t); err != nil {
		return types.Task{}, fmt.Errorf("decode state: %w", err)
	}
	return t, nil
}

func (f *File) Create(ctx context.Context, t types.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fsutil.PathExists(f.statePath(t.ID)) {
		return ErrTaskExists
	}
	return f.writeState(t)
}

func (f *File) Get(ctx context.Context, id string) (types.Task, error) {
	return f.readState(id)
}

func (f *File) UpdateStatus(ctx context.Context, id string, status types.TaskStatus, errorDetail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.readState(id)
	if err != nil {
		return err
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
	return f.writeState(t)
}

func (f *File) IncrementProgress(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.readState(id)
	if err != nil {
		return err
	}
	t.ProgressCount++
	t.LastUpdatedAt = time.Now()
	return f.writeState(t)
}

func (f *File) ListByOwner(ctx context.Context, ownerID string, statuses []types.TaskStatus, since time.Time) ([]types.TaskSummary, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*.state.json"))
	if err != nil {
		return nil, err
	}
	var out []types.TaskSummary
	for _, p := range matches {
		id := strings.TrimSuffix(filepath.Base(p), ".state.json")
		t, err := f.readState(id)
		if err != nil {
			continue
		}
		if t.OwnerID != ownerID || !matchesStatus(t.Status, statuses) || t.LastUpdatedAt.Before(since) {
			continue
		}
		out = append(out, summarize(t))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUpdatedAt.After(out[j].LastUpdatedAt)
	})
	return out, nil
}

func (f *File) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !fsutil.PathExists(f.statePath(id)) {
		return ErrNotFound
	}
	if err := os.Remove(f.statePath(id)); err != nil {
		return err
	}
	_ = os.Remove(f.chunksPath(id))
	delete(f.nextSeq, id)
	return nil
}

func (f *File) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*.state.json"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, p := range matches {
		id := strings.TrimSuffix(filepath.Base(p), ".state.json")
		t, err := f.readState(id)
		if err != nil {
			continue
		}
		if t.LastUpdatedAt.Before(cutoff) {
			if err := f.Delete(ctx, id); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

func (f *File) Stats(ctx context.Context) (Stats, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*.state.json"))
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	for _, p := range matches {
		id := strings.TrimSuffix(filepath.Base(p), ".state.json")
		t, err := f.readState(id)
		if err != nil {
			continue
		}
		s.TotalTasks++
		if t.FromCache {
			s.CachedTasks++
		}
		s.TotalChunks += t.ProgressCount
	}
	return s, nil
}

func (f *File) Append(ctx context.Context, taskID, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !fsutil.PathExists(f.statePath(taskID)) {
		return 0, ErrNotFound
	}
	seq, ok := f.nextSeq[taskID]
	if !ok {
		// Recover the counter after a restart by counting committed lines.
		existing, err := f.readChunks(taskID, 0)
		if err != nil {
			return 0, err
		}
		seq = len(existing)
	}
	line, err := json.Marshal(types.Chunk{TaskID: taskID, Seq: seq, Text: text, CreatedAt: time.Now()})
	if err != nil {
		return 0, err
	}
	fh, err := os.OpenFile(f.chunksPath(taskID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open ledger: %w", err)
	}
	if _, err := fh.Write(append(line, '\n')); err != nil {
		fh.Close()
		return 0, fmt.Errorf("append chunk: %w", err)
	}
	if err := fh.Sync(); err != nil {
		fh.Close()
		return 0, fmt.Errorf("sync ledger: %w", err)
	}
	if err := fh.Close(); err != nil {
		return 0, fmt.Errorf("close ledger: %w", err)
	}
	f.nextSeq[taskID] = seq + 1
	return seq, nil
}

func (f *File) ReadFrom(ctx context.Context, taskID string, offset int) ([]types.Chunk, error) {
	if !fsutil.PathExists(f.statePath(taskID)) {
		return nil, ErrNotFound
	}
	return f.readChunks(taskID, offset)
}

func (f *File) readChunks(taskID string, offset int) ([]types.Chunk, error) {
	fh, err := os.Open(f.chunksPath(taskID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer fh.Close()
	var out []types.Chunk
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var c types.Chunk
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			// Trailing partial line from an in-flight append.
			break
		}
		if c.Seq >= offset {
			out = append(out, c)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	return out, nil
}
