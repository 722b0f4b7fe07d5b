// Package engine owns the generation task state machine: it creates task
// records, runs provider generations in the background, appends every
// fragment to the durable chunk ledger and resolves each task's terminal
// state exactly once. Readers catch up through Poll without any server-side
// consumption state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"streamd/internal/cache"
	"streamd/internal/provider"
	"streamd/internal/store"
	"streamd/pkg/types"
)

// Options tunes the coordinator.
type Options struct {
	// MaxAttempts bounds provider retries per task. Retries only happen while
	// no chunk has been appended yet; a failure mid-stream is final.
	MaxAttempts int
	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff   time.Duration
	MaxPromptBytes int
	// CacheChunkSize is the rune count per chunk when resynthesizing a ledger
	// from a cached response.
	CacheChunkSize int
	Logger         zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 200 * time.Millisecond
	}
	if o.MaxPromptBytes <= 0 {
		o.MaxPromptBytes = 1 << 16
	}
	if o.CacheChunkSize <= 0 {
		o.CacheChunkSize = 50
	}
	return o
}

// Engine coordinates generation tasks. Exactly one background goroutine per
// task id exists, created at submission and never re-created.
type Engine struct {
	store     store.Store
	cache     cache.Cache // nil disables the response cache
	providers *provider.Registry
	opts      Options
	log       zerolog.Logger

	// baseCtx scopes background generation to the process, not to the
	// submitting HTTP request.
	baseCtx context.Context

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs an Engine. baseCtx bounds all background generation; cancel
// it on shutdown and call Wait to drain.
func New(baseCtx context.Context, st store.Store, ca cache.Cache, providers *provider.Registry, opts Options) *Engine {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	opts = opts.withDefaults()
	return &Engine{
		store:     st,
		cache:     ca,
		providers: providers,
		opts:      opts,
		log:       opts.Logger,
		baseCtx:   baseCtx,
		running:   make(map[string]context.CancelFunc),
	}
}

// Wait blocks until all background generation loops have finished.
func (e *Engine) Wait() { e.wg.Wait() }

// SubmitRequest carries a validated-on-entry generation request.
type SubmitRequest struct {
	Prompt      string
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	OwnerID     string
}

// Submit validates the request, serves it from the response cache when
// possible, and otherwise creates the task record and starts the background
// generation loop. It returns once the record exists; generation continues
// regardless of what happens to the submitting client.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (types.Task, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return types.Task{}, errValidation("prompt is required")
	}
	if len(prompt) > e.opts.MaxPromptBytes {
		return types.Task{}, errValidation(fmt.Sprintf("prompt exceeds %d bytes", e.opts.MaxPromptBytes))
	}
	adapter, ok := e.providers.Get(req.Provider)
	if !ok {
		return types.Task{}, errValidation("unknown provider: " + req.Provider)
	}
	model := req.Model
	if model == "" {
		model = adapter.DefaultModel()
	}

	fp := cache.Fingerprint(prompt, adapter.Name(), model)
	if e.cache != nil {
		if entry, hit, err := e.cache.Lookup(ctx, fp); err == nil && hit {
			cacheLookups.WithLabelValues("hit").Inc()
			return e.synthesizeFromCache(ctx, req, adapter.Name(), model, entry)
		} else if err != nil {
			// A broken cache degrades to a miss; generation still works.
			e.log.Warn().Err(err).Msg("cache lookup failed")
		} else {
			cacheLookups.WithLabelValues("miss").Inc()
		}
	}

	now := time.Now()
	task := types.Task{
		ID:            uuid.NewString(),
		OwnerID:       req.OwnerID,
		Prompt:        prompt,
		Provider:      adapter.Name(),
		Model:         model,
		Temperature:   req.Temperature,
		MaxFragments:  req.MaxTokens,
		Status:        types.StatusCreated,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if err := e.store.Create(ctx, task); err != nil {
		return types.Task{}, fmt.Errorf("create task: %w", err)
	}
	// created -> running happens before the adapter is ever invoked.
	if err := e.store.UpdateStatus(ctx, task.ID, types.StatusRunning, ""); err != nil {
		return types.Task{}, fmt.Errorf("start task: %w", err)
	}
	task.Status = types.StatusRunning

	genCtx, cancel := context.WithCancel(e.baseCtx)
	e.mu.Lock()
	e.running[task.ID] = cancel
	e.mu.Unlock()
	e.wg.Add(1)
	go e.run(genCtx, task.ID, adapter, provider.Request{
		Prompt:       prompt,
		Model:        model,
		Temperature:  req.Temperature,
		MaxFragments: req.MaxTokens,
	}, fp)

	return task, nil
}

// synthesizeFromCache replays a cached full response into a fresh ledger in
// fixed-size chunks, satisfying the same contiguity invariant as a live
// generation, and resolves the task as completed immediately.
func (e *Engine) synthesizeFromCache(ctx context.Context, req SubmitRequest, providerName, model string, entry cache.Entry) (types.Task, error) {
	now := time.Now()
	task := types.Task{
		ID:            uuid.NewString(),
		OwnerID:       req.OwnerID,
		Prompt:        strings.TrimSpace(req.Prompt),
		Provider:      providerName,
		Model:         model,
		Temperature:   req.Temperature,
		MaxFragments:  req.MaxTokens,
		Status:        types.StatusCreated,
		FromCache:     true,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if err := e.store.Create(ctx, task); err != nil {
		return types.Task{}, fmt.Errorf("create cached task: %w", err)
	}
	for _, piece := range splitRunes(entry.FullText, e.opts.CacheChunkSize) {
		if _, err := e.store.Append(ctx, task.ID, piece); err != nil {
			return types.Task{}, fmt.Errorf("synthesize ledger: %w", err)
		}
		if err := e.store.IncrementProgress(ctx, task.ID); err != nil {
			return types.Task{}, fmt.Errorf("synthesize ledger: %w", err)
		}
		chunksAppended.Inc()
	}
	if err := e.store.UpdateStatus(ctx, task.ID, types.StatusCompleted, ""); err != nil {
		return types.Task{}, fmt.Errorf("complete cached task: %w", err)
	}
	tasksTotal.WithLabelValues("cached").Inc()
	e.log.Info().Str("task_id", task.ID).Str("provider", providerName).Msg("served from cache")
	return e.store.Get(ctx, task.ID)
}

// run is the per-task generation loop. It is the only writer for the task's
// ledger and record. All failures terminate in an error status on the record;
// nothing escapes the goroutine.
func (e *Engine) run(ctx context.Context, taskID string, adapter provider.Adapter, preq provider.Request, fp string) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		delete(e.running, taskID)
		e.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("task_id", taskID).Interface("panic", r).Msg("generation loop panicked")
			e.finish(taskID, types.StatusError, fmt.Sprintf("internal error: %v", r))
		}
	}()
	generationsInflight.Inc()
	defer generationsInflight.Dec()

	var full strings.Builder
	streamed := false
	onFragment := func(frag string) error {
		if frag == "" {
			// Providers emit empty keepalive fragments; never append those.
			return nil
		}
		// Cancellation checkpoint before requesting persistence of the
		// in-flight fragment: a cancelled task drops it rather than append.
		if err := ctx.Err(); err != nil {
			return err
		}
		// Appends use the process context so a task cancel mid-write is not
		// mistaken for a storage failure.
		if _, err := e.store.Append(e.baseCtx, taskID, frag); err != nil {
			return persistFailure{err: err}
		}
		streamed = true
		full.WriteString(frag)
		if err := e.store.IncrementProgress(e.baseCtx, taskID); err != nil {
			return persistFailure{err: err}
		}
		chunksAppended.Inc()
		// Checkpoint after the append as well, before the next fragment.
		return ctx.Err()
	}

	backoff := e.opts.RetryBackoff
	for attempt := 1; ; attempt++ {
		err := adapter.Generate(ctx, preq, onFragment)
		switch {
		case err == nil:
			e.storeToCache(taskID, fp, full.String(), adapter.Name(), preq.Model)
			e.finish(taskID, types.StatusCompleted, "")
			return

		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			e.finish(taskID, types.StatusCancelled, "")
			return

		case isPersistFailure(err):
			e.log.Error().Str("task_id", taskID).Err(err).Msg("ledger write failed")
			e.finish(taskID, types.StatusError, err.Error())
			return

		case provider.IsTransient(err) && !streamed && attempt < e.opts.MaxAttempts:
			// Safe to retry: the ledger is still empty for this task, so a
			// fresh attempt cannot duplicate chunks.
			generationRetries.Inc()
			e.log.Warn().Str("task_id", taskID).Int("attempt", attempt).Err(err).Msg("transient provider failure, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				e.finish(taskID, types.StatusCancelled, "")
				return
			}
			backoff *= 2

		default:
			// Permanent failure, retries exhausted, or a failure after
			// streaming began (restarting would corrupt the ledger).
			e.log.Error().Str("task_id", taskID).Err(err).Msg("generation failed")
			e.finish(taskID, types.StatusError, err.Error())
			return
		}
	}
}

// finish resolves the terminal state. A lost race with Cancel leaves the
// record in the state the winner chose; ErrTerminal is therefore benign.
func (e *Engine) finish(taskID string, status types.TaskStatus, detail string) {
	if err := e.store.UpdateStatus(e.baseCtx, taskID, status, detail); err != nil {
		if errors.Is(err, store.ErrTerminal) {
			return
		}
		e.log.Error().Str("task_id", taskID).Err(err).Msg("failed to record terminal status")
		return
	}
	tasksTotal.WithLabelValues(string(status)).Inc()
}

func (e *Engine) storeToCache(taskID, fp, fullText, providerName, model string) {
	if e.cache == nil || fullText == "" {
		return
	}
	err := e.cache.Store(e.baseCtx, fp, cache.Entry{FullText: fullText, Provider: providerName, Model: model})
	if err != nil {
		e.log.Warn().Str("task_id", taskID).Err(err).Msg("cache store failed")
	}
}

// Cancel requests best-effort cancellation. The running loop observes the
// signal at its next checkpoint; chunks already appended stay readable. When
// no loop owns the task (e.g. after a restart left it running), the record is
// transitioned directly.
func (e *Engine) Cancel(ctx context.Context, taskID string) (types.Task, error) {
	t, err := e.store.Get(ctx, taskID)
	if err != nil {
		return types.Task{}, err
	}
	if t.Status.Terminal() {
		return t, nil
	}
	e.mu.Lock()
	cancel, owned := e.running[taskID]
	e.mu.Unlock()
	if owned {
		cancel()
	} else {
		if err := e.store.UpdateStatus(ctx, taskID, types.StatusCancelled, ""); err != nil && !errors.Is(err, store.ErrTerminal) {
			return types.Task{}, err
		}
		tasksTotal.WithLabelValues(string(types.StatusCancelled)).Inc()
	}
	return e.store.Get(ctx, taskID)
}

// splitRunes cuts s into pieces of at most n runes, preserving order and
// concatenating back to exactly s.
func splitRunes(s string, n int) []string {
	if s == "" {
		return nil
	}
	r := []rune(s)
	out := make([]string, 0, (len(r)+n-1)/n)
	for start := 0; start < len(r); start += n {
		end := start + n
		if end > len(r) {
			end = len(r)
		}
		out = append(out, string(r[start:end]))
	}
	return out
}
