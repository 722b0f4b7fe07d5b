package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"streamd/internal/engine"
	"streamd/internal/store"
	"streamd/pkg/types"
)

// fakeService scripts the coordinator behind the HTTP layer.
type fakeService struct {
	submit   func(req engine.SubmitRequest) (types.Task, error)
	status   func(taskID string) (types.Task, error)
	poll     func(taskID string, from int) (engine.PollResult, error)
	cancel   func(taskID string) (types.Task, error)
	sessions func(ownerID string, window time.Duration) ([]types.TaskSummary, error)
	delete   func(ownerID, taskID string) error
	cleanup  func(maxAge time.Duration) (int, error)
	stats    func() (types.StatsResponse, error)
}

func (f *fakeService) Submit(ctx context.Context, req engine.SubmitRequest) (types.Task, error) {
	return f.submit(req)
}

func (f *fakeService) Status(ctx context.Context, taskID string) (types.Task, error) {
	return f.status(taskID)
}

func (f *fakeService) Poll(ctx context.Context, taskID string, from int) (engine.PollResult, error) {
	return f.poll(taskID, from)
}

func (f *fakeService) Cancel(ctx context.Context, taskID string) (types.Task, error) {
	return f.cancel(taskID)
}

func (f *fakeService) ListSessions(ctx context.Context, ownerID string, window time.Duration) ([]types.TaskSummary, error) {
	return f.sessions(ownerID, window)
}

func (f *fakeService) DeleteSession(ctx context.Context, ownerID, taskID string) error {
	return f.delete(ownerID, taskID)
}

func (f *fakeService) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	return f.cleanup(maxAge)
}

func (f *fakeService) Stats(ctx context.Context) (types.StatsResponse, error) {
	return f.stats()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestGenerateAccepted(t *testing.T) {
	var got engine.SubmitRequest
	svc := &fakeService{submit: func(req engine.SubmitRequest) (types.Task, error) {
		got = req
		return types.Task{ID: "t1", Status: types.StatusRunning, Provider: "openai", Model: "gpt-4o", OwnerID: req.OwnerID}, nil
	}}
	h := NewMux(svc)

	rec := doJSON(t, h, http.MethodPost, "/api/chat/generate",
		`{"prompt":"hi","provider":"openai","temperature":0.7,"max_tokens":100,"owner_id":"alice"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got.Prompt != "hi" || got.Provider != "openai" || got.OwnerID != "alice" || got.MaxTokens != 100 {
		t.Fatalf("submit request not forwarded: %+v", got)
	}
	resp := decode[types.TaskResponse](t, rec)
	if resp.TaskID != "t1" || resp.Status != types.StatusRunning || resp.Cached {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGenerateCachedFlag(t *testing.T) {
	svc := &fakeService{submit: func(req engine.SubmitRequest) (types.Task, error) {
		return types.Task{ID: "t2", Status: types.StatusCompleted, FromCache: true}, nil
	}}
	rec := doJSON(t, NewMux(svc), http.MethodPost, "/api/chat/generate", `{"prompt":"hi"}`)
	resp := decode[types.TaskResponse](t, rec)
	if !resp.Cached || resp.Status != types.StatusCompleted {
		t.Fatalf("cached submission not surfaced: %+v", resp)
	}
}

func TestGenerateRejectsBadRequests(t *testing.T) {
	svc := &fakeService{submit: func(req engine.SubmitRequest) (types.Task, error) {
		return types.Task{}, engine.ValidationError{Msg: "prompt is required"}
	}}
	h := NewMux(svc)

	// Missing content type.
	req := httptest.NewRequest(http.MethodPost, "/api/chat/generate", strings.NewReader(`{"prompt":"hi"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("missing content type: %d", rec.Code)
	}

	// Malformed JSON.
	rec = doJSON(t, h, http.MethodPost, "/api/chat/generate", `{"prompt"`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed JSON: %d", rec.Code)
	}

	// Coordinator validation error.
	rec = doJSON(t, h, http.MethodPost, "/api/chat/generate", `{"prompt":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("validation error: %d", rec.Code)
	}
	er := decode[types.ErrorResponse](t, rec)
	if er.Error != "prompt is required" || er.Code != http.StatusBadRequest {
		t.Fatalf("unexpected error payload: %+v", er)
	}
}

func TestStatusRoute(t *testing.T) {
	svc := &fakeService{status: func(taskID string) (types.Task, error) {
		if taskID != "t1" {
			return types.Task{}, store.ErrNotFound
		}
		return types.Task{ID: "t1", Status: types.StatusCompleted, ProgressCount: 3}, nil
	}}
	h := NewMux(svc)

	rec := doJSON(t, h, http.MethodGet, "/api/chat/status/t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	task := decode[types.Task](t, rec)
	if task.ID != "t1" || task.ProgressCount != 3 {
		t.Fatalf("unexpected task: %+v", task)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/chat/status/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown task: %d", rec.Code)
	}
}

func TestChunksRoute(t *testing.T) {
	var gotFrom int
	svc := &fakeService{poll: func(taskID string, from int) (engine.PollResult, error) {
		gotFrom = from
		return engine.PollResult{
			Chunks: []types.Chunk{{TaskID: taskID, Seq: from, Text: "x"}},
			Status: types.StatusRunning,
		}, nil
	}}
	h := NewMux(svc)

	rec := doJSON(t, h, http.MethodGet, "/api/chat/chunks/t1?from_id=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotFrom != 5 {
		t.Fatalf("from_id not forwarded: %d", gotFrom)
	}
	resp := decode[types.ChunksResponse](t, rec)
	if resp.TaskID != "t1" || resp.Total != 1 || resp.Status != types.StatusRunning {
		t.Fatalf("unexpected response: %+v", resp)
	}

	// Default offset is zero.
	doJSON(t, h, http.MethodGet, "/api/chat/chunks/t1", "")
	if gotFrom != 0 {
		t.Fatalf("default from_id: %d", gotFrom)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/chat/chunks/t1?from_id=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative from_id: %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/chat/chunks/t1?from_id=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric from_id: %d", rec.Code)
	}
}

func TestChunksEmptyLedgerIsArray(t *testing.T) {
	svc := &fakeService{poll: func(taskID string, from int) (engine.PollResult, error) {
		return engine.PollResult{Status: types.StatusRunning}, nil
	}}
	rec := doJSON(t, NewMux(svc), http.MethodGet, "/api/chat/chunks/t1?from_id=10", "")
	if !strings.Contains(rec.Body.String(), `"chunks":[]`) {
		t.Fatalf("empty ledger must serialize as []: %s", rec.Body.String())
	}
	resp := decode[types.ChunksResponse](t, rec)
	if resp.Total != 0 {
		t.Fatalf("total = %d", resp.Total)
	}
}

func TestCancelRoute(t *testing.T) {
	svc := &fakeService{cancel: func(taskID string) (types.Task, error) {
		return types.Task{ID: taskID, Status: types.StatusCancelled}, nil
	}}
	rec := doJSON(t, NewMux(svc), http.MethodPost, "/api/chat/cancel/t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[types.CancelResponse](t, rec)
	if resp.TaskID != "t1" || resp.Status != types.StatusCancelled {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSessionsRoute(t *testing.T) {
	var gotOwner string
	var gotWindow time.Duration
	svc := &fakeService{sessions: func(ownerID string, window time.Duration) ([]types.TaskSummary, error) {
		gotOwner, gotWindow = ownerID, window
		return []types.TaskSummary{{ID: "t1"}, {ID: "t2"}}, nil
	}}
	h := NewMux(svc)

	rec := doJSON(t, h, http.MethodGet, "/api/sessions/alice/recent?hours=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotOwner != "alice" || gotWindow != 2*time.Hour {
		t.Fatalf("owner %q window %s", gotOwner, gotWindow)
	}
	resp := decode[types.SessionsResponse](t, rec)
	if resp.Count != 2 || resp.OwnerID != "alice" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	// Default window applies without ?hours=.
	doJSON(t, h, http.MethodGet, "/api/sessions/alice/recent", "")
	if gotWindow != defaultOwnerWindow {
		t.Fatalf("default window: %s", gotWindow)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/sessions/alice/recent?hours=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-positive hours: %d", rec.Code)
	}
}

func TestDeleteSessionRoute(t *testing.T) {
	svc := &fakeService{delete: func(ownerID, taskID string) error {
		if ownerID != "alice" {
			return engine.ErrNotOwner
		}
		return nil
	}}
	h := NewMux(svc)

	rec := doJSON(t, h, http.MethodDelete, "/api/sessions/alice/t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodDelete, "/api/sessions/bob/t1", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cross-owner delete: %d", rec.Code)
	}
}

func TestCleanupRoute(t *testing.T) {
	var gotAge time.Duration
	svc := &fakeService{cleanup: func(maxAge time.Duration) (int, error) {
		gotAge = maxAge
		return 4, nil
	}}
	rec := doJSON(t, NewMux(svc), http.MethodPost, "/api/sessions/cleanup?hours=48", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotAge != 48*time.Hour {
		t.Fatalf("max age not forwarded: %s", gotAge)
	}
	resp := decode[types.CleanupResponse](t, rec)
	if resp.Cleaned != 4 {
		t.Fatalf("cleaned = %d", resp.Cleaned)
	}
}

func TestStatsRoute(t *testing.T) {
	svc := &fakeService{stats: func() (types.StatsResponse, error) {
		return types.StatsResponse{TotalTasks: 10, CachedTasks: 2, CacheHitRate: "20.0%", TotalChunks: 99}, nil
	}}
	rec := doJSON(t, NewMux(svc), http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[types.StatsResponse](t, rec)
	if resp.TotalTasks != 10 || resp.CacheHitRate != "20.0%" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	svc := &fakeService{stats: func() (types.StatsResponse, error) {
		return types.StatsResponse{}, errors.New("pool exhausted")
	}}
	rec := doJSON(t, NewMux(svc), http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	er := decode[types.ErrorResponse](t, rec)
	if er.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected payload: %+v", er)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	h := NewMux(&fakeService{})

	rec := doJSON(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}

	SetReadyCheck(func() bool { return false })
	defer SetReadyCheck(nil)
	rec = doJSON(t, h, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz while unavailable: %d", rec.Code)
	}
}
