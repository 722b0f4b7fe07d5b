package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamd/internal/engine"
	"streamd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Submit(ctx context.Context, req engine.SubmitRequest) (types.Task, error)
	Status(ctx context.Context, taskID string) (types.Task, error)
	Poll(ctx context.Context, taskID string, fromOffset int) (engine.PollResult, error)
	Cancel(ctx context.Context, taskID string) (types.Task, error)
	ListSessions(ctx context.Context, ownerID string, window time.Duration) ([]types.TaskSummary, error)
	DeleteSession(ctx context.Context, ownerID, taskID string) error
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
	Stats(ctx context.Context) (types.StatsResponse, error)
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat/generate", handleGenerate(svc))
		r.Get("/chat/status/{task_id}", handleStatus(svc))
		r.Get("/chat/chunks/{task_id}", handleChunks(svc))
		r.Post("/chat/cancel/{task_id}", handleCancel(svc))

		r.Get("/sessions/{owner_id}/recent", handleSessions(svc))
		r.Delete("/sessions/{owner_id}/{task_id}", handleDeleteSession(svc))
		r.Post("/sessions/cleanup", handleCleanup(svc))

		r.Get("/stats", handleStats(svc))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if readyCheck() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("unavailable"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func handleGenerate(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		start := time.Now()
		// Submission runs on the server context so a client hanging up right
		// after POSTing cannot abort task creation. Shutdown still cancels it.
		task, err := svc.Submit(serverBaseCtx, engine.SubmitRequest{
			Prompt:      req.Prompt,
			Provider:    req.Provider,
			Model:       req.Model,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
			OwnerID:     req.OwnerID,
		})
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		logRequest(r).Str("task_id", task.ID).Str("provider", task.Provider).
			Bool("cached", task.FromCache).Dur("dur", time.Since(start)).Msg("generate accepted")
		writeJSON(w, http.StatusAccepted, types.TaskResponse{
			TaskID:   task.ID,
			Status:   task.Status,
			Provider: task.Provider,
			Model:    task.Model,
			OwnerID:  task.OwnerID,
			Cached:   task.FromCache,
		})
	}
}

func handleStatus(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, err := svc.Status(r.Context(), chi.URLParam(r, "task_id"))
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

func handleChunks(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "task_id")
		fromID := 0
		if v := r.URL.Query().Get("from_id"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeJSONError(w, http.StatusBadRequest, "from_id must be a non-negative integer")
				return
			}
			fromID = n
		}
		res, err := svc.Poll(r.Context(), taskID, fromID)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		chunks := res.Chunks
		if chunks == nil {
			chunks = []types.Chunk{}
		}
		writeJSON(w, http.StatusOK, types.ChunksResponse{
			TaskID:      taskID,
			Chunks:      chunks,
			Total:       len(chunks),
			Status:      res.Status,
			ErrorDetail: res.ErrorDetail,
		})
	}
}

func handleCancel(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "task_id")
		task, err := svc.Cancel(r.Context(), taskID)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		logRequest(r).Str("task_id", taskID).Str("status", string(task.Status)).Msg("cancel requested")
		writeJSON(w, http.StatusOK, types.CancelResponse{TaskID: task.ID, Status: task.Status})
	}
}

func handleSessions(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := chi.URLParam(r, "owner_id")
		window, ok := hoursParam(w, r, defaultOwnerWindow)
		if !ok {
			return
		}
		tasks, err := svc.ListSessions(r.Context(), ownerID, window)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		if tasks == nil {
			tasks = []types.TaskSummary{}
		}
		writeJSON(w, http.StatusOK, types.SessionsResponse{OwnerID: ownerID, Tasks: tasks, Count: len(tasks)})
	}
}

func handleDeleteSession(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := chi.URLParam(r, "owner_id")
		taskID := chi.URLParam(r, "task_id")
		if err := svc.DeleteSession(r.Context(), ownerID, taskID); err != nil {
			writeEngineError(w, r, err)
			return
		}
		logRequest(r).Str("task_id", taskID).Str("owner_id", ownerID).Msg("session deleted")
		writeJSON(w, http.StatusOK, map[string]string{"deleted": taskID})
	}
}

func handleCleanup(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxAge, ok := hoursParam(w, r, defaultCleanupAge)
		if !ok {
			return
		}
		n, err := svc.Cleanup(r.Context(), maxAge)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		logRequest(r).Int("cleaned", n).Dur("max_age", maxAge).Msg("cleanup ran")
		writeJSON(w, http.StatusOK, types.CleanupResponse{Cleaned: n})
	}
}

func handleStats(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// hoursParam parses the optional ?hours= query parameter into a duration.
func hoursParam(w http.ResponseWriter, r *http.Request, def time.Duration) (time.Duration, bool) {
	v := r.URL.Query().Get("hours")
	if v == "" {
		return def, true
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n <= 0 {
		writeJSONError(w, http.StatusBadRequest, "hours must be a positive number")
		return 0, false
	}
	return time.Duration(n * float64(time.Hour)), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
