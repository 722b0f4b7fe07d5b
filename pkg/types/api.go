package types

// GenerateRequest is the payload for POST /api/chat/generate.
type GenerateRequest struct {
	// Required prompt text to generate a completion for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Provider name. If empty, the server default is used.
	// example: openai
	Provider string `json:"provider,omitempty" example:"openai"`
	// Model identifier. If empty, the provider default is used.
	// example: gpt-4o
	Model string `json:"model,omitempty" example:"gpt-4o"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Maximum number of new tokens to generate.
	// example: 4000
	MaxTokens int `json:"max_tokens,omitempty" example:"4000"`
	// Optional stable owner/session identifier used for recovery listings.
	OwnerID string `json:"owner_id,omitempty"`
}

// TaskResponse is returned by POST /api/chat/generate.
type TaskResponse struct {
	TaskID string `json:"task_id"`
	// example: running
	Status TaskStatus `json:"status" example:"running"`
	// example: openai
	Provider string `json:"provider" example:"openai"`
	// example: gpt-4o
	Model   string `json:"model" example:"gpt-4o"`
	OwnerID string `json:"owner_id,omitempty"`
	// True when the response was served from the cache fast path.
	Cached bool `json:"cached"`
}

// ChunksResponse is returned by GET /api/chat/chunks/{task_id}.
type ChunksResponse struct {
	TaskID string  `json:"task_id"`
	Chunks []Chunk `json:"chunks"`
	// Number of chunks in this response.
	// example: 3
	Total int `json:"total" example:"3"`
	// Task status at read time, so pollers can stop on terminal states.
	// example: running
	Status      TaskStatus `json:"status" example:"running"`
	ErrorDetail string     `json:"error_detail,omitempty"`
}

// CancelResponse is returned by POST /api/chat/cancel/{task_id}.
type CancelResponse struct {
	TaskID string `json:"task_id"`
	// Status after the cancellation request was applied (best-effort).
	// example: cancelled
	Status TaskStatus `json:"status" example:"cancelled"`
}

// SessionsResponse is returned by GET /api/sessions/{owner_id}/recent.
type SessionsResponse struct {
	OwnerID string        `json:"owner_id"`
	Tasks   []TaskSummary `json:"tasks"`
	// example: 2
	Count int `json:"count" example:"2"`
}

// CleanupResponse is returned by POST /api/sessions/cleanup.
type CleanupResponse struct {
	// Number of stale tasks removed.
	// example: 4
	Cleaned int `json:"cleaned" example:"4"`
}

// StatsResponse is returned by GET /api/stats.
type StatsResponse struct {
	// example: 42
	TotalTasks int `json:"total_tasks" example:"42"`
	// example: 7
	CachedTasks int `json:"cached_tasks" example:"7"`
	// example: 16.7%
	CacheHitRate string `json:"cache_hit_rate" example:"16.7%"`
	// example: 1337
	TotalChunks int `json:"total_chunks" example:"1337"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: task not found
	Error string `json:"error" example:"task not found"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}
