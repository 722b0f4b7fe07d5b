package types

import "time"

// TaskStatus is the lifecycle state of a generation task.
type TaskStatus string

const (
	StatusCreated   TaskStatus = "created"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusError     TaskStatus = "error"
	StatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status is final. A terminal task never
// changes status again and never gains chunks.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// Task represents one logical generation request and its lifecycle.
// The record is mutated only by the coordinator that owns the task.
type Task struct {
	// Globally unique identifier, assigned at submission.
	// example: 3f1c9b2e-8a41-4c8e-9f6d-2a7b1c0d4e5f
	ID string `json:"task_id" example:"3f1c9b2e-8a41-4c8e-9f6d-2a7b1c0d4e5f"`
	// Optional stable identifier grouping tasks for a client/session.
	OwnerID string `json:"owner_id,omitempty"`
	// Prompt text, immutable once set.
	Prompt string `json:"prompt"`
	// Provider name (e.g. openai, ollama).
	// example: openai
	Provider string `json:"provider" example:"openai"`
	// Model identifier resolved at submission.
	// example: gpt-4o
	Model string `json:"model" example:"gpt-4o"`
	// Sampling temperature.
	// example: 0.7
	Temperature float64 `json:"temperature" example:"0.7"`
	// Maximum number of fragments/tokens to generate (0 = provider default).
	MaxFragments int `json:"max_fragments,omitempty"`
	// Lifecycle state: created, running, completed, error, cancelled.
	// example: running
	Status TaskStatus `json:"status" example:"running"`
	// Number of chunks durably appended so far. Monotonically non-decreasing.
	// example: 12
	ProgressCount int `json:"progress_count" example:"12"`
	// True when the ledger was synthesized from the response cache.
	FromCache bool `json:"from_cache"`
	// Populated only when Status is error.
	ErrorDetail string `json:"error_detail,omitempty"`

	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	// Zero until the task reaches a terminal state.
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// Chunk is one ordered fragment of a task's response after it has been
// durably assigned a sequence number. Chunks are immutable.
type Chunk struct {
	TaskID string `json:"task_id"`
	// Zero-based, strictly increasing, contiguous per task. Sole ordering key.
	// example: 4
	Seq int `json:"chunk_id" example:"4"`
	// Non-empty fragment text.
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// TaskSummary is a lightweight projection used by owner session listings.
type TaskSummary struct {
	ID string `json:"task_id"`
	// example: completed
	Status TaskStatus `json:"status" example:"completed"`
	// Prompt truncated for display.
	Prompt        string    `json:"prompt"`
	ProgressCount int       `json:"chunks_count"`
	FromCache     bool      `json:"from_cache"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated"`
}
