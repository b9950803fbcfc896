package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SyncRunRepository persists finished sync jobs
type SyncRunRepository interface {
	// Record stores the run and its item errors atomically
	Record(ctx context.Context, run *SyncRun) error
	Recent(ctx context.Context, limit int) ([]*SyncRun, error)
	GetByID(ctx context.Context, id uuid.UUID) (*SyncRun, error)
}

// SyncEventRepository stores per-item sync outcomes for analytics
type SyncEventRepository interface {
	InsertSyncEvents(ctx context.Context, events []SyncItemEvent) error
	FailureRates(ctx context.Context, since time.Time) ([]FailureRate, error)
}

// SyncRun is one push, pull, refresh or import job
type SyncRun struct {
	ID         uuid.UUID      `json:"id"`
	Action     string         `json:"action"`
	Store      string         `json:"store"`
	Start      int            `json:"start"`
	Processed  int            `json:"processed"`
	Updated    int            `json:"updated"`
	Created    int            `json:"created"`
	Failed     int            `json:"failed"`
	Details    string         `json:"details,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Errors     []SyncRunError `json:"errors,omitempty"`
}

// SyncRunError is one failed product in a run
type SyncRunError struct {
	ID           int64  `json:"id,omitempty"`
	ErrorType    string `json:"error_type"`
	ProductIndex int    `json:"product_index"`
	Product      string `json:"product"`
	Message      string `json:"message"`
}

// Item outcomes
const (
	OutcomeUpdated = "updated"
	OutcomeCreated = "created"
	OutcomeFailed  = "failed"
)

// SyncItemEvent is a single product outcome within a run
type SyncItemEvent struct {
	RunID        uuid.UUID `json:"run_id"`
	Action       string    `json:"action"`
	ProductIndex int       `json:"product_index"`
	Product      string    `json:"product"`
	Outcome      string    `json:"outcome"`
	ErrorType    string    `json:"error_type,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// FailureRate aggregates outcomes per action and day
type FailureRate struct {
	Day      time.Time `json:"day"`
	Action   string    `json:"action"`
	Total    uint64    `json:"total"`
	Failed   uint64    `json:"failed"`
	Rate     float64   `json:"rate"`
	TopError string    `json:"top_error,omitempty"`
}
