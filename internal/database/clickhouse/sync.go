package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/badno/pimsync/internal/database"
	"github.com/badno/pimsync/internal/database/postgres"
)

// backfillBatchSize bounds one InsertSyncEvents call
const backfillBatchSize = 10000

// SyncResult contains the results of a backfill
type SyncResult struct {
	RunsRead      int
	RecordsSynced int
	StartTime     time.Time
	EndTime       time.Time
	Errors        []string
}

// Syncer copies recorded runs from PostgreSQL into sync_events
type Syncer struct {
	runs     *postgres.SyncRunRepo
	chClient *Client
}

// NewSyncer creates a new syncer
func NewSyncer(pgClient *postgres.Client, chClient *Client) *Syncer {
	return &Syncer{
		runs:     postgres.NewSyncRunRepo(pgClient),
		chClient: chClient,
	}
}

// SyncRuns backfills the failed items of every run started since the given time.
// Runs that cannot be read are reported in the result and skipped.
func (s *Syncer) SyncRuns(ctx context.Context, since time.Time) (*SyncResult, error) {
	result := &SyncResult{StartTime: time.Now()}

	runs, err := s.runs.Since(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query PostgreSQL: %w", err)
	}

	var events []database.SyncItemEvent
	for _, r := range runs {
		full, err := s.runs.GetByID(ctx, r.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("run %s: %v", r.ID, err))
			continue
		}
		result.RunsRead++
		events = append(events, RunEvents(full)...)
	}

	for i := 0; i < len(events); i += backfillBatchSize {
		end := min(i+backfillBatchSize, len(events))
		batch := events[i:end]
		if err := s.chClient.InsertSyncEvents(ctx, batch); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("batch insert error: %v", err))
			continue
		}
		result.RecordsSynced += len(batch)
	}

	result.EndTime = time.Now()
	return result, nil
}

// SyncRecent backfills runs of the last N days
func (s *Syncer) SyncRecent(ctx context.Context, days int) (*SyncResult, error) {
	return s.SyncRuns(ctx, time.Now().AddDate(0, 0, -days))
}

// RunEvents converts the recorded errors of a run into failed item events.
// Successful items are not stored per product in PostgreSQL and produce none.
func RunEvents(run *database.SyncRun) []database.SyncItemEvent {
	occurred := run.StartedAt
	if run.FinishedAt != nil {
		occurred = *run.FinishedAt
	}

	events := make([]database.SyncItemEvent, 0, len(run.Errors))
	for _, e := range run.Errors {
		events = append(events, database.SyncItemEvent{
			RunID:        run.ID,
			Action:       run.Action,
			ProductIndex: e.ProductIndex,
			Product:      e.Product,
			Outcome:      database.OutcomeFailed,
			ErrorType:    e.ErrorType,
			OccurredAt:   occurred,
		})
	}
	return events
}
