package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/badno/pimsync/internal/database"
)

// InsertSyncEvents appends item outcomes to sync_events in a single batch
func (c *Client) InsertSyncEvents(ctx context.Context, events []database.SyncItemEvent) error {
	if len(events) == 0 {
		return nil
	}
	if c.conn == nil {
		return errNotConnected
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO sync_events (
			run_id, action, product_index, product,
			outcome, error_type, occurred_at, occurred_date
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, e := range events {
		occurred := e.OccurredAt
		if occurred.IsZero() {
			occurred = time.Now()
		}

		err := batch.Append(
			e.RunID,
			e.Action,
			int32(e.ProductIndex),
			e.Product,
			e.Outcome,
			e.ErrorType,
			occurred,
			occurred.Truncate(24*time.Hour),
		)
		if err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// FailureRates returns per day and action the share of failed items since the
// given time, with the most frequent error type of each group
func (c *Client) FailureRates(ctx context.Context, since time.Time) ([]database.FailureRate, error) {
	if c.conn == nil {
		return nil, errNotConnected
	}
	query := `
		SELECT
			toDate(occurred_at) as day,
			action,
			count() as total,
			countIf(outcome = 'failed') as failed,
			topKIf(1)(error_type, error_type != '') as top_errors
		FROM sync_events
		WHERE occurred_at >= ?
		GROUP BY day, action
		ORDER BY day, action
	`

	rows, err := c.conn.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query failure rates: %w", err)
	}
	defer rows.Close()

	var rates []database.FailureRate
	for rows.Next() {
		var r database.FailureRate
		var top []string
		if err := rows.Scan(&r.Day, &r.Action, &r.Total, &r.Failed, &top); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if len(top) > 0 {
			r.TopError = top[0]
		}
		r.Rate = failureRate(r.Failed, r.Total)
		rates = append(rates, r)
	}

	return rates, rows.Err()
}

// EventCount returns the total number of recorded sync events
func (c *Client) EventCount(ctx context.Context) (uint64, error) {
	if c.conn == nil {
		return 0, errNotConnected
	}
	var count uint64
	if err := c.conn.QueryRow(ctx, "SELECT count() FROM sync_events").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sync events: %w", err)
	}
	return count, nil
}

func failureRate(failed, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
