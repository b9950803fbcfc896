package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badno/pimsync/internal/database"
)

func TestRunEvents(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	run := &database.SyncRun{
		ID:         uuid.New(),
		Action:     "push",
		StartedAt:  started,
		FinishedAt: &finished,
		Errors: []database.SyncRunError{
			{ErrorType: "invalid_id", ProductIndex: 2, Product: "Desk"},
			{ErrorType: "exception", ProductIndex: 5, Product: "Lamp"},
		},
	}

	events := RunEvents(run)
	require.Len(t, events, 2)
	assert.Equal(t, run.ID, events[0].RunID)
	assert.Equal(t, database.OutcomeFailed, events[0].Outcome)
	assert.Equal(t, "invalid_id", events[0].ErrorType)
	assert.Equal(t, 5, events[1].ProductIndex)
	assert.Equal(t, finished, events[1].OccurredAt)

	run.FinishedAt = nil
	assert.Equal(t, started, RunEvents(run)[0].OccurredAt)
	assert.Empty(t, RunEvents(&database.SyncRun{}))
}

func TestFailureRate(t *testing.T) {
	assert.Zero(t, failureRate(0, 0))
	assert.InDelta(t, 0.25, failureRate(1, 4), 1e-9)
}

func TestConfigFromSettings(t *testing.T) {
	cfg := ConfigFromSettings("ch.internal", 9440, "", true, "PIMSYNC_TEST_CH_USER", "PIMSYNC_TEST_CH_PASS")
	assert.Equal(t, "ch.internal", cfg.Host)
	assert.Equal(t, 9440, cfg.Port)
	assert.Equal(t, "pimsync", cfg.Database)
	assert.True(t, cfg.Secure)
}

func TestOptionsUseTLSWhenSecure(t *testing.T) {
	cfg := ConfigFromSettings("ch.internal", 9440, "events", true, "", "")
	opts := cfg.options()
	assert.Equal(t, []string{"ch.internal:9440"}, opts.Addr)
	assert.Equal(t, "events", opts.Auth.Database)
	if assert.NotNil(t, opts.TLS) {
		assert.Equal(t, "ch.internal", opts.TLS.ServerName)
	}

	assert.Nil(t, DefaultConfig().options().TLS)
}

func TestUnconnectedClient(t *testing.T) {
	c := NewClient(nil)
	ctx := context.Background()
	assert.ErrorIs(t, c.Ping(ctx), errNotConnected)
	assert.ErrorIs(t, c.InitSchema(ctx), errNotConnected)
	_, err := c.FailureRates(ctx, time.Now())
	assert.ErrorIs(t, err, errNotConnected)
	assert.NoError(t, c.InsertSyncEvents(ctx, nil))
	assert.NoError(t, c.Close())
}
