package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/badno/pimsync/internal/catalog"
	"github.com/badno/pimsync/internal/config"
	"github.com/badno/pimsync/internal/database"
	"github.com/badno/pimsync/internal/database/clickhouse"
	"github.com/badno/pimsync/internal/database/postgres"
	"github.com/badno/pimsync/internal/lock"
	"github.com/badno/pimsync/internal/output"
	"github.com/badno/pimsync/internal/output/file"
	"github.com/badno/pimsync/internal/shopify"
	"github.com/badno/pimsync/internal/state"
	"github.com/badno/pimsync/internal/syncer"
	pkgerrors "github.com/badno/pimsync/pkg/errors"
	"github.com/badno/pimsync/pkg/models"
)

// Remote is the Shopify surface the orchestrator drives
type Remote interface {
	syncer.ProductWriter
	syncer.CatalogLister
	DeleteProduct(ctx context.Context, id int64) error
	ListLocations(ctx context.Context) ([]shopify.Location, error)
	InventoryLevels(ctx context.Context, itemIDs []int64) (*shopify.InventoryResult, error)
	Test(ctx context.Context) error
}

// Orchestrator coordinates jobs over the local catalog and the remote store.
// Every writing job runs under the job lock and is journaled.
type Orchestrator struct {
	config  *config.Config
	logger  *zap.Logger
	catalog *catalog.Store
	journal *state.Store
	exports *output.Registry

	newRemote func() (Remote, error)
	remote    Remote

	pg     *postgres.Client
	ch     *clickhouse.Client
	runs   database.SyncRunRepository
	events database.SyncEventRepository
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithRemote replaces the Shopify client
func WithRemote(r Remote) Option {
	return func(o *Orchestrator) {
		o.newRemote = func() (Remote, error) { return r, nil }
	}
}

// WithRunRepository records runs in the given repository instead of PostgreSQL
func WithRunRepository(r database.SyncRunRepository) Option {
	return func(o *Orchestrator) { o.runs = r }
}

// WithEventRepository records item events in the given repository instead of ClickHouse
func WithEventRepository(r database.SyncEventRepository) Option {
	return func(o *Orchestrator) { o.events = r }
}

// New creates a new orchestrator
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		config: cfg,
		logger: logger,
		catalog: catalog.Open(cfg.ProductsPath(), cfg.FieldsPath(), catalog.Options{
			BusinessKeys: cfg.Sync.BusinessKeys,
			Logger:       logger.Named("catalog"),
		}),
		journal: state.NewStore(cfg.StatePath()),
		exports: file.NewRegistry(cfg.ExportPath(), cfg.Sync.MetafieldNamespace, cfg.Sync.MetafieldType, true),
	}
	o.newRemote = o.shopifyClient
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Initialize loads the journal and connects the optional databases. A database
// that cannot be reached is logged and left out; jobs still run.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if err := o.journal.Load(); err != nil {
		return fmt.Errorf("failed to load sync journal: %w", err)
	}

	if o.config.Database.UseDB && o.runs == nil {
		if err := o.connectPostgres(ctx); err != nil {
			o.logger.Warn("PostgreSQL unavailable, runs are journaled locally only", zap.Error(err))
		}
	}
	if o.config.Database.ClickHouse.Enabled && o.events == nil {
		if err := o.connectClickHouse(ctx); err != nil {
			o.logger.Warn("ClickHouse unavailable, sync events are not recorded", zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) connectPostgres(ctx context.Context) error {
	pc := o.config.Database.Postgres
	client := postgres.NewClient(postgres.ConfigFromSettings(pc.Host, pc.Port, pc.Database, pc.SSLMode, pc.UsernameEnv, pc.PasswordEnv))
	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.RunMigrations(); err != nil {
		client.Close()
		return err
	}
	o.pg = client
	o.runs = postgres.NewSyncRunRepo(client)
	return nil
}

func (o *Orchestrator) connectClickHouse(ctx context.Context) error {
	cc := o.config.Database.ClickHouse
	client := clickhouse.NewClient(clickhouse.ConfigFromSettings(cc.Host, cc.Port, cc.Database, cc.Secure, cc.UsernameEnv, cc.PasswordEnv))
	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.InitSchema(ctx); err != nil {
		client.Close()
		return err
	}
	o.ch = client
	o.events = client
	return nil
}

// Close cleans up all resources
func (o *Orchestrator) Close() error {
	if o.pg != nil {
		o.pg.Close()
	}
	if o.ch != nil {
		return o.ch.Close()
	}
	return nil
}

// Config returns the loaded configuration
func (o *Orchestrator) Config() *config.Config {
	return o.config
}

// Catalog returns the local product and field store
func (o *Orchestrator) Catalog() *catalog.Store {
	return o.catalog
}

// Journal returns the local run journal
func (o *Orchestrator) Journal() *state.Store {
	return o.journal
}

// Postgres returns the connected PostgreSQL client, or nil
func (o *Orchestrator) Postgres() *postgres.Client {
	return o.pg
}

// ClickHouse returns the connected ClickHouse client, or nil
func (o *Orchestrator) ClickHouse() *clickhouse.Client {
	return o.ch
}

func (o *Orchestrator) shopifyClient() (Remote, error) {
	rc := o.config.Remote
	return shopify.NewClient(shopify.Config{
		Store:      rc.Store,
		BaseURL:    rc.BaseURL,
		APIKeyEnv:  rc.APIKeyEnv,
		APIVersion: rc.APIVersion,
		Timeout:    o.config.Timeout(),
		Retry: shopify.RetryPolicy{
			MaxAttempts: rc.Retry.MaxAttempts,
			FixedDelay:  o.config.RetryDelay(),
		},
		PageSize:        rc.PageSize,
		LookupBatchSize: rc.LookupBatchSize,
	}, o.logger.Named("shopify"))
}

// Remote returns the Shopify client, creating it on first use
func (o *Orchestrator) Remote() (Remote, error) {
	if o.remote != nil {
		return o.remote, nil
	}
	r, err := o.newRemote()
	if err != nil {
		return nil, err
	}
	o.remote = r
	return r, nil
}

func (o *Orchestrator) syncOptions() syncer.Options {
	return syncer.Options{
		Live:               o.config.Sync.Live,
		PaceDelay:          o.config.PaceDelay(),
		MetafieldNamespace: o.config.Sync.MetafieldNamespace,
		MetafieldType:      o.config.Sync.MetafieldType,
		MatchKeys:          o.config.Sync.BusinessKeys,
		Logger:             o.logger.Named("sync"),
	}
}

// withLock runs fn holding the job lock
func (o *Orchestrator) withLock(fn func() error) error {
	l, err := lock.Acquire(o.config.LockPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			o.logger.Warn("Failed to release job lock", zap.Error(err))
		}
	}()
	return fn()
}

// requireRemote checks the live toggle before any client is built
func (o *Orchestrator) requireRemote() (Remote, error) {
	if !o.config.Sync.Live {
		return nil, pkgerrors.ErrLiveSyncDisabled
	}
	return o.Remote()
}

// PushOptions configures a push job
type PushOptions struct {
	Start   int
	Count   int  // Batch size; the configured batch size when 0
	All     bool // Run batches until every product was pushed
	Resume  bool // Start at the saved cursor
	OnBatch func(*syncer.PushResult)
}

// Push sends local products to Shopify
func (o *Orchestrator) Push(ctx context.Context, opts PushOptions) (*syncer.PushSummary, error) {
	var summary *syncer.PushSummary
	err := o.withLock(func() error {
		remote, err := o.requireRemote()
		if err != nil {
			return err
		}

		count := opts.Count
		if count <= 0 {
			count = o.config.Sync.BatchSize
		}
		start := opts.Start
		if opts.Resume {
			if cur, ok := o.journal.Cursor(); ok {
				start = cur.NextStart
			}
		}

		run := state.HistoryEntry{RunID: state.NewRunID(), Timestamp: time.Now(), Action: state.ActionPush}
		pusher := syncer.NewPusher(o.catalog, remote, o.syncOptions())

		var pushErr error
		if opts.All {
			summary, pushErr = pusher.PushAll(ctx, start, count, opts.OnBatch)
			if summary.Batches == 0 {
				summary = nil
				return pushErr
			}
		} else {
			res, err := pusher.PushBatch(ctx, start, count)
			if res == nil {
				return err
			}
			if opts.OnBatch != nil {
				opts.OnBatch(res)
			}
			summary, pushErr = syncer.Summarize(res), err
		}

		if summary.NextStart >= summary.Total {
			o.journal.ClearCursor()
		} else {
			o.journal.SetCursor(run.RunID, summary.NextStart, summary.Total)
		}
		run.Count = summary.Processed
		run.Updated = summary.Updated
		run.Created = summary.Created
		run.Failed = summary.Failed
		run.Details = fmt.Sprintf("pushed products %d-%d of %d", summary.Start, summary.NextStart, summary.Total)
		run.Errors = runErrors(summary.Errors)
		if err := o.finishRun(ctx, run, summary.Start, pushEvents(summary)); err != nil && pushErr == nil {
			pushErr = err
		}
		return pushErr
	})
	return summary, err
}

// Pull merges the remote catalog into the local products
func (o *Orchestrator) Pull(ctx context.Context) (*syncer.PullResult, error) {
	var result *syncer.PullResult
	err := o.withLock(func() error {
		remote, err := o.requireRemote()
		if err != nil {
			return err
		}

		run := state.HistoryEntry{RunID: state.NewRunID(), Timestamp: time.Now(), Action: state.ActionPull}
		result, err = syncer.NewPuller(o.catalog, remote, o.syncOptions()).PullAndMerge(ctx)
		if err != nil {
			return err
		}

		run.Count = result.Remote
		run.Updated = result.Merged
		run.Created = result.Added
		run.Details = fmt.Sprintf("merged %d, added %d, %d local only", result.Merged, result.Added, result.LocalOnly)
		return o.finishRun(ctx, run, 0, nil)
	})
	return result, err
}

// RefreshCategories merges remote product types, tags and vendors into the fields
func (o *Orchestrator) RefreshCategories(ctx context.Context) (*syncer.RefreshResult, error) {
	var result *syncer.RefreshResult
	err := o.withLock(func() error {
		remote, err := o.requireRemote()
		if err != nil {
			return err
		}

		run := state.HistoryEntry{RunID: state.NewRunID(), Timestamp: time.Now(), Action: state.ActionRefresh}
		result, err = syncer.NewCategoryRefresher(o.catalog, remote, o.syncOptions()).Refresh(ctx)
		if err != nil {
			return err
		}

		added := 0
		for _, n := range result.Added {
			added += n
		}
		run.Count = result.Total
		run.Created = added
		run.Details = fmt.Sprintf("%d product types, %d tags, %d vendors added",
			result.Added[models.TypeProductType], result.Added[models.TypeTag], result.Added[models.TypeVendor])
		return o.finishRun(ctx, run, 0, nil)
	})
	return result, err
}

// Import loads an uploaded file into the catalog
func (o *Orchestrator) Import(ctx context.Context, path string, opts catalog.ImportOptions) (*catalog.ImportResult, error) {
	var result *catalog.ImportResult
	err := o.withLock(func() error {
		run := state.HistoryEntry{RunID: state.NewRunID(), Timestamp: time.Now(), Action: state.ActionImport}

		var err error
		result, err = o.catalog.Import(path, opts)
		if err != nil {
			return err
		}

		run.Count = result.Total
		run.Created = result.Added
		run.Details = fmt.Sprintf("imported %s: %d added, %d skipped", path, result.Added, result.Skipped)
		return o.finishRun(ctx, run, 0, nil)
	})
	return result, err
}

// DeleteResult reports a delete job
type DeleteResult struct {
	Deleted       []models.Record
	RemoteDeleted int
	RemoteErrors  []syncer.ItemError
}

// DeleteProducts removes products locally. With remote set and sync live, every
// deleted product carrying a remote id is then deleted in Shopify; remote
// failures are reported and do not restore the local product.
func (o *Orchestrator) DeleteProducts(ctx context.Context, indices []int, remote bool) (*DeleteResult, error) {
	result := &DeleteResult{RemoteErrors: []syncer.ItemError{}}
	err := o.withLock(func() error {
		var client Remote
		if remote {
			var err error
			if client, err = o.requireRemote(); err != nil {
				return err
			}
		}

		run := state.HistoryEntry{RunID: state.NewRunID(), Timestamp: time.Now(), Action: state.ActionDelete}

		deleted, err := o.catalog.DeleteProducts(indices)
		if err != nil {
			return err
		}
		result.Deleted = deleted

		if client != nil {
			// deleted comes back in file order
			order := uniqueSorted(indices)
			for i, rec := range deleted {
				o.deleteRemote(ctx, client, order[i], rec, result)
			}
		}

		run.Count = len(deleted)
		run.Failed = len(result.RemoteErrors)
		run.Details = fmt.Sprintf("deleted %d products, %d remotely", len(deleted), result.RemoteDeleted)
		run.Errors = runErrors(result.RemoteErrors)
		return o.finishRun(ctx, run, 0, nil)
	})
	return result, err
}

func (o *Orchestrator) deleteRemote(ctx context.Context, client Remote, index int, rec models.Record, result *DeleteResult) {
	raw := rec.RemoteID()
	if raw == "" {
		return
	}
	fail := func(typ syncer.ItemErrorType, msg string) {
		result.RemoteErrors = append(result.RemoteErrors, syncer.ItemError{
			Type: typ, ProductIndex: index, Product: rec.Label(), Message: msg,
		})
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		fail(syncer.ErrorInvalidID, fmt.Sprintf("invalid product id %q", raw))
		return
	}
	if err := client.DeleteProduct(ctx, id); err != nil {
		o.logger.Warn("Remote delete failed", zap.Int64("product_id", id), zap.Error(err))
		fail(syncer.ErrorException, err.Error())
		return
	}
	result.RemoteDeleted++
}

// Export writes the product collection in the given format
func (o *Orchestrator) Export(ctx context.Context, opts output.ExportOptions) (*output.ExportResult, error) {
	adapter, err := o.exports.ForFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	products, err := o.catalog.LoadProducts(false)
	if err != nil {
		return nil, err
	}
	return adapter.ExportProducts(ctx, products, opts)
}

// TestConnection verifies the Shopify credentials
func (o *Orchestrator) TestConnection(ctx context.Context) error {
	remote, err := o.Remote()
	if err != nil {
		return err
	}
	return remote.Test(ctx)
}

// History returns the last n journal entries
func (o *Orchestrator) History(n int) []state.HistoryEntry {
	return o.journal.GetRecentHistory(n)
}

// RecentRuns returns runs recorded in PostgreSQL
func (o *Orchestrator) RecentRuns(ctx context.Context, limit int) ([]*database.SyncRun, error) {
	if o.runs == nil {
		return nil, fmt.Errorf("run database not configured (set database.use_db)")
	}
	return o.runs.Recent(ctx, limit)
}

// FailureRates returns per-day failure rates from ClickHouse
func (o *Orchestrator) FailureRates(ctx context.Context, since time.Time) ([]database.FailureRate, error) {
	if o.events == nil {
		return nil, fmt.Errorf("event database not configured (set database.clickhouse.enabled)")
	}
	return o.events.FailureRates(ctx, since)
}

// finishRun journals the run and mirrors it to the configured databases. Only
// the journal save is required; database failures are logged.
func (o *Orchestrator) finishRun(ctx context.Context, run state.HistoryEntry, start int, events []database.SyncItemEvent) error {
	run.FinishedAt = time.Now()
	run = o.journal.AddHistory(run)
	saveErr := o.journal.Save()
	if saveErr != nil {
		o.logger.Error("Failed to save sync journal", zap.String("path", o.journal.Path()), zap.Error(saveErr))
		saveErr = fmt.Errorf("failed to save sync journal: %w", saveErr)
	}

	o.logger.Info("Job finished",
		zap.String("run_id", run.RunID),
		zap.String("action", run.Action),
		zap.Int("count", run.Count),
		zap.Int("failed", run.Failed),
		zap.Duration("duration", run.Duration()))

	// detach from cancellation so an interrupted push is still recorded
	ctx = context.WithoutCancel(ctx)
	id, err := uuid.Parse(run.RunID)
	if err != nil {
		return saveErr
	}

	if o.runs != nil {
		finished := run.FinishedAt
		dbRun := &database.SyncRun{
			ID:         id,
			Action:     run.Action,
			Store:      o.config.Remote.Store,
			Start:      start,
			Processed:  run.Count,
			Updated:    run.Updated,
			Created:    run.Created,
			Failed:     run.Failed,
			Details:    run.Details,
			StartedAt:  run.Timestamp,
			FinishedAt: &finished,
		}
		for _, e := range run.Errors {
			dbRun.Errors = append(dbRun.Errors, database.SyncRunError{
				ErrorType: e.Type, ProductIndex: e.ProductIndex, Product: e.Product, Message: e.Message,
			})
		}
		if err := o.runs.Record(ctx, dbRun); err != nil {
			o.logger.Warn("Failed to record sync run", zap.Error(err))
		}
	}

	if o.events != nil && len(events) > 0 {
		for i := range events {
			events[i].RunID = id
			events[i].Action = run.Action
			events[i].OccurredAt = run.FinishedAt
		}
		if err := o.events.InsertSyncEvents(ctx, events); err != nil {
			o.logger.Warn("Failed to record sync events", zap.Error(err))
		}
	}
	return saveErr
}

func uniqueSorted(indices []int) []int {
	seen := make(map[int]bool, len(indices))
	out := make([]int, 0, len(indices))
	for _, i := range indices {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

func runErrors(errs []syncer.ItemError) []state.RunError {
	out := make([]state.RunError, 0, len(errs))
	for _, e := range errs {
		out = append(out, state.RunError{
			Type:         string(e.Type),
			ProductIndex: e.ProductIndex,
			Product:      e.Product,
			Message:      e.Message,
		})
	}
	return out
}

func pushEvents(s *syncer.PushSummary) []database.SyncItemEvent {
	events := make([]database.SyncItemEvent, 0, len(s.Outcomes)+len(s.Errors))
	for _, oc := range s.Outcomes {
		events = append(events, database.SyncItemEvent{
			ProductIndex: oc.Index,
			Product:      oc.Product,
			Outcome:      oc.Outcome,
		})
	}
	for _, e := range s.Errors {
		events = append(events, database.SyncItemEvent{
			ProductIndex: e.ProductIndex,
			Product:      e.Product,
			Outcome:      database.OutcomeFailed,
			ErrorType:    string(e.Type),
		})
	}
	return events
}
