package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badno/pimsync/internal/catalog"
	"github.com/badno/pimsync/internal/config"
	"github.com/badno/pimsync/internal/database"
	"github.com/badno/pimsync/internal/lock"
	"github.com/badno/pimsync/internal/output"
	"github.com/badno/pimsync/internal/shopify"
	"github.com/badno/pimsync/internal/state"
	"github.com/badno/pimsync/internal/syncer"
	pkgerrors "github.com/badno/pimsync/pkg/errors"
	"github.com/badno/pimsync/pkg/models"
)

type fakeRemote struct {
	mu        sync.Mutex
	nextID    int64
	created   int
	updated   int
	deleted   []int64
	failDel   map[int64]error
	products  []shopify.Product
	locations []shopify.Location
	levels    *shopify.InventoryResult
}

func (f *fakeRemote) CreateProduct(_ context.Context, fields shopify.ProductFields) (*shopify.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.created++
	return &shopify.Product{ID: f.nextID, Title: fields["title"]}, nil
}

func (f *fakeRemote) UpdateProduct(_ context.Context, id int64, fields shopify.ProductFields) (*shopify.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated++
	return &shopify.Product{ID: id, Title: fields["title"]}, nil
}

func (f *fakeRemote) EnsureMetafieldDefinition(context.Context, string, string, string) error {
	return nil
}

func (f *fakeRemote) UpsertProductMetafield(_ context.Context, _ int64, mf shopify.Metafield) (*shopify.Metafield, error) {
	return &mf, nil
}

func (f *fakeRemote) ListProducts(context.Context) ([]shopify.Product, error) {
	return f.products, nil
}

func (f *fakeRemote) DeleteProduct(_ context.Context, id int64) error {
	if err := f.failDel[id]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRemote) ListLocations(context.Context) ([]shopify.Location, error) {
	return f.locations, nil
}

func (f *fakeRemote) InventoryLevels(context.Context, []int64) (*shopify.InventoryResult, error) {
	if f.levels == nil {
		return &shopify.InventoryResult{}, nil
	}
	return f.levels, nil
}

func (f *fakeRemote) Test(context.Context) error { return nil }

type memRuns struct {
	runs []*database.SyncRun
}

func (m *memRuns) Record(_ context.Context, run *database.SyncRun) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *memRuns) Recent(_ context.Context, limit int) ([]*database.SyncRun, error) {
	return m.runs, nil
}

func (m *memRuns) GetByID(_ context.Context, id uuid.UUID) (*database.SyncRun, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, pkgerrors.NewNotFoundError("sync run", id.String())
}

type memEvents struct {
	events []database.SyncItemEvent
}

func (m *memEvents) InsertSyncEvents(_ context.Context, events []database.SyncItemEvent) error {
	m.events = append(m.events, events...)
	return nil
}

func (m *memEvents) FailureRates(context.Context, time.Time) ([]database.FailureRate, error) {
	return nil, nil
}

func testConfig(t *testing.T, live bool) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Files.DataDir = t.TempDir()
	cfg.Sync.Live = live
	cfg.Sync.PaceMs = 0
	cfg.Sync.BatchSize = 2
	return cfg
}

func seed(t *testing.T, o *Orchestrator, titles ...string) {
	t.Helper()
	records := make([]models.Record, len(titles))
	for i, title := range titles {
		records[i] = models.Record{"title": title, "handle": "h-" + strconv.Itoa(i)}
	}
	require.NoError(t, o.Catalog().SaveProducts(records))
}

func TestPushJournalsRunAndCursor(t *testing.T) {
	remote := &fakeRemote{}
	runs := &memRuns{}
	events := &memEvents{}
	o := New(testConfig(t, true), nil, WithRemote(remote), WithRunRepository(runs), WithEventRepository(events))
	require.NoError(t, o.Initialize(context.Background()))
	seed(t, o, "A", "B", "C")

	summary, err := o.Push(context.Background(), PushOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 2, summary.NextStart)

	cur, ok := o.Journal().Cursor()
	require.True(t, ok)
	assert.Equal(t, 2, cur.NextStart)

	summary, err = o.Push(context.Background(), PushOptions{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Start)
	assert.Equal(t, 1, summary.Created)
	_, ok = o.Journal().Cursor()
	assert.False(t, ok, "cursor is cleared once every product was pushed")

	history := o.History(10)
	require.Len(t, history, 2)
	assert.Equal(t, state.ActionPush, history[0].Action)

	require.Len(t, runs.runs, 2)
	assert.Equal(t, history[1].RunID, runs.runs[1].ID.String())
	require.Len(t, events.events, 3)
	assert.Equal(t, database.OutcomeCreated, events.events[0].Outcome)
	assert.Equal(t, runs.runs[0].ID, events.events[0].RunID)

	reloaded := state.NewStore(o.Journal().Path())
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 2, reloaded.Count())
}

func TestPushAllReportsBatches(t *testing.T) {
	o := New(testConfig(t, true), nil, WithRemote(&fakeRemote{}))
	seed(t, o, "A", "B", "C", "D", "E")

	var batches int
	summary, err := o.Push(context.Background(), PushOptions{All: true, OnBatch: func(*syncer.PushResult) { batches++ }})
	require.NoError(t, err)
	assert.Equal(t, 3, batches)
	assert.Equal(t, 5, summary.Created)
}

func TestJobsRejectedWhileLocked(t *testing.T) {
	cfg := testConfig(t, true)
	o := New(cfg, nil, WithRemote(&fakeRemote{}))
	seed(t, o, "A")

	held, err := lock.Acquire(cfg.LockPath())
	require.NoError(t, err)
	defer held.Release()

	_, err = o.Push(context.Background(), PushOptions{})
	assert.ErrorIs(t, err, pkgerrors.ErrJobInProgress)
	_, err = o.Pull(context.Background())
	assert.ErrorIs(t, err, pkgerrors.ErrJobInProgress)
}

func TestDisabledSyncWritesNothing(t *testing.T) {
	remote := &fakeRemote{}
	o := New(testConfig(t, false), nil, WithRemote(remote))
	seed(t, o, "A")

	_, err := o.Push(context.Background(), PushOptions{})
	assert.ErrorIs(t, err, pkgerrors.ErrLiveSyncDisabled)
	_, err = o.RefreshCategories(context.Background())
	assert.ErrorIs(t, err, pkgerrors.ErrLiveSyncDisabled)
	assert.Equal(t, 0, remote.created)
	assert.Equal(t, 0, o.Journal().Count())
}

func TestPullAndRefresh(t *testing.T) {
	remote := &fakeRemote{products: []shopify.Product{
		{ID: 7, Title: "A remote", Handle: "h-0", ProductType: "Desks", Vendor: "Acme"},
	}}
	o := New(testConfig(t, true), nil, WithRemote(remote))
	seed(t, o, "A")

	pulled, err := o.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pulled.Merged)

	products, err := o.Catalog().LoadProducts(false)
	require.NoError(t, err)
	assert.Equal(t, "7", products[0]["id"])

	refreshed, err := o.RefreshCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.Added[models.TypeVendor])
	assert.Equal(t, 2, o.Journal().Count())
}

func TestDeleteProductsRemoteIsBestEffort(t *testing.T) {
	remote := &fakeRemote{failDel: map[int64]error{12: pkgerrors.NewAPIError("delete product", 500, "boom")}}
	o := New(testConfig(t, true), nil, WithRemote(remote))
	require.NoError(t, o.Catalog().SaveProducts([]models.Record{
		{"id": "11", "title": "A"},
		{"title": "Local"},
		{"id": "12", "title": "C"},
	}))

	res, err := o.DeleteProducts(context.Background(), []int{2, 0, 1}, true)
	require.NoError(t, err)
	assert.Len(t, res.Deleted, 3)
	assert.Equal(t, 1, res.RemoteDeleted)
	assert.Equal(t, []int64{11}, remote.deleted)
	require.Len(t, res.RemoteErrors, 1)
	assert.Equal(t, 2, res.RemoteErrors[0].ProductIndex)

	left, err := o.Catalog().LoadProducts(false)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestImportAndExport(t *testing.T) {
	cfg := testConfig(t, false)
	o := New(cfg, nil)

	src := filepath.Join(t.TempDir(), "upload.csv")
	require.NoError(t, os.WriteFile(src, []byte("title;handle;Material\nDesk;desk;Oak\nLamp;lamp;Brass\n"), 0644))

	res, err := o.Import(context.Background(), src, catalog.ImportOptions{Replace: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)

	out := filepath.Join(t.TempDir(), "export.jsonl")
	exp, err := o.Export(context.Background(), output.ExportOptions{Format: output.FormatJSONL, OutputPath: out})
	require.NoError(t, err)
	assert.Equal(t, 2, exp.ProductsExported)
	assert.FileExists(t, out)

	_, err = o.RecentRuns(context.Background(), 5)
	assert.Error(t, err)
	require.Len(t, o.History(5), 1)
	assert.Equal(t, state.ActionImport, o.History(5)[0].Action)
}

func intPtr(n int) *int { return &n }

func TestStockSumsLevelsPerProduct(t *testing.T) {
	remote := &fakeRemote{
		products: []shopify.Product{
			{ID: 1, Title: "Desk", Variants: []shopify.Variant{{SKU: "D-1", InventoryItemID: 11}, {InventoryItemID: 12}}},
			{ID: 2, Title: "Lamp", Variants: []shopify.Variant{{SKU: "L-1", InventoryItemID: 21}}},
			{ID: 3, Title: "Gift card"},
		},
		locations: []shopify.Location{{ID: 100, Name: "Oslo"}, {ID: 200, Name: "Bergen"}},
		levels: &shopify.InventoryResult{
			Levels: []shopify.InventoryLevel{
				{InventoryItemID: 11, LocationID: 100, Available: intPtr(4)},
				{InventoryItemID: 12, LocationID: 200, Available: intPtr(1)},
				{InventoryItemID: 11, LocationID: 200, Available: nil},
			},
			FailedBatches: []shopify.FailedBatch{{ItemIDs: []int64{21}, Err: assert.AnError}},
		},
	}
	o := New(testConfig(t, true), nil, WithRemote(remote))

	report, err := o.Stock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.FailedBatches)
	assert.Equal(t, 1, report.FailedItems)
	require.Len(t, report.Products, 3)

	byID := map[int64]ProductStock{}
	for _, p := range report.Products {
		byID[p.ProductID] = p
	}
	desk := byID[1]
	assert.Equal(t, 5, desk.Available)
	assert.Equal(t, "D-1", desk.SKU)
	assert.Equal(t, map[string]int{"Oslo": 4, "Bergen": 1}, desk.ByLocation)
	assert.False(t, desk.Untracked)
	assert.True(t, byID[2].Untracked)
	assert.True(t, byID[3].Untracked)
}

func TestStockRequiresLive(t *testing.T) {
	o := New(testConfig(t, false), nil, WithRemote(&fakeRemote{}))
	_, err := o.Stock(context.Background())
	assert.ErrorIs(t, err, pkgerrors.ErrLiveSyncDisabled)
}
