package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badno/pimsync/internal/categories"
	"github.com/badno/pimsync/internal/shopify"
	pkgerrors "github.com/badno/pimsync/pkg/errors"
	"github.com/badno/pimsync/pkg/models"
)

func TestPullMergeByIDKeepsLocalKeys(t *testing.T) {
	remote := newFakeRemote()
	remote.list = []shopify.Product{
		{ID: 10, Title: "Desk v2", Handle: "desk", Vendor: "Acme", Status: "active"},
	}
	store := &memProducts{records: []models.Record{
		{"id": "10", "title": "Desk", "Material": "Oak"},
		{"title": "Local only", "handle": "lamp"},
	}}

	res, err := NewPuller(store, remote, liveOptions()).PullAndMerge(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Remote)
	assert.Equal(t, 1, res.Merged)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 1, res.LocalOnly)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, store.saves)

	require.Len(t, store.records, 2)
	assert.Equal(t, "Desk v2", store.records[0]["title"])
	assert.Equal(t, "Acme", store.records[0]["vendor"])
	assert.Equal(t, "Oak", store.records[0]["Material"])
	assert.Equal(t, models.Record{"title": "Local only", "handle": "lamp"}, store.records[1])
}

func TestPullMatchesByHandleAndAppendsUnknown(t *testing.T) {
	remote := newFakeRemote()
	remote.list = []shopify.Product{
		{ID: 21, Title: "Lamp", Handle: "lamp"},
		{ID: 22, Title: "Chair", Handle: "chair"},
	}
	store := &memProducts{records: []models.Record{
		{"title": "Lamp draft", "handle": "lamp", "shopify_id": "", "Color": "Red"},
	}}

	res, err := NewPuller(store, remote, liveOptions()).PullAndMerge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Merged)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 0, res.LocalOnly)

	require.Len(t, store.records, 2)
	assert.Equal(t, "21", store.records[0]["id"])
	assert.Equal(t, "21", store.records[0]["shopify_id"])
	assert.Equal(t, "Red", store.records[0]["Color"])
	assert.Equal(t, "22", store.records[1]["id"])
	assert.Equal(t, "Chair", store.records[1]["title"])
}

func TestPullHandleDoesNotStealCreatedProduct(t *testing.T) {
	remote := newFakeRemote()
	remote.list = []shopify.Product{{ID: 99, Title: "Other desk", Handle: "desk"}}
	store := &memProducts{records: []models.Record{{"id": "5", "title": "Desk", "handle": "desk"}}}

	res, err := NewPuller(store, remote, liveOptions()).PullAndMerge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, "5", store.records[0]["id"])
	assert.Equal(t, "Desk", store.records[0]["title"])
}

func TestPullFetchFailureWritesNothing(t *testing.T) {
	remote := newFakeRemote()
	remote.listErr = pkgerrors.NewAPIError("list products", 500, "boom")
	store := &memProducts{records: []models.Record{{"title": "Desk"}}}

	_, err := NewPuller(store, remote, liveOptions()).PullAndMerge(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, store.saves)
}

func TestPullRequiresLive(t *testing.T) {
	store := &memProducts{}
	_, err := NewPuller(store, newFakeRemote(), Options{}).PullAndMerge(context.Background())
	assert.ErrorIs(t, err, pkgerrors.ErrLiveSyncDisabled)
}

func TestRefreshMergesRemoteFacets(t *testing.T) {
	remote := newFakeRemote()
	remote.list = []shopify.Product{
		{ID: 1, ProductType: "Desks", Vendor: "Acme", Tags: "Color_Brown, sale"},
		{ID: 2, ProductType: "Lamps", Vendor: "Acme"},
	}
	fields := &memFields{fields: []models.CategoryField{
		{Name: "Material", Type: models.TypeCustomField, Required: "True"},
		{Name: "Desks", Type: models.TypeProductType, Description: "Work desks"},
	}}

	res, err := NewCategoryRefresher(fields, remote, liveOptions()).Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fields.saves)
	assert.Equal(t, 1, res.Added[models.TypeProductType])
	assert.Equal(t, 2, res.Added[models.TypeTag])
	assert.Equal(t, 1, res.Added[models.TypeVendor])
	assert.Equal(t, 6, res.Total)

	assert.Equal(t, "Material", fields.fields[0].Name)
	assert.Equal(t, "True", fields.fields[0].Required)

	var desks *models.CategoryField
	for i := range fields.fields {
		if fields.fields[i].Name == "Desks" {
			desks = &fields.fields[i]
		}
	}
	require.NotNil(t, desks)
	assert.Equal(t, "Work desks", desks.Description)
}

func TestRefreshSkipsNamesUsedByOtherFields(t *testing.T) {
	remote := newFakeRemote()
	remote.list = []shopify.Product{{ID: 1, Tags: "Wood, Pine"}}
	fields := &memFields{fields: []models.CategoryField{
		{Name: "wood", Type: models.TypeCustomField},
	}}

	res, err := NewCategoryRefresher(fields, remote, liveOptions()).Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added[models.TypeTag])
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "Wood", res.Skipped[0].Name)
	assert.Equal(t, []models.CategoryField{
		{Name: "wood", Type: models.TypeCustomField},
		{Name: "Pine", Type: models.TypeTag, Group: categories.GroupFor(models.TypeTag, "Pine")},
	}, fields.fields)
}

func TestRefreshFetchFailureWritesNothing(t *testing.T) {
	remote := newFakeRemote()
	remote.listErr = assert.AnError
	fields := &memFields{}

	_, err := NewCategoryRefresher(fields, remote, liveOptions()).Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, fields.saves)
}
