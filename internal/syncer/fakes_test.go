package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/badno/pimsync/internal/shopify"
	pkgerrors "github.com/badno/pimsync/pkg/errors"
	"github.com/badno/pimsync/pkg/models"
)

type memProducts struct {
	records []models.Record
	saves   int
	saveErr error
	loadErr error
}

func (m *memProducts) LoadProducts(normalize bool) ([]models.Record, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]models.Record, len(m.records))
	for i, r := range m.records {
		out[i] = r.Clone()
		if normalize {
			out[i] = models.NormalizeProduct(out[i])
		}
	}
	return out, nil
}

func (m *memProducts) SaveProducts(records []models.Record) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.records = make([]models.Record, len(records))
	for i, r := range records {
		m.records[i] = r.Clone()
	}
	return nil
}

type memFields struct {
	fields []models.CategoryField
	saves  int
}

func (m *memFields) LoadFields() ([]models.CategoryField, error) {
	return append([]models.CategoryField(nil), m.fields...), nil
}

func (m *memFields) SaveFields(fields []models.CategoryField) error {
	m.saves++
	m.fields = append([]models.CategoryField(nil), fields...)
	return nil
}

// fakeRemote is an in-memory Shopify catalog
type fakeRemote struct {
	mu         sync.Mutex
	nextID     int64
	products   map[int64]shopify.ProductFields
	metafields map[int64]map[string]string
	defs       map[string]int

	creates, updates int

	// failTitles makes create/update of a product with that title fail with the error
	failTitles  map[string]error
	panicTitles map[string]bool
	metaErr     error
	listErr     error
	list        []shopify.Product
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		nextID:      1000,
		products:    make(map[int64]shopify.ProductFields),
		metafields:  make(map[int64]map[string]string),
		defs:        make(map[string]int),
		failTitles:  make(map[string]error),
		panicTitles: make(map[string]bool),
	}
}

func (f *fakeRemote) check(fields shopify.ProductFields) error {
	if f.panicTitles[fields["title"]] {
		panic("boom")
	}
	return f.failTitles[fields["title"]]
}

func (f *fakeRemote) CreateProduct(_ context.Context, fields shopify.ProductFields) (*shopify.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(fields); err != nil {
		return nil, err
	}
	f.creates++
	f.nextID++
	f.products[f.nextID] = fields
	return &shopify.Product{ID: f.nextID, Title: fields["title"]}, nil
}

func (f *fakeRemote) UpdateProduct(_ context.Context, id int64, fields shopify.ProductFields) (*shopify.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(fields); err != nil {
		return nil, err
	}
	if _, ok := f.products[id]; !ok {
		return nil, pkgerrors.NewAPIError("update product", 404, `{"errors":"Not Found"}`)
	}
	f.updates++
	f.products[id] = fields
	return &shopify.Product{ID: id, Title: fields["title"]}, nil
}

func (f *fakeRemote) EnsureMetafieldDefinition(_ context.Context, namespace, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defs[namespace+"."+key]++
	return nil
}

func (f *fakeRemote) UpsertProductMetafield(_ context.Context, productID int64, mf shopify.Metafield) (*shopify.Metafield, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	if f.metafields[productID] == nil {
		f.metafields[productID] = make(map[string]string)
	}
	f.metafields[productID][mf.Namespace+"."+mf.Key] = mf.Value
	return &mf, nil
}

func (f *fakeRemote) ListProducts(context.Context) ([]shopify.Product, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.list, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

var errTransport = errors.New("connection reset by peer")

func liveOptions() Options {
	return Options{Live: true, Sleep: noSleep}
}

func apiError(status int) error {
	return pkgerrors.NewAPIError("test", status, fmt.Sprintf("status %d", status))
}
