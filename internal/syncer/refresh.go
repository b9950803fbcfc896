package syncer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/badno/pimsync/internal/categories"
	pkgerrors "github.com/badno/pimsync/pkg/errors"
	"github.com/badno/pimsync/pkg/models"
)

// RefreshResult reports a category refresh
type RefreshResult struct {
	Total int                         `json:"total"`
	Added map[models.CategoryType]int `json:"added"`
	// Skipped are remote values whose name is already used by another field
	Skipped []models.CategoryField `json:"skipped,omitempty"`
}

// CategoryRefresher merges remote product types, tags and vendors into the fields
type CategoryRefresher struct {
	fields FieldStore
	remote CatalogLister
	opts   Options
	logger *zap.Logger
}

// NewCategoryRefresher creates a CategoryRefresher
func NewCategoryRefresher(fields FieldStore, remote CatalogLister, opts Options) *CategoryRefresher {
	opts = opts.withDefaults()
	return &CategoryRefresher{
		fields: fields,
		remote: remote,
		opts:   opts,
		logger: opts.Logger,
	}
}

// Refresh fetches the remote catalog, collects its facets and merges them into
// the category fields with a single save. Custom fields are never removed.
func (r *CategoryRefresher) Refresh(ctx context.Context) (*RefreshResult, error) {
	if !r.opts.Live {
		return nil, pkgerrors.ErrLiveSyncDisabled
	}

	products, err := r.remote.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote catalog: %w", err)
	}
	records := make([]models.Record, len(products))
	for i, p := range products {
		records[i] = p.ToRecord()
	}

	existing, err := r.fields.LoadFields()
	if err != nil {
		return nil, err
	}

	merged, skipped := categories.Merge(existing, categories.CollectFacets(records))
	for _, f := range skipped {
		r.logger.Warn("Remote value skipped, name already used by another field",
			zap.String("type", string(f.Type)),
			zap.String("name", f.Name))
	}

	type key struct {
		t models.CategoryType
		n string
	}
	before := make(map[key]bool, len(existing))
	for _, f := range existing {
		before[key{f.Type, strings.TrimSpace(f.Name)}] = true
	}
	result := &RefreshResult{Total: len(merged), Added: make(map[models.CategoryType]int), Skipped: skipped}
	for _, f := range merged {
		if !before[key{f.Type, f.Name}] {
			result.Added[f.Type]++
		}
	}

	if err := r.fields.SaveFields(merged); err != nil {
		return nil, err
	}

	r.logger.Info("Category refresh finished",
		zap.Int("fields", result.Total),
		zap.Int("product_types_added", result.Added[models.TypeProductType]),
		zap.Int("tags_added", result.Added[models.TypeTag]),
		zap.Int("vendors_added", result.Added[models.TypeVendor]))

	return result, nil
}
