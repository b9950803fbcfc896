// Package syncer moves product data between the local catalog and Shopify.
//
// Pusher sends local edits in bounded, paced batches. Puller merges the remote
// catalog back into the local products. CategoryRefresher merges remote facets
// into the category fields. None of them lock; the caller holds the job lock.
package syncer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/badno/pimsync/internal/shopify"
	"github.com/badno/pimsync/pkg/models"
)

// ProductStore is the local product collection
type ProductStore interface {
	LoadProducts(normalize bool) ([]models.Record, error)
	SaveProducts(records []models.Record) error
}

// FieldStore is the local category field collection
type FieldStore interface {
	LoadFields() ([]models.CategoryField, error)
	SaveFields(fields []models.CategoryField) error
}

// ProductWriter creates and updates remote products and their metafields
type ProductWriter interface {
	CreateProduct(ctx context.Context, fields shopify.ProductFields) (*shopify.Product, error)
	UpdateProduct(ctx context.Context, id int64, fields shopify.ProductFields) (*shopify.Product, error)
	EnsureMetafieldDefinition(ctx context.Context, namespace, key, typ string) error
	UpsertProductMetafield(ctx context.Context, productID int64, mf shopify.Metafield) (*shopify.Metafield, error)
}

// CatalogLister fetches the whole remote catalog
type CatalogLister interface {
	ListProducts(ctx context.Context) ([]shopify.Product, error)
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures the sync components
type Options struct {
	// Live enables remote calls. When false every operation returns ErrLiveSyncDisabled.
	Live               bool
	PaceDelay          time.Duration
	Sleep              SleepFunc
	MetafieldNamespace string
	MetafieldType      string
	// MatchKeys correlate local and remote products when no remote id is stored
	MatchKeys []string
	Logger    *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	if o.MetafieldNamespace == "" {
		o.MetafieldNamespace = "custom"
	}
	if o.MetafieldType == "" {
		o.MetafieldType = "single_line_text_field"
	}
	if len(o.MatchKeys) == 0 {
		o.MatchKeys = []string{models.KeyHandle}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ItemErrorType classifies a per-item failure
type ItemErrorType string

const (
	ErrorInvalidID       ItemErrorType = "invalid_id"
	ErrorUpdateFailed    ItemErrorType = "update_failed"
	ErrorCreateFailed    ItemErrorType = "create_failed"
	ErrorException       ItemErrorType = "exception"
	ErrorMetafieldFailed ItemErrorType = "metafield_failed"
)

// ItemError records one failed product in a batch
type ItemError struct {
	Type         ItemErrorType `json:"type"`
	ProductIndex int           `json:"product_index"`
	Product      string        `json:"product"`
	Message      string        `json:"message"`
}

// Successful item outcomes
const (
	OutcomeUpdated = "updated"
	OutcomeCreated = "created"
)

// ItemOutcome records one product written remotely
type ItemOutcome struct {
	Index   int
	Product string
	Outcome string
}
