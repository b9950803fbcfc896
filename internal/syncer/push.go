package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/badno/pimsync/internal/shopify"
	pkgerrors "github.com/badno/pimsync/pkg/errors"
	"github.com/badno/pimsync/pkg/models"
)

// bodyAliases are the local keys that feed body_html, highest priority first
var bodyAliases = []string{models.KeyBodyHTML, "description", "body"}

// PushResult reports one batch. Success is Failed == 0.
type PushResult struct {
	Updated   int           `json:"updated"`
	Created   int           `json:"created"`
	Failed    int           `json:"failed"`
	Errors    []ItemError   `json:"errors"`
	Warnings  []ItemError   `json:"warnings,omitempty"`
	Outcomes  []ItemOutcome `json:"-"`
	Start     int           `json:"start"`
	NextStart int           `json:"next_start"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Done      bool          `json:"done"`
	Success   bool          `json:"success"`
}

// Pusher sends local products to Shopify
type Pusher struct {
	store  ProductStore
	remote ProductWriter
	opts   Options
	logger *zap.Logger
}

// NewPusher creates a Pusher
func NewPusher(store ProductStore, remote ProductWriter, opts Options) *Pusher {
	opts = opts.withDefaults()
	return &Pusher{
		store:  store,
		remote: remote,
		opts:   opts,
		logger: opts.Logger,
	}
}

// PartitionFields splits a product into standard remote attributes and custom
// fields. Identifier and remote-owned keys go to neither; blank custom values are skipped.
func PartitionFields(rec models.Record) (shopify.ProductFields, map[string]string) {
	fields := make(shopify.ProductFields)
	custom := make(map[string]string)

	for k, v := range rec {
		if attr, ok := models.RemoteFields[k]; ok {
			if attr != models.KeyBodyHTML {
				fields[attr] = v
			}
			continue
		}
		if models.IsReserved(k) || strings.TrimSpace(v) == "" {
			continue
		}
		custom[k] = v
	}

	// first non-blank alias wins; a present but blank body is still sent
	for _, alias := range bodyAliases {
		v, ok := rec[alias]
		if !ok {
			continue
		}
		if cur, set := fields[models.KeyBodyHTML]; !set || strings.TrimSpace(cur) == "" {
			fields[models.KeyBodyHTML] = v
		}
	}

	return fields, custom
}

// updateFields partitions only the keys rec carries, so an update never sends
// the local defaults of a missing title, status or category. A present status
// is still canonicalised.
func updateFields(rec models.Record) (shopify.ProductFields, map[string]string) {
	fields, custom := PartitionFields(rec)
	if v, ok := rec[models.KeyStatus]; ok {
		fields[models.KeyStatus] = string(models.ParseStatus(v))
	}
	return fields, custom
}

// PushBatch pushes products [start, start+count). Products with a remote id are
// updated, the rest created and their new id written back. Item failures are
// recorded in the result and never stop the batch. The product list is saved
// once at the end, also when ctx is cancelled part way; NextStart then points at
// the first product not processed and ctx.Err() is returned with the result.
func (p *Pusher) PushBatch(ctx context.Context, start, count int) (*PushResult, error) {
	if !p.opts.Live {
		return nil, pkgerrors.ErrLiveSyncDisabled
	}
	if start < 0 {
		return nil, pkgerrors.NewValidationError("start", "must not be negative")
	}
	if count <= 0 {
		return nil, pkgerrors.NewValidationError("count", "must be positive")
	}

	products, err := p.store.LoadProducts(false)
	if err != nil {
		return nil, err
	}

	result := &PushResult{Start: start, Total: len(products), Errors: []ItemError{}}
	end := min(start+count, len(products))
	defined := make(map[string]bool)

	var interrupted error
	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			interrupted = err
			break
		}

		p.pushOne(ctx, i, products[i], result, defined)
		result.Processed++

		if i < end-1 {
			if err := p.opts.Sleep(ctx, p.opts.PaceDelay); err != nil {
				interrupted = err
				break
			}
		}
	}

	result.NextStart = start + result.Processed
	if result.NextStart > result.Total {
		result.NextStart = result.Total
	}
	result.Done = result.NextStart >= result.Total
	result.Success = result.Failed == 0

	if result.Processed > 0 {
		if err := p.store.SaveProducts(products); err != nil {
			return result, fmt.Errorf("failed to persist pushed batch: %w", err)
		}
	}

	p.logger.Info("Push batch finished",
		zap.Int("start", start),
		zap.Int("processed", result.Processed),
		zap.Int("updated", result.Updated),
		zap.Int("created", result.Created),
		zap.Int("failed", result.Failed),
		zap.Int("next_start", result.NextStart))

	return result, interrupted
}

// pushOne handles a single product. A panic inside the remote calls is recorded
// as an exception for this item.
func (p *Pusher) pushOne(ctx context.Context, index int, rec models.Record, result *PushResult, defined map[string]bool) {
	label := rec.Label()
	fail := func(typ ItemErrorType, msg string) {
		result.Failed++
		result.Errors = append(result.Errors, ItemError{
			Type:         typ,
			ProductIndex: index,
			Product:      label,
			Message:      msg,
		})
		p.logger.Warn("Product push failed",
			zap.Int("index", index),
			zap.String("product", label),
			zap.String("type", string(typ)),
			zap.String("error", msg))
	}

	defer func() {
		if r := recover(); r != nil {
			fail(ErrorException, fmt.Sprintf("panic: %v", r))
		}
	}()

	if rawID := rec.RemoteID(); rawID != "" {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || id <= 0 {
			fail(ErrorInvalidID, fmt.Sprintf("invalid product id %q", rawID))
			return
		}

		fields, custom := updateFields(rec)

		if _, err := p.remote.UpdateProduct(ctx, id, fields); err != nil {
			fail(classify(err, ErrorUpdateFailed), err.Error())
			return
		}
		result.Updated++
		result.Outcomes = append(result.Outcomes, ItemOutcome{Index: index, Product: label, Outcome: OutcomeUpdated})
		p.pushMetafields(ctx, index, label, id, custom, result, defined)
		return
	}

	fields, custom := PartitionFields(models.NormalizeProduct(rec))
	created, err := p.remote.CreateProduct(ctx, fields)
	if err != nil {
		fail(classify(err, ErrorCreateFailed), err.Error())
		return
	}
	rec.SetRemoteID(strconv.FormatInt(created.ID, 10))
	result.Created++
	result.Outcomes = append(result.Outcomes, ItemOutcome{Index: index, Product: label, Outcome: OutcomeCreated})
	p.logger.Debug("Created product",
		zap.Int("index", index),
		zap.Int64("product_id", created.ID))
	p.pushMetafields(ctx, index, label, created.ID, custom, result, defined)
}

// pushMetafields upserts every custom field. Failures become warnings; the
// product itself was already written.
func (p *Pusher) pushMetafields(ctx context.Context, index int, label string, productID int64, custom map[string]string, result *PushResult, defined map[string]bool) {
	names := make([]string, 0, len(custom))
	for name := range custom {
		names = append(names, name)
	}
	sort.Strings(names)

	warn := func(name string, err error) {
		result.Warnings = append(result.Warnings, ItemError{
			Type:         ErrorMetafieldFailed,
			ProductIndex: index,
			Product:      label,
			Message:      fmt.Sprintf("%s: %v", name, err),
		})
		p.logger.Warn("Metafield push failed",
			zap.Int64("product_id", productID),
			zap.String("field", name),
			zap.Error(err))
	}

	for _, name := range names {
		key := shopify.MetafieldKey(name)
		if key == "" {
			warn(name, pkgerrors.NewValidationError("field_name", "no valid metafield key"))
			continue
		}

		if !defined[key] {
			if err := p.remote.EnsureMetafieldDefinition(ctx, p.opts.MetafieldNamespace, key, p.opts.MetafieldType); err != nil {
				warn(name, err)
				continue
			}
			defined[key] = true
		}

		mf := shopify.Metafield{
			Namespace: p.opts.MetafieldNamespace,
			Key:       key,
			Value:     custom[name],
			Type:      p.opts.MetafieldType,
		}
		if _, err := p.remote.UpsertProductMetafield(ctx, productID, mf); err != nil {
			warn(name, err)
		}
	}
}

func classify(err error, apiFailure ItemErrorType) ItemErrorType {
	var apiErr *pkgerrors.APIError
	if errors.As(err, &apiErr) {
		return apiFailure
	}
	return ErrorException
}

// PushSummary aggregates the batches of PushAll
type PushSummary struct {
	Batches   int           `json:"batches"`
	Updated   int           `json:"updated"`
	Created   int           `json:"created"`
	Failed    int           `json:"failed"`
	Errors    []ItemError   `json:"errors"`
	Warnings  []ItemError   `json:"warnings,omitempty"`
	Outcomes  []ItemOutcome `json:"-"`
	Processed int           `json:"processed"`
	Start     int           `json:"start"`
	NextStart int           `json:"next_start"`
	Total     int           `json:"total"`
}

// PushAll runs batches of size count from start until every product was pushed.
// onBatch, when set, is called after each batch.
func (p *Pusher) PushAll(ctx context.Context, start, count int, onBatch func(*PushResult)) (*PushSummary, error) {
	summary := &PushSummary{Start: start, NextStart: start, Errors: []ItemError{}}
	for {
		res, err := p.PushBatch(ctx, summary.NextStart, count)
		if res != nil {
			summary.Batches++
			summary.Updated += res.Updated
			summary.Created += res.Created
			summary.Failed += res.Failed
			summary.Processed += res.Processed
			summary.Errors = append(summary.Errors, res.Errors...)
			summary.Warnings = append(summary.Warnings, res.Warnings...)
			summary.Outcomes = append(summary.Outcomes, res.Outcomes...)
			summary.NextStart = res.NextStart
			summary.Total = res.Total
			if onBatch != nil {
				onBatch(res)
			}
		}
		if err != nil {
			return summary, err
		}
		if res.Done || res.Processed == 0 {
			return summary, nil
		}
	}
}

// Summarize wraps a single batch result as a summary
func Summarize(res *PushResult) *PushSummary {
	if res == nil {
		return &PushSummary{Errors: []ItemError{}}
	}
	return &PushSummary{
		Batches:   1,
		Updated:   res.Updated,
		Created:   res.Created,
		Failed:    res.Failed,
		Errors:    res.Errors,
		Warnings:  res.Warnings,
		Outcomes:  res.Outcomes,
		Processed: res.Processed,
		Start:     res.Start,
		NextStart: res.NextStart,
		Total:     res.Total,
	}
}
