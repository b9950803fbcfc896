// Package catalog owns the two local collections: products and category fields.
//
// Every mutating operation is load-modify-save over the whole collection and the
// Store does no locking of its own. One job at a time writes a collection.
package catalog

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/badno/pimsync/internal/flatfile"
	pkgerrors "github.com/badno/pimsync/pkg/errors"
	"github.com/badno/pimsync/pkg/models"
)

// RecordFile persists one record collection
type RecordFile interface {
	Load() ([]models.Record, error)
	Save([]models.Record) error
}

// fallbackLookupKeys are tried when a product cannot be found by the requested key
var fallbackLookupKeys = []string{"Product number", models.KeyHandle}

// Store provides the product and category field collections
type Store struct {
	products     RecordFile
	fields       RecordFile
	businessKeys []string
	logger       *zap.Logger
}

// Options configures a Store
type Options struct {
	BusinessKeys []string
	Logger       *zap.Logger
}

// New creates a Store over the given collections
func New(products, fields RecordFile, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		products:     products,
		fields:       fields,
		businessKeys: opts.BusinessKeys,
		logger:       logger,
	}
}

// Open creates a Store over the flat files at productsPath and fieldsPath
func Open(productsPath, fieldsPath string, opts Options) *Store {
	return New(
		flatfile.New(productsPath),
		flatfile.New(fieldsPath, flatfile.WithHeader(models.FieldColumns)),
		opts,
	)
}

// BusinessKeys returns the configured identity keys
func (s *Store) BusinessKeys() []string {
	return append([]string(nil), s.businessKeys...)
}

// LoadProducts reads the product collection, optionally normalizing every record
func (s *Store) LoadProducts(normalize bool) ([]models.Record, error) {
	records, err := s.products.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	if normalize {
		for i, r := range records {
			records[i] = models.NormalizeProduct(r)
		}
	}
	return records, nil
}

// SaveProducts rewrites the product collection
func (s *Store) SaveProducts(records []models.Record) error {
	if err := s.products.Save(records); err != nil {
		return fmt.Errorf("failed to save products: %w", err)
	}
	return nil
}

// LoadFields reads the category field collection
func (s *Store) LoadFields() ([]models.CategoryField, error) {
	records, err := s.fields.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load fields: %w", err)
	}
	fields := make([]models.CategoryField, 0, len(records))
	for _, r := range records {
		f := models.CategoryFieldFromRecord(r)
		if f.Name == "" {
			continue
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// SaveFields rewrites the category field collection
func (s *Store) SaveFields(fields []models.CategoryField) error {
	records := make([]models.Record, len(fields))
	for i, f := range fields {
		records[i] = f.ToRecord()
	}
	if err := s.fields.Save(records); err != nil {
		return fmt.Errorf("failed to save fields: %w", err)
	}
	return nil
}

// FindDuplicate returns the business key and value of rec already used by another
// record in records, if any. The remote id counts as a business key.
func (s *Store) FindDuplicate(records []models.Record, rec models.Record) (string, string, bool) {
	if id := rec.RemoteID(); id != "" {
		for _, other := range records {
			if other.RemoteID() == id {
				return models.KeyID, id, true
			}
		}
	}
	for _, key := range s.businessKeys {
		v := strings.TrimSpace(rec[key])
		if v == "" {
			continue
		}
		for _, other := range records {
			if strings.TrimSpace(other[key]) == v {
				return key, v, true
			}
		}
	}
	return "", "", false
}

// AddProduct normalizes rec and appends it. A duplicate business key is rejected
// before anything is written. Unknown keys are registered as custom fields.
func (s *Store) AddProduct(rec models.Record) (models.Record, error) {
	records, err := s.LoadProducts(false)
	if err != nil {
		return nil, err
	}

	product := models.NormalizeProduct(rec)
	if key, value, dup := s.FindDuplicate(records, product); dup {
		return nil, pkgerrors.NewDuplicateError(key, value)
	}

	records = append(records, product)
	if err := s.SaveProducts(records); err != nil {
		return nil, err
	}

	if _, err := s.registerFields(product.Keys()); err != nil {
		s.logger.Warn("Failed to register product fields", zap.Error(err))
	}

	return product, nil
}

// FindProduct returns the index of the first product whose key equals value.
// When nothing matches, the fallback lookup keys are tried with the same value.
func FindProduct(records []models.Record, key, value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return -1
	}
	keys := append([]string{key}, fallbackLookupKeys...)
	for _, k := range keys {
		if k == "" {
			continue
		}
		for i, r := range records {
			if strings.TrimSpace(r[k]) == value {
				return i
			}
		}
	}
	return -1
}

// UpdateProduct applies updates to the product identified by key=value
func (s *Store) UpdateProduct(key, value string, updates models.Record) (models.Record, error) {
	records, err := s.LoadProducts(false)
	if err != nil {
		return nil, err
	}

	idx := FindProduct(records, key, value)
	if idx < 0 {
		return nil, pkgerrors.NewNotFoundError("product", value)
	}

	for k, v := range updates {
		if k == "" {
			continue
		}
		if k == models.KeyStatus {
			v = string(models.ParseStatus(v))
		}
		records[idx][k] = v
	}

	if err := s.SaveProducts(records); err != nil {
		return nil, err
	}
	return records[idx], nil
}

// BulkEdit sets field=value on every product at indices and returns the count edited
func (s *Store) BulkEdit(indices []int, field, value string) (int, error) {
	if strings.TrimSpace(field) == "" {
		return 0, pkgerrors.NewValidationError("field", "field name is required")
	}

	records, err := s.LoadProducts(false)
	if err != nil {
		return 0, err
	}
	if err := checkIndices(indices, len(records)); err != nil {
		return 0, err
	}

	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if seen[i] {
			continue
		}
		seen[i] = true
		records[i][field] = value
	}

	if err := s.SaveProducts(records); err != nil {
		return 0, err
	}
	return len(seen), nil
}

// DeleteProduct removes the product identified by key=value and returns it so the
// caller can remove the remote counterpart.
func (s *Store) DeleteProduct(key, value string) (models.Record, error) {
	records, err := s.LoadProducts(false)
	if err != nil {
		return nil, err
	}

	idx := FindProduct(records, key, value)
	if idx < 0 {
		return nil, pkgerrors.NewNotFoundError("product", value)
	}

	deleted := records[idx]
	records = append(records[:idx], records[idx+1:]...)
	if err := s.SaveProducts(records); err != nil {
		return nil, err
	}
	return deleted, nil
}

// DeleteProducts removes the products at indices and returns them
func (s *Store) DeleteProducts(indices []int) ([]models.Record, error) {
	records, err := s.LoadProducts(false)
	if err != nil {
		return nil, err
	}
	if err := checkIndices(indices, len(records)); err != nil {
		return nil, err
	}

	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		drop[i] = true
	}

	kept := make([]models.Record, 0, len(records)-len(drop))
	var deleted []models.Record
	for i, r := range records {
		if drop[i] {
			deleted = append(deleted, r)
			continue
		}
		kept = append(kept, r)
	}

	if err := s.SaveProducts(kept); err != nil {
		return nil, err
	}
	return deleted, nil
}

// SearchHit is a product matched by Search
type SearchHit struct {
	Index   int
	Product models.Record
}

// SearchFilter narrows a search to products where Field equals Value
type SearchFilter struct {
	Field string
	Value string
}

// Search returns products with any value containing query (case-insensitive)
// that also pass the filter. An empty query matches everything.
func (s *Store) Search(query string, filter SearchFilter) ([]SearchHit, error) {
	records, err := s.LoadProducts(false)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	var hits []SearchHit
	for i, r := range records {
		if filter.Field != "" && filter.Value != "" && r[filter.Field] != filter.Value {
			continue
		}
		if query != "" && !containsValue(r, query) {
			continue
		}
		hits = append(hits, SearchHit{Index: i, Product: r})
	}
	return hits, nil
}

func containsValue(r models.Record, lowered string) bool {
	for _, v := range r {
		if strings.Contains(strings.ToLower(v), lowered) {
			return true
		}
	}
	return false
}

func checkIndices(indices []int, n int) error {
	if len(indices) == 0 {
		return pkgerrors.NewValidationError("indices", "no products selected")
	}
	for _, i := range indices {
		if i < 0 || i >= n {
			return pkgerrors.NewValidationError("indices", fmt.Sprintf("index %d out of range [0,%d)", i, n))
		}
	}
	return nil
}
