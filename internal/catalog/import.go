package catalog

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/badno/pimsync/internal/parser"
	"github.com/badno/pimsync/pkg/models"
)

// ImportOptions controls Import
type ImportOptions struct {
	// Replace swaps the whole collection for the file contents instead of appending
	Replace bool
}

// ImportResult summarizes an import
type ImportResult struct {
	Total     int
	Added     int
	Skipped   int
	NewFields []string
}

// Import reads an uploaded CSV or TSV file into the product collection. Headers
// without a field become custom fields. In append mode rows whose business key
// already exists are skipped.
func (s *Store) Import(path string, opts ImportOptions) (*ImportResult, error) {
	upload, err := parser.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var records []models.Record
	if !opts.Replace {
		if records, err = s.LoadProducts(false); err != nil {
			return nil, err
		}
	}

	result := &ImportResult{Total: len(upload.Records)}
	for _, row := range upload.Records {
		product := models.NormalizeProduct(row)
		if key, value, dup := s.FindDuplicate(records, product); dup {
			s.logger.Debug("Skipping duplicate product",
				zap.String("key", key),
				zap.String("value", value))
			result.Skipped++
			continue
		}
		records = append(records, product)
		result.Added++
	}

	if records == nil {
		records = []models.Record{}
	}
	if err := s.SaveProducts(records); err != nil {
		return nil, err
	}

	added, err := s.registerFields(upload.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to register fields: %w", err)
	}
	result.NewFields = added

	s.logger.Info("Imported products",
		zap.String("path", path),
		zap.Int("added", result.Added),
		zap.Int("skipped", result.Skipped),
		zap.Int("new_fields", len(added)))

	return result, nil
}
