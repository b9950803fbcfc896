// Package output writes the product collection to export files.
package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/badno/pimsync/pkg/models"
)

// Format names an export file layout
type Format string

const (
	FormatCSV       Format = "csv"       // union of product keys as columns
	FormatMatrixify Format = "matrixify" // Matrixify product import sheet
	FormatJSON      Format = "json"
	FormatJSONL     Format = "jsonl"
)

// ExportOptions selects products and the destination of one export
type ExportOptions struct {
	Format     Format
	OutputPath string            // generated under the export directory when empty
	Filters    map[string]string // exact key=value matches, case-insensitive
	OnlyNew    bool              // skip products that already have a remote id
	DryRun     bool
}

// ExportResult summarizes one export
type ExportResult struct {
	Destination      string
	ProductsExported int
	Columns          int
	Success          bool
	Error            error
	StartedAt        time.Time
	CompletedAt      time.Time
	Details          string
}

// Adapter writes products in one or more formats
type Adapter interface {
	Name() string
	Formats() []Format
	ExportProducts(ctx context.Context, products []models.Record, opts ExportOptions) (*ExportResult, error)
}

// WriteFunc writes products to path and reports the number of columns
type WriteFunc func(path string, format Format, products []models.Record) (int, error)

// Run filters products, resolves the destination under dir and calls write
// unless opts.DryRun is set. ext maps a format to its file extension.
func Run(ctx context.Context, dir string, products []models.Record, opts ExportOptions, ext func(Format) string, write WriteFunc) (*ExportResult, error) {
	res := &ExportResult{StartedAt: time.Now()}
	finish := func(err error) (*ExportResult, error) {
		res.CompletedAt = time.Now()
		res.Error = err
		res.Success = err == nil
		return res, err
	}

	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	selected := Filter(products, opts)
	res.ProductsExported = len(selected)
	if opts.DryRun {
		res.Details = fmt.Sprintf("Dry run: would export %d products", len(selected))
		return finish(nil)
	}

	path := opts.OutputPath
	if path == "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return finish(fmt.Errorf("failed to create export directory: %w", err))
		}
		path = filepath.Join(dir, fmt.Sprintf("products_%s_%s%s", opts.Format, time.Now().Format("2006-01-02_150405"), ext(opts.Format)))
	} else if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return finish(fmt.Errorf("failed to create export directory: %w", err))
	}

	cols, err := write(path, opts.Format, selected)
	if err != nil {
		res.ProductsExported = 0
		return finish(fmt.Errorf("failed to write %s: %w", path, err))
	}
	res.Destination = path
	res.Columns = cols
	res.Details = fmt.Sprintf("Exported %d products to %s", len(selected), path)
	return finish(nil)
}

// Filter returns the products selected by opts, in their original order
func Filter(products []models.Record, opts ExportOptions) []models.Record {
	if len(opts.Filters) == 0 && !opts.OnlyNew {
		return products
	}

	out := make([]models.Record, 0, len(products))
	for _, p := range products {
		if opts.OnlyNew && p.RemoteID() != "" {
			continue
		}
		if !matchesAll(p, opts.Filters) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesAll(p models.Record, filters map[string]string) bool {
	for k, v := range filters {
		if !strings.EqualFold(strings.TrimSpace(p[k]), strings.TrimSpace(v)) {
			return false
		}
	}
	return true
}
