package file

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/badno/pimsync/internal/flatfile"
	"github.com/badno/pimsync/internal/output"
	"github.com/badno/pimsync/internal/shopify"
	"github.com/badno/pimsync/pkg/models"
)

const CSVAdapterName = "csv"

// matrixifyColumns are the fixed leading columns of a Matrixify export
var matrixifyColumns = []string{
	"ID",
	"Handle",
	"Title",
	"Body (HTML)",
	"Vendor",
	"Type",
	"Tags",
	"Status",
	"Published",
	"Variant SKU",
	"Variant Price",
	"Variant Barcode",
}

// CSVConfig holds CSV file output configuration
type CSVConfig struct {
	OutputDir          string // Directory for output files
	MetafieldNamespace string // Namespace of custom field columns in Matrixify output
	MetafieldType      string
}

// CSVAdapter writes flat CSV and Matrixify sheets
type CSVAdapter struct {
	config CSVConfig
}

// NewCSVAdapter creates a CSV file adapter
func NewCSVAdapter(cfg CSVConfig) *CSVAdapter {
	if cfg.OutputDir == "" {
		cfg.OutputDir = defaultOutputDir
	}
	if cfg.MetafieldNamespace == "" {
		cfg.MetafieldNamespace = "custom"
	}
	if cfg.MetafieldType == "" {
		cfg.MetafieldType = "single_line_text_field"
	}
	return &CSVAdapter{config: cfg}
}

func (a *CSVAdapter) Name() string { return CSVAdapterName }

func (a *CSVAdapter) Formats() []output.Format {
	return []output.Format{output.FormatCSV, output.FormatMatrixify}
}

// ExportProducts writes the selected products as csv or matrixify
func (a *CSVAdapter) ExportProducts(ctx context.Context, products []models.Record, opts output.ExportOptions) (*output.ExportResult, error) {
	if opts.Format == "" {
		opts.Format = output.FormatCSV
	}
	return output.Run(ctx, a.config.OutputDir, products, opts, func(output.Format) string { return ".csv" }, a.write)
}

func (a *CSVAdapter) write(path string, format output.Format, products []models.Record) (int, error) {
	if format == output.FormatMatrixify {
		return a.writeMatrixify(path, products)
	}
	ff := flatfile.New(path)
	if err := ff.Save(products); err != nil {
		return 0, err
	}
	return len(ff.Header()), nil
}

// writeMatrixify writes one row per product with the standard attributes first and
// every custom field as a metafield column
func (a *CSVAdapter) writeMatrixify(filename string, products []models.Record) (int, error) {
	custom := customKeys(products)
	headers := append([]string(nil), matrixifyColumns...)
	for _, k := range custom {
		headers = append(headers, fmt.Sprintf("Metafield: %s.%s [%s]",
			a.config.MetafieldNamespace, shopify.MetafieldKey(k), a.config.MetafieldType))
	}

	f, err := os.Create(filename)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		return 0, err
	}

	for _, raw := range products {
		p := models.NormalizeProduct(raw)
		status := models.ParseStatus(p[models.KeyStatus])

		row := []string{
			p.RemoteID(),
			handleFor(p),
			p[models.KeyTitle],
			bodyOf(p),
			p[models.KeyVendor],
			p[models.KeyProductType],
			p[models.KeyTags],
			string(status),
			strings.ToUpper(fmt.Sprint(status == models.StatusActive)),
			p["sku"],
			p["price"],
			p["barcode"],
		}
		for _, k := range custom {
			row = append(row, p[k])
		}
		if err := w.Write(row); err != nil {
			return 0, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}
	return len(headers), f.Close()
}

// customKeys returns the sorted keys that are neither standard attributes nor reserved
func customKeys(products []models.Record) []string {
	set := make(map[string]struct{})
	for _, p := range products {
		for k, v := range models.NormalizeProduct(p) {
			if _, std := models.RemoteFields[k]; std || models.IsReserved(k) || strings.TrimSpace(v) == "" {
				continue
			}
			set[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// handleFor returns the handle, derived from the title when not set
func handleFor(p models.Record) string {
	if h := strings.TrimSpace(p[models.KeyHandle]); h != "" {
		return h
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(p[models.KeyTitle]) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func bodyOf(p models.Record) string {
	for _, k := range []string{models.KeyBodyHTML, "description", "body"} {
		if v := strings.TrimSpace(p[k]); v != "" {
			return p[k]
		}
	}
	return ""
}
