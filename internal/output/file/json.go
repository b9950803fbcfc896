package file

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/badno/pimsync/internal/flatfile"
	"github.com/badno/pimsync/internal/output"
	"github.com/badno/pimsync/pkg/models"
)

const JSONAdapterName = "json"

// JSONConfig holds JSON file output configuration
type JSONConfig struct {
	OutputDir string
	Pretty    bool
}

// JSONAdapter writes a JSON envelope or JSON Lines
type JSONAdapter struct {
	config JSONConfig
}

// NewJSONAdapter creates a JSON file adapter
func NewJSONAdapter(cfg JSONConfig) *JSONAdapter {
	if cfg.OutputDir == "" {
		cfg.OutputDir = defaultOutputDir
	}
	return &JSONAdapter{config: cfg}
}

func (a *JSONAdapter) Name() string { return JSONAdapterName }

func (a *JSONAdapter) Formats() []output.Format {
	return []output.Format{output.FormatJSON, output.FormatJSONL}
}

// ExportProducts writes the selected products as json or jsonl
func (a *JSONAdapter) ExportProducts(ctx context.Context, products []models.Record, opts output.ExportOptions) (*output.ExportResult, error) {
	if opts.Format == "" {
		opts.Format = output.FormatJSON
	}
	return output.Run(ctx, a.config.OutputDir, products, opts, jsonExt, a.write)
}

func jsonExt(f output.Format) string {
	if f == output.FormatJSONL {
		return ".jsonl"
	}
	return ".json"
}

func (a *JSONAdapter) write(path string, format output.Format, products []models.Record) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if format == output.FormatJSONL {
		err = writeLines(w, products)
	} else {
		err = a.writeEnvelope(w, products)
	}
	if err != nil {
		return 0, err
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	return len(flatfile.UnionHeader(nil, products)), f.Close()
}

// writeEnvelope writes {version, exported_at, count, products}
func (a *JSONAdapter) writeEnvelope(w *bufio.Writer, products []models.Record) error {
	if products == nil {
		products = []models.Record{}
	}
	enc := json.NewEncoder(w)
	if a.config.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(struct {
		Version    string          `json:"version"`
		ExportedAt time.Time       `json:"exported_at"`
		Count      int             `json:"count"`
		Products   []models.Record `json:"products"`
	}{"1.0", time.Now(), len(products), products})
}

// writeLines writes one compact object per line
func writeLines(w *bufio.Writer, products []models.Record) error {
	enc := json.NewEncoder(w)
	for _, p := range products {
		if err := enc.Encode(p); err != nil {
			return err
		}
	}
	return nil
}
