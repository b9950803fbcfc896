// Package flatfile persists record collections as delimited text files.
//
// A File is not safe for concurrent use. At most one job writes a collection at a
// time; callers serialize through the job lock.
package flatfile

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/badno/pimsync/pkg/models"
)

const utf8BOM = "\ufeff"

// File is a header + rows delimited file holding one record collection
type File struct {
	path      string
	delimiter rune
	fixed     []string
	header    []string
}

// Option configures a File
type Option func(*File)

// WithHeader pins the written header to cols. Keys outside cols are not written.
func WithHeader(cols []string) Option {
	return func(f *File) {
		f.fixed = append([]string(nil), cols...)
	}
}

// WithDelimiter sets the field delimiter (default ',')
func WithDelimiter(d rune) Option {
	return func(f *File) {
		f.delimiter = d
	}
}

// New creates a File for path
func New(path string, opts ...Option) *File {
	f := &File{path: path, delimiter: ','}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the file location
func (f *File) Path() string {
	return f.path
}

// Header returns the header seen by the last Load or written by the last Save
func (f *File) Header() []string {
	return append([]string(nil), f.header...)
}

// Load reads every record. A missing file is an empty collection.
func (f *File) Load() ([]models.Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			f.header = nil
			return []models.Record{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	header, records, err := Decode(bytes.NewReader(data), f.delimiter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	f.header = header
	return records, nil
}

// Decode reads a header row and the rows after it. Short rows are padded with
// empty strings; cells beyond the header are dropped.
func Decode(r io.Reader, delimiter rune) ([]string, []models.Record, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, []models.Record{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	records := []models.Record{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read row %d: %w", len(records)+2, err)
		}

		rec := make(models.Record, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = ""
			}
		}
		records = append(records, rec)
	}

	return header, records, nil
}

// Save rewrites the whole collection. Empty input writes an empty file.
// The data goes to a temporary file in the same directory which is then renamed
// over the target, so readers never observe a partial file.
func (f *File) Save(records []models.Record) error {
	var header []string
	if f.fixed != nil {
		header = f.fixed
	} else {
		header = UnionHeader(f.header, records)
	}

	var buf bytes.Buffer
	if len(records) > 0 {
		w := csv.NewWriter(&buf)
		w.Comma = f.delimiter
		if err := w.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		row := make([]string, len(header))
		for _, rec := range records {
			for i, col := range header {
				row[i] = rec[col]
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("failed to flush %s: %w", f.path, err)
		}
	} else {
		header = nil
	}

	if err := writeFileAtomic(f.path, buf.Bytes(), 0644); err != nil {
		return err
	}
	f.header = header
	return nil
}

// UnionHeader computes the header for records. Keys of prev that some record still
// carries come first in their previous order; keys first seen afterwards are
// appended record by record, sorted within a record. The empty key is skipped.
func UnionHeader(prev []string, records []models.Record) []string {
	present := make(map[string]bool)
	for _, rec := range records {
		for k := range rec {
			if k != "" {
				present[k] = true
			}
		}
	}

	header := make([]string, 0, len(present))
	seen := make(map[string]bool, len(present))
	for _, k := range prev {
		if present[k] && !seen[k] {
			header = append(header, k)
			seen[k] = true
		}
	}

	for _, rec := range records {
		var fresh []string
		for k := range rec {
			if k != "" && !seen[k] {
				fresh = append(fresh, k)
			}
		}
		sort.Strings(fresh)
		for _, k := range fresh {
			header = append(header, k)
			seen[k] = true
		}
	}

	return header
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	committed = true
	return nil
}
