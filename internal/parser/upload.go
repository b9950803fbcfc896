// Package parser reads product files uploaded for import.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/badno/pimsync/internal/flatfile"
	"github.com/badno/pimsync/pkg/models"
)

// Upload is a parsed import file
type Upload struct {
	Header    []string
	Records   []models.Record
	Delimiter rune
}

// ParseFile reads a CSV or TSV file, sniffing the delimiter from the header line
func ParseFile(path string) (*Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return Parse(data)
}

// Parse decodes an uploaded file. Shopify and Matrixify exports are mapped onto
// the local product keys; any other file is taken column for column.
func Parse(data []byte) (*Upload, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	delim := SniffDelimiter(data)

	header, records, err := flatfile.Decode(bytes.NewReader(data), delim)
	if err != nil {
		return nil, err
	}

	if isShopifyExport(header) {
		header, records = fromShopifyExport(header, records)
	}

	return &Upload{Header: header, Records: records, Delimiter: delim}, nil
}

// SniffDelimiter picks tab, semicolon or comma by counting them in the first line
func SniffDelimiter(data []byte) rune {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return ','
	}
	line := scanner.Text()

	best, bestCount := ',', strings.Count(line, ",")
	for _, d := range []rune{'\t', ';'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func findColumn(header []string, name string) int {
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), name) {
			return i
		}
	}
	return -1
}
