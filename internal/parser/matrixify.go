package parser

import (
	"strings"

	"github.com/badno/pimsync/pkg/models"
)

// shopifyColumns maps Matrixify / Shopify export columns onto product keys
var shopifyColumns = []struct {
	column string
	key    string
}{
	{"Handle", models.KeyHandle},
	{"Title", models.KeyTitle},
	{"Body (HTML)", models.KeyBodyHTML},
	{"Vendor", models.KeyVendor},
	{"Type", models.KeyProductType},
	{"Product Type", models.KeyProductType},
	{"Tags", models.KeyTags},
	{"Status", models.KeyStatus},
	{"ID", models.KeyID},
	{"Variant SKU", "sku"},
	{"Variant Barcode", "barcode"},
	{"Variant Price", "price"},
}

// isShopifyExport matches the export's capitalized column names exactly so a
// local file with lowercase handle/title columns is taken as-is.
func isShopifyExport(header []string) bool {
	has := make(map[string]bool, len(header))
	for _, h := range header {
		has[h] = true
	}
	return has["Handle"] && has["Title"] && (has["Variant SKU"] || has["Body (HTML)"] || has["Vendor"])
}

// fromShopifyExport collapses the one-row-per-variant export into one record per
// handle. Known columns are renamed; others are carried as-is. Continuation rows
// only fill values the first row left empty.
func fromShopifyExport(header []string, rows []models.Record) ([]string, []models.Record) {
	rename := make(map[string]string)
	for _, c := range shopifyColumns {
		if idx := findColumn(header, c.column); idx >= 0 {
			if _, taken := rename[header[idx]]; !taken {
				rename[header[idx]] = c.key
			}
		}
	}

	outHeader := make([]string, 0, len(header))
	seenCol := make(map[string]bool)
	for _, h := range header {
		key := h
		if k, ok := rename[h]; ok {
			key = k
		}
		if key != "" && !seenCol[key] {
			outHeader = append(outHeader, key)
			seenCol[key] = true
		}
	}

	byHandle := make(map[string]models.Record)
	var out []models.Record
	for _, row := range rows {
		rec := make(models.Record, len(row))
		for col, v := range row {
			key := col
			if k, ok := rename[col]; ok {
				key = k
			}
			if existing, ok := rec[key]; ok && existing != "" {
				continue
			}
			rec[key] = strings.TrimSpace(v)
		}

		handle := rec[models.KeyHandle]
		if handle == "" {
			continue
		}
		if first, ok := byHandle[handle]; ok {
			for k, v := range rec {
				if first[k] == "" && v != "" {
					first[k] = v
				}
			}
			continue
		}
		byHandle[handle] = rec
		out = append(out, rec)
	}

	if out == nil {
		out = []models.Record{}
	}
	return outHeader, out
}
