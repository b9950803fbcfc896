package models

// RemoteFields is the whitelist of product keys sent as standard remote fields.
// Keys map to the remote attribute they populate.
var RemoteFields = map[string]string{
	KeyTitle:       "title",
	"body":         "body_html",
	"description":  "body_html",
	KeyBodyHTML:    "body_html",
	KeyVendor:      "vendor",
	KeyProductType: "product_type",
	KeyTags:        "tags",
	KeyStatus:      "status",
}

// identifierKeys are never pushed
var identifierKeys = map[string]bool{
	KeyID:        true,
	KeyShopifyID: true,
}

// remoteReportedKeys are written by a pull and owned by the remote catalog
var remoteReportedKeys = map[string]bool{
	KeyHandle:      true,
	"created_at":   true,
	"updated_at":   true,
	"published_at": true,
	"sku":          true,
	"price":        true,
	"barcode":      true,
}

// IsIdentifier reports whether key holds the remote identifier
func IsIdentifier(key string) bool {
	return identifierKeys[key]
}

// IsReserved reports whether key has a fixed meaning and is never a custom field
func IsReserved(key string) bool {
	if key == "" || identifierKeys[key] || remoteReportedKeys[key] {
		return true
	}
	_, ok := RemoteFields[key]
	return ok
}
