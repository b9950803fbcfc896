package models

import (
	"sort"
	"strings"
)

// Product record keys with a fixed meaning
const (
	KeyID          = "id"
	KeyShopifyID   = "shopify_id"
	KeyTitle       = "title"
	KeyStatus      = "status"
	KeyCategory    = "category"
	KeyHandle      = "handle"
	KeyBodyHTML    = "body_html"
	KeyVendor      = "vendor"
	KeyProductType = "product_type"
	KeyTags        = "tags"

	DefaultTitle    = "Untitled Product"
	DefaultCategory = "Uncategorized"
)

// titleKeys lists the source columns a title is taken from, in priority order
var titleKeys = []string{"Product Name", "Product name", KeyTitle, KeyHandle}

// categoryKeys lists the source columns a category is taken from, in priority order
var categoryKeys = []string{"Product Group", KeyCategory}

// ProductStatus is the publication status of a product
type ProductStatus string

const (
	StatusActive   ProductStatus = "active"
	StatusDraft    ProductStatus = "draft"
	StatusArchived ProductStatus = "archived"
)

// ParseStatus returns the status for s, or draft when s is not a known status
func ParseStatus(s string) ProductStatus {
	switch st := ProductStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusDraft, StatusArchived:
		return st
	}
	return StatusDraft
}

// Record is an open product record. Any key set is allowed; values are strings.
type Record map[string]string

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the record keys in sorted order
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RemoteID returns the remote identifier, preferring id over shopify_id
func (r Record) RemoteID() string {
	if id := strings.TrimSpace(r[KeyID]); id != "" {
		return id
	}
	return strings.TrimSpace(r[KeyShopifyID])
}

// SetRemoteID stores the remote identifier under id, and under shopify_id when
// the record already carries that column.
func (r Record) SetRemoteID(id string) {
	r[KeyID] = id
	if _, ok := r[KeyShopifyID]; ok {
		r[KeyShopifyID] = id
	}
}

// Label returns a human readable name for logs and error records
func (r Record) Label() string {
	for _, k := range titleKeys {
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	if id := r.RemoteID(); id != "" {
		return id
	}
	return DefaultTitle
}

// NormalizeProduct fills the mandatory semantic fields: title, status and category.
// The input record is not modified.
func NormalizeProduct(r Record) Record {
	out := r.Clone()
	delete(out, "")

	title := ""
	for _, k := range titleKeys {
		if v := strings.TrimSpace(out[k]); v != "" {
			title = v
			break
		}
	}
	if title == "" {
		title = DefaultTitle
	}
	out[KeyTitle] = title

	out[KeyStatus] = string(ParseStatus(out[KeyStatus]))

	category := ""
	for _, k := range categoryKeys {
		if v := out[k]; v != "" {
			category = v
			break
		}
	}
	if category == "" {
		category = DefaultCategory
	}
	out[KeyCategory] = category

	return out
}
