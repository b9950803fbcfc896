package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	pkgerrors "github.com/badno/pimsync/pkg/errors"
)

const maxMetafieldKeyLength = 64

// Metafield is a namespaced custom attribute attached to a product
type Metafield struct {
	ID        int64  `json:"id,omitempty"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Type      string `json:"type"`
	OwnerID   int64  `json:"owner_id,omitempty"`
}

// MetafieldKey turns a local field name into a valid metafield key:
// lowercase, runs of other characters collapsed to a single underscore.
func MetafieldKey(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) || r == '-' {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	key := strings.Trim(b.String(), "_")
	if len(key) > maxMetafieldKeyLength {
		key = strings.TrimRight(key[:maxMetafieldKeyLength], "_")
	}
	return key
}

func definitionName(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// EnsureMetafieldDefinition creates a product metafield definition. A definition
// that already exists counts as success.
func (c *Client) EnsureMetafieldDefinition(ctx context.Context, namespace, key, typ string) error {
	body := map[string]any{
		"metafield_definition": map[string]any{
			"name":       definitionName(key),
			"namespace":  namespace,
			"key":        key,
			"type":       typ,
			"owner_type": "PRODUCT",
		},
	}

	err := c.do(ctx, "create metafield definition", http.MethodPost, "/metafield_definitions.json", body, nil)
	if err == nil || definitionExists(err) {
		return nil
	}
	return err
}

// definitionExists reports a 422 that rejects the definition as a duplicate.
// Other validation errors, such as an unknown type, are real failures.
func definitionExists(err error) bool {
	var apiErr *pkgerrors.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	body := strings.ToLower(apiErr.Body)
	return strings.Contains(body, "already exists") || strings.Contains(body, "taken")
}

// ListProductMetafields returns a product's metafields, optionally filtered by namespace and key
func (c *Client) ListProductMetafields(ctx context.Context, productID int64, namespace, key string) ([]Metafield, error) {
	params := url.Values{}
	if namespace != "" {
		params.Set("namespace", namespace)
	}
	if key != "" {
		params.Set("key", key)
	}
	path := fmt.Sprintf("/products/%d/metafields.json", productID)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var out struct {
		Metafields []Metafield `json:"metafields"`
	}
	if err := c.do(ctx, "list metafields", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Metafields, nil
}

// UpsertProductMetafield sets namespace.key on a product, updating the existing
// metafield when one is found and creating it otherwise.
func (c *Client) UpsertProductMetafield(ctx context.Context, productID int64, mf Metafield) (*Metafield, error) {
	existing, err := c.ListProductMetafields(ctx, productID, mf.Namespace, mf.Key)
	if err != nil {
		return nil, err
	}

	var out struct {
		Metafield Metafield `json:"metafield"`
	}
	for _, e := range existing {
		if e.Namespace != mf.Namespace || e.Key != mf.Key {
			continue
		}
		body := map[string]any{"metafield": map[string]any{
			"id":    e.ID,
			"value": mf.Value,
			"type":  mf.Type,
		}}
		path := fmt.Sprintf("/products/%d/metafields/%d.json", productID, e.ID)
		if err := c.do(ctx, "update metafield", http.MethodPut, path, body, &out); err != nil {
			return nil, err
		}
		return &out.Metafield, nil
	}

	body := map[string]any{"metafield": map[string]any{
		"namespace": mf.Namespace,
		"key":       mf.Key,
		"value":     mf.Value,
		"type":      mf.Type,
	}}
	path := fmt.Sprintf("/products/%d/metafields.json", productID)
	if err := c.do(ctx, "create metafield", http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out.Metafield, nil
}
