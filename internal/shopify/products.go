package shopify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	pkgerrors "github.com/badno/pimsync/pkg/errors"
	"github.com/badno/pimsync/pkg/models"
)

// Product is a Shopify product as returned by the REST API
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Handle      string    `json:"handle"`
	BodyHTML    string    `json:"body_html"`
	Vendor      string    `json:"vendor"`
	ProductType string    `json:"product_type"`
	Tags        string    `json:"tags"`
	Status      string    `json:"status"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
	PublishedAt string    `json:"published_at"`
	Variants    []Variant `json:"variants"`
}

// Variant is a product variant
type Variant struct {
	ID              int64  `json:"id"`
	ProductID       int64  `json:"product_id"`
	SKU             string `json:"sku"`
	Barcode         string `json:"barcode"`
	Price           string `json:"price"`
	InventoryItemID int64  `json:"inventory_item_id"`
}

// ProductFields are the standard attributes sent on create or update, keyed by
// Shopify attribute name (title, body_html, vendor, product_type, tags, status).
type ProductFields map[string]string

type productsResponse struct {
	Products []Product `json:"products"`
}

type productResponse struct {
	Product Product `json:"product"`
}

// ToRecord flattens the product into the keys a pull writes locally.
// The first variant supplies sku, price and barcode.
func (p Product) ToRecord() models.Record {
	rec := models.Record{
		models.KeyID:          strconv.FormatInt(p.ID, 10),
		models.KeyTitle:       p.Title,
		models.KeyHandle:      p.Handle,
		models.KeyBodyHTML:    p.BodyHTML,
		models.KeyVendor:      p.Vendor,
		models.KeyProductType: p.ProductType,
		models.KeyTags:        p.Tags,
		models.KeyStatus:      p.Status,
		"created_at":          p.CreatedAt,
		"updated_at":          p.UpdatedAt,
		"published_at":        p.PublishedAt,
	}
	if len(p.Variants) > 0 {
		v := p.Variants[0]
		rec["sku"] = v.SKU
		rec["price"] = v.Price
		rec["barcode"] = v.Barcode
	}
	return rec
}

// ListProducts fetches the whole catalog, following the since_id cursor until a
// page comes back short or empty. Any page failure aborts the listing.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var all []Product
	var sinceID int64
	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(c.config.PageSize))
		if sinceID > 0 {
			params.Set("since_id", strconv.FormatInt(sinceID, 10))
		}

		var page productsResponse
		if err := c.do(ctx, "list products", http.MethodGet, "/products.json?"+params.Encode(), nil, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch products page after id %d: %w", sinceID, err)
		}

		all = append(all, page.Products...)
		c.logger.Debug("Fetched products page",
			zap.Int("count", len(page.Products)),
			zap.Int64("since_id", sinceID))

		if len(page.Products) < c.config.PageSize || len(page.Products) == 0 {
			break
		}
		sinceID = page.Products[len(page.Products)-1].ID
	}
	return all, nil
}

// GetProduct fetches one product by id
func (c *Client) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var out productResponse
	if err := c.do(ctx, "get product", http.MethodGet, fmt.Sprintf("/products/%d.json", id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Product, nil
}

// CreateProduct creates a product and returns it with its assigned id
func (c *Client) CreateProduct(ctx context.Context, fields ProductFields) (*Product, error) {
	body := map[string]any{"product": productBody(fields)}

	var out productResponse
	if err := c.do(ctx, "create product", http.MethodPost, "/products.json", body, &out); err != nil {
		return nil, err
	}
	if out.Product.ID == 0 {
		return nil, fmt.Errorf("create product: response carried no product id")
	}
	return &out.Product, nil
}

// UpdateProduct sends fields to the product with the given id
func (c *Client) UpdateProduct(ctx context.Context, id int64, fields ProductFields) (*Product, error) {
	product := productBody(fields)
	product["id"] = id
	body := map[string]any{"product": product}

	var out productResponse
	if err := c.do(ctx, "update product", http.MethodPut, fmt.Sprintf("/products/%d.json", id), body, &out); err != nil {
		return nil, err
	}
	return &out.Product, nil
}

// DeleteProduct removes a product
func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	return c.do(ctx, "delete product", http.MethodDelete, fmt.Sprintf("/products/%d.json", id), nil, nil)
}

// FindProductByHandle resolves a handle with a filtered query first. When that
// returns nothing it falls back to scanning the whole catalog, which costs one
// request per page.
func (c *Client) FindProductByHandle(ctx context.Context, handle string) (*Product, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, pkgerrors.NewValidationError("handle", "handle is required")
	}

	params := url.Values{}
	params.Set("handle", handle)
	var filtered productsResponse
	if err := c.do(ctx, "find product by handle", http.MethodGet, "/products.json?"+params.Encode(), nil, &filtered); err != nil {
		return nil, err
	}
	for i := range filtered.Products {
		if filtered.Products[i].Handle == handle {
			return &filtered.Products[i], nil
		}
	}

	c.logger.Info("Handle filter returned nothing, scanning catalog", zap.String("handle", handle))
	products, err := c.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range products {
		if products[i].Handle == handle {
			return &products[i], nil
		}
	}
	return nil, pkgerrors.NewNotFoundError("product with handle", handle)
}

func productBody(fields ProductFields) map[string]any {
	body := make(map[string]any, len(fields))
	for k, v := range fields {
		body[k] = v
	}
	return body
}
