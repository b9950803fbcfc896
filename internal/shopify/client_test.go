package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/badno/pimsync/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler, mutate ...func(*Config)) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := Config{
		BaseURL: server.URL,
		APIKey:  "test-token",
		Retry:   RetryPolicy{MaxAttempts: 2, FixedDelay: 0},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClientRequiresToken(t *testing.T) {
	t.Setenv("PIMSYNC_TEST_TOKEN", "")
	_, err := NewClient(Config{Store: "demo", APIKeyEnv: "PIMSYNC_TEST_TOKEN"}, nil)
	assert.ErrorIs(t, err, pkgerrors.ErrCredentialsMissing)

	t.Setenv("PIMSYNC_TEST_TOKEN", "abc")
	client, err := NewClient(Config{Store: "demo", APIKeyEnv: "PIMSYNC_TEST_TOKEN"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://demo.myshopify.com/admin/api/2024-01", client.BaseURL())
}

func TestRateLimitRetriedOnceThenSucceeds(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Shopify-Access-Token"))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, map[string]any{"product": map[string]any{"id": 7, "title": "Desk"}})
	}))

	p, err := client.GetProduct(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Desk", p.Title)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRateLimitTwiceSurfacesFailure(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errors":"Exceeded 2 calls per second"}`))
	}))

	_, err := client.GetProduct(context.Background(), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrRateLimited)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestNonRetryableStatusIsAPIError(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"errors":"Not Found"}`, http.StatusNotFound)
	}))

	_, err := client.GetProduct(context.Background(), 1)
	var apiErr *pkgerrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestListProductsFollowsSinceID(t *testing.T) {
	var sinceIDs []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products.json", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		since := r.URL.Query().Get("since_id")
		sinceIDs = append(sinceIDs, since)

		var products []Product
		switch since {
		case "":
			products = []Product{{ID: 1}, {ID: 2}}
		case "2":
			products = []Product{{ID: 3}, {ID: 4}}
		case "4":
			products = []Product{{ID: 5}}
		}
		writeJSON(w, productsResponse{Products: products})
	}), func(c *Config) { c.PageSize = 2 })

	products, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 5)
	assert.Equal(t, []string{"", "2", "4"}, sinceIDs)
}

func TestListProductsStopsOnEmptyPage(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			writeJSON(w, productsResponse{Products: []Product{{ID: 1}, {ID: 2}}})
			return
		}
		writeJSON(w, productsResponse{})
	}), func(c *Config) { c.PageSize = 2 })

	products, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestListProductsPageFailureAborts(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, productsResponse{Products: []Product{{ID: 1}, {ID: 2}}})
	}), func(c *Config) { c.PageSize = 2 })

	products, err := client.ListProducts(context.Background())
	assert.Error(t, err)
	assert.Nil(t, products)
}

func TestInventoryLevelsIsolatesFailedBatches(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		ids := strings.Split(r.URL.Query().Get("inventory_item_ids"), ",")
		if ids[0] == "3" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var levels []InventoryLevel
		for _, s := range ids {
			id, _ := strconv.ParseInt(s, 10, 64)
			levels = append(levels, InventoryLevel{InventoryItemID: id, LocationID: 9})
		}
		writeJSON(w, map[string]any{"inventory_levels": levels})
	}), func(c *Config) { c.LookupBatchSize = 2 })

	result, err := client.InventoryLevels(context.Background(), []int64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "every batch requested")
	assert.Len(t, result.Levels, 3)
	require.Len(t, result.FailedBatches, 1)
	assert.Equal(t, []int64{3, 4}, result.FailedBatches[0].ItemIDs)
}

// multiPageLevels serves 300 levels for one chunk: 250 on the first page and
// 50 behind the page_info cursor. failSecond makes the second page fail.
func multiPageLevels(t *testing.T, calls *int32, failSecond bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		q := r.URL.Query()
		levels := func(n int) []InventoryLevel {
			out := make([]InventoryLevel, n)
			for i := range out {
				out[i] = InventoryLevel{InventoryItemID: int64(i%50 + 1), LocationID: int64(i/50 + 1)}
			}
			return out
		}
		switch q.Get("page_info") {
		case "":
			assert.NotEmpty(t, q.Get("inventory_item_ids"))
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/inventory_levels.json?limit=250&page_info=cur2>; rel="next"`, r.Host))
			writeJSON(w, map[string]any{"inventory_levels": levels(250)})
		case "cur2":
			assert.Empty(t, q.Get("inventory_item_ids"), "cursor requests carry no filter")
			if failSecond {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/inventory_levels.json?limit=250&page_info=cur1>; rel="previous"`, r.Host))
			writeJSON(w, map[string]any{"inventory_levels": levels(50)})
		default:
			t.Errorf("unexpected cursor %q", q.Get("page_info"))
		}
	})
}

func TestInventoryLevelsFollowsNextPage(t *testing.T) {
	var calls int32
	client := newTestClient(t, multiPageLevels(t, &calls, false))

	ids := make([]int64, 50)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	result, err := client.InventoryLevels(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Len(t, result.Levels, 300)
	assert.Empty(t, result.FailedBatches)
}

func TestInventoryLevelsLaterPageFailureFailsChunk(t *testing.T) {
	var calls int32
	client := newTestClient(t, multiPageLevels(t, &calls, true))

	result, err := client.InventoryLevels(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Empty(t, result.Levels, "no partial levels from a failed chunk")
	require.Len(t, result.FailedBatches, 1)
	assert.Equal(t, []int64{1, 2, 3}, result.FailedBatches[0].ItemIDs)
}

func TestNextPageInfo(t *testing.T) {
	link := `<https://demo.myshopify.com/admin/api/2024-01/inventory_levels.json?limit=250&page_info=abc>; rel="previous", ` +
		`<https://demo.myshopify.com/admin/api/2024-01/inventory_levels.json?limit=250&page_info=def>; rel="next"`
	assert.Equal(t, "def", nextPageInfo(link))
	assert.Empty(t, nextPageInfo(`<https://x/y?page_info=abc>; rel="previous"`))
	assert.Empty(t, nextPageInfo(""))
}

func TestListLocations(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/locations.json", r.URL.Path)
		writeJSON(w, map[string]any{"locations": []Location{{ID: 1, Name: "Warehouse"}}})
	}))

	locations, err := client.ListLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, "Warehouse", locations[0].Name)
}

func TestFindProductByHandleFallsBackToScan(t *testing.T) {
	var filtered, scanned int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("handle") != "" {
			atomic.AddInt32(&filtered, 1)
			writeJSON(w, productsResponse{})
			return
		}
		atomic.AddInt32(&scanned, 1)
		writeJSON(w, productsResponse{Products: []Product{{ID: 1, Handle: "a"}, {ID: 2, Handle: "oak-desk"}}})
	}))

	p, err := client.FindProductByHandle(context.Background(), "oak-desk")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&filtered))
	assert.Equal(t, int32(1), atomic.LoadInt32(&scanned))

	_, err = client.FindProductByHandle(context.Background(), "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestFindProductByHandleUsesFilter(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, productsResponse{Products: []Product{{ID: 5, Handle: r.URL.Query().Get("handle")}}})
	}))

	p, err := client.FindProductByHandle(context.Background(), "lamp")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCreateAndUpdateProduct(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Product map[string]any `json:"product"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "/products.json", r.URL.Path)
			assert.Equal(t, "Desk", body.Product["title"])
			w.WriteHeader(http.StatusCreated)
			writeJSON(w, map[string]any{"product": map[string]any{"id": 99, "title": "Desk"}})
		case http.MethodPut:
			assert.Equal(t, "/products/99.json", r.URL.Path)
			assert.EqualValues(t, 99, body.Product["id"])
			writeJSON(w, map[string]any{"product": map[string]any{"id": 99, "title": body.Product["title"]}})
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))

	created, err := client.CreateProduct(context.Background(), ProductFields{"title": "Desk"})
	require.NoError(t, err)
	assert.Equal(t, int64(99), created.ID)

	updated, err := client.UpdateProduct(context.Background(), 99, ProductFields{"title": "Desk v2"})
	require.NoError(t, err)
	assert.Equal(t, "Desk v2", updated.Title)
}

func TestEnsureMetafieldDefinitionTreatsExistingAsSuccess(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/metafield_definitions.json", r.URL.Path)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":{"key":["is already taken"]}}`))
	}))

	require.NoError(t, client.EnsureMetafieldDefinition(context.Background(), "custom", "material", "single_line_text_field"))

	failing := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	assert.Error(t, failing.EnsureMetafieldDefinition(context.Background(), "custom", "material", "single_line_text_field"))
}

func TestEnsureMetafieldDefinitionSurfacesValidationErrors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":{"type":["is not a valid type"]}}`))
	}))

	err := client.EnsureMetafieldDefinition(context.Background(), "custom", "material", "no_such_type")
	var apiErr *pkgerrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)

	conflict := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":"key already exists"}`))
	}))
	assert.Error(t, conflict.EnsureMetafieldDefinition(context.Background(), "custom", "material", "single_line_text_field"))
}

func TestUpsertProductMetafield(t *testing.T) {
	var updates, creates int32
	existing := map[string]bool{"material": true}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			key := r.URL.Query().Get("key")
			assert.Equal(t, "custom", r.URL.Query().Get("namespace"))
			var mfs []Metafield
			if existing[key] {
				mfs = append(mfs, Metafield{ID: 500, Namespace: "custom", Key: key, Value: "old"})
			}
			writeJSON(w, map[string]any{"metafields": mfs})
		case r.Method == http.MethodPut:
			atomic.AddInt32(&updates, 1)
			assert.Equal(t, "/products/1/metafields/500.json", r.URL.Path)
			writeJSON(w, map[string]any{"metafield": Metafield{ID: 500, Namespace: "custom", Key: "material", Value: "oak"}})
		case r.Method == http.MethodPost:
			atomic.AddInt32(&creates, 1)
			assert.Equal(t, "/products/1/metafields.json", r.URL.Path)
			writeJSON(w, map[string]any{"metafield": Metafield{ID: 501, Namespace: "custom", Key: "color", Value: "red"}})
		}
	}))

	mf, err := client.UpsertProductMetafield(context.Background(), 1, Metafield{Namespace: "custom", Key: "material", Value: "oak", Type: "single_line_text_field"})
	require.NoError(t, err)
	assert.Equal(t, int64(500), mf.ID)

	mf, err = client.UpsertProductMetafield(context.Background(), 1, Metafield{Namespace: "custom", Key: "color", Value: "red", Type: "single_line_text_field"})
	require.NoError(t, err)
	assert.Equal(t, int64(501), mf.ID)

	assert.Equal(t, int32(1), atomic.LoadInt32(&updates))
	assert.Equal(t, int32(1), atomic.LoadInt32(&creates))
}

func TestMetafieldKey(t *testing.T) {
	tests := map[string]string{
		"Material":           "material",
		"Product number":     "product_number",
		"  Size (cm) / mm  ": "size_cm_mm",
		"Ærø":                "r",
		"a-b":                "a-b",
		"!!!":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, MetafieldKey(in), in)
	}
	assert.Len(t, MetafieldKey(strings.Repeat("x", 100)), 64)
}

func TestProductToRecord(t *testing.T) {
	p := Product{ID: 12, Title: "Desk", Handle: "desk", Tags: "a, b", Status: "active",
		Variants: []Variant{{SKU: "SKU-1", Price: "10.00", Barcode: "123"}}}
	rec := p.ToRecord()
	assert.Equal(t, "12", rec["id"])
	assert.Equal(t, "desk", rec["handle"])
	assert.Equal(t, "SKU-1", rec["sku"])
	assert.Equal(t, "10.00", rec["price"])
	assert.Equal(t, fmt.Sprint(p.ID), rec.RemoteID())
}
