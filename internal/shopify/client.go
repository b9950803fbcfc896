// Package shopify is a thin client for the Shopify Admin REST API.
//
// Every request goes through do, which bounds each attempt with the HTTP client
// timeout and retries rate-limited (429) responses according to a fixed-delay
// RetryPolicy. Other failures are returned to the caller without retry.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	pkgerrors "github.com/badno/pimsync/pkg/errors"
)

const (
	DefaultAPIVersion      = "2024-01"
	DefaultTimeout         = 20 * time.Second
	DefaultPageSize        = 250
	DefaultLookupBatchSize = 50
	maxPageSize            = 250
)

// Config holds Shopify connection configuration
type Config struct {
	Store           string // Store name (e.g., "badno" for badno.myshopify.com)
	BaseURL         string // Overrides the store-derived URL, e.g. for tests
	APIKey          string // API access token
	APIKeyEnv       string // Environment variable name for API key
	APIVersion      string
	Timeout         time.Duration // Per attempt
	Retry           RetryPolicy
	PageSize        int
	LookupBatchSize int
}

// RetryPolicy retries rate-limited requests after a fixed delay.
// MaxAttempts counts the first request, so 2 means one retry.
type RetryPolicy struct {
	MaxAttempts int
	FixedDelay  time.Duration
}

// DefaultRetryPolicy waits 1.5s and retries a rate-limited request once
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, FixedDelay: 1500 * time.Millisecond}
}

// Client talks to one Shopify store
type Client struct {
	config  Config
	token   string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client. The access token comes from cfg.APIKey or the
// environment variable cfg.APIKeyEnv; without one ErrCredentialsMissing is returned.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	token := cfg.APIKey
	if token == "" && cfg.APIKeyEnv != "" {
		token = os.Getenv(cfg.APIKeyEnv)
	}
	if token == "" {
		return nil, pkgerrors.ErrCredentialsMissing
	}

	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.PageSize <= 0 || cfg.PageSize > maxPageSize {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.LookupBatchSize <= 0 {
		cfg.LookupBatchSize = DefaultLookupBatchSize
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		if cfg.Store == "" {
			return nil, fmt.Errorf("shopify store name not configured")
		}
		baseURL = fmt.Sprintf("https://%s.myshopify.com/admin/api/%s", cfg.Store, cfg.APIVersion)
	}

	return &Client{
		config:  cfg,
		token:   token,
		baseURL: baseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}, nil
}

// BaseURL returns the API root the client sends requests to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Test verifies connectivity to the Shopify API
func (c *Client) Test(ctx context.Context) error {
	var out struct {
		Shop struct {
			Name string `json:"name"`
		} `json:"shop"`
	}
	if err := c.do(ctx, "test connection", http.MethodGet, "/shop.json", nil, &out); err != nil {
		return fmt.Errorf("failed to connect to Shopify: %w", err)
	}
	c.logger.Debug("Connected to Shopify", zap.String("shop", out.Shop.Name))
	return nil
}

// do sends one request and decodes a 2xx JSON response into out. A 429 is retried
// after the policy delay until MaxAttempts is reached; the final 429 and any other
// non-2xx status are returned as *errors.APIError. Transport errors are not retried.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	_, err := c.doPage(ctx, op, method, path, body, out)
	return err
}

// doPage is do that also returns the page_info cursor of the rel="next" Link,
// empty on the last page
func (c *Client) doPage(ctx context.Context, op, method, path string, body, out any) (string, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return "", fmt.Errorf("failed to encode %s request: %w", op, err)
		}
	}

	for attempt := 1; ; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return "", err
		}
		req.Header.Set("X-Shopify-Access-Token", c.token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return "", fmt.Errorf("%s: failed to read response: %w", op, readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			next := nextPageInfo(resp.Header.Get("Link"))
			if out == nil || len(data) == 0 {
				return next, nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return "", fmt.Errorf("%s: failed to decode response: %w", op, err)
			}
			return next, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.config.Retry.MaxAttempts {
			c.logger.Warn("Rate limited, retrying",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", c.config.Retry.FixedDelay))
			if err := waitWithContext(ctx, c.config.Retry.FixedDelay); err != nil {
				return "", err
			}
			continue
		}

		return "", pkgerrors.NewAPIError(op, resp.StatusCode, strings.TrimSpace(string(data)))
	}
}

// nextPageInfo extracts page_info from the rel="next" entry of a Link header
func nextPageInfo(link string) string {
	for _, part := range strings.Split(link, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		lt, gt := strings.Index(part, "<"), strings.Index(part, ">")
		if lt < 0 || gt <= lt {
			continue
		}
		if u, err := url.Parse(part[lt+1 : gt]); err == nil {
			return u.Query().Get("page_info")
		}
	}
	return ""
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
