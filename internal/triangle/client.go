// internal/triangle/client.go

// Package triangle accesses the internal, undocumented API that powers
// canadiantire.ca. The API is paginated, rate-sensitive and occasionally
// flaky, so every request goes through a shared pacing limiter and a
// bounded retry loop.
package triangle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jgalar/CanadianTracker/internal/config"
)

// Product is a raw product record from the listing endpoint.
type Product struct {
	Code        string
	Name        string
	URL         string
	Badges      []string
	InClearance bool
}

// Sku is a raw SKU record from the product family endpoint.
type Sku struct {
	Code          string
	FormattedCode string
}

// PriceInfo is a raw price/availability record for one SKU.
type PriceInfo struct {
	SkuCode    string
	PriceCents int64
	InPromo    bool
	InStock    bool
	RawPayload string
}

// ProductPage is one page of the product listing. NextCursor is opaque and
// restartable: a caller that crashes mid-listing can resume from the last
// cursor it persisted without re-fetching completed pages.
type ProductPage struct {
	Products   []Product
	NextCursor string
	TotalPages int
	Done       bool
}

// Client issues paced, retried requests against the upstream catalog API.
// The rate limiter is shared by every caller so the pacing floor holds
// globally, not per worker.
type Client struct {
	cfg     config.ScraperConfig
	http    *http.Client
	limiter *rate.Limiter
	metrics *Metrics
	log     *logrus.Entry
}

// NewLimiter builds the pacing limiter for a run from the configured
// minimum inter-request interval.
func NewLimiter(cfg config.ScraperConfig) *rate.Limiter {
	return rate.NewLimiter(rate.Every(cfg.MinRequestInterval), 1)
}

func NewClient(cfg config.ScraperConfig, limiter *rate.Limiter, metrics *Metrics) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: limiter,
		metrics: metrics,
		log:     logrus.WithField("component", "triangle"),
	}
}

// SetHTTPClient replaces the underlying HTTP client. Used by tests to
// install a mock transport.
func (c *Client) SetHTTPClient(h *http.Client) {
	c.http = h
}

type listResponse struct {
	Pagination struct {
		Total int `json:"total"`
	} `json:"pagination"`
	Products []struct {
		Code   string   `json:"code"`
		Title  string   `json:"title"`
		URL    string   `json:"url"`
		Badges []string `json:"badges"`
	} `json:"products"`
}

// ListProducts fetches one page of the product listing. An empty cursor
// starts from the first page.
func (c *Client) ListProducts(ctx context.Context, cursor string) (*ProductPage, error) {
	page := 1
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("invalid listing cursor %q", cursor)
		}
		page = parsed
	}

	url := fmt.Sprintf("%s/v1/search/search?store=%s&lang=en_CA&experience=category;count=48;page=%d",
		c.cfg.BaseURL, c.cfg.StoreID, page)

	body, err := c.doRequest(ctx, "list_products", http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode product listing page %d: %w", page, err)
	}

	result := &ProductPage{TotalPages: resp.Pagination.Total}
	for _, p := range resp.Products {
		result.Products = append(result.Products, Product{
			Code:        p.Code,
			Name:        p.Title,
			URL:         p.URL,
			Badges:      p.Badges,
			InClearance: slices.Contains(p.Badges, "CLEARANCE"),
		})
	}

	if page >= resp.Pagination.Total {
		result.Done = true
	} else {
		result.NextCursor = strconv.Itoa(page + 1)
	}
	return result, nil
}

type skuResponse struct {
	Skus []struct {
		Code          string `json:"code"`
		FormattedCode string `json:"formattedCode"`
	} `json:"skus"`
}

// ListSkus fetches every SKU of one product. Returns ErrNotFound when the
// upstream no longer knows the product.
func (c *Client) ListSkus(ctx context.Context, productCode string) ([]Sku, error) {
	url := fmt.Sprintf("%s/v1/product/api/v1/product/productFamily/%s?baseStoreId=CTR&lang=en_CA&storeId=%s",
		c.cfg.BaseURL, productCode, c.cfg.StoreID)

	body, err := c.doRequest(ctx, "list_skus", http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var resp skuResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode sku listing for %s: %w", productCode, err)
	}

	// Some stale products come back without a skus list; the retailer's own
	// site is broken for those, so treat them as empty.
	skus := make([]Sku, 0, len(resp.Skus))
	for _, s := range resp.Skus {
		skus = append(skus, Sku{Code: s.Code, FormattedCode: s.FormattedCode})
	}
	return skus, nil
}

type priceRequest struct {
	Skus []priceRequestSku `json:"skus"`
}

type priceRequestSku struct {
	Code              string `json:"code"`
	LowStockThreshold int    `json:"lowStockThreshold"`
}

type priceResponse struct {
	Skus []priceResponseSku `json:"skus"`
}

type priceResponseSku struct {
	Code         string `json:"code"`
	CurrentPrice *struct {
		Value float64 `json:"value"`
	} `json:"currentPrice"`
	PriceValidUntil *string `json:"priceValidUntil"`
	Sellable        bool    `json:"sellable"`
}

// FetchPrice fetches the current price/availability of one SKU. Returns
// ErrNotFound when the SKU is gone, which signals possible discontinuation.
func (c *Client) FetchPrice(ctx context.Context, skuCode string) (*PriceInfo, error) {
	infos, err := c.fetchPriceBatch(ctx, []string{skuCode})
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, ErrNotFound
	}
	return &infos[0], nil
}

// FetchPrices fetches price/availability for a set of SKUs, batching
// requests to the upstream limit. When the upstream rejects a whole batch
// with a 400 (retired SKUs poison the batch), the batch is retried item by
// item and only the poisoned SKUs are dropped.
func (c *Client) FetchPrices(ctx context.Context, skuCodes []string) ([]PriceInfo, error) {
	var infos []PriceInfo
	for batch := range slices.Chunk(skuCodes, c.cfg.PriceBatchSize) {
		batchInfos, err := c.fetchPriceBatch(ctx, batch)
		if err == nil {
			infos = append(infos, batchInfos...)
			continue
		}

		if len(batch) > 1 && isBadRequest(err) {
			c.log.WithField("batch_size", len(batch)).
				Debug("Price batch rejected, falling back to item-by-item queries")
			for _, code := range batch {
				single, err := c.fetchPriceBatch(ctx, []string{code})
				if err != nil {
					if isBadRequest(err) {
						c.log.WithField("sku", code).Debug("Skipping retired SKU")
						continue
					}
					return infos, err
				}
				infos = append(infos, single...)
			}
			continue
		}
		return infos, err
	}
	return infos, nil
}

func (c *Client) fetchPriceBatch(ctx context.Context, skuCodes []string) ([]PriceInfo, error) {
	req := priceRequest{}
	for _, code := range skuCodes {
		req.Skus = append(req.Skus, priceRequestSku{Code: code})
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/product/api/v1/product/sku/PriceAvailability/?lang=en_CA&storeId=%s",
		c.cfg.BaseURL, c.cfg.StoreID)

	body, err := c.doRequest(ctx, "fetch_prices", http.MethodPost, url, payload)
	if err != nil {
		return nil, err
	}

	var resp priceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}

	infos := make([]PriceInfo, 0, len(resp.Skus))
	for _, s := range resp.Skus {
		// Some responses have null as the current price; those SKUs carry no
		// usable observation.
		if s.CurrentPrice == nil {
			continue
		}
		raw, _ := json.Marshal(s)
		infos = append(infos, PriceInfo{
			SkuCode:    s.Code,
			PriceCents: int64(math.Round(s.CurrentPrice.Value * 100)),
			InPromo:    s.PriceValidUntil != nil,
			InStock:    s.Sellable,
			RawPayload: string(raw),
		})
	}
	return infos, nil
}

// doRequest issues one paced HTTP request with bounded retry on transient
// failures. Exhaustion converts into an UnavailableError so the caller can
// skip and continue.
func (c *Client) doRequest(ctx context.Context, operation, method, url string, payload []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.incRetries()
			delay := c.backoff(attempt)
			c.log.WithFields(logrus.Fields{
				"operation": operation,
				"attempt":   attempt,
				"delay":     delay,
			}).Warn("Retrying upstream request")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		// The pacing floor is a hard guarantee across all workers, so wait
		// before every attempt, retries included.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.attempt(ctx, operation, method, url, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err

		c.metrics.incError(errorTypeLabel(err))
		if !isTransient(err) {
			return nil, err
		}
	}

	return nil, &UnavailableError{
		Operation: operation,
		Attempts:  c.cfg.MaxRetries + 1,
		Err:       lastErr,
	}
}

func (c *Client) attempt(ctx context.Context, operation, method, url string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json, text/plain, */*")
	req.Header.Set("user-agent", c.cfg.UserAgent)
	req.Header.Set("bannerid", "CTR")
	req.Header.Set("basesiteid", "CTR")
	if payload != nil {
		req.Header.Set("content-type", "application/json")
	}

	c.metrics.incRequest(operation)
	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.observeDuration(time.Since(start))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
		return io.ReadAll(resp.Body)
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, &statusError{StatusCode: resp.StatusCode}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := c.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := c.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}
