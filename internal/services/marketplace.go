package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Luigii1506/ohara-catalog/internal/metrics"
)

const (
	marketplaceBaseURL        = "https://api.tcgcollector.example.com/v1"
	marketplaceDefaultTimeout = 10 * time.Second
	productCacheSize          = 512
)

// MarketProduct is one marketplace listing returned by a name search.
type MarketProduct struct {
	ProductID  string    `json:"productId"`
	GroupID    string    `json:"groupId"`
	GroupName  string    `json:"groupName"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	ModifiedOn time.Time `json:"modifiedOn"`
}

// PricingEntry is a marketplace price point for a product.
type PricingEntry struct {
	ProductID   string  `json:"productId"`
	SubTypeName string  `json:"subTypeName"`
	MarketPrice float64 `json:"marketPrice"`
}

// MarketProductDetail extends a product with its listed attributes.
type MarketProductDetail struct {
	MarketProduct
	ExtendedData map[string]string `json:"extendedData"`
}

// MarketplaceAPI is the marketplace surface the product matcher consumes.
type MarketplaceAPI interface {
	SearchProductsByName(ctx context.Context, name string, categoryID, limit, offset int) ([]MarketProduct, error)
	GetProductPricing(ctx context.Context, productIDs []string) ([]PricingEntry, error)
	GetProductsByIds(ctx context.Context, ids []string, extended bool) ([]MarketProductDetail, error)
}

// MarketplaceClient calls the marketplace API with daily-quota accounting and
// an LRU cache over product detail lookups.
type MarketplaceClient struct {
	client     *http.Client
	apiKey     string
	baseURL    string
	dailyLimit int

	detailCache *lru.Cache[string, MarketProductDetail]

	// Rate limiting
	mu             sync.Mutex
	requestsToday  int
	lastRequestDay time.Time
}

type marketSearchResponse struct {
	Success bool            `json:"success"`
	Results []MarketProduct `json:"results"`
	Error   string          `json:"error,omitempty"`
}

type marketPricingResponse struct {
	Success bool           `json:"success"`
	Results []PricingEntry `json:"results"`
	Error   string         `json:"error,omitempty"`
}

type marketDetailResponse struct {
	Success bool                  `json:"success"`
	Results []MarketProductDetail `json:"results"`
	Error   string                `json:"error,omitempty"`
}

// NewMarketplaceClient creates a marketplace API client. baseURL overrides the
// default endpoint when non-empty (tests point it at an httptest server).
func NewMarketplaceClient(apiKey, baseURL string, dailyLimit int) *MarketplaceClient {
	if dailyLimit <= 0 {
		dailyLimit = 500
	}
	if baseURL == "" {
		baseURL = marketplaceBaseURL
	}
	cache, _ := lru.New[string, MarketProductDetail](productCacheSize)

	return &MarketplaceClient{
		client: &http.Client{
			Timeout: marketplaceDefaultTimeout,
		},
		apiKey:      apiKey,
		baseURL:     baseURL,
		dailyLimit:  dailyLimit,
		detailCache: cache,
	}
}

// checkRateLimit counts a request against today's quota, resetting at
// midnight. Returns false when the quota is exhausted.
func (c *MarketplaceClient) checkRateLimit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if c.lastRequestDay.Before(today) {
		c.requestsToday = 0
		c.lastRequestDay = today
	}

	if c.requestsToday >= c.dailyLimit {
		return false
	}
	c.requestsToday++
	metrics.MarketplaceRequestsTotal.Inc()
	metrics.MarketplaceQuotaRemaining.Set(float64(c.dailyLimit - c.requestsToday))
	return true
}

// GetRequestsRemaining returns the number of requests remaining today.
func (c *MarketplaceClient) GetRequestsRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if c.lastRequestDay.Before(today) {
		return c.dailyLimit
	}
	remaining := c.dailyLimit - c.requestsToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *MarketplaceClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if !c.checkRateLimit() {
		return fmt.Errorf("marketplace daily quota exhausted (%d requests)", c.dailyLimit)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("marketplace request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("marketplace request failed status=%d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode marketplace response: %w", err)
	}
	return nil
}

// SearchProductsByName searches marketplace listings by product name within a
// category.
func (c *MarketplaceClient) SearchProductsByName(ctx context.Context, name string, categoryID, limit, offset int) ([]MarketProduct, error) {
	if limit <= 0 {
		limit = 50
	}
	query := url.Values{
		"productName": {name},
		"limit":       {strconv.Itoa(limit)},
		"offset":      {strconv.Itoa(offset)},
	}
	if categoryID > 0 {
		query.Set("categoryId", strconv.Itoa(categoryID))
	}

	var out marketSearchResponse
	if err := c.get(ctx, "/catalog/products", query, &out); err != nil {
		return nil, err
	}
	if !out.Success && out.Error != "" {
		return nil, fmt.Errorf("marketplace search: %s", out.Error)
	}
	return out.Results, nil
}

// GetProductPricing fetches current pricing for a batch of product IDs.
func (c *MarketplaceClient) GetProductPricing(ctx context.Context, productIDs []string) ([]PricingEntry, error) {
	if len(productIDs) == 0 {
		return []PricingEntry{}, nil
	}
	var out marketPricingResponse
	if err := c.get(ctx, "/pricing/product/"+strings.Join(productIDs, ","), nil, &out); err != nil {
		return nil, err
	}
	if !out.Success && out.Error != "" {
		return nil, fmt.Errorf("marketplace pricing: %s", out.Error)
	}
	return out.Results, nil
}

// GetProductsByIds fetches product details for a batch of IDs, serving cached
// entries where possible.
func (c *MarketplaceClient) GetProductsByIds(ctx context.Context, ids []string, extended bool) ([]MarketProductDetail, error) {
	details := make([]MarketProductDetail, 0, len(ids))
	var misses []string
	for _, id := range ids {
		if d, ok := c.detailCache.Get(id); ok {
			details = append(details, d)
		} else {
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return details, nil
	}

	query := url.Values{}
	if extended {
		query.Set("getExtendedFields", "true")
	}
	var out marketDetailResponse
	if err := c.get(ctx, "/catalog/products/"+strings.Join(misses, ","), query, &out); err != nil {
		return nil, err
	}
	if !out.Success && out.Error != "" {
		return nil, fmt.Errorf("marketplace products: %s", out.Error)
	}
	for _, d := range out.Results {
		c.detailCache.Add(d.ProductID, d)
		details = append(details, d)
	}
	return details, nil
}
