// Package datasource implements the HTTP client over the Polymarket
// Gamma API: rate-limited, retried, paginated bulk snapshots plus
// single-market lookups by slug.
package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/polymarket-conviction/pkg/cache"
	"github.com/mselser95/polymarket-conviction/pkg/types"
	"go.uber.org/zap"
)

const (
	// PageSize is the number of markets requested per page.
	PageSize = 500

	maxAttempts = 3
)

// Client is a rate-limited HTTP client for the Gamma API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	maxMarkets int

	cache    cache.Cache
	cacheTTL time.Duration

	mu          sync.Mutex
	minInterval time.Duration
	lastRequest time.Time
}

// Config holds data source configuration.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	RateLimitDelay time.Duration
	MaxMarkets     int
	Cache          cache.Cache
	CacheTTL       time.Duration
	Logger         *zap.Logger
}

// NewClient creates a new Gamma API client.
func NewClient(cfg *Config) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger:      cfg.Logger,
		maxMarkets:  cfg.MaxMarkets,
		cache:       cfg.Cache,
		cacheTTL:    cfg.CacheTTL,
		minInterval: cfg.RateLimitDelay,
	}
}

// rateLimit blocks until the configured minimum interval since the last
// outbound request has elapsed. time.Since uses the monotonic clock.
func (c *Client) rateLimit(ctx context.Context) error {
	c.mu.Lock()
	wait := c.minInterval - time.Since(c.lastRequest)
	if wait > 0 {
		c.mu.Unlock()

		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		c.mu.Lock()
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	return nil
}

// doRequest performs a GET with retries: transport errors and 5xx are
// retried up to maxAttempts with exponential backoff, 4xx fail
// immediately as terminal APIErrors.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			// 0.5s, 1s, 2s, ...
			backoff := time.Duration(float64(500*time.Millisecond) * float64(int(1)<<(attempt-2)))
			RequestRetriesTotal.Inc()
			c.logger.Debug("retrying-request",
				zap.String("url", requestURL),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		err := c.rateLimit(ctx)
		if err != nil {
			return nil, err
		}

		body, err := c.doOnce(ctx, requestURL)
		if err == nil {
			return body, nil
		}

		apiErr, ok := err.(*types.APIError)
		if ok && !apiErr.Transient() {
			return nil, err
		}

		lastErr = err
	}

	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "polymarket-conviction/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.APIError{Message: fmt.Sprintf("read response body: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &types.APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	return body, nil
}

// fetchPage fetches one page of active markets and returns the raw
// records so that a parse failure of one never aborts the others.
func (c *Client) fetchPage(ctx context.Context, offset, limit int) ([]json.RawMessage, error) {
	query := url.Values{}
	query.Set("active", "true")
	query.Set("closed", "false")
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	body, err := c.doRequest(ctx, "/markets", query)
	if err != nil {
		return nil, err
	}

	records, err := decodeRecordList(body)
	if err != nil {
		return nil, err
	}

	PagesFetchedTotal.Inc()

	return records, nil
}

// decodeRecordList accepts either a bare JSON array or a {"data": [...]}
// wrapper; anything else is a terminal APIError.
func decodeRecordList(body []byte) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err == nil {
		return records, nil
	}

	var wrapped struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil || wrapped.Data == nil {
		return nil, &types.APIError{Message: "expected array response from API", Terminal: true}
	}

	return wrapped.Data, nil
}

// FetchAllActive fetches every active market, paginating automatically,
// and returns parsed snapshots keyed by market ID. Records that cannot
// be parsed are skipped.
func (c *Client) FetchAllActive(ctx context.Context) (map[string]*types.MarketSnapshot, error) {
	start := time.Now()
	defer func() {
		FetchDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	var allRecords []json.RawMessage

	for offset := 0; offset < c.maxMarkets; offset += PageSize {
		page, err := c.fetchPage(ctx, offset, PageSize)
		if err != nil {
			FetchErrorsTotal.Inc()
			return nil, fmt.Errorf("fetch page at offset %d: %w", offset, err)
		}

		allRecords = append(allRecords, page...)

		c.logger.Debug("fetched-page",
			zap.Int("offset", offset),
			zap.Int("page-markets", len(page)),
			zap.Int("total-markets", len(allRecords)))

		if len(page) < PageSize {
			break
		}
	}

	snapshots := make(map[string]*types.MarketSnapshot, len(allRecords))
	for _, record := range allRecords {
		snapshot, err := parseMarket(record)
		if err != nil {
			ParseSkipsTotal.Inc()
			c.logger.Debug("skipping-unparseable-market", zap.Error(err))
			continue
		}
		snapshots[snapshot.MarketID] = snapshot
	}

	MarketsFetchedTotal.Add(float64(len(snapshots)))

	c.logger.Info("fetched-market-snapshots",
		zap.Int("raw-records", len(allRecords)),
		zap.Int("parsed-snapshots", len(snapshots)),
		zap.Duration("duration", time.Since(start)))

	return snapshots, nil
}

// FetchBySlug fetches a single market by its Gamma slug. Returns
// (nil, nil) when the market cannot be found or parsed; slug lookups
// are cached for one poll interval.
func (c *Client) FetchBySlug(ctx context.Context, slug string) (*types.MarketSnapshot, error) {
	if c.cache != nil {
		cached, found := c.cache.Get("slug::" + slug)
		if found {
			snapshot, ok := cached.(*types.MarketSnapshot)
			if ok {
				return snapshot, nil
			}
		}
	}

	query := url.Values{}
	query.Set("slug", slug)

	body, err := c.doRequest(ctx, "/markets", query)
	if err != nil {
		FetchErrorsTotal.Inc()
		return nil, fmt.Errorf("fetch market by slug %q: %w", slug, err)
	}

	record, ok := firstRecord(body)
	if !ok {
		c.logger.Warn("empty-response-for-slug", zap.String("slug", slug))
		return nil, nil
	}

	snapshot, err := parseMarket(record)
	if err != nil {
		ParseSkipsTotal.Inc()
		c.logger.Warn("unparseable-market-for-slug",
			zap.String("slug", slug),
			zap.Error(err))
		return nil, nil
	}

	if c.cache != nil {
		c.cache.Set("slug::"+slug, snapshot, c.cacheTTL)
	}

	return snapshot, nil
}

// firstRecord extracts a single market object from a slug lookup
// response, which may be a bare object, an array, or a data wrapper.
func firstRecord(body []byte) (json.RawMessage, bool) {
	if records, err := decodeRecordList(body); err == nil {
		if len(records) == 0 {
			return nil, false
		}
		return records[0], true
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(body, &object); err == nil && len(object) > 0 {
		return json.RawMessage(body), true
	}

	return nil, false
}

// Close releases idle HTTP connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
