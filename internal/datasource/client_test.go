package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mselser95/polymarket-conviction/pkg/cache"
	"github.com/mselser95/polymarket-conviction/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(&Config{
		BaseURL:        baseURL,
		RequestTimeout: 5 * time.Second,
		RateLimitDelay: 0,
		MaxMarkets:     10000,
		Logger:         zap.NewNop(),
	})
}

func marketJSON(id string, yesPrice float64) string {
	return fmt.Sprintf(
		`{"conditionId": %q, "question": "q", "outcomes": ["Yes","No"], "outcomePrices": [%f, %f]}`,
		id, yesPrice, 1-yesPrice)
}

func TestFetchAllActiveSinglePage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		assert.Equal(t, "false", r.URL.Query().Get("closed"))
		fmt.Fprintf(w, `[%s, %s]`, marketJSON("0x1", 0.6), marketJSON("0x2", 0.3))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	snapshots, err := client.FetchAllActive(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshots, 2)
	assert.Equal(t, 0.6, snapshots["0x1"].YesPrice)
	assert.Equal(t, 0.3, snapshots["0x2"].YesPrice)
}

func TestFetchAllActivePaginationStopsOnShortPage(t *testing.T) {
	var pages atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages.Add(1)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		// First page is full, second page is short.
		count := PageSize
		if offset >= PageSize {
			count = 3
		}

		fmt.Fprint(w, "[")
		for i := range count {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprint(w, marketJSON(fmt.Sprintf("0x%d-%d", offset, i), 0.5))
		}
		fmt.Fprint(w, "]")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	snapshots, err := client.FetchAllActive(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), pages.Load())
	assert.Len(t, snapshots, PageSize+3)
}

func TestFetchAllActivePaginationCap(t *testing.T) {
	var pages atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages.Add(1)
		// Always serve full pages; only the cap can stop the loop.
		fmt.Fprint(w, "[")
		offset := r.URL.Query().Get("offset")
		for i := range PageSize {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprint(w, marketJSON(fmt.Sprintf("0x%s-%d", offset, i), 0.5))
		}
		fmt.Fprint(w, "]")
	}))
	defer server.Close()

	client := NewClient(&Config{
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
		MaxMarkets:     1000,
		Logger:         zap.NewNop(),
	})

	snapshots, err := client.FetchAllActive(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), pages.Load())
	assert.Len(t, snapshots, 1000)
}

func TestFetchAllActiveDataWrapper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data": [%s]}`, marketJSON("0x9", 0.8))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	snapshots, err := client.FetchAllActive(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, 0.8, snapshots["0x9"].YesPrice)
}

func TestFetchAllActiveParseIsolation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// One good record, one without prices, one without an ID.
		fmt.Fprintf(w, `[%s, {"conditionId": "0xbad"}, {"question": "orphan"}]`,
			marketJSON("0xgood", 0.5))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	snapshots, err := client.FetchAllActive(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshots, 1)
	assert.Contains(t, snapshots, "0xgood")
}

func TestDoRequestRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `[%s]`, marketJSON("0x1", 0.5))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	snapshots, err := client.FetchAllActive(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, snapshots, 1)
}

func TestDoRequestExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.FetchAllActive(context.Background())
	require.Error(t, err)

	assert.Equal(t, int32(3), calls.Load())

	var apiErr *types.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Transient())
}

func TestDoRequest4xxIsTerminal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.FetchAllActive(context.Background())
	require.Error(t, err)

	// No retries for terminal errors.
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *types.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.Transient())
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestFetchAllActiveNonArrayBody(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"unexpected": "object"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.FetchAllActive(context.Background())
	require.Error(t, err)

	// A 2xx body with the wrong shape is terminal, not retryable.
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *types.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.Transient())
}

func TestFetchBySlug(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bare-array", body: fmt.Sprintf(`[%s]`, marketJSON("0xslug", 0.7))},
		{name: "data-wrapper", body: fmt.Sprintf(`{"data": [%s]}`, marketJSON("0xslug", 0.7))},
		{name: "bare-object", body: marketJSON("0xslug", 0.7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "will-x-happen", r.URL.Query().Get("slug"))
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			snapshot, err := client.FetchBySlug(context.Background(), "will-x-happen")
			require.NoError(t, err)
			require.NotNil(t, snapshot)
			assert.Equal(t, "0xslug", snapshot.MarketID)
			assert.Equal(t, 0.7, snapshot.YesPrice)
		})
	}
}

func TestFetchBySlugUsesCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprintf(w, `[%s]`, marketJSON("0xslug", 0.7))
	}))
	defer server.Close()

	slugCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 100,
		MaxCost:     10,
		BufferItems: 64,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	defer slugCache.Close()

	client := NewClient(&Config{
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
		MaxMarkets:     10000,
		Cache:          slugCache,
		CacheTTL:       time.Hour,
		Logger:         zap.NewNop(),
	})

	first, err := client.FetchBySlug(context.Background(), "will-x-happen")
	require.NoError(t, err)
	require.NotNil(t, first)

	slugCache.(*cache.RistrettoCache).Wait()

	second, err := client.FetchBySlug(context.Background(), "will-x-happen")
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first.MarketID, second.MarketID)
}

func TestFetchBySlugNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	snapshot, err := client.FetchBySlug(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestRateLimitEnforcesMinimumInterval(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	client := NewClient(&Config{
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
		RateLimitDelay: 50 * time.Millisecond,
		MaxMarkets:     10000,
		Logger:         zap.NewNop(),
	})

	start := time.Now()
	for range 3 {
		_, err := client.FetchAllActive(context.Background())
		require.NoError(t, err)
	}

	// Three requests with a 50ms floor between them take at least 100ms.
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}
