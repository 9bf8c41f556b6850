package datasource

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func fastClient(t *testing.T) *RateLimitedHTTPClient {
	t.Helper()
	cfg := DefaultHTTPClientConfig()
	cfg.RateLimit = 1000
	cfg.MaxRetries = 0
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	return NewRateLimitedHTTPClient(cfg, testLogger())
}

func TestParseQuotedDecimal(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"1,234", "1234"},
		{"71,900", "71900"},
		{"12.5", "12.5"},
		{"1,234,567.89", "1234567.89"},
	}

	for _, tt := range tests {
		d, err := parseQuotedDecimal(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.expected, d.String())
	}

	_, err := parseQuotedDecimal("abc")
	assert.Error(t, err)
}

func TestKRXFetchDailyPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prices/005930", r.URL.Path)
		assert.Equal(t, "2023-01-01", r.URL.Query().Get("from"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"TRD_DD":"2023/01/02","TDD_OPNPRC":"55,000","TDD_HGPRC":"56,100","TDD_LWPRC":"54,800","TDD_CLSPRC":"55,500","ACC_TRDVOL":1234567},
			{"TRD_DD":"bogus","TDD_OPNPRC":"1","TDD_HGPRC":"1","TDD_LWPRC":"1","TDD_CLSPRC":"1","ACC_TRDVOL":1}
		]`)
	}))
	defer server.Close()

	client := NewKRXClient(fastClient(t), server.URL, true, testLogger())

	prices, err := client.FetchDailyPrices(context.Background(), "005930",
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// The malformed row is skipped, not fatal.
	require.Len(t, prices, 1)
	assert.Equal(t, "005930", prices[0].StockCode)
	assert.Equal(t, "55500", prices[0].Close.String())
	assert.Equal(t, int64(1234567), prices[0].Volume)
}

func TestKRXFetchStocksDisabled(t *testing.T) {
	client := NewKRXClient(fastClient(t), "http://unused", false, testLogger())

	_, err := client.FetchStocks(context.Background(), "KOSPI")
	require.Error(t, err)

	var srcErr SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, ErrCodeDisabled, srcErr.Code)
}

func TestDARTFetchFundamentals(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("crtfc_key"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"000","message":"ok","stock_code":"005930","report_date":"20221231",
			"per":8.5,"pbr":1.1,"roe":12.3,"debt_ratio":40.2,"consecutive_dividend_years":7}`)
	}))
	defer server.Close()

	client := NewDARTClient(fastClient(t), server.URL, "test-key", true, testLogger())

	data, err := client.FetchFundamentals(context.Background(), "005930",
		time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "005930", data.StockCode)
	assert.Equal(t, time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC), data.ReportDate)
	require.NotNil(t, data.PER)
	assert.Equal(t, 8.5, *data.PER)
	require.NotNil(t, data.ConsecutiveDividendYears)
	assert.Equal(t, 7, *data.ConsecutiveDividendYears)
	assert.Nil(t, data.DividendYield)
}

func TestDARTInBandError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"013","message":"no data"}`)
	}))
	defer server.Close()

	client := NewDARTClient(fastClient(t), server.URL, "test-key", true, testLogger())

	_, err := client.FetchFundamentals(context.Background(), "999999", time.Now())
	var srcErr SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, ErrCodeNotFound, srcErr.Code)
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// Hijack-and-drop would simulate a network error; an instant
		// close of the connection does the same with less machinery.
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer server.Close()

	cfg := DefaultHTTPClientConfig()
	cfg.RateLimit = 1000
	cfg.MaxRetries = 0
	cfg.CircuitBreakerMax = 2
	client := NewRateLimitedHTTPClient(cfg, testLogger())

	ctx := context.Background()
	_, err := client.Get(ctx, server.URL)
	require.Error(t, err)
	_, err = client.Get(ctx, server.URL)
	require.Error(t, err)

	// Third call is rejected without touching the network.
	before := calls.Load()
	_, err = client.Get(ctx, server.URL)
	require.ErrorContains(t, err, "circuit breaker open")
	assert.Equal(t, before, calls.Load())

	client.Reset()
	_, err = client.Get(ctx, server.URL)
	require.Error(t, err)
	assert.Greater(t, calls.Load(), before)
}

func TestRateLimiterEnforcesMinimumDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultHTTPClientConfig()
	cfg.RateLimit = 20 // 50ms between calls
	cfg.MaxRetries = 0
	client := NewRateLimitedHTTPClient(cfg, testLogger())

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		resp, err := client.Get(ctx, server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	// Burst of 1: the second and third calls each wait one interval.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
