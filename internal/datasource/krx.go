package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const krxSourceName = "krx"

// KRXClient fetches the listed-stock universe and daily price history
// from the KRX market data API. It also serves the KS11/KQ11 index
// series, which ride the same price endpoint.
type KRXClient struct {
	httpClient *RateLimitedHTTPClient
	baseURL    string
	enabled    bool
	log        *logrus.Logger
}

// NewKRXClient creates a KRX market data client
func NewKRXClient(httpClient *RateLimitedHTTPClient, baseURL string, enabled bool, log *logrus.Logger) *KRXClient {
	if baseURL == "" {
		baseURL = "https://data.krx.co.kr/api/v1"
	}
	return &KRXClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		enabled:    enabled,
		log:        log,
	}
}

// Name returns the provider name
func (c *KRXClient) Name() string { return krxSourceName }

// IsEnabled reports whether the source is configured on
func (c *KRXClient) IsEnabled() bool { return c.enabled }

type krxListing struct {
	Code   string  `json:"ISU_SRT_CD"`
	Name   string  `json:"ISU_ABBRV"`
	Market string  `json:"MKT_NM"`
	Sector *string `json:"IDX_IND_NM"`
}

type krxDailyQuote struct {
	Date   string `json:"TRD_DD"`
	Open   string `json:"TDD_OPNPRC"`
	High   string `json:"TDD_HGPRC"`
	Low    string `json:"TDD_LWPRC"`
	Close  string `json:"TDD_CLSPRC"`
	Volume int64  `json:"ACC_TRDVOL"`
}

// FetchStocks lists the universe for one market, or both when market is
// empty or ALL.
func (c *KRXClient) FetchStocks(ctx context.Context, market string) ([]StockData, error) {
	if !c.enabled {
		return nil, NewSourceError(krxSourceName, ErrCodeDisabled, "source disabled", ErrSourceDisabled)
	}

	url := fmt.Sprintf("%s/listings?market=%s", c.baseURL, market)
	resp, err := c.httpClient.Get(ctx, url)
	if err != nil {
		return nil, NewSourceError(krxSourceName, ErrCodeNetworkError, "failed to fetch listings", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(krxSourceName, resp); err != nil {
		return nil, err
	}

	var listings []krxListing
	if err := json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		return nil, NewSourceError(krxSourceName, ErrCodeInvalidData, "failed to parse listings", err)
	}

	stocks := make([]StockData, 0, len(listings))
	for _, l := range listings {
		stocks = append(stocks, StockData{
			Code:   l.Code,
			Name:   l.Name,
			Market: l.Market,
			Sector: l.Sector,
		})
	}

	c.log.WithFields(logrus.Fields{"source": krxSourceName, "market": market, "stocks": len(stocks)}).
		Debug("Fetched stock universe")

	return stocks, nil
}

// FetchDailyPrices retrieves OHLCV rows for one code over a date range.
// Quotes arrive as formatted strings ("1,234"); decimal parsing keeps
// them exact until storage.
func (c *KRXClient) FetchDailyPrices(ctx context.Context, stockCode string, startDate, endDate time.Time) ([]PriceData, error) {
	if !c.enabled {
		return nil, NewSourceError(krxSourceName, ErrCodeDisabled, "source disabled", ErrSourceDisabled)
	}

	url := fmt.Sprintf("%s/prices/%s?from=%s&to=%s",
		c.baseURL, stockCode, startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))

	resp, err := c.httpClient.Get(ctx, url)
	if err != nil {
		return nil, NewSourceError(krxSourceName, ErrCodeNetworkError, "failed to fetch prices", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(krxSourceName, resp); err != nil {
		return nil, err
	}

	var quotes []krxDailyQuote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return nil, NewSourceError(krxSourceName, ErrCodeInvalidData, "failed to parse prices", err)
	}

	prices := make([]PriceData, 0, len(quotes))
	for _, q := range quotes {
		row, err := c.normalizeQuote(stockCode, q)
		if err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{"stock_code": stockCode, "date": q.Date}).
				Warn("Skipping malformed quote")
			continue
		}
		prices = append(prices, row)
	}

	return prices, nil
}

func (c *KRXClient) normalizeQuote(stockCode string, q krxDailyQuote) (PriceData, error) {
	date, err := time.Parse("2006/01/02", q.Date)
	if err != nil {
		return PriceData{}, fmt.Errorf("bad trade date %q: %w", q.Date, err)
	}

	open, err := parseQuotedDecimal(q.Open)
	if err != nil {
		return PriceData{}, fmt.Errorf("bad open price: %w", err)
	}
	high, err := parseQuotedDecimal(q.High)
	if err != nil {
		return PriceData{}, fmt.Errorf("bad high price: %w", err)
	}
	low, err := parseQuotedDecimal(q.Low)
	if err != nil {
		return PriceData{}, fmt.Errorf("bad low price: %w", err)
	}
	cl, err := parseQuotedDecimal(q.Close)
	if err != nil {
		return PriceData{}, fmt.Errorf("bad close price: %w", err)
	}

	return PriceData{
		StockCode: stockCode,
		Date:      date,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cl,
		Volume:    q.Volume,
	}, nil
}

// parseQuotedDecimal strips thousands separators before decimal parsing.
func parseQuotedDecimal(s string) (decimal.Decimal, error) {
	cleaned := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			continue
		}
		cleaned = append(cleaned, s[i])
	}
	return decimal.NewFromString(string(cleaned))
}

func checkStatus(source string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewSourceError(source, ErrCodeAuthenticationFailed, "authentication rejected", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewSourceError(source, ErrCodeRateLimitExceeded, "rate limit exceeded", nil)
	case resp.StatusCode == http.StatusNotFound:
		return NewSourceError(source, ErrCodeNotFound, "resource not found", nil)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return NewSourceError(source, ErrCodeServerError,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)), nil)
	}
}
