package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const dartSourceName = "dart"

// DARTClient fetches financial statement ratios from the DART corporate
// disclosure API. DART throttles aggressively, so callers should pair
// it with a low request rate (one call each half second works) and long
// retry waits.
type DARTClient struct {
	httpClient *RateLimitedHTTPClient
	baseURL    string
	apiKey     string
	enabled    bool
	log        *logrus.Logger
}

// NewDARTClient creates a DART disclosure client
func NewDARTClient(httpClient *RateLimitedHTTPClient, baseURL, apiKey string, enabled bool, log *logrus.Logger) *DARTClient {
	if baseURL == "" {
		baseURL = "https://opendart.fss.or.kr/api"
	}
	return &DARTClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		enabled:    enabled,
		log:        log,
	}
}

// Name returns the provider name
func (c *DARTClient) Name() string { return dartSourceName }

// IsEnabled reports whether the source is configured on
func (c *DARTClient) IsEnabled() bool { return c.enabled }

type dartFinancials struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	StockCode  string `json:"stock_code"`
	ReportDate string `json:"report_date"`

	PER      *float64 `json:"per"`
	PBR      *float64 `json:"pbr"`
	PSR      *float64 `json:"psr"`
	EVEBITDA *float64 `json:"ev_ebitda"`

	ROE             *float64 `json:"roe"`
	ROA             *float64 `json:"roa"`
	OperatingMargin *float64 `json:"operating_margin"`
	NetProfitGrowth *float64 `json:"net_profit_growth"`

	DebtRatio         *float64 `json:"debt_ratio"`
	CurrentRatio      *float64 `json:"current_ratio"`
	InterestCoverage  *float64 `json:"interest_coverage"`
	OperatingCashFlow *float64 `json:"operating_cash_flow"`

	DividendYield            *float64 `json:"dividend_yield"`
	DividendPayoutRatio      *float64 `json:"dividend_payout_ratio"`
	ConsecutiveDividendYears *int     `json:"consecutive_dividend_years"`

	MarketCap *float64 `json:"market_cap"`
}

// dartStatusOK is DART's in-band success code; the HTTP status is 200
// even for application errors.
const dartStatusOK = "000"

// FetchFundamentals retrieves the ratio snapshot closest to asOf.
func (c *DARTClient) FetchFundamentals(ctx context.Context, stockCode string, asOf time.Time) (*FundamentalsData, error) {
	if !c.enabled {
		return nil, NewSourceError(dartSourceName, ErrCodeDisabled, "source disabled", ErrSourceDisabled)
	}
	if c.apiKey == "" {
		return nil, NewSourceError(dartSourceName, ErrCodeAuthenticationFailed, "API key not configured", nil)
	}

	url := fmt.Sprintf("%s/fnlttRatio.json?crtfc_key=%s&stock_code=%s&bsns_dt=%s",
		c.baseURL, c.apiKey, stockCode, asOf.Format("20060102"))

	resp, err := c.httpClient.Get(ctx, url)
	if err != nil {
		return nil, NewSourceError(dartSourceName, ErrCodeNetworkError, "failed to fetch financials", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(dartSourceName, resp); err != nil {
		return nil, err
	}

	var payload dartFinancials
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, NewSourceError(dartSourceName, ErrCodeInvalidData, "failed to parse financials", err)
	}

	switch payload.Status {
	case dartStatusOK:
	case "013": // no data for the company/date
		return nil, NewSourceError(dartSourceName, ErrCodeNotFound,
			fmt.Sprintf("no financials for %s", stockCode), nil)
	case "020", "021":
		return nil, NewSourceError(dartSourceName, ErrCodeRateLimitExceeded, payload.Message, nil)
	default:
		return nil, NewSourceError(dartSourceName, ErrCodeServerError,
			fmt.Sprintf("status %s: %s", payload.Status, payload.Message), nil)
	}

	reportDate, err := time.Parse("20060102", payload.ReportDate)
	if err != nil {
		return nil, NewSourceError(dartSourceName, ErrCodeInvalidData,
			fmt.Sprintf("bad report date %q", payload.ReportDate), err)
	}

	data := &FundamentalsData{
		StockCode:                stockCode,
		SnapshotDate:             asOf,
		ReportDate:               reportDate,
		PER:                      payload.PER,
		PBR:                      payload.PBR,
		PSR:                      payload.PSR,
		EVEBITDA:                 payload.EVEBITDA,
		ROE:                      payload.ROE,
		ROA:                      payload.ROA,
		OperatingMargin:          payload.OperatingMargin,
		NetProfitGrowth:          payload.NetProfitGrowth,
		DebtRatio:                payload.DebtRatio,
		CurrentRatio:             payload.CurrentRatio,
		InterestCoverage:         payload.InterestCoverage,
		OperatingCashFlow:        payload.OperatingCashFlow,
		DividendYield:            payload.DividendYield,
		DividendPayoutRatio:      payload.DividendPayoutRatio,
		ConsecutiveDividendYears: payload.ConsecutiveDividendYears,
		MarketCap:                payload.MarketCap,
	}

	c.log.WithFields(logrus.Fields{"source": dartSourceName, "stock_code": stockCode}).
		Debug("Fetched fundamentals snapshot")

	return data, nil
}
