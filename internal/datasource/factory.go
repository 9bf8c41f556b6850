package datasource

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/value-backtest/internal/config"
)

// Factory builds provider clients from configuration.
type Factory struct {
	log *logrus.Logger
}

// NewFactory creates a data source factory
func NewFactory(log *logrus.Logger) *Factory {
	if log == nil {
		log = logrus.New()
	}
	return &Factory{log: log}
}

// httpClientFor derives an HTTP client from one source's settings.
func (f *Factory) httpClientFor(cfg config.DataSourceConfig) *RateLimitedHTTPClient {
	httpCfg := DefaultHTTPClientConfig()
	if cfg.RateLimitPerSec > 0 {
		httpCfg.RateLimit = cfg.RateLimitPerSec
	}
	if cfg.MaxRetries > 0 {
		httpCfg.MaxRetries = cfg.MaxRetries
	}
	if cfg.Name == dartSourceName {
		// DART quota violations ask for a long pause before retrying.
		httpCfg.RetryWaitMin = time.Minute
		httpCfg.RetryWaitMax = 10 * time.Minute
	}
	return NewRateLimitedHTTPClient(httpCfg, f.log)
}

// NewPriceSource builds the price/universe provider for a source
// config.
func (f *Factory) NewPriceSource(cfg config.DataSourceConfig) (*KRXClient, error) {
	if cfg.Name != krxSourceName {
		return nil, fmt.Errorf("unknown price source: %s", cfg.Name)
	}
	return NewKRXClient(f.httpClientFor(cfg), cfg.BaseURL, cfg.Enabled, f.log), nil
}

// NewFundamentalsSource builds the fundamentals provider for a source
// config.
func (f *Factory) NewFundamentalsSource(cfg config.DataSourceConfig) (*DARTClient, error) {
	if cfg.Name != dartSourceName {
		return nil, fmt.Errorf("unknown fundamentals source: %s", cfg.Name)
	}
	if cfg.Enabled && cfg.APIKey == "" {
		return nil, fmt.Errorf("DART API key is required")
	}
	return NewDARTClient(f.httpClientFor(cfg), cfg.BaseURL, cfg.APIKey, cfg.Enabled, f.log), nil
}
