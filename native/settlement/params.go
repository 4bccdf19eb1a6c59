package settlement

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"rfqdesk/crypto"
)

const (
	DefaultPriceDecimals          uint8  = 6
	DefaultMaxRequestDuration     int64  = 24 * 60 * 60
	DefaultLimiterIntervalSeconds int64  = 24 * 60 * 60
	DefaultPriceBandBps           uint64 = 500
	DefaultOracleMaxAgeSeconds    int64  = 300

	// BasisPoints is the denominator for band widths.
	BasisPoints = 10_000
)

// Config captures operator-defined engine settings parsed from configuration.
// Amounts are decimal strings in the smallest unit of the base asset. A nil
// PriceDecimals or PriceBandBps takes the default; an explicit 0 is kept.
type Config struct {
	BaseAsset              string  `toml:"BaseAsset" yaml:"base_asset"`
	CounterAsset           string  `toml:"CounterAsset" yaml:"counter_asset"`
	Treasury               string  `toml:"Treasury" yaml:"treasury"`
	PriceDecimals          *uint8  `toml:"PriceDecimals" yaml:"price_decimals"`
	MinTradeAmount         string  `toml:"MinTradeAmount" yaml:"min_trade_amount"`
	MaxRequestDuration     int64   `toml:"MaxRequestDurationSeconds" yaml:"max_request_duration_seconds"`
	PriceBandBps           *uint64 `toml:"PriceBandBps" yaml:"price_band_bps"`
	LimiterIntervalSeconds int64   `toml:"LimiterIntervalSeconds" yaml:"limiter_interval_seconds"`
	LimiterCap             string  `toml:"LimiterCap" yaml:"limiter_cap"`
	OracleMaxAgeSeconds    int64   `toml:"OracleMaxAgeSeconds" yaml:"oracle_max_age_seconds"`
}

// Parameters is the runtime-ready interpretation of Config.
type Parameters struct {
	BaseAsset          string
	CounterAsset       string
	Treasury           [20]byte
	PriceDecimals      uint8
	MinTradeAmount     *big.Int
	MaxRequestDuration int64
	PriceBandBps       uint64
	LimiterInterval    int64
	LimiterCap         *uint256.Int
	OracleMaxAge       int64
}

// Normalise trims whitespace and applies canonical defaults.
func (c Config) Normalise() Config {
	cfg := Config{
		BaseAsset:              strings.ToUpper(strings.TrimSpace(c.BaseAsset)),
		CounterAsset:           strings.ToUpper(strings.TrimSpace(c.CounterAsset)),
		Treasury:               strings.TrimSpace(c.Treasury),
		PriceDecimals:          c.PriceDecimals,
		MinTradeAmount:         strings.TrimSpace(c.MinTradeAmount),
		MaxRequestDuration:     c.MaxRequestDuration,
		PriceBandBps:           c.PriceBandBps,
		LimiterIntervalSeconds: c.LimiterIntervalSeconds,
		LimiterCap:             strings.TrimSpace(c.LimiterCap),
		OracleMaxAgeSeconds:    c.OracleMaxAgeSeconds,
	}
	if cfg.BaseAsset == "" {
		cfg.BaseAsset = "BASE"
	}
	if cfg.CounterAsset == "" {
		cfg.CounterAsset = "QUOTE"
	}
	if cfg.PriceDecimals == nil {
		decimals := DefaultPriceDecimals
		cfg.PriceDecimals = &decimals
	}
	if cfg.MinTradeAmount == "" {
		cfg.MinTradeAmount = "1"
	}
	if cfg.MaxRequestDuration <= 0 {
		cfg.MaxRequestDuration = DefaultMaxRequestDuration
	}
	if cfg.PriceBandBps == nil {
		band := DefaultPriceBandBps
		cfg.PriceBandBps = &band
	}
	if cfg.LimiterIntervalSeconds <= 0 {
		cfg.LimiterIntervalSeconds = DefaultLimiterIntervalSeconds
	}
	if cfg.LimiterCap == "" {
		cfg.LimiterCap = "0"
	}
	if cfg.OracleMaxAgeSeconds < 0 {
		cfg.OracleMaxAgeSeconds = 0
	} else if cfg.OracleMaxAgeSeconds == 0 {
		cfg.OracleMaxAgeSeconds = DefaultOracleMaxAgeSeconds
	}
	return cfg
}

// Parameters converts the textual configuration into runtime values.
func (c Config) Parameters() (Parameters, error) {
	normalized := c.Normalise()
	params := Parameters{
		BaseAsset:          normalized.BaseAsset,
		CounterAsset:       normalized.CounterAsset,
		PriceDecimals:      *normalized.PriceDecimals,
		MaxRequestDuration: normalized.MaxRequestDuration,
		PriceBandBps:       *normalized.PriceBandBps,
		LimiterInterval:    normalized.LimiterIntervalSeconds,
		OracleMaxAge:       normalized.OracleMaxAgeSeconds,
	}
	if params.BaseAsset == params.CounterAsset {
		return params, fmt.Errorf("settlement: base and counter asset must differ")
	}
	if params.PriceDecimals > 36 {
		return params, fmt.Errorf("settlement: price decimals %d out of range", params.PriceDecimals)
	}
	if normalized.Treasury == "" {
		return params, fmt.Errorf("settlement: treasury required")
	}
	treasury, err := crypto.ParseAccount(normalized.Treasury)
	if err != nil {
		return params, fmt.Errorf("settlement: invalid Treasury: %w", err)
	}
	params.Treasury = treasury
	minAmount, ok := new(big.Int).SetString(normalized.MinTradeAmount, 10)
	if !ok || minAmount.Sign() <= 0 {
		return params, fmt.Errorf("settlement: invalid MinTradeAmount %q", normalized.MinTradeAmount)
	}
	params.MinTradeAmount = minAmount
	limit, err := uint256.FromDecimal(normalized.LimiterCap)
	if err != nil {
		return params, fmt.Errorf("settlement: invalid LimiterCap: %w", err)
	}
	params.LimiterCap = limit
	return params, nil
}
