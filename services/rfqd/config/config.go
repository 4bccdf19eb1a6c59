package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"rfqdesk/crypto"
	"rfqdesk/native/settlement"
	"rfqdesk/observability/logging"
)

// Duration wraps time.Duration to support YAML and TOML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText lets the TOML decoder accept the same strings.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for rfqd.
type Config struct {
	ListenAddress   string            `yaml:"listen" toml:"Listen"`
	ArchiveDSN      string            `yaml:"archive" toml:"Archive"`
	NonceDBPath     string            `yaml:"nonce_db" toml:"NonceDB"`
	ChainID         uint64            `yaml:"chain_id" toml:"ChainID"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout" toml:"ShutdownTimeout"`
	SweepInterval   Duration          `yaml:"sweep_interval" toml:"SweepInterval"`
	Auth            AuthConfig        `yaml:"auth" toml:"Auth"`
	RateLimit       RateLimitConfig   `yaml:"rate_limit" toml:"RateLimit"`
	Engine          settlement.Config `yaml:"engine" toml:"Engine"`
	PriceFeed       PriceFeedConfig   `yaml:"price_feed" toml:"PriceFeed"`
	Roles           RolesConfig       `yaml:"roles" toml:"Roles"`
	Balances        []Balance         `yaml:"balances" toml:"Balances"`
	Logging         LoggingConfig     `yaml:"logging" toml:"Logging"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	HMACSecret    string   `yaml:"hmac_secret" toml:"HMACSecret"`
	HMACSecretEnv string   `yaml:"hmac_secret_env" toml:"HMACSecretEnv"`
	Issuer        string   `yaml:"issuer" toml:"Issuer"`
	Audience      string   `yaml:"audience" toml:"Audience"`
	ClockSkew     Duration `yaml:"clock_skew" toml:"ClockSkew"`
}

// RateLimitConfig bounds per-client request rates.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute" toml:"RequestsPerMinute"`
	Burst             int     `yaml:"burst" toml:"Burst"`
}

// PriceFeedConfig enables the reference price poller. An empty endpoint
// disables the creation band check.
type PriceFeedConfig struct {
	Endpoint string   `yaml:"endpoint" toml:"Endpoint"`
	Interval Duration `yaml:"interval" toml:"Interval"`
	Timeout  Duration `yaml:"timeout" toml:"Timeout"`
}

// RolesConfig bootstraps capability membership with bech32 addresses.
type RolesConfig struct {
	Acceptors        []string `yaml:"acceptors" toml:"Acceptors"`
	LimitAdmins      []string `yaml:"limit_admins" toml:"LimitAdmins"`
	Whitelist        []string `yaml:"whitelist" toml:"Whitelist"`
	WhitelistEnabled bool     `yaml:"whitelist_enabled" toml:"WhitelistEnabled"`
}

// Balance seeds the in-memory ledger. Approve grants the treasury a standing
// allowance over the minted amount.
type Balance struct {
	Account string `yaml:"account" toml:"Account"`
	Asset   string `yaml:"asset" toml:"Asset"`
	Amount  string `yaml:"amount" toml:"Amount"`
	Approve bool   `yaml:"approve" toml:"Approve"`
}

// LoggingConfig selects the level and optional rotated file output.
type LoggingConfig struct {
	Level string              `yaml:"level" toml:"Level"`
	File  *logging.FileConfig `yaml:"file" toml:"File"`
}

// Load reads configuration from the supplied path. Files ending in .toml are
// decoded as TOML, everything else as YAML.
func Load(path string) (Config, error) {
	cfg := Config{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	} else {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7081"
	}
	if cfg.ArchiveDSN == "" {
		cfg.ArchiveDSN = "/var/data/rfqd.sqlite"
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = 1
	}
	if cfg.ShutdownTimeout.Duration == 0 {
		cfg.ShutdownTimeout.Duration = 10 * time.Second
	}
	if cfg.SweepInterval.Duration == 0 {
		cfg.SweepInterval.Duration = 30 * time.Second
	}
	if cfg.Auth.HMACSecret == "" && cfg.Auth.HMACSecretEnv != "" {
		cfg.Auth.HMACSecret = strings.TrimSpace(os.Getenv(cfg.Auth.HMACSecretEnv))
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.PriceFeed.Interval.Duration == 0 {
		cfg.PriceFeed.Interval.Duration = 15 * time.Second
	}
	if cfg.PriceFeed.Timeout.Duration == 0 {
		cfg.PriceFeed.Timeout.Duration = 5 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth.hmac_secret must be configured")
	}
	if _, err := cfg.Engine.Parameters(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	groups := map[string][]string{
		"roles.acceptors":    cfg.Roles.Acceptors,
		"roles.limit_admins": cfg.Roles.LimitAdmins,
		"roles.whitelist":    cfg.Roles.Whitelist,
	}
	for name, members := range groups {
		for _, member := range members {
			if _, err := crypto.ParseAccount(member); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	for i, balance := range cfg.Balances {
		if _, err := crypto.ParseAccount(balance.Account); err != nil {
			return fmt.Errorf("balances[%d]: %w", i, err)
		}
		if strings.TrimSpace(balance.Asset) == "" {
			return fmt.Errorf("balances[%d]: asset required", i)
		}
	}
	return nil
}
