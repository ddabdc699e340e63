// Package config loads the gas station configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MistPerSui is the number of base units in one SUI.
	MistPerSui = 1_000_000_000

	defaultConfigPath = "config/gas-station.yaml"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// AllowedOrigins lists the browser origins permitted to call the API;
	// "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// NodeConfig points at the remote fullnode RPC endpoint.
type NodeConfig struct {
	RPCURL         string `yaml:"rpc_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SponsorConfig holds the funded signing key and the sponsorship policy.
type SponsorConfig struct {
	// KeyBase64 is the base64-encoded ed25519 seed (32 bytes) or full
	// private key (64 bytes) of the funded sponsor account.
	KeyBase64 string `yaml:"key_base64"`
	// AllowedPackage is the package identifier prefix eligible for
	// sponsorship; any move call outside it is rejected.
	AllowedPackage string `yaml:"allowed_package"`
	// GasBudgetMist is the fixed fee ceiling attached to every sponsored
	// transaction.
	GasBudgetMist uint64 `yaml:"gas_budget_mist"`
	// MinCoinBalanceMist is the minimum balance a single gas coin must hold
	// to be selected as the fee payment object.
	MinCoinBalanceMist uint64 `yaml:"min_coin_balance_mist"`
	// CoinType identifies the fee token; defaults to the native coin.
	CoinType string `yaml:"coin_type"`
}

// RateLimitConfig holds the three admission tiers. All tiers share one fixed
// window duration.
type RateLimitConfig struct {
	Disabled      bool `yaml:"disabled"`
	WindowMinutes int  `yaml:"window_minutes"`
	Global        int  `yaml:"global"`
	PerAccount    int  `yaml:"per_account"`
	PerIP         int  `yaml:"per_ip"`
}

// RecordsConfig bounds the in-memory outcome buffer and its persistence sweep.
type RecordsConfig struct {
	Capacity               int    `yaml:"capacity"`
	PersistPath            string `yaml:"persist_path"`
	PersistIntervalSeconds int    `yaml:"persist_interval_seconds"`
}

// LoggingConfig mirrors pkg/logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Node      NodeConfig      `yaml:"node"`
	Sponsor   SponsorConfig   `yaml:"sponsor"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Records   RecordsConfig   `yaml:"records"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Default returns the reference policy configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8090, AllowedOrigins: []string{"*"}},
		Node:   NodeConfig{RPCURL: "https://fullnode.testnet.sui.io:443", TimeoutSeconds: 30},
		Sponsor: SponsorConfig{
			GasBudgetMist:      MistPerSui / 100, // 0.01 SUI
			MinCoinBalanceMist: MistPerSui / 10,  // 0.1 SUI
			CoinType:           "0x2::sui::SUI",
		},
		RateLimit: RateLimitConfig{
			WindowMinutes: 60,
			Global:        50,
			PerAccount:    5,
			PerIP:         10,
		},
		Records: RecordsConfig{
			Capacity:               1000,
			PersistIntervalSeconds: 60,
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

// Load reads the YAML config (path from GAS_STATION_CONFIG, falling back to
// config/gas-station.yaml), applies environment overrides and validates. A
// missing file is not an error; defaults plus environment apply.
func Load() (*Config, error) {
	path := strings.TrimSpace(os.Getenv("GAS_STATION_CONFIG"))
	if path == "" {
		path = defaultConfigPath
	}
	return LoadFromPath(path)
}

// LoadFromPath reads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to env-only configuration
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setUint64 := func(key string, dst *uint64) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}

	setString("GAS_STATION_HOST", &c.Server.Host)
	setInt("GAS_STATION_PORT", &c.Server.Port)
	setString("SUI_RPC_URL", &c.Node.RPCURL)
	setInt("SUI_RPC_TIMEOUT_SECONDS", &c.Node.TimeoutSeconds)
	setString("SPONSOR_PRIVATE_KEY", &c.Sponsor.KeyBase64)
	setString("ALLOWED_PACKAGE", &c.Sponsor.AllowedPackage)
	setUint64("GAS_BUDGET_MIST", &c.Sponsor.GasBudgetMist)
	setUint64("MIN_COIN_BALANCE_MIST", &c.Sponsor.MinCoinBalanceMist)
	setString("SPONSOR_COIN_TYPE", &c.Sponsor.CoinType)
	setInt("RATE_LIMIT_WINDOW_MINUTES", &c.RateLimit.WindowMinutes)
	setInt("RATE_LIMIT_GLOBAL", &c.RateLimit.Global)
	setInt("RATE_LIMIT_PER_ACCOUNT", &c.RateLimit.PerAccount)
	setInt("RATE_LIMIT_PER_IP", &c.RateLimit.PerIP)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FORMAT", &c.Logging.Format)
	setString("LOG_OUTPUT", &c.Logging.Output)
	setInt("RECORDS_CAPACITY", &c.Records.Capacity)
	setString("RECORDS_PERSIST_PATH", &c.Records.PersistPath)
	setInt("RECORDS_PERSIST_INTERVAL_SECONDS", &c.Records.PersistIntervalSeconds)

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("RATE_LIMIT_DISABLED"))); v != "" {
		c.RateLimit.Disabled = v == "true" || v == "1" || v == "yes"
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		c.Server.AllowedOrigins = origins
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Node.RPCURL) == "" {
		return fmt.Errorf("node rpc_url is required")
	}
	if strings.TrimSpace(c.Sponsor.KeyBase64) == "" {
		return fmt.Errorf("sponsor key_base64 is required")
	}
	if strings.TrimSpace(c.Sponsor.AllowedPackage) == "" {
		return fmt.Errorf("sponsor allowed_package is required")
	}
	if c.Sponsor.GasBudgetMist == 0 {
		return fmt.Errorf("sponsor gas_budget_mist must be positive")
	}
	if c.Sponsor.MinCoinBalanceMist == 0 {
		return fmt.Errorf("sponsor min_coin_balance_mist must be positive")
	}
	if !c.RateLimit.Disabled {
		if c.RateLimit.WindowMinutes <= 0 {
			return fmt.Errorf("rate limit window_minutes must be positive")
		}
		if c.RateLimit.Global <= 0 || c.RateLimit.PerAccount <= 0 || c.RateLimit.PerIP <= 0 {
			return fmt.Errorf("rate limit thresholds must be positive")
		}
	}
	if c.Records.Capacity <= 0 {
		return fmt.Errorf("records capacity must be positive")
	}
	return nil
}

// Window returns the admission window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// Timeout returns the node request timeout as a duration.
func (c NodeConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PersistInterval returns the outcome persistence sweep interval.
func (c RecordsConfig) PersistInterval() time.Duration {
	if c.PersistIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.PersistIntervalSeconds) * time.Second
}
