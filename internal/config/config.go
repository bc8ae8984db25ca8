// Package config loads the marketclock YAML configuration and applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when MARKETCLOCK_CONFIG is unset.
const DefaultPath = "config/marketclock.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for marketclock.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Server   Server   `yaml:"server"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Logging  Logging  `yaml:"logging"`
	Calendar Calendar `yaml:"calendar"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir         string `yaml:"data_dir"`
	SQLitePath      string `yaml:"sqlite_path"`
	MarketHoursPath string `yaml:"market_hours_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// HTTPAddr returns the host:port the HTTP API listens on.
func (s Server) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GRPCAddr returns the host:port the gRPC API listens on.
func (s Server) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort)
}

// Alpaca holds credentials and the trading endpoint used for the broker
// calendar.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Configured reports whether credentials are present.
func (a Alpaca) Configured() bool {
	return a.APIKey != "" && a.APISecret != ""
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Calendar controls holiday syncing into the market hours database.
type Calendar struct {
	// SyncKey is the market hours entry that receives synced holidays.
	SyncKey string `yaml:"sync_key"`
	// SyncInterval disables syncing when zero.
	SyncInterval   time.Duration `yaml:"sync_interval"`
	SyncYearsBack  int           `yaml:"sync_years_back"`
	SyncYearsAhead int           `yaml:"sync_years_ahead"`
	// SyncRatePerMin bounds broker calendar requests.
	SyncRatePerMin int `yaml:"sync_rate_per_min"`
}

// Default returns the configuration used for fields the file leaves unset.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:         "data",
			SQLitePath:      "data/marketclock.db",
			MarketHoursPath: "config/market-hours.json",
		},
		Server: Server{
			Host:     "0.0.0.0",
			Port:     8080,
			GRPCPort: 9090,
		},
		Alpaca: Alpaca{
			BaseURL: "https://paper-api.alpaca.markets",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Calendar: Calendar{
			SyncKey:        "Equity-usa-[*]",
			SyncYearsBack:  1,
			SyncYearsAhead: 2,
			SyncRatePerMin: 60,
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the configuration file path: $MARKETCLOCK_CONFIG when set,
// DefaultPath otherwise.
func Path() string {
	if v := os.Getenv("MARKETCLOCK_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path over Default, and
// then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default with
// environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	cfg = Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("MARKET_HOURS_PATH"); v != "" {
		cfg.Storage.MarketHoursPath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("GRPC_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GRPC_PORT: %w", err)
		}
		cfg.Server.GRPCPort = port
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	return nil
}
