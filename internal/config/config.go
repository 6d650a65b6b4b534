package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// CatalogConfig points at the ERP stock gateway.
type CatalogConfig struct {
	BaseURL      string `yaml:"base_url"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	BusinessUnit string `yaml:"business_unit"`
	PageSize     int    `yaml:"page_size"`
}

// IdentityConfig points at the external identity provider.
type IdentityConfig struct {
	BaseURL       string `yaml:"base_url"`
	AllowedDomain string `yaml:"allowed_domain"`
}

// Config is the full server configuration. Values come from the YAML file,
// then environment variables (EXSTOCK_*), then flags in main.
type Config struct {
	ListenAddr        string         `yaml:"listen_addr"`
	DBPath            string         `yaml:"db_path"`
	SweepIntervalText string         `yaml:"sweep_interval"`
	SnapshotCacheSize int            `yaml:"snapshot_cache_size"`
	// AllowedOrigin is the browser frontend's origin for credentialed CORS.
	// Empty means same-origin deployment; cross-origin calls then work with
	// bearer tokens only.
	AllowedOrigin string         `yaml:"allowed_origin"`
	Catalog       CatalogConfig  `yaml:"catalog"`
	Identity      IdentityConfig `yaml:"identity"`

	// SweepInterval is SweepIntervalText parsed as a duration.
	SweepInterval time.Duration `yaml:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		ListenAddr:        ":9000",
		DBPath:            "exstock.db",
		SweepInterval:     5 * time.Minute,
		SnapshotCacheSize: 64,
		Catalog: CatalogConfig{
			PageSize: 50,
			// Fixed business unit the surplus catalog is scoped to.
			BusinessUnit: "9301000050",
		},
	}
}

// Load reads the YAML config file (if path is non-empty and the file exists)
// and applies environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if cfg.SweepIntervalText != "" {
		d, err := time.ParseDuration(cfg.SweepIntervalText)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid sweep_interval %q", cfg.SweepIntervalText)
		}
		cfg.SweepInterval = d
	}

	applyEnv(cfg)

	if cfg.Catalog.PageSize < 1 || cfg.Catalog.PageSize > 100 {
		cfg.Catalog.PageSize = 50
	}
	if cfg.SnapshotCacheSize < 1 {
		cfg.SnapshotCacheSize = 64
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ListenAddr = getenv("EXSTOCK_LISTEN_ADDR", cfg.ListenAddr)
	cfg.DBPath = getenv("EXSTOCK_DB_PATH", cfg.DBPath)
	cfg.AllowedOrigin = getenv("EXSTOCK_ALLOWED_ORIGIN", cfg.AllowedOrigin)
	cfg.Catalog.BaseURL = getenv("EXSTOCK_CATALOG_URL", cfg.Catalog.BaseURL)
	cfg.Catalog.TokenURL = getenv("EXSTOCK_CATALOG_TOKEN_URL", cfg.Catalog.TokenURL)
	cfg.Catalog.ClientID = getenv("EXSTOCK_CATALOG_CLIENT_ID", cfg.Catalog.ClientID)
	cfg.Catalog.ClientSecret = getenv("EXSTOCK_CATALOG_CLIENT_SECRET", cfg.Catalog.ClientSecret)
	cfg.Catalog.BusinessUnit = getenv("EXSTOCK_BUSINESS_UNIT", cfg.Catalog.BusinessUnit)
	cfg.Identity.BaseURL = getenv("EXSTOCK_IDENTITY_URL", cfg.Identity.BaseURL)
	cfg.Identity.AllowedDomain = getenv("EXSTOCK_ALLOWED_EMAIL_DOMAIN", cfg.Identity.AllowedDomain)

	if v := os.Getenv("EXSTOCK_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SweepInterval = d
		}
	}
	if v := os.Getenv("EXSTOCK_CATALOG_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Catalog.PageSize = n
		}
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
