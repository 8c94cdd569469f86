// Package config holds churchrank's configuration file model.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"churchrank/internal/dataset"
	"churchrank/internal/scrapers/listing"
	"churchrank/lib/configutil"
)

const (
	FileName = "config.json5"

	// EnvBackendUrl overrides backend.url and enables the backend when set.
	EnvBackendUrl = "CHURCHRANK_BACKEND_URL"
)

type BackendConfig struct {
	Url     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

type SourceConfig struct {
	BaseUrl           string  `json:"base_url"`
	DetailPattern     string  `json:"detail_pattern"`
	PageParam         string  `json:"page_param"`
	MaxPages          int     `json:"max_pages"`
	DelayMs           int     `json:"delay_ms"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	UserAgent         string  `json:"user_agent"`
}

func (c SourceConfig) Options() listing.Options {
	return listing.Options{
		BaseUrl:           c.BaseUrl,
		DetailPattern:     c.DetailPattern,
		PageParam:         c.PageParam,
		MaxPages:          c.MaxPages,
		Delay:             time.Duration(c.DelayMs) * time.Millisecond,
		Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
		UserAgent:         c.UserAgent,
	}
}

type YearsConfig struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (c YearsConfig) List() []int {
	return dataset.YearRange(c.From, c.To)
}

type ServerConfig struct {
	Port            int    `json:"port"`
	CacheTtlMinutes int    `json:"cache_ttl_minutes"`
	RefreshCron     string `json:"refresh_cron"`
	AllowedOrigin   string `json:"allowed_origin"`
}

func (c ServerConfig) CacheTtl() time.Duration {
	return time.Duration(c.CacheTtlMinutes) * time.Minute
}

type Config struct {
	Backend     BackendConfig `json:"backend"`
	Source      SourceConfig  `json:"source"`
	Years       YearsConfig   `json:"years"`
	Concurrency int           `json:"concurrency"`
	Server      ServerConfig  `json:"server"`
}

// Defaults is applied to every zero-valued field after reading.
var Defaults = Config{
	Source: SourceConfig{
		DetailPattern:     listing.DefaultDetailPattern,
		PageParam:         listing.DefaultPageParam,
		MaxPages:          listing.DefaultMaxPages,
		DelayMs:           int(listing.DefaultDelay / time.Millisecond),
		TimeoutSeconds:    int(listing.DefaultTimeout / time.Second),
		RequestsPerSecond: listing.DefaultRequestsPerSecond,
		UserAgent:         listing.DefaultUserAgent,
	},
	Years: YearsConfig{
		From: 2015,
		To:   2024,
	},
	Concurrency: 2,
	Server: ServerConfig{
		Port:            8080,
		CacheTtlMinutes: 60,
		RefreshCron:     "0 4 * * *",
		AllowedOrigin:   "*",
	},
}

// Load reads path (or config.json5 found by walking up from the working directory when path
// is empty) and applies defaults. A missing file is not an error, the defaults are used.
func Load(path string) (Config, error) {
	var cfg Config
	var err error
	if path != "" {
		cfg, err = configutil.ReadConfig[Config](path)
	} else {
		cfg, err = configutil.ReadRecursively[Config](FileName)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if errors.Is(err, os.ErrNotExist) && path != "" {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if backendUrl := os.Getenv(EnvBackendUrl); backendUrl != "" {
		cfg.Backend.Url = backendUrl
		cfg.Backend.Enabled = true
	}

	cfg, err = configutil.WithDefaults(cfg, Defaults)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Backend.Enabled && c.Backend.Url == "" {
		errs = append(errs, fmt.Errorf("backend.enabled is set but backend.url is empty"))
	}
	if c.Years.From > c.Years.To {
		errs = append(errs, fmt.Errorf("years.from (%d) is after years.to (%d)", c.Years.From, c.Years.To))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1"))
	}
	return errors.Join(errs...)
}
