// Package config loads till runtime settings from the environment and an optional .env file.
package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const (
	defaultEnvFile        = ".env"
	defaultHTTPAddr       = ":8081"
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultShutdownPeriod = 10 * time.Second
	defaultBackendURL     = "http://localhost:3000/api"
	defaultBackendTimeout = 8 * time.Second
	defaultTaxRate        = "0.20"
	defaultCurrency       = "UAH"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	HTTP    HTTPConfig
	Backend BackendConfig
	Sale    SaleConfig
	Catalog CatalogConfig
}

// HTTPConfig configures the console API listener.
type HTTPConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ShutdownPeriod time.Duration
}

// BackendConfig points at the store API that records checks.
type BackendConfig struct {
	BaseURL     string
	Timeout     time.Duration
	AccessToken string
}

type SaleConfig struct {
	TaxRate  decimal.Decimal
	Currency currency.Unit
}

// CatalogConfig selects the catalog source: Postgres when DSN is set, the backend otherwise.
type CatalogConfig struct {
	DSN string
}

// ValidationError is returned when configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending key list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path; an empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that take precedence over the system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration with precedence env map > OS env > .env > defaults.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	var invalid []string

	taxRate, err := decimal.NewFromString(strings.TrimSpace(stringWithDefault(lookup, "TILL_TAX_RATE", defaultTaxRate)))
	if err != nil || taxRate.IsNegative() {
		invalid = append(invalid, "TILL_TAX_RATE")
	}

	cur, err := currency.ParseISO(strings.TrimSpace(stringWithDefault(lookup, "TILL_CURRENCY", defaultCurrency)))
	if err != nil {
		invalid = append(invalid, "TILL_CURRENCY")
	}

	backendTimeout, ok := durationWithDefault(lookup, "TILL_BACKEND_TIMEOUT", defaultBackendTimeout)
	if !ok {
		invalid = append(invalid, "TILL_BACKEND_TIMEOUT")
	}

	cfg := Config{
		HTTP: HTTPConfig{
			Addr:           strings.TrimSpace(stringWithDefault(lookup, "TILL_HTTP_ADDR", defaultHTTPAddr)),
			ReadTimeout:    defaultReadTimeout,
			WriteTimeout:   defaultWriteTimeout,
			ShutdownPeriod: defaultShutdownPeriod,
		},
		Backend: BackendConfig{
			BaseURL:     strings.TrimRight(strings.TrimSpace(stringWithDefault(lookup, "TILL_BACKEND_URL", defaultBackendURL)), "/"),
			Timeout:     backendTimeout,
			AccessToken: strings.TrimSpace(stringWithDefault(lookup, "TILL_ACCESS_TOKEN", "")),
		},
		Sale: SaleConfig{
			TaxRate:  taxRate,
			Currency: cur,
		},
		Catalog: CatalogConfig{
			DSN: strings.TrimSpace(stringWithDefault(lookup, "TILL_CATALOG_DSN", "")),
		},
	}

	if d, ok := durationWithDefault(lookup, "TILL_HTTP_READ_TIMEOUT", defaultReadTimeout); ok {
		cfg.HTTP.ReadTimeout = d
	} else {
		invalid = append(invalid, "TILL_HTTP_READ_TIMEOUT")
	}
	if d, ok := durationWithDefault(lookup, "TILL_HTTP_WRITE_TIMEOUT", defaultWriteTimeout); ok {
		cfg.HTTP.WriteTimeout = d
	} else {
		invalid = append(invalid, "TILL_HTTP_WRITE_TIMEOUT")
	}

	invalid = append(invalid, validateConfig(cfg)...)
	if len(invalid) > 0 {
		return Config{}, &ValidationError{fields: invalid}
	}

	return cfg, nil
}

func validateConfig(cfg Config) []string {
	var missing []string

	if cfg.HTTP.Addr == "" {
		missing = append(missing, "TILL_HTTP_ADDR")
	}
	if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		missing = append(missing, "TILL_BACKEND_URL")
	}
	if cfg.Backend.Timeout <= 0 {
		missing = append(missing, "TILL_BACKEND_TIMEOUT")
	}

	return missing
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

// durationWithDefault reports false when the key is set but unparsable.
func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, bool) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, true
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback, false
	}
	return d, true
}
