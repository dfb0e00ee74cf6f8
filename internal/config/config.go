/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// The relay's configuration definitions.
// Precedence, lowest first: defaults, YAML file, environment (.env files included), flags.

package config

import (
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/llm-d-incubation/dial-relay/internal/capability"
	"github.com/llm-d-incubation/dial-relay/internal/dial"
	uredis "github.com/llm-d-incubation/dial-relay/internal/util/redis"
	utls "github.com/llm-d-incubation/dial-relay/internal/util/tls"
)

const (
	EnvAPIURL   = "DIAL_API_URL"
	EnvAPIKey   = "DIAL_API_KEY"
	EnvModel    = "DIAL_MODEL"
	EnvRedisURL = "REDIS_URL"
)

type Config struct {
	DIAL   DIALConfig   `yaml:"dial"`
	Model  ModelConfig  `yaml:"model"`
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Batch  BatchConfig  `yaml:"batch"`
}

type DIALConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
	TLS             DIALTLSConfig `yaml:"tls"`
}

type DIALTLSConfig struct {
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	CACertFile         string `yaml:"ca_cert_file"`
	ClientCertFile     string `yaml:"client_cert_file"`
	ClientKeyFile      string `yaml:"client_key_file"`
	MinVersion         string `yaml:"min_version"` // "1.2" or "1.3"
	MaxVersion         string `yaml:"max_version"`
}

type ModelConfig struct {
	DefaultModel     string  `yaml:"default_model"`
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float64 `yaml:"temperature"`
	CapabilitiesFile string  `yaml:"capabilities_file"` // replaces the built-in capability tables
}

type ServerConfig struct {
	ListenAddress  string            `yaml:"listen_address"`
	MetricsEnabled bool              `yaml:"metrics_enabled"`
	ShutdownGrace  time.Duration     `yaml:"shutdown_grace"`
	EnableTLS      bool              `yaml:"enable_tls"`
	Certificates   utls.Certificates `yaml:"certificates"`
}

type RedisConfig struct {
	uredis.ClientConfig `yaml:",inline"`
	KeyPrefix           string        `yaml:"key_prefix"`
	CatalogTTL          time.Duration `yaml:"catalog_ttl"`
}

// Enabled reports whether the catalog cache should be backed by redis.
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

type BatchConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

// NewConfig returns a new Config with default values.
func NewConfig() *Config {
	return &Config{
		DIAL: DIALConfig{
			Timeout:         2 * time.Minute,
			MaxIdleConns:    100,
			IdleConnTimeout: 90 * time.Second,
		},
		Model: ModelConfig{
			DefaultModel: "gpt-4o",
			MaxTokens:    1000,
			Temperature:  0.7,
		},
		Server: ServerConfig{
			ListenAddress:  ":8080",
			MetricsEnabled: true,
			ShutdownGrace:  10 * time.Second,
		},
		Redis: RedisConfig{
			ClientConfig: uredis.ClientConfig{
				ServiceName: "dial-relay",
				Timeout:     2 * time.Second,
			},
			KeyPrefix:  "dial-relay:",
			CatalogTTL: 5 * time.Minute,
		},
		Batch: BatchConfig{
			MaxWorkers: 4,
		},
	}
}

// LoadFromYAML loads the configuration from a YAML file.
func (c *Config) LoadFromYAML(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", filePath, err)
	}
	return nil
}

// LoadEnvFiles loads dotenv files into the process environment.
// Missing files are skipped; variables already set are not overridden.
func (c *Config) LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.DIAL.BaseURL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.DIAL.APIKey = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Model.DefaultModel = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Redis.URL = v
	}
}

func (c *Config) AddFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DIAL.BaseURL, "dial-url", c.DIAL.BaseURL, "Base URL of the DIAL deployment (env "+EnvAPIURL+")")
	fs.StringVar(&c.DIAL.APIKey, "dial-api-key", c.DIAL.APIKey, "DIAL API key (env "+EnvAPIKey+")")
	fs.DurationVar(&c.DIAL.Timeout, "dial-timeout", c.DIAL.Timeout, "Per-request timeout for DIAL calls")
	fs.BoolVar(&c.DIAL.TLS.InsecureSkipVerify, "dial-insecure-skip-verify", c.DIAL.TLS.InsecureSkipVerify, "Skip TLS verification of the DIAL endpoint")
	fs.StringVar(&c.Model.DefaultModel, "model", c.Model.DefaultModel, "Default model id (env "+EnvModel+")")
	fs.IntVar(&c.Model.MaxTokens, "max-tokens", c.Model.MaxTokens, "Maximum tokens to generate")
	fs.Float64Var(&c.Model.Temperature, "temperature", c.Model.Temperature, "Sampling temperature, dropped for models that reject it")
	fs.StringVar(&c.Model.CapabilitiesFile, "capabilities-file", c.Model.CapabilitiesFile, "YAML file replacing the built-in model capability tables")
	fs.StringVar(&c.Server.ListenAddress, "listen-address", c.Server.ListenAddress, "Address the relay server listens on")
	fs.BoolVar(&c.Server.MetricsEnabled, "metrics", c.Server.MetricsEnabled, "Serve Prometheus metrics on /metrics")
	fs.StringVar(&c.Redis.URL, "redis-url", c.Redis.URL, "Redis URL for the model catalog cache (env "+EnvRedisURL+")")
	fs.DurationVar(&c.Redis.CatalogTTL, "catalog-ttl", c.Redis.CatalogTTL, "How long a cached model listing stays valid")
	fs.IntVar(&c.Batch.MaxWorkers, "max-workers", c.Batch.MaxWorkers, "Maximum concurrent completions in a batch")
}

// Load registers the config flags on fs and resolves the configuration from args.
// The -config and -env-file flags are read first; explicit flags are applied last.
func (c *Config) Load(fs *flag.FlagSet, args []string) error {
	configFile := fs.String("config", "", "Path to YAML configuration file")
	envFiles := fs.String("env-file", ".env", "Comma-separated dotenv files to load")
	c.AddFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.LoadEnvFiles(strings.Split(*envFiles, ",")...); err != nil {
		return err
	}
	if *configFile != "" {
		if err := c.LoadFromYAML(*configFile); err != nil {
			return err
		}
	}
	c.ApplyEnv()
	return fs.Parse(args)
}

func (c *Config) Validate() error {
	if c.DIAL.APIKey == "" {
		return fmt.Errorf("DIAL API key is required (set %s or dial.api_key)", EnvAPIKey)
	}
	if c.DIAL.BaseURL == "" {
		return fmt.Errorf("DIAL base URL is required (set %s or dial.base_url)", EnvAPIURL)
	}
	u, err := url.Parse(c.DIAL.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("DIAL base URL %q must be an absolute http(s) URL", c.DIAL.BaseURL)
	}
	if c.Model.DefaultModel == "" {
		return fmt.Errorf("default model must not be empty")
	}
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.Model.MaxTokens)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %v", c.Model.Temperature)
	}
	if c.Batch.MaxWorkers <= 0 {
		return fmt.Errorf("batch max_workers must be positive, got %d", c.Batch.MaxWorkers)
	}
	if c.Redis.CatalogTTL < 0 {
		return fmt.Errorf("redis catalog_ttl must not be negative")
	}
	if c.Redis.Enabled() && c.Redis.Timeout <= 0 {
		return fmt.Errorf("redis timeout must be positive, got %v", c.Redis.Timeout)
	}
	if _, err := parseTLSVersion(c.DIAL.TLS.MinVersion); err != nil {
		return err
	}
	if _, err := parseTLSVersion(c.DIAL.TLS.MaxVersion); err != nil {
		return err
	}
	return nil
}

// ClientConfig converts the DIAL section into the client's configuration.
func (c *Config) ClientConfig() (dial.ClientConfig, error) {
	minVersion, err := parseTLSVersion(c.DIAL.TLS.MinVersion)
	if err != nil {
		return dial.ClientConfig{}, err
	}
	maxVersion, err := parseTLSVersion(c.DIAL.TLS.MaxVersion)
	if err != nil {
		return dial.ClientConfig{}, err
	}
	return dial.ClientConfig{
		BaseURL:               c.DIAL.BaseURL,
		APIKey:                c.DIAL.APIKey,
		Timeout:               c.DIAL.Timeout,
		MaxIdleConns:          c.DIAL.MaxIdleConns,
		IdleConnTimeout:       c.DIAL.IdleConnTimeout,
		TLSInsecureSkipVerify: c.DIAL.TLS.InsecureSkipVerify,
		TLSCACertFile:         c.DIAL.TLS.CACertFile,
		TLSClientCertFile:     c.DIAL.TLS.ClientCertFile,
		TLSClientKeyFile:      c.DIAL.TLS.ClientKeyFile,
		TLSMinVersion:         minVersion,
		TLSMaxVersion:         maxVersion,
	}, nil
}

func (c *Config) Controls() dial.GenerationControls {
	return dial.GenerationControls{
		MaxTokens:   c.Model.MaxTokens,
		Temperature: c.Model.Temperature,
	}
}

// Classifier builds the capability classifier, from the capabilities file when one is set.
func (c *Config) Classifier() (*capability.Classifier, error) {
	if c.Model.CapabilitiesFile == "" {
		return capability.NewDefaultClassifier(), nil
	}
	tables, err := capability.LoadTablesFromYAML(c.Model.CapabilitiesFile)
	if err != nil {
		return nil, err
	}
	return capability.NewClassifier(tables), nil
}

func parseTLSVersion(v string) (uint16, error) {
	switch v {
	case "":
		return 0, nil
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q (use 1.2 or 1.3)", v)
	}
}
