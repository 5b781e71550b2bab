package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoAPIKeys is the fatal startup error for an empty credential pool.
var ErrNoAPIKeys = errors.New("KLING_KEYS environment variable not set")

const DefaultAPIURL = "https://api.piapi.ai/api/v1/task"

type Config struct {
	HTTPPort  int
	BaseURL   string // prepended to artifact links when set
	StaticDir string
	DataDir   string // enables the persistent job store when set

	APIURL  string
	APIKeys []string

	PollInterval  time.Duration
	PollTimeout   time.Duration // zero polls forever
	SubmitRetries int
}

// fileConfig mirrors the optional YAML file named by BROKER_CONFIG.
// File values are defaults only: environment variables always win.
type fileConfig struct {
	Port                int      `yaml:"port"`
	BaseURL             string   `yaml:"base_url"`
	StaticDir           string   `yaml:"static_dir"`
	DataDir             string   `yaml:"data_dir"`
	APIURL              string   `yaml:"api_url"`
	APIKeys             []string `yaml:"api_keys"`
	PollIntervalSeconds int      `yaml:"poll_interval_seconds"`
	PollTimeoutSeconds  int      `yaml:"poll_timeout_seconds"`
	SubmitRetries       int      `yaml:"submit_retries"`
}

func Load() (*Config, error) {
	fc := fileConfig{
		Port:                5000,
		StaticDir:           "static",
		APIURL:              DefaultAPIURL,
		PollIntervalSeconds: 5,
	}

	if path := os.Getenv("BROKER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg := &Config{
		HTTPPort:      getEnvInt("PORT", fc.Port),
		BaseURL:       getEnv("BASE_URL", fc.BaseURL),
		StaticDir:     getEnv("STATIC_DIR", fc.StaticDir),
		DataDir:       getEnv("DATA_DIR", fc.DataDir),
		APIURL:        getEnv("API_URL", fc.APIURL),
		APIKeys:       fc.APIKeys,
		PollInterval:  time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", fc.PollIntervalSeconds)) * time.Second,
		PollTimeout:   time.Duration(getEnvInt("POLL_TIMEOUT_SECONDS", fc.PollTimeoutSeconds)) * time.Second,
		SubmitRetries: getEnvInt("SUBMIT_RETRIES", fc.SubmitRetries),
	}

	if keys := os.Getenv("KLING_KEYS"); keys != "" {
		cfg.APIKeys = splitKeys(keys)
	}
	if len(cfg.APIKeys) == 0 {
		return nil, ErrNoAPIKeys
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
