package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures credentials, rate policies, dispatch behavior, and storage.
type Config struct {
	Account     AccountConfig     `yaml:"account"`
	Credentials CredentialsConfig `yaml:"credentials"`
	RateLimits  RateLimitsConfig  `yaml:"rateLimits"`
	Publish     PublishConfig     `yaml:"publish"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type AccountConfig struct {
	Username string `yaml:"username"`
}

type CredentialsConfig struct {
	// X/Twitter API bearer token for read endpoints. If empty, read from env X_BEARER_TOKEN
	BearerToken string `yaml:"bearerToken"`
	// OAuth1.0a credentials for write endpoints (post create, media upload)
	ConsumerKey    string `yaml:"consumerKey"`
	ConsumerSecret string `yaml:"consumerSecret"`
	AccessToken    string `yaml:"accessToken"`
	AccessSecret   string `yaml:"accessSecret"`
}

// RatePolicy is one sliding-window admission policy.
type RatePolicy struct {
	MaxCalls int           `yaml:"maxCalls"`
	Window   time.Duration `yaml:"window"`
}

// RateLimitsConfig maps operation keys to policies. Operations without a
// policy are admitted unconditionally.
type RateLimitsConfig struct {
	Operations map[string]RatePolicy `yaml:"operations"`
}

type PublishConfig struct {
	// Deadline for a single platform publish call
	Timeout time.Duration `yaml:"timeout"`
}

type DispatchConfig struct {
	// Poll interval for due scheduled posts
	Interval time.Duration `yaml:"interval"`
	// Quiet hours (UTC) in which the dispatcher does not publish
	QuietHours []int `yaml:"quietHours"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a sensible default configuration.
// Rate limits mirror the platform's free-tier write quotas.
func Default() Config {
	return Config{
		Account:     AccountConfig{Username: ""},
		Credentials: CredentialsConfig{},
		RateLimits: RateLimitsConfig{Operations: map[string]RatePolicy{
			"post_create":    {MaxCalls: 50, Window: 24 * time.Hour},
			"media_upload":   {MaxCalls: 50, Window: 24 * time.Hour},
			"profile_lookup": {MaxCalls: 75, Window: 15 * time.Minute},
		}},
		Publish:  PublishConfig{Timeout: 30 * time.Second},
		Dispatch: DispatchConfig{Interval: time.Minute, QuietHours: []int{0, 1, 2, 3, 4, 5}},
		Storage:  StorageConfig{DBPath: "./quill.db"},
		Metrics:  MetricsConfig{Addr: ""},
	}
}

// ResolveEnv fills in credential fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.BearerToken == "" {
		c.Credentials.BearerToken = os.Getenv("X_BEARER_TOKEN")
	}
	if c.Credentials.ConsumerKey == "" {
		c.Credentials.ConsumerKey = os.Getenv("X_CONSUMER_KEY")
	}
	if c.Credentials.ConsumerSecret == "" {
		c.Credentials.ConsumerSecret = os.Getenv("X_CONSUMER_SECRET")
	}
	if c.Credentials.AccessToken == "" {
		c.Credentials.AccessToken = os.Getenv("X_ACCESS_TOKEN")
	}
	if c.Credentials.AccessSecret == "" {
		c.Credentials.AccessSecret = os.Getenv("X_ACCESS_SECRET")
	}
}

// HasWriteCredentials reports whether the OAuth1 bundle needed for posting is present.
func (c *Config) HasWriteCredentials() bool {
	cr := c.Credentials
	return cr.ConsumerKey != "" && cr.ConsumerSecret != "" && cr.AccessToken != "" && cr.AccessSecret != ""
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
