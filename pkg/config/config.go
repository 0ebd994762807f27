package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// HardMaxFiles is the absolute upload-count ceiling. Configured limits may
// lower it but never raise it.
const HardMaxFiles = 200

type Config struct {
	BaseURL               string `yaml:"baseUrl"`
	Username              string `yaml:"username"`
	Password              string `yaml:"password"`
	RequestTimeoutSeconds int    `yaml:"requestTimeoutSeconds"`

	PollIntervalMillis     int    `yaml:"pollIntervalMillis"`
	MaxConsecutiveFailures int    `yaml:"maxConsecutiveFailures"`
	BackoffPolicy          string `yaml:"backoffPolicy"`
	BackoffBaseSeconds     int    `yaml:"backoffBaseSeconds"`
	BackoffMaxSeconds      int    `yaml:"backoffMaxSeconds"`

	MaxFiles          int   `yaml:"maxFiles"`
	MaxFileSizeBytes  int64 `yaml:"maxFileSizeBytes"`
	MaxTotalSizeBytes int64 `yaml:"maxTotalSizeBytes"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	Env       string `yaml:"env"`

	Port               int    `yaml:"port"`
	ArtifactsDir       string `yaml:"artifactsDir"`
	RateLimitPerMinute int    `yaml:"rateLimitPerMinute"`
	RateLimitBurst     int    `yaml:"rateLimitBurst"`

	TracingEnabled   bool   `yaml:"tracingEnabled"`
	OTLPEndpoint     string `yaml:"otlpEndpoint"`
	OTLPInsecure     bool   `yaml:"otlpInsecure"`
	TraceSampleRatio string `yaml:"traceSampleRatio"`
}

// LoadConfig reads the yaml file at filePath, then applies environment
// overrides and defaults. The file must exist.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return loadFromBytes(data)
}

// LoadConfigOptional behaves like LoadConfig but treats an empty path or a
// missing file as "no file": environment overrides and defaults still apply.
func LoadConfigOptional(filePath string) (*Config, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return loadFromBytes(nil)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return loadFromBytes(nil)
		}
		return nil, err
	}
	return loadFromBytes(data)
}

func loadFromBytes(data []byte) (*Config, error) {
	// A local .env fills in unset variables before the override pass.
	_ = godotenv.Load()

	var c Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("BACKEND_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("BACKEND_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("BACKEND_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RequestTimeoutSeconds = n
		}
	}
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PollIntervalMillis = n
		}
	}
	if v := os.Getenv("MAX_CONSECUTIVE_FAILURES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConsecutiveFailures = n
		}
	}
	if v := os.Getenv("BACKOFF_POLICY"); v != "" {
		c.BackoffPolicy = v
	}
	if v := os.Getenv("BACKOFF_BASE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BackoffBaseSeconds = n
		}
	}
	if v := os.Getenv("BACKOFF_MAX_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BackoffMaxSeconds = n
		}
	}
	if v := os.Getenv("MAX_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxFiles = n
		}
	}
	if v := os.Getenv("MAX_FILE_SIZE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxFileSizeBytes = n
		}
	}
	if v := os.Getenv("MAX_TOTAL_SIZE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxTotalSizeBytes = n
		}
	}
	if v := os.Getenv("ARTIFACTS_DIR"); v != "" {
		c.ArtifactsDir = v
	}
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimitPerMinute = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimitBurst = n
		}
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.OTLPEndpoint = v
	}

	if c.Port == 0 {
		c.Port = 8000
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8000"
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 30
	}
	if c.PollIntervalMillis <= 0 {
		c.PollIntervalMillis = 2000
	}
	// Zero means unset; negative keeps polling with no failure ceiling.
	if c.MaxConsecutiveFailures == 0 {
		c.MaxConsecutiveFailures = 30
	}
	if c.BackoffPolicy == "" {
		c.BackoffPolicy = "exp_equal_jitter"
	}
	if c.BackoffBaseSeconds <= 0 {
		c.BackoffBaseSeconds = 2
	}
	if c.BackoffMaxSeconds <= 0 {
		c.BackoffMaxSeconds = 30
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = 100
	}
	if c.MaxFileSizeBytes <= 0 {
		c.MaxFileSizeBytes = 10 << 20
	}
	if c.MaxTotalSizeBytes <= 0 {
		c.MaxTotalSizeBytes = 500 << 20
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.ArtifactsDir == "" {
		c.ArtifactsDir = "/tmp/collageq-artifacts"
	}
	if c.TraceSampleRatio == "" {
		c.TraceSampleRatio = "1.0"
	}

	return &c, nil
}

func (c *Config) Validate() error {
	var errs []string

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "baseUrl must be a valid http(s) URL")
	}

	switch c.BackoffPolicy {
	case "fixed", "linear", "exponential", "exp_equal_jitter", "exp_full_jitter":
	default:
		errs = append(errs, fmt.Sprintf("backoffPolicy %q is not a known policy", c.BackoffPolicy))
	}

	if c.MaxFiles < 2 {
		errs = append(errs, "maxFiles must be at least 2")
	}
	if c.MaxFiles > HardMaxFiles {
		errs = append(errs, fmt.Sprintf("maxFiles must not exceed %d", HardMaxFiles))
	}
	if c.MaxTotalSizeBytes < c.MaxFileSizeBytes {
		errs = append(errs, "maxTotalSizeBytes must be at least maxFileSizeBytes")
	}
	if c.PollIntervalMillis < 100 {
		errs = append(errs, "pollIntervalMillis must be at least 100")
	}

	env := strings.ToLower(strings.TrimSpace(c.Env))
	if c.Username != "" && strings.TrimSpace(c.Password) == "" && env != "dev" {
		errs = append(errs, "password is required when username is set in non-dev")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
