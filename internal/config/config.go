package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "CICADA"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Issuer    IssuerConfig    `yaml:"issuer" envconfig:"ISSUER"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration for the local license API
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths. Empty values resolve to the
// per-user configuration directory.
type PathsConfig struct {
	ConfigDir   string `yaml:"config_dir" envconfig:"CONFIG_DIR"`
	LicenseFile string `yaml:"license_file" envconfig:"LICENSE_FILE"`
	LogsDir     string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// LicenseConfig controls how the client reaches the issuance service.
// The verification key is compiled in and has no setting.
type LicenseConfig struct {
	IssuanceURL string        `yaml:"issuance_url" envconfig:"ISSUANCE_URL"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Lang        string        `yaml:"lang" envconfig:"LANG"`
}

// IssuerConfig configures the reference issuance service.
type IssuerConfig struct {
	Host           string          `yaml:"host" envconfig:"HOST"`
	Port           int             `yaml:"port" envconfig:"PORT"`
	SigningKeyFile string          `yaml:"signing_key_file" envconfig:"SIGNING_KEY_FILE"`
	KeyPassphrase  string          `yaml:"-" envconfig:"KEY_PASSPHRASE"`
	OrdersFile     string          `yaml:"orders_file" envconfig:"ORDERS_FILE"`
	ProductID      string          `yaml:"product_id" envconfig:"PRODUCT_ID"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	MaxFailures    int             `yaml:"max_failures" envconfig:"MAX_FAILURES"`
	LockoutPeriod  time.Duration   `yaml:"lockout_period" envconfig:"LOCKOUT_PERIOD"`
}

// Addr returns the issuer listen address.
func (i IssuerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// TelemetryConfig selects the OpenTelemetry exporters
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// Load builds the configuration from defaults, the optional YAML file and
// CICADA_* environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file. An empty path skips the file.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg; keys absent from the file
// keep their current value.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// resolvePaths fills empty paths from the per-user config directory
func (c *Config) resolvePaths() error {
	paths, err := ResolvePaths(c.Paths)
	if err != nil {
		return err
	}

	c.Paths.ConfigDir = paths.ConfigDir
	c.Paths.LicenseFile = paths.LicenseFile
	c.Paths.LogsDir = paths.LogsDir
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = paths.LogFile
	}
	return nil
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	u, err := url.Parse(c.License.IssuanceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid issuance url: %q", c.License.IssuanceURL)
	}

	if c.License.Timeout <= 0 {
		return fmt.Errorf("license timeout must be positive")
	}

	if c.Issuer.Port <= 0 || c.Issuer.Port > 65535 {
		return fmt.Errorf("invalid issuer port: %d", c.Issuer.Port)
	}

	switch strings.ToLower(c.Logging.Output) {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid logging output: %q", c.Logging.Output)
	}

	return nil
}

// getConfigFilePath returns the first config file found, or "" when none exists
func getConfigFilePath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG_FILE"); p != "" {
		return p
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins: []string{
				"http://localhost:8080",
				"http://127.0.0.1:8080",
				"wails://wails",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "both",
		},
		License: LicenseConfig{
			IssuanceURL: "https://license.cicadagallery.app",
			Timeout:     10 * time.Second,
			Lang:        "en",
		},
		Issuer: IssuerConfig{
			Host:           "0.0.0.0",
			Port:           8090,
			SigningKeyFile: "signing.key",
			OrdersFile:     "orders.yaml",
			ProductID:      "CicadaGallery",
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     2,
				Burst:   5,
			},
			MaxFailures:   5,
			LockoutPeriod: 15 * time.Minute,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Environment:    "production",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}
