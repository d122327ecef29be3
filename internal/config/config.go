package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for jenkins-notifier
type Config struct {
	Server    ServerConfig
	Bitbucket BitbucketConfig
	Jenkins   JenkinsConfig
	Settings  SettingsConfig
	Worker    WorkerConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string // Listen address (e.g., :8080)
	WebhookSecret   string // Shared secret for X-Hub-Signature; empty disables verification
	RateLimitPerMin int    // Webhook requests per minute per client; 0 disables limiting
}

// BitbucketConfig holds host connection settings
type BitbucketConfig struct {
	URL        string // Base URL of the host (e.g., https://bitbucket.example.com)
	User       string // Username for HTTP basic auth
	Password   string // Password for HTTP basic auth
	Token      string // Personal access token, preferred over user/password
	SSHEnabled bool   // Whether SSH clone URLs are offered
	CacheTTL   time.Duration
	CacheSize  int
}

// JenkinsConfig holds settings for calls to Jenkins
type JenkinsConfig struct {
	Timeout  time.Duration
	CertFile string // Client certificate presented when certificate checks are disabled
	KeyFile  string
}

// SettingsConfig locates the per-repository settings file
type SettingsConfig struct {
	File  string
	Watch bool // Reload the file when it changes
}

// WorkerConfig holds background dispatch settings
type WorkerConfig struct {
	ShutdownTimeout time.Duration
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level    string // debug, info, warn, error
	Encoding string // console or json
	File     string
	Verbose  bool
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from the given file, or from the default search path
// when file is empty, then applies environment variables.
func Load(file string) (*Config, error) {
	initViperDefaults()

	if file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, _ := os.UserHomeDir(); home != "" {
			viper.AddConfigPath(home + "/.config/jenkins-notifier")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars()
	return buildConfig()
}

// LoadConfig builds configuration from the current Viper state.
// It is used by commands whose flags were already bound to Viper.
func LoadConfig() (*Config, error) {
	bindEnvVars()
	return buildConfig()
}

// bindEnvVars binds environment variable names to viper keys
func bindEnvVars() {
	viper.BindEnv("server.addr", "SERVER_ADDR")
	viper.BindEnv("server.webhook_secret", "WEBHOOK_SECRET")
	viper.BindEnv("server.rate_limit_per_min", "WEBHOOK_RATE_LIMIT")
	viper.BindEnv("bitbucket.url", "BITBUCKET_URL")
	viper.BindEnv("bitbucket.user", "BITBUCKET_USER")
	viper.BindEnv("bitbucket.password", "BITBUCKET_PASSWORD")
	viper.BindEnv("bitbucket.token", "BITBUCKET_TOKEN")
	viper.BindEnv("bitbucket.ssh_enabled", "BITBUCKET_SSH_ENABLED")
	viper.BindEnv("jenkins.timeout", "JENKINS_TIMEOUT")
	viper.BindEnv("jenkins.keystore.cert_file", "JENKINS_CLIENT_CERT")
	viper.BindEnv("jenkins.keystore.key_file", "JENKINS_CLIENT_KEY")
	viper.BindEnv("settings.file", "SETTINGS_FILE")
	viper.BindEnv("settings.watch", "SETTINGS_WATCH")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("logging.encoding", "LOG_ENCODING")
	viper.BindEnv("logging.file", "LOG_FILE")
	viper.BindEnv("logging.verbose", "LOG_VERBOSE")
	viper.BindEnv("metrics.enabled", "METRICS_ENABLED")
}

// initViperDefaults sets default values
func initViperDefaults() {
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.rate_limit_per_min", 120)
	viper.SetDefault("bitbucket.ssh_enabled", true)
	viper.SetDefault("bitbucket.cache_ttl", 5*time.Minute)
	viper.SetDefault("bitbucket.cache_size", 256)
	viper.SetDefault("jenkins.timeout", 30*time.Second)
	viper.SetDefault("settings.file", "settings.yaml")
	viper.SetDefault("settings.watch", true)
	viper.SetDefault("worker.shutdown_timeout", 30*time.Second)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.encoding", "console")
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
}

// buildConfig constructs a Config from current Viper state
func buildConfig() (*Config, error) {
	initViperDefaults()

	cfg := &Config{
		Server: ServerConfig{
			Addr:            viper.GetString("server.addr"),
			WebhookSecret:   viper.GetString("server.webhook_secret"),
			RateLimitPerMin: viper.GetInt("server.rate_limit_per_min"),
		},
		Bitbucket: BitbucketConfig{
			URL:        viper.GetString("bitbucket.url"),
			User:       viper.GetString("bitbucket.user"),
			Password:   viper.GetString("bitbucket.password"),
			Token:      viper.GetString("bitbucket.token"),
			SSHEnabled: viper.GetBool("bitbucket.ssh_enabled"),
			CacheTTL:   viper.GetDuration("bitbucket.cache_ttl"),
			CacheSize:  viper.GetInt("bitbucket.cache_size"),
		},
		Jenkins: JenkinsConfig{
			Timeout:  viper.GetDuration("jenkins.timeout"),
			CertFile: viper.GetString("jenkins.keystore.cert_file"),
			KeyFile:  viper.GetString("jenkins.keystore.key_file"),
		},
		Settings: SettingsConfig{
			File:  viper.GetString("settings.file"),
			Watch: viper.GetBool("settings.watch"),
		},
		Worker: WorkerConfig{
			ShutdownTimeout: viper.GetDuration("worker.shutdown_timeout"),
		},
		Logging: LoggingConfig{
			Level:    viper.GetString("logging.level"),
			Encoding: viper.GetString("logging.encoding"),
			File:     viper.GetString("logging.file"),
			Verbose:  viper.GetBool("logging.verbose"),
		},
		Metrics: MetricsConfig{
			Enabled: viper.GetBool("metrics.enabled"),
			Path:    viper.GetString("metrics.path"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Server.RateLimitPerMin < 0 {
		return fmt.Errorf("server.rate_limit_per_min must not be negative")
	}

	if c.Bitbucket.URL == "" {
		return fmt.Errorf("bitbucket.url is required")
	}

	if c.Bitbucket.User != "" && c.Bitbucket.Password == "" {
		return fmt.Errorf("bitbucket.password is required when bitbucket.user is set")
	}

	if (c.Jenkins.CertFile == "") != (c.Jenkins.KeyFile == "") {
		return fmt.Errorf("jenkins.keystore.cert_file and jenkins.keystore.key_file must be set together")
	}

	if c.Settings.File == "" {
		return fmt.Errorf("settings.file is required")
	}

	switch strings.ToLower(c.Logging.Encoding) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.encoding must be console or json, got %q", c.Logging.Encoding)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// LogVerbose reports whether debug logging was requested
func (c *Config) LogVerbose() bool {
	return c.Logging.Verbose || strings.EqualFold(c.Logging.Level, "debug")
}
