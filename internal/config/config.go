package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/italolelis/filebot/internal/downloader"
)

// Config struct for environment variables.
type Config struct {
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	BotToken         string  `envconfig:"BOT_TOKEN"`
	AdminIDs         []int64 `envconfig:"ADMIN_IDS"`

	UploadDir string `envconfig:"UPLOAD_DIR" default:"downloads"`

	Aria2RPCURL    string        `envconfig:"ARIA2_RPC_URL" default:"http://localhost:6800/jsonrpc"`
	Aria2RPCSecret string        `envconfig:"ARIA2_RPC_SECRET"`
	Aria2Timeout   time.Duration `envconfig:"ARIA2_TIMEOUT" default:"10s"`

	PollInterval              time.Duration `envconfig:"POLL_INTERVAL" default:"3s"`
	RetryBackoff              time.Duration `envconfig:"RETRY_BACKOFF" default:"3s"`
	LifecycleThrottle         string        `envconfig:"LIFECYCLE_THROTTLE" default:"change"`
	LifecycleThrottleInterval time.Duration `envconfig:"LIFECYCLE_THROTTLE_INTERVAL" default:"10s"`
	UploadProgressInterval    time.Duration `envconfig:"UPLOAD_PROGRESS_INTERVAL" default:"10s"`

	LogLevel           string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DBPath             string        `envconfig:"DB_PATH" default:"filebot.db"`
	DiscordWebhookURLs []string      `envconfig:"DISCORD_WEBHOOK_URL"`
	KeepDownloadedFor  time.Duration `envconfig:"KEEP_DOWNLOADED_FOR" default:"0"`
	CleanupInterval    time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`
	TelemetryEnabled   bool          `envconfig:"TELEMETRY_ENABLED" default:"true"`

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9091"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.TelegramBotToken == "" {
		c.TelegramBotToken = c.BotToken
	}

	c.LifecycleThrottle = strings.ToLower(strings.TrimSpace(c.LifecycleThrottle))

	dir, err := filepath.Abs(c.UploadDir)
	if err != nil {
		return fmt.Errorf("failed to resolve upload dir %q: %w", c.UploadDir, err)
	}

	c.UploadDir = dir

	return nil
}

// Validate checks the settings that envconfig cannot express with tags.
func (c *Config) Validate() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN (or BOT_TOKEN) must be set")
	}

	if _, err := downloader.NewThrottleFactory(c.LifecycleThrottle, c.LifecycleThrottleInterval); err != nil {
		return fmt.Errorf("invalid LIFECYCLE_THROTTLE: %w", err)
	}

	durations := map[string]time.Duration{
		"POLL_INTERVAL":               c.PollInterval,
		"RETRY_BACKOFF":               c.RetryBackoff,
		"LIFECYCLE_THROTTLE_INTERVAL": c.LifecycleThrottleInterval,
		"UPLOAD_PROGRESS_INTERVAL":    c.UploadProgressInterval,
		"ARIA2_TIMEOUT":               c.Aria2Timeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.KeepDownloadedFor < 0 {
		return fmt.Errorf("KEEP_DOWNLOADED_FOR must not be negative, got %s", c.KeepDownloadedFor)
	}

	if c.KeepDownloadedFor > 0 && c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive when KEEP_DOWNLOADED_FOR is set")
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
