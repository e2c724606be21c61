// Package config assembles the runtime configuration from defaults, a YAML file,
// a .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lepinkainen/feed-alerts/configs"
	"github.com/lepinkainen/feed-alerts/pkg/api"
	configloader "github.com/lepinkainen/feed-alerts/pkg/config"
	"github.com/lepinkainen/feed-alerts/pkg/filesystem"
	"github.com/lepinkainen/feed-alerts/pkg/urlutils"
)

const (
	DefaultConfigFile = "config.yaml"
	EnvPrefix         = "FEED_ALERTS"
)

var (
	ErrMissingBotToken   = errors.New("bot token is not set (bot_token, FEED_ALERTS_BOT_TOKEN or TG_BOT_TOKEN)")
	ErrMissingChatTarget = errors.New("chat id is not set (chat_id, FEED_ALERTS_CHAT_ID or TG_CHAT_ID)")
	ErrNoFeeds           = errors.New("no feeds configured")
	ErrInvalidFeedURL    = errors.New("invalid feed URL")
	ErrInvalidSetting    = errors.New("invalid setting")
)

// Config holds the central application configuration
type Config struct {
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID   string `mapstructure:"chat_id" yaml:"chat_id"`

	Feeds    []string `mapstructure:"feeds" yaml:"feeds"`
	Keywords []string `mapstructure:"keywords" yaml:"keywords"`
	// Lists optionally points at a JSON or YAML file or URL whose feeds and keywords
	// replace the configured ones.
	Lists string `mapstructure:"lists" yaml:"lists,omitempty"`

	MaxItemsPerFeed int           `mapstructure:"max_items_per_feed" yaml:"max_items_per_feed"`
	MaxTotalItems   int           `mapstructure:"max_total_items" yaml:"max_total_items"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	SendEmpty       bool          `mapstructure:"send_empty" yaml:"send_empty"`

	Store struct {
		Backend string `mapstructure:"backend" yaml:"backend"`
		Path    string `mapstructure:"path" yaml:"path"`
	} `mapstructure:"store" yaml:"store"`

	Telegram struct {
		APIBase        string `mapstructure:"api_base" yaml:"api_base"`
		ParseMode      string `mapstructure:"parse_mode" yaml:"parse_mode"`
		DisablePreview bool   `mapstructure:"disable_preview" yaml:"disable_preview"`
		// MaxAttempts counts the first try; 1 disables retries.
		MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	} `mapstructure:"telegram" yaml:"telegram"`

	Digest struct {
		Label     string `mapstructure:"label" yaml:"label"`
		EmptyText string `mapstructure:"empty_text" yaml:"empty_text"`
		Footer    string `mapstructure:"footer" yaml:"footer"`
		Timezone  string `mapstructure:"timezone" yaml:"timezone"`
	} `mapstructure:"digest" yaml:"digest"`
}

// LoadDotEnv loads KEY=value pairs from path into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("No .env file", "path", path)
			return nil
		}
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	slog.Debug("Loaded environment file", "path", path)
	return nil
}

// LoadConfig loads the configuration. An empty path means config.yaml in the working
// directory or next to the executable; that default file may be absent. An explicit path
// must exist.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	path = resolvePath(path)

	v := viper.New()
	if err := setDefaults(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Legacy variable names from the cron deployment.
	if err := v.BindEnv("bot_token", EnvPrefix+"_BOT_TOKEN", "TG_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("error binding env: %w", err)
	}
	if err := v.BindEnv("chat_id", EnvPrefix+"_CHAT_ID", "TG_CHAT_ID"); err != nil {
		return nil, fmt.Errorf("error binding env: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		slog.Debug("Loaded config file", "path", path)
	} else if explicit {
		return nil, fmt.Errorf("error reading config file: %w", err)
	} else {
		slog.Debug("No config file, using defaults", "path", path)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.BotToken = strings.TrimSpace(config.BotToken)
	config.ChatID = strings.TrimSpace(config.ChatID)

	if config.Lists != "" {
		if err := config.applyLists(); err != nil {
			return nil, err
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) error {
	lists, err := configs.DefaultLists()
	if err != nil {
		return err
	}

	v.SetDefault("bot_token", "")
	v.SetDefault("chat_id", "")
	v.SetDefault("feeds", lists.Feeds)
	v.SetDefault("keywords", lists.Keywords)
	v.SetDefault("lists", "")

	v.SetDefault("max_items_per_feed", 6)
	v.SetDefault("max_total_items", 8)
	v.SetDefault("fetch_timeout", 20*time.Second)
	v.SetDefault("concurrency", 4)
	v.SetDefault("send_empty", false)

	v.SetDefault("store.backend", "json")
	v.SetDefault("store.path", "sent_ids.json")

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.parse_mode", "HTML")
	v.SetDefault("telegram.disable_preview", false)
	v.SetDefault("telegram.max_attempts", 3)

	v.SetDefault("digest.label", "")
	v.SetDefault("digest.empty_text", "")
	v.SetDefault("digest.footer", "")
	v.SetDefault("digest.timezone", "")
	return nil
}

// applyLists replaces feeds and keywords with the ones from the Lists source.
func (c *Config) applyLists() error {
	var lists configs.Lists
	if err := configloader.LoadSource(c.Lists, c.FetchTimeout, &lists); err != nil {
		return fmt.Errorf("error loading lists from %s: %w", c.Lists, err)
	}
	if len(lists.Feeds) > 0 {
		c.Feeds = lists.Feeds
	}
	if len(lists.Keywords) > 0 {
		c.Keywords = lists.Keywords
	}
	slog.Debug("Loaded watch lists", "source", c.Lists, "feeds", len(lists.Feeds), "keywords", len(lists.Keywords))
	return nil
}

// resolvePath tries the working directory first, then the executable directory.
func resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	if execPath, err := filesystem.GetDefaultPath(path); err == nil {
		if _, err := os.Stat(execPath); err == nil {
			return execPath
		}
	}
	return path
}

// Validate checks everything a run needs except delivery credentials.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Feeds) == 0 {
		errs = append(errs, ErrNoFeeds)
	}
	for _, feed := range c.Feeds {
		if !urlutils.IsFeedURL(feed) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidFeedURL, feed))
		}
	}
	if c.MaxItemsPerFeed <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_items_per_feed must be positive, got %d", ErrInvalidSetting, c.MaxItemsPerFeed))
	}
	if c.MaxTotalItems < 0 {
		errs = append(errs, fmt.Errorf("%w: max_total_items must not be negative, got %d", ErrInvalidSetting, c.MaxTotalItems))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: fetch_timeout must be positive, got %s", ErrInvalidSetting, c.FetchTimeout))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalidSetting, c.Concurrency))
	}
	if c.Telegram.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("%w: telegram.max_attempts must not be negative, got %d", ErrInvalidSetting, c.Telegram.MaxAttempts))
	}
	if c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("%w: store.path is empty", ErrInvalidSetting))
	}
	switch c.Store.Backend {
	case "json", "sqlite", "bolt":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown store.backend %q", ErrInvalidSetting, c.Store.Backend))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("%w: digest.timezone: %v", ErrInvalidSetting, err))
	}

	return errors.Join(errs...)
}

// ValidateDelivery checks the Telegram credentials.
func (c *Config) ValidateDelivery() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, ErrMissingBotToken)
	}
	if c.ChatID == "" {
		errs = append(errs, ErrMissingChatTarget)
	}
	return errors.Join(errs...)
}

// TelegramRetryPolicy returns the retry policy for Bot API calls.
func (c *Config) TelegramRetryPolicy() *api.RetryPolicy {
	if c.Telegram.MaxAttempts <= 1 {
		return api.NoRetryPolicy()
	}
	policy := api.DefaultRetryPolicy()
	policy.MaxAttempts = c.Telegram.MaxAttempts
	return policy
}

// Location returns the time zone used for digest timestamps. Empty or "local" means the
// host's zone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Digest.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// Redacted returns a copy that is safe to print.
func (c Config) Redacted() Config {
	if c.BotToken != "" {
		c.BotToken = "<redacted>"
	}
	return c
}
