// Package main provides the CLI entry point for feed-alerts.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
	"gopkg.in/yaml.v3"

	"github.com/lepinkainen/feed-alerts/internal/config"
	"github.com/lepinkainen/feed-alerts/internal/digest"
	"github.com/lepinkainen/feed-alerts/internal/feedsource"
	"github.com/lepinkainen/feed-alerts/internal/notify"
	"github.com/lepinkainen/feed-alerts/internal/pipeline"
	"github.com/lepinkainen/feed-alerts/internal/seen"
	"github.com/lepinkainen/feed-alerts/pkg/feedtypes"
	"github.com/lepinkainen/feed-alerts/pkg/preview"
)

// CLI structure
var CLI struct {
	Config  string `help:"Configuration file path (defaults to config.yaml when present)" type:"path"`
	EnvFile string `help:"Environment file to load before reading the configuration" default:".env"`
	Debug   bool   `help:"Enable debug logging" default:"false"`

	Run struct {
		DryRun bool `help:"Print the digest to stdout instead of sending it, and leave the store untouched"`
	} `cmd:"" default:"1" help:"Fetch feeds and send one digest of new relevant items."`

	Preview struct {
		Index int  `help:"Print the details of one candidate (0-based) instead of starting the TUI" default:"-1"`
		Plain bool `help:"Print the candidate list and digest without the TUI"`
	} `cmd:"" help:"Show what the next run would send without sending or persisting anything."`

	Seen struct {
		List  struct{} `cmd:"" help:"Print every stored id."`
		Count struct{} `cmd:"" help:"Print the number of stored ids."`
	} `cmd:"" help:"Inspect the store of already-sent ids."`

	ConfigCmd struct {
		Show struct{} `cmd:"" help:"Print the effective configuration with secrets redacted."`
	} `cmd:"" name:"config" help:"Inspect the configuration."`
}

func main() {
	// Parse CLI with Kong YAML configuration file loading
	kctx := kong.Parse(&CLI,
		kong.Name("feed-alerts"),
		kong.Description("Crypto fraud and regulatory news alerts for Telegram."),
		kong.Configuration(kongyaml.Loader, "config.yaml", "~/.feed-alerts/config.yaml"),
	)

	// Configure logging level based on debug flag
	if CLI.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	} else {
		slog.SetLogLoggerLevel(slog.LevelInfo)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch kctx.Command() {
	case "run":
		err = runDigest(ctx, CLI.Run.DryRun)
	case "preview":
		err = previewDigest(ctx, CLI.Preview.Index, CLI.Preview.Plain)
	case "seen list":
		err = listSeen(ctx, false)
	case "seen count":
		err = listSeen(ctx, true)
	case "config show":
		err = showConfig()
	default:
		panic(kctx.Command())
	}

	if err != nil {
		slog.Error("Command failed", "command", kctx.Command(), "error", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads .env, the config file and the environment, then validates everything
// except delivery credentials.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(CLI.EnvFile); err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(CLI.Config)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newRunner builds the pipeline from cfg. notifier may be nil for previews.
func newRunner(cfg *config.Config, store seen.Store, notifier notify.Notifier) (*pipeline.Runner, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	formatter := digest.NewFormatter(loc)
	if cfg.Digest.Label != "" {
		formatter.Label = cfg.Digest.Label
	}
	if cfg.Digest.EmptyText != "" {
		formatter.EmptyText = cfg.Digest.EmptyText
	}
	if cfg.Digest.Footer != "" {
		formatter.Footer = cfg.Digest.Footer
	}

	fetcher := feedsource.New(feedsource.Options{
		MaxItemsPerFeed: cfg.MaxItemsPerFeed,
		Timeout:         cfg.FetchTimeout,
		Concurrency:     cfg.Concurrency,
	})

	return &pipeline.Runner{
		Config:    cfg,
		Fetcher:   fetcher,
		Store:     store,
		Notifier:  notifier,
		Formatter: formatter,
	}, nil
}

func runDigest(ctx context.Context, dryRun bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var notifier notify.Notifier
	if dryRun {
		notifier = notify.NewStdout(os.Stdout)
	} else {
		if err := cfg.ValidateDelivery(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		notifier, err = notify.NewTelegram(notify.TelegramConfig{
			BotToken:       cfg.BotToken,
			ChatID:         cfg.ChatID,
			APIBase:        cfg.Telegram.APIBase,
			ParseMode:      cfg.Telegram.ParseMode,
			DisablePreview: cfg.Telegram.DisablePreview,
			Retry:          cfg.TelegramRetryPolicy(),
		})
		if err != nil {
			return err
		}
	}

	store, err := seen.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	if dryRun {
		store = seen.ReadOnly(store)
	}

	runner, err := newRunner(cfg, store, notifier)
	if err != nil {
		return err
	}

	slog.Debug("Running digest", "dry_run", dryRun, "store", cfg.Store.Path, "backend", cfg.Store.Backend)
	_, err = runner.Run(ctx)
	return err
}

func previewDigest(ctx context.Context, index int, plain bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := seen.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	runner, err := newRunner(cfg, seen.ReadOnly(store), nil)
	if err != nil {
		return err
	}

	candidates, err := runner.Preview(ctx)
	if err != nil {
		return err
	}

	entries := make([]preview.Entry, len(candidates))
	selected := make([]feedtypes.FeedItem, 0, len(candidates))
	for i, c := range candidates {
		entries[i] = preview.Entry{
			Item:     c.Item,
			Keyword:  c.Keyword,
			Relevant: c.Relevant,
			Seen:     c.Seen,
			Selected: c.Selected,
		}
		if c.Selected {
			selected = append(selected, c.Item)
		}
	}
	text := runner.Digest(selected)

	// If index is specified, output the item directly to stdout
	if index >= 0 {
		if index >= len(entries) {
			return fmt.Errorf("index %d out of range (%d candidates)", index, len(entries))
		}
		fmt.Println(preview.FormatDetailedItem(entries[index]))
		return nil
	}

	if plain {
		for i, entry := range entries {
			fmt.Println(preview.FormatCompactListItem(i, entry))
		}
		fmt.Println()
		fmt.Println(text)
		return nil
	}

	return preview.Run(entries, text, runner.Formatter.Label)
}

func listSeen(ctx context.Context, countOnly bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := seen.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	set, err := store.Load(ctx)
	if err != nil {
		return err
	}

	if countOnly {
		fmt.Println(set.Len())
		return nil
	}
	for _, id := range set.IDs() {
		fmt.Println(id)
	}
	return nil
}

func showConfig() error {
	if err := config.LoadDotEnv(CLI.EnvFile); err != nil {
		return err
	}
	cfg, err := config.LoadConfig(CLI.Config)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
