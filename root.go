package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/plannerkit/planner-sync/internal/config"
	"github.com/plannerkit/planner-sync/internal/provider"
	"github.com/plannerkit/planner-sync/internal/provider/box"
	"github.com/plannerkit/planner-sync/internal/provider/gdrive"
	"github.com/plannerkit/planner-sync/internal/provider/onedrive"
	"github.com/plannerkit/planner-sync/internal/restclient"
	"github.com/plannerkit/planner-sync/internal/tokenstore"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// cfg holds the effective configuration loaded by PersistentPreRunE.
// Available to all subcommands after the root pre-run phase completes.
var cfg *config.Config

// httpClientTimeout bounds every provider request so hung connections
// cannot block CLI commands indefinitely.
const httpClientTimeout = 30 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "planner-sync",
		Short:   "Cloud synchronization for the planner",
		Long:    "Synchronizes planner data and settings with Box, OneDrive, or Google Drive.",
		Version: version,
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newConnectCmd())
	cmd.AddCommand(newDisconnectCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newAgendaCmd())

	return cmd
}

// loadConfig resolves the effective configuration and stores it in cfg.
func loadConfig() error {
	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	loaded, err := config.LoadOrDefault(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg = loaded
	return nil
}

// buildLogger creates an slog.Logger configured by the loaded config and
// CLI flags. Config-file log level is the baseline; --verbose and --quiet
// override it because CLI flags always win. Format "auto" picks text on a
// terminal and JSON otherwise, for log collectors on the other end of a
// pipe.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}
	if flagQuiet {
		level = slog.LevelError
	}

	format := "auto"
	if cfg != nil && cfg.Logging.Format != "" {
		format = cfg.Logging.Format
	}

	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	default:
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			return slog.New(slog.NewTextHandler(os.Stderr, opts))
		}
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
}

// openTokenStore returns the token store rooted in the data directory.
func openTokenStore(logger *slog.Logger) *tokenstore.Store {
	return tokenstore.NewStore(cfg.TokenDir(), logger)
}

// buildRegistry wires one adapter per provider against the shared token
// store. Each adapter reads its bearer token per request, so expiry and
// 401-purges take effect immediately.
func buildRegistry(tokens *tokenstore.Store, logger *slog.Logger) *provider.Registry {
	reg := provider.NewRegistry()

	for _, id := range provider.IDs {
		creds := provider.NewCredentials(tokens, id, logger)
		client := restclient.NewClient(defaultHTTPClient(), creds, logger)

		switch id {
		case provider.Box:
			reg.Register(box.New(client, creds, cfg.FolderName, logger))
		case provider.OneDrive:
			reg.Register(onedrive.New(client, creds, cfg.FolderName, logger))
		case provider.GoogleDrive:
			reg.Register(gdrive.New(client, creds, cfg.FolderName, logger))
		}
	}

	return reg
}

// resolveAdapter parses a provider argument and returns its adapter.
func resolveAdapter(tokens *tokenstore.Store, logger *slog.Logger, arg string) (provider.Adapter, error) {
	id, err := provider.ParseID(arg)
	if err != nil {
		return nil, err
	}

	return buildRegistry(tokens, logger).Get(id)
}
