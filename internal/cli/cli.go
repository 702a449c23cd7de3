// Package cli implements the winch command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/winch/pkg/buildinfo"
	"github.com/matzehuels/winch/pkg/cache"
	"github.com/matzehuels/winch/pkg/config"
	"github.com/matzehuels/winch/pkg/report"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "winch"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// Process exit codes.
const (
	ExitResolved     = 0
	ExitFatal        = 1
	ExitExhausted    = 2
	ExitUnresolvable = 3
	ExitInterrupted  = 130 // Standard shell convention for SIGINT
)

// =============================================================================
// Exit Status
// =============================================================================

// OutcomeError reports a session that finished without a fix. The report has
// already been printed, so callers only need the exit code.
type OutcomeError struct {
	Outcome report.Outcome
}

func (e *OutcomeError) Error() string {
	return fmt.Sprintf("resolution %s", e.Outcome)
}

// ExitCode maps the error returned by a command to a process exit code.
func ExitCode(err error) int {
	var oe *OutcomeError
	switch {
	case err == nil:
		return ExitResolved
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &oe):
		switch oe.Outcome {
		case report.Exhausted:
			return ExitExhausted
		case report.Unresolvable:
			return ExitUnresolvable
		}
	}
	return ExitFatal
}

// Silent reports whether err needs no further message on stderr.
func Silent(err error) bool {
	var oe *OutcomeError
	return errors.As(err, &oe) || errors.Is(err, context.Canceled)
}

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger  *log.Logger
	verbose bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
	c.verbose = level <= log.DebugLevel
}

// RootCommand creates the root cobra command with all subcommands registered.
// The root command itself runs a resolution session.
func (c *CLI) RootCommand() *cobra.Command {
	root := c.resolveCommand()
	root.Version = buildinfo.Version
	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			c.SetLogLevel(LogDebug)
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(withLogger(ctx, c.Logger))
		return nil
	}

	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.historyCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Backends
// =============================================================================

// openCache returns the registry response cache selected by cfg.
// Backend failures degrade to no caching; the session never depends on them.
func (c *CLI) openCache(ctx context.Context, cfg *config.Config, noCache bool) cache.Cache {
	if noCache {
		return cache.NewNullCache()
	}
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisURL)
		if err != nil {
			c.Logger.Warn("redis cache unavailable; continuing without cache", "err", err)
			return cache.NewNullCache()
		}
		return rc
	case config.BackendFile:
		dir, err := cacheDir(cfg)
		if err != nil {
			return cache.NewNullCache()
		}
		fc, err := cache.NewFileCache(dir)
		if err != nil {
			c.Logger.Warn("file cache unavailable; continuing without cache", "dir", dir, "err", err)
			return cache.NewNullCache()
		}
		return fc
	}
	return cache.NewNullCache()
}

// openStore returns the report history selected by cfg, or nil when
// history is disabled.
func openStore(ctx context.Context, cfg *config.Config) (report.Store, error) {
	switch cfg.History.Backend {
	case config.BackendMongo:
		ms, err := report.NewMongoStore(ctx, cfg.History.MongoURI, cfg.History.Database)
		if err != nil {
			return nil, err
		}
		return ms, nil
	case config.BackendFile:
		fs, err := report.NewFileStore(cfg.History.Dir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	}
	return nil, nil
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the file cache directory: cache.dir from the config, or
// the XDG standard location (~/.cache/winch/).
func cacheDir(cfg *config.Config) (string, error) {
	if cfg != nil && cfg.Cache.Dir != "" {
		return cfg.Cache.Dir, nil
	}
	return config.CacheDir()
}
