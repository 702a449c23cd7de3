package cli

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/winch/pkg/build"
	"github.com/matzehuels/winch/pkg/cache"
	"github.com/matzehuels/winch/pkg/candidates"
	"github.com/matzehuels/winch/pkg/config"
	"github.com/matzehuels/winch/pkg/engine"
	"github.com/matzehuels/winch/pkg/errors"
	"github.com/matzehuels/winch/pkg/integrations/crates"
	"github.com/matzehuels/winch/pkg/observability"
	"github.com/matzehuels/winch/pkg/report"
)

// resolveOpts holds the command-line flags for a resolution session.
// Flags left unset fall back to the config file and then to defaults.
type resolveOpts struct {
	dir             string
	manifest        string
	configFile      string
	maxRollbacks    int
	registryRetries int
	buildTimeout    time.Duration
	cargo           string
	refresh         bool
	noCache         bool
	dryRun          bool
	noHistory       bool
}

// resolveCommand creates the root command, which repairs a manifest.
func (c *CLI) resolveCommand() *cobra.Command {
	opts := resolveOpts{dir: ".", manifest: "Cargo.toml"}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Winch rolls dependency versions back until a Rust project builds",
		Long: `Winch repairs a Cargo.toml whose build fails because of dependency problems.

It builds the project, reads cargo's diagnostics, and retries with older
published versions of every crate the failure names, one combination per
build. The manifest is only rewritten once a build succeeds.

Exit codes:
  0    resolved (or already building)
  2    exhausted: every candidate within --max-rollbacks failed
  3    unresolvable: the build fails for reasons unrelated to dependencies
  1    fatal error
  130  interrupted

Examples:
  winch                               # Repair ./Cargo.toml
  winch --dir ../service --dry-run    # Report the fix without writing it
  winch --max-rollbacks 10 -v         # Search deeper, log every step`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runResolve(cmd, &opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.dir, "dir", opts.dir, "project directory")
	f.StringVar(&opts.manifest, "manifest", opts.manifest, "manifest file name inside --dir")
	f.StringVar(&opts.configFile, "config", "", "config file (default: <dir>/winch.toml, then ~/.config/winch/config.toml)")
	f.IntVar(&opts.maxRollbacks, "max-rollbacks", config.DefaultMaxRollbacks, "maximum versions tried per crate")
	f.IntVar(&opts.registryRetries, "registry-retries", config.DefaultRegistryRetries, "registry calls per crate before it is skipped for an attempt")
	f.DurationVar(&opts.buildTimeout, "build-timeout", config.DefaultBuildTimeout, "time allowed for one build")
	f.StringVar(&opts.cargo, "cargo", config.DefaultCargo, "cargo binary")
	f.BoolVar(&opts.refresh, "refresh", false, "bypass the registry response cache")
	f.BoolVar(&opts.noCache, "no-cache", false, "disable the registry response cache")
	f.BoolVar(&opts.dryRun, "dry-run", false, "never write the manifest; only report the winning combination")
	f.BoolVar(&opts.noHistory, "no-history", false, "do not save the session report")

	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")

	return cmd
}

// settings layers flags over the loaded config.
func (o *resolveOpts) settings(cmd *cobra.Command) (*config.Config, error) {
	dir, err := filepath.Abs(o.dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "project directory %s", o.dir)
	}
	o.dir = dir

	var cfg *config.Config
	if o.configFile != "" {
		cfg, err = config.LoadFile(o.configFile)
	} else {
		cfg, err = config.Load(dir)
	}
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("max-rollbacks") {
		cfg.MaxRollbacks = o.maxRollbacks
	}
	if f.Changed("registry-retries") {
		cfg.RegistryRetries = o.registryRetries
	}
	if f.Changed("build-timeout") {
		cfg.BuildTimeout.Duration = o.buildTimeout
	}
	if f.Changed("cargo") {
		cfg.Cargo = o.cargo
	}
	if o.noCache {
		cfg.Cache.Backend = config.BackendNone
	}
	if o.noHistory {
		cfg.History.Backend = config.BackendNone
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *resolveOpts) manifestPath() (string, error) {
	if err := errors.ValidateManifestFilename(o.manifest); err != nil {
		return "", err
	}
	path := filepath.Join(o.dir, o.manifest)
	if _, err := os.Stat(path); err != nil {
		return "", errors.Wrap(errors.ErrCodeIO, err, "manifest %s", path)
	}
	return path, nil
}

func (c *CLI) runResolve(cmd *cobra.Command, opts *resolveOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	cfg, err := opts.settings(cmd)
	if err != nil {
		return err
	}
	path, err := opts.manifestPath()
	if err != nil {
		return err
	}
	if cfg.Source != "" {
		logger.Debug("config loaded", "file", cfg.Source)
	}

	backend := c.openCache(ctx, cfg, opts.noCache)
	defer backend.Close()

	client := newRegistryClient(backend, cfg)
	resolver := candidates.NewResolver(candidates.NewCratesRegistry(client, opts.refresh))
	runner := build.NewCargoRunner(cfg.Cargo)

	interactive := isInteractive() && !c.verbose
	engineLog := logger
	if interactive {
		// Progress lines replace info logs on a terminal.
		engineLog = newLogger(os.Stderr, log.WarnLevel)
	}

	progress := newProgressHooks(ctx, logger, interactive)
	observability.SetSessionHooks(progress)
	observability.SetHTTPHooks(&debugHooks{logger: logger})
	observability.SetCacheHooks(&debugHooks{logger: logger})
	defer observability.Reset()

	eng := engine.New(resolver, runner, engine.Options{
		MaxRollbacks:    cfg.MaxRollbacks,
		RegistryRetries: cfg.RegistryRetries,
		BuildTimeout:    cfg.BuildTimeout.Duration,
		DryRun:          opts.dryRun,
		Logger:          engineLog,
	})

	rep, runErr := eng.Run(ctx, path)
	progress.stop()

	printReport(rep)
	c.saveReport(ctx, cfg, rep)

	if runErr != nil {
		return runErr
	}
	switch rep.Outcome {
	case report.Exhausted, report.Unresolvable:
		return &OutcomeError{Outcome: rep.Outcome}
	}
	return nil
}

// newRegistryClient builds the crates.io client. Transport retries are left
// to the engine, which counts them against --registry-retries.
func newRegistryClient(backend cache.Cache, cfg *config.Config) *crates.Client {
	baseURL := cfg.RegistryURL
	if baseURL == "" {
		baseURL = crates.DefaultBaseURL
	}
	client := crates.NewClientWithBaseURL(backend, cfg.Cache.TTL.Duration, baseURL)
	client.SetRetry(1, 0)
	return client
}

// saveReport persists rep to the configured history. Failures are logged,
// not returned.
func (c *CLI) saveReport(ctx context.Context, cfg *config.Config, rep *report.Report) {
	// The session may have been interrupted; saving must still work.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		c.Logger.Warn("report history unavailable", "err", err)
		return
	}
	if store == nil {
		return
	}
	defer store.Close()

	if err := store.Save(ctx, rep); err != nil {
		c.Logger.Warn("could not save report", "id", rep.ID, "err", err)
		return
	}
	printDetail("Report %s saved; run `winch history show %s` for details", shortID(rep.ID), shortID(rep.ID))
}
