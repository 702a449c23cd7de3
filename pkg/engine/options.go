package engine

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultMaxRollbacks    = 5                // Versions tried per diagnosed crate
	DefaultRegistryRetries = 3                // Registry calls per crate per attempt
	DefaultBuildTimeout    = 10 * time.Minute // Wall time allowed for one build
)

// Options configures a resolution session.
type Options struct {
	MaxRollbacks    int           // Maximum distinct versions tried per crate (default: 5)
	RegistryRetries int           // Registry calls before a crate is skipped for an attempt (default: 3)
	BuildTimeout    time.Duration // Per-build limit; expiry counts as an unrelated failure (default: 10m)
	DryRun          bool          // Never write the real manifest
	Logger          *log.Logger   // Progress logger (default: discard)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.MaxRollbacks <= 0 {
		opts.MaxRollbacks = DefaultMaxRollbacks
	}
	if opts.RegistryRetries <= 0 {
		opts.RegistryRetries = DefaultRegistryRetries
	}
	if opts.BuildTimeout <= 0 {
		opts.BuildTimeout = DefaultBuildTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return opts
}
