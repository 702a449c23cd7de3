package engine

import (
	"context"
	"path/filepath"
	"time"

	"github.com/matzehuels/winch/pkg/build"
	"github.com/matzehuels/winch/pkg/candidates"
	"github.com/matzehuels/winch/pkg/manifest"
	"github.com/matzehuels/winch/pkg/observability"
	"github.com/matzehuels/winch/pkg/report"
)

// Resolver proposes the next untried version of a crate.
// *candidates.Resolver implements it.
type Resolver interface {
	Next(ctx context.Context, crate string, tried candidates.Tried) (candidates.Candidate, error)
}

// Engine runs resolution sessions. An Engine holds no per-session state and
// may run several sessions, one after another or on different manifests.
type Engine struct {
	resolver Resolver
	runner   build.Runner
	opts     Options
}

// New creates an Engine.
func New(resolver Resolver, runner build.Runner, opts Options) *Engine {
	return &Engine{
		resolver: resolver,
		runner:   runner,
		opts:     opts.WithDefaults(),
	}
}

// Run repairs the manifest at manifestPath.
//
// The returned report is never nil. Exhausted and unresolvable sessions are
// outcomes, not errors. A non-nil error means the session was aborted
// (manifest unreadable or not editable, build runner unusable, ctx done);
// the report then has outcome [report.Aborted] and lists the attempts made
// so far. In every case but a committed [report.Resolved] session the
// original manifest is left byte-for-byte unchanged.
func (e *Engine) Run(ctx context.Context, manifestPath string) (*report.Report, error) {
	start := time.Now()
	if abs, err := filepath.Abs(manifestPath); err == nil {
		manifestPath = abs
	}

	rep := report.NewReporter(filepath.Dir(manifestPath), filepath.Base(manifestPath))
	rep.SetDryRun(e.opts.DryRun)

	outcome, err := e.run(ctx, manifestPath, rep)
	if err != nil {
		rep.Fail(err)
		outcome = report.Aborted
	}

	r := rep.Finalize(outcome)
	observability.Session().OnSessionComplete(ctx, string(outcome), len(r.Attempts), time.Since(start), err)
	return r, err
}

func (e *Engine) run(ctx context.Context, manifestPath string, rep *report.Reporter) (report.Outcome, error) {
	sb, err := manifest.Open(manifestPath)
	if err != nil {
		return report.Aborted, err
	}
	defer func() {
		if err := sb.Discard(); err != nil {
			e.opts.Logger.Warn("could not remove shadow manifest", "path", sb.State().ShadowPath, "err", err)
		}
	}()

	s := newSession(e, sb, rep)
	defer func() { rep.SetTried(s.tried.Map()) }()
	return s.run(ctx)
}
