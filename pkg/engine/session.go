package engine

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/winch/pkg/build"
	"github.com/matzehuels/winch/pkg/candidates"
	"github.com/matzehuels/winch/pkg/diagnose"
	werrors "github.com/matzehuels/winch/pkg/errors"
	"github.com/matzehuels/winch/pkg/integrations"
	"github.com/matzehuels/winch/pkg/manifest"
	"github.com/matzehuels/winch/pkg/observability"
	"github.com/matzehuels/winch/pkg/report"
)

// timeoutDiagnostic is recorded when a build exceeds Options.BuildTimeout.
const timeoutDiagnostic = "timeout"

// session is one run of the engine against one manifest. It exclusively owns
// the sandbox, the tried-version map and the attempt log.
type session struct {
	resolver Resolver
	runner   build.Runner
	opts     Options
	log      *log.Logger

	sandbox   *manifest.Sandbox
	reporter  *report.Reporter
	tried     candidates.Tried
	exhausted map[string]bool // normalized crate name
	seen      map[string]bool // combination keys already built
}

func newSession(e *Engine, sb *manifest.Sandbox, rep *report.Reporter) *session {
	return &session{
		resolver:  e.resolver,
		runner:    e.runner,
		opts:      e.opts,
		log:       e.opts.Logger,
		sandbox:   sb,
		reporter:  rep,
		exhausted: make(map[string]bool),
		seen:      make(map[string]bool),
	}
}

// run drives the build, diagnose, resolve, apply loop until a terminal
// outcome. The first build is the baseline with no edits.
func (s *session) run(ctx context.Context) (report.Outcome, error) {
	combination := map[string]string{}

	for attempt := 1; ; attempt++ {
		s.seen[combinationKey(combination)] = true
		observability.Session().OnAttemptStart(ctx, attempt, cloneCombination(combination))
		if len(combination) == 0 {
			s.log.Info("building", "attempt", attempt, "manifest", s.sandbox.State().ShadowPath)
		} else {
			s.log.Info("building", "attempt", attempt, "combination", formatCombination(combination))
		}

		res, issues, err := s.build(ctx)
		if err != nil {
			return report.Aborted, err
		}

		rec := report.Attempt{
			Number:      attempt,
			Combination: cloneCombination(combination),
			Outcome:     report.Failure,
			Diagnostics: issues,
			Duration:    res.Duration,
		}
		if res.Success {
			rec.Outcome = report.Success
		}
		s.reporter.Record(rec)
		observability.Session().OnAttemptComplete(ctx, attempt, res.Success,
			rec.DependencyIssues(), len(issues)-rec.DependencyIssues(), res.Duration)

		if res.Success {
			return s.succeed(combination)
		}

		if diagnose.OnlyUnrelated(issues) {
			s.log.Warn("build failed for reasons other than dependencies", "diagnostics", len(issues))
			return report.Unresolvable, nil
		}

		next, ok, err := s.advance(ctx, combination, diagnose.DependencyCrates(issues))
		if err != nil {
			return report.Aborted, err
		}
		if !ok {
			s.log.Warn("no untried candidates left", "crates", strings.Join(diagnose.DependencyCrates(issues), ", "))
			return report.Exhausted, nil
		}

		if _, err := s.sandbox.Apply(changes(combination, next)); err != nil {
			return report.Aborted, err
		}
		combination = next
	}
}

// build runs one build under the per-build timeout and classifies the output.
// A timeout is a failed build with a single unrelated diagnostic. Runner
// errors and cancellation of ctx are fatal.
func (s *session) build(ctx context.Context) (*build.Result, []diagnose.Issue, error) {
	bctx, cancel := context.WithTimeout(ctx, s.opts.BuildTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.runner.Build(bctx, s.sandbox.State().ShadowPath)
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	timedOut := bctx.Err() != nil || errors.Is(err, context.DeadlineExceeded)
	switch {
	case timedOut && (err != nil || res == nil || !res.Success):
		s.log.Warn("build timed out", "timeout", s.opts.BuildTimeout)
		out := &build.Result{Duration: time.Since(start)}
		if res != nil {
			out.Output = res.Output
		}
		return out, []diagnose.Issue{{Kind: diagnose.Unrelated, Raw: timeoutDiagnostic}}, nil
	case err != nil:
		if werrors.GetCode(err) == "" {
			err = werrors.Wrap(werrors.ErrCodeBuildRunner, err, "build runner failed")
		}
		return nil, nil, err
	case res == nil:
		return nil, nil, werrors.New(werrors.ErrCodeBuildRunner, "build runner returned no result")
	}

	if res.Success {
		return res, nil, nil
	}
	return res, diagnose.Parse(res.Output), nil
}

func (s *session) succeed(combination map[string]string) (report.Outcome, error) {
	switch {
	case len(combination) == 0:
		s.log.Info("manifest already builds; nothing to change")
	case s.opts.DryRun:
		s.log.Info("resolved (dry run, manifest not written)", "combination", formatCombination(combination))
	default:
		if err := s.sandbox.Commit(); err != nil {
			return report.Aborted, err
		}
		s.reporter.SetCommitted(combination)
		s.log.Info("resolved; manifest updated", "combination", formatCombination(combination))
	}
	return report.Resolved, nil
}

// advance selects one new candidate per diagnosed crate (joint substitution).
// It reports false when no crate could advance. A combination that was
// already built is discarded and a fresh selection made.
func (s *session) advance(ctx context.Context, current map[string]string, crates []string) (map[string]string, bool, error) {
	for {
		next := cloneCombination(current)
		advanced := false

		for _, crate := range crates {
			if s.exhausted[integrations.NormalizeCrateName(crate)] {
				continue
			}
			if s.tried.Count(crate) >= s.opts.MaxRollbacks {
				s.markExhausted(ctx, crate, "rollback budget spent")
				continue
			}

			cand, err := s.nextCandidate(ctx, crate)
			switch {
			case err == nil:
			case errors.Is(err, candidates.ErrExhausted):
				s.markExhausted(ctx, crate, err.Error())
				continue
			case ctx.Err() != nil:
				return nil, false, ctx.Err()
			case werrors.Fatal(err):
				return nil, false, err
			default:
				s.log.Warn("registry unavailable; skipping crate for this attempt", "crate", crate, "err", err)
				continue
			}

			s.tried.Add(crate, cand.Version)
			setCrate(next, crate, cand.Version)
			advanced = true
			observability.Session().OnCandidate(ctx, crate, cand.Version)
			s.log.Debug("candidate", "crate", crate, "version", cand.Version, "tried", s.tried.Count(crate))
		}

		if !advanced {
			return nil, false, nil
		}
		if !s.seen[combinationKey(next)] {
			return next, true, nil
		}
		s.log.Debug("combination already built; selecting again", "combination", formatCombination(next))
	}
}

// nextCandidate asks the resolver, retrying transport failures.
func (s *session) nextCandidate(ctx context.Context, crate string) (candidates.Candidate, error) {
	var err error
	for i := 0; i < s.opts.RegistryRetries; i++ {
		var cand candidates.Candidate
		cand, err = s.resolver.Next(ctx, crate, s.tried.Clone())
		if err == nil || errors.Is(err, candidates.ErrExhausted) || werrors.Fatal(err) || ctx.Err() != nil {
			return cand, err
		}
		s.log.Debug("registry call failed", "crate", crate, "try", i+1, "err", err)
	}
	return candidates.Candidate{}, err
}

func (s *session) markExhausted(ctx context.Context, crate, reason string) {
	s.exhausted[integrations.NormalizeCrateName(crate)] = true
	observability.Session().OnCandidate(ctx, crate, "")
	s.log.Info("crate exhausted", "crate", crate, "tried", s.tried.Count(crate), "reason", reason)
}

// =============================================================================
// Combinations
// =============================================================================

func cloneCombination(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// setCrate stores version under crate, replacing any entry for the same
// crate spelled with '-' instead of '_' or vice versa.
func setCrate(m map[string]string, crate, version string) {
	for k := range m {
		if k != crate && manifest.SameCrate(k, crate) {
			delete(m, k)
		}
	}
	m[crate] = version
}

// changes returns the entries of next that differ from current.
func changes(current, next map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range next {
		if current[k] != v {
			out[k] = v
		}
	}
	return out
}

func combinationKey(m map[string]string) string {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, integrations.NormalizeCrateName(k)+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

func formatCombination(m map[string]string) string {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, k+"@"+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
