package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
)

// isInteractive reports whether stderr is a terminal.
func isInteractive() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// =============================================================================
// Session Progress
// =============================================================================

// progressHooks turns engine events into progress output: a spinner and one
// status line per attempt on a terminal, structured logs otherwise.
type progressHooks struct {
	ctx         context.Context
	logger      *log.Logger
	interactive bool

	mu      sync.Mutex
	spinner *Spinner
}

func newProgressHooks(ctx context.Context, logger *log.Logger, interactive bool) *progressHooks {
	return &progressHooks{ctx: ctx, logger: logger, interactive: interactive}
}

func (h *progressHooks) OnAttemptStart(_ context.Context, attempt int, combination map[string]string) {
	if !h.interactive {
		return
	}
	msg := fmt.Sprintf("Attempt %d: building baseline", attempt)
	if len(combination) > 0 {
		msg = fmt.Sprintf("Attempt %d: building with %s", attempt, formatCombination(combination))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.spinner = newSpinnerWithContext(h.ctx, msg)
	h.spinner.Start()
}

func (h *progressHooks) OnAttemptComplete(_ context.Context, attempt int, success bool, dependencyIssues, unrelatedIssues int, duration time.Duration) {
	sp := h.take()
	elapsed := duration.Round(time.Millisecond)

	if !h.interactive {
		sp.Stop()
		h.logger.Debug("attempt finished", "attempt", attempt, "success", success,
			"dependency_issues", dependencyIssues, "other_issues", unrelatedIssues, "duration", elapsed)
		return
	}
	switch {
	case success:
		sp.StopWithSuccess(fmt.Sprintf("Attempt %d built %s", attempt, StyleDim.Render(fmt.Sprintf("(%s)", elapsed))))
	case dependencyIssues > 0:
		sp.Stop()
		printWarning("Attempt %d failed: %d dependency issue(s) (%s)", attempt, dependencyIssues, elapsed)
	default:
		sp.StopWithError(fmt.Sprintf("Attempt %d failed for reasons unrelated to dependencies (%s)", attempt, elapsed))
	}
}

func (h *progressHooks) OnCandidate(_ context.Context, crate, version string) {
	if version == "" {
		h.logger.Debug("no candidates left", "crate", crate)
		return
	}
	h.logger.Debug("next candidate", "crate", crate, "version", version)
}

func (h *progressHooks) OnSessionComplete(_ context.Context, outcome string, attempts int, duration time.Duration, err error) {
	sp := h.take()
	if sp.Cancelled() {
		h.logger.Warn("interrupted during build", "attempts", attempts)
	}
	sp.Stop()
	h.logger.Debug("session complete", "outcome", outcome, "attempts", attempts, "duration", duration.Round(time.Millisecond))
}

// take detaches the running spinner. The result may be nil.
func (h *progressHooks) take() *Spinner {
	h.mu.Lock()
	defer h.mu.Unlock()
	sp := h.spinner
	h.spinner = nil
	return sp
}

// stop halts a running spinner. It is safe to call repeatedly.
func (h *progressHooks) stop() {
	h.take().Stop()
}

// =============================================================================
// Registry Debugging
// =============================================================================

// debugHooks logs registry traffic and cache activity at debug level.
type debugHooks struct {
	logger *log.Logger
}

func (h *debugHooks) OnRequest(_ context.Context, method, host, path string) {
	h.logger.Debug("registry request", "method", method, "host", host, "path", path)
}

func (h *debugHooks) OnResponse(_ context.Context, method, host, path string, status int, duration time.Duration) {
	h.logger.Debug("registry response", "path", path, "status", status, "duration", duration.Round(time.Millisecond))
}

func (h *debugHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.logger.Debug("registry error", "path", path, "err", err)
}

func (h *debugHooks) OnCacheHit(_ context.Context, key string) {
	h.logger.Debug("cache hit", "key", key)
}

func (h *debugHooks) OnCacheMiss(_ context.Context, key string) {
	h.logger.Debug("cache miss", "key", key)
}

func (h *debugHooks) OnCacheSet(_ context.Context, key string, size int) {
	h.logger.Debug("cache set", "key", key, "bytes", size)
}

// =============================================================================
// Formatting
// =============================================================================

// formatCombination renders a combination as "a@1.0 b@2.3", sorted by crate.
func formatCombination(m map[string]string) string {
	if len(m) == 0 {
		return "(no changes)"
	}
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, k+"@"+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
