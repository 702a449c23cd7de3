package report

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/winch/pkg/diagnose"
)

// Outcome is the terminal state of a resolution session.
type Outcome string

const (
	Resolved     Outcome = "resolved"     // A build succeeded; the manifest was committed (unless dry-run)
	Exhausted    Outcome = "exhausted"    // Every diagnosed crate ran out of candidates
	Unresolvable Outcome = "unresolvable" // The build failed for reasons other than dependencies
	Aborted      Outcome = "aborted"      // A fatal error ended the session
)

// AttemptOutcome is the result of a single build.
type AttemptOutcome string

const (
	Success AttemptOutcome = "success"
	Failure AttemptOutcome = "failure"
)

// Attempt is one build of one combination. Attempts are immutable once
// recorded.
type Attempt struct {
	Number      int               `json:"number" bson:"number"`
	Combination map[string]string `json:"combination" bson:"combination"` // Crate -> version applied; empty for the baseline
	Outcome     AttemptOutcome    `json:"outcome" bson:"outcome"`
	Diagnostics []diagnose.Issue  `json:"diagnostics,omitempty" bson:"diagnostics,omitempty"`
	Duration    time.Duration     `json:"duration" bson:"duration"`
}

// DependencyIssues counts diagnostics the engine could act on.
func (a Attempt) DependencyIssues() int {
	n := 0
	for _, is := range a.Diagnostics {
		if is.IsDependency() {
			n++
		}
	}
	return n
}

func (a Attempt) clone() Attempt {
	c := a
	c.Combination = cloneMap(a.Combination)
	c.Diagnostics = make([]diagnose.Issue, len(a.Diagnostics))
	for i, is := range a.Diagnostics {
		is.Requirers = append([]diagnose.Requirer(nil), is.Requirers...)
		c.Diagnostics[i] = is
	}
	return c
}

// Report is the full provenance of a session.
type Report struct {
	ID         string              `json:"id" bson:"_id"`
	Project    string              `json:"project" bson:"project"`
	Manifest   string              `json:"manifest" bson:"manifest"`
	StartedAt  time.Time           `json:"started_at" bson:"started_at"`
	FinishedAt time.Time           `json:"finished_at" bson:"finished_at"`
	Outcome    Outcome             `json:"outcome" bson:"outcome"`
	Attempts   []Attempt           `json:"attempts" bson:"attempts"`
	Tried      map[string][]string `json:"tried,omitempty" bson:"tried,omitempty"`
	Committed  map[string]string   `json:"committed,omitempty" bson:"committed,omitempty"`
	DryRun     bool                `json:"dry_run,omitempty" bson:"dry_run,omitempty"`
	Error      string              `json:"error,omitempty" bson:"error,omitempty"`
}

// Duration returns the wall time of the session.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Winning returns the combination of the successful attempt, if any.
func (r *Report) Winning() (map[string]string, bool) {
	for i := len(r.Attempts) - 1; i >= 0; i-- {
		if r.Attempts[i].Outcome == Success {
			return cloneMap(r.Attempts[i].Combination), true
		}
	}
	return nil, false
}

// ClosestCombination returns the attempted combination with the fewest
// dependency issues, preferring later attempts on ties. It is the natural
// starting point for manual repair after an unsuccessful session.
func (r *Report) ClosestCombination() map[string]string {
	if win, ok := r.Winning(); ok {
		return win
	}
	best := -1
	for i, a := range r.Attempts {
		if len(a.Combination) == 0 {
			continue
		}
		if best < 0 || a.DependencyIssues() <= r.Attempts[best].DependencyIssues() {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	return cloneMap(r.Attempts[best].Combination)
}

// Reporter accumulates attempts for one session. It is safe for concurrent use.
type Reporter struct {
	mu     sync.Mutex
	report Report
}

// NewReporter starts a report for the manifest of project.
func NewReporter(project, manifest string) *Reporter {
	return &Reporter{report: Report{
		ID:        uuid.NewString(),
		Project:   project,
		Manifest:  manifest,
		StartedAt: time.Now().UTC(),
	}}
}

// Record appends a copy of a. A zero Number is replaced by the attempt's
// position in the log.
func (r *Reporter) Record(a Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := a.clone()
	if c.Number == 0 {
		c.Number = len(r.report.Attempts) + 1
	}
	r.report.Attempts = append(r.report.Attempts, c)
}

// SetTried stores the per-crate versions attempted.
func (r *Reporter) SetTried(tried map[string][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Tried = make(map[string][]string, len(tried))
	for k, v := range tried {
		r.report.Tried[k] = append([]string(nil), v...)
	}
}

// SetCommitted stores the combination written to the real manifest.
func (r *Reporter) SetCommitted(combination map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Committed = cloneMap(combination)
}

// SetDryRun marks a session that never writes the manifest.
func (r *Reporter) SetDryRun(dryRun bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.DryRun = dryRun
}

// Fail records the fatal error that ended the session.
func (r *Reporter) Fail(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Error = err.Error()
}

// Finalize stamps the outcome and returns an independent copy of the report.
func (r *Reporter) Finalize(outcome Outcome) *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Outcome = outcome
	r.report.FinishedAt = time.Now().UTC()

	out := r.report
	out.Attempts = make([]Attempt, len(r.report.Attempts))
	for i, a := range r.report.Attempts {
		out.Attempts[i] = a.clone()
	}
	out.Committed = cloneMap(r.report.Committed)
	if r.report.Tried != nil {
		out.Tried = make(map[string][]string, len(r.report.Tried))
		for k, v := range r.report.Tried {
			out.Tried[k] = append([]string(nil), v...)
		}
	}
	return &out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
