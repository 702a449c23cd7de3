package report

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/matzehuels/winch/pkg/diagnose"
	werrors "github.com/matzehuels/winch/pkg/errors"
)

func TestReporterRecordCopies(t *testing.T) {
	r := NewReporter("/work/app", "Cargo.toml")

	combo := map[string]string{"x": "5"}
	diags := []diagnose.Issue{{Kind: diagnose.Conflict, Crate: "x", Requirers: []diagnose.Requirer{{Dependent: "a", Requirement: "1"}}}}
	r.Record(Attempt{Combination: combo, Outcome: Failure, Diagnostics: diags})

	combo["x"] = "4"
	diags[0].Requirers[0].Requirement = "changed"

	got := r.Finalize(Exhausted).Attempts
	if len(got) != 1 {
		t.Fatalf("got %d attempts", len(got))
	}
	if got[0].Number != 1 {
		t.Errorf("Number = %d, want 1", got[0].Number)
	}
	if got[0].Combination["x"] != "5" {
		t.Error("recorded combination aliases caller map")
	}
	if got[0].Diagnostics[0].Requirers[0].Requirement != "1" {
		t.Error("recorded diagnostics alias caller slice")
	}
}

func TestReporterFinalize(t *testing.T) {
	r := NewReporter("/work/app", "Cargo.toml")
	r.Record(Attempt{Outcome: Failure})
	r.Record(Attempt{Combination: map[string]string{"x": "3"}, Outcome: Success})
	r.SetTried(map[string][]string{"x": {"3"}})
	r.SetCommitted(map[string]string{"x": "3"})

	rep := r.Finalize(Resolved)
	if rep.ID == "" {
		t.Error("missing report id")
	}
	if rep.Outcome != Resolved {
		t.Errorf("Outcome = %s", rep.Outcome)
	}
	if rep.FinishedAt.Before(rep.StartedAt) {
		t.Error("FinishedAt before StartedAt")
	}
	if len(rep.Attempts) != 2 || rep.Attempts[1].Number != 2 {
		t.Errorf("Attempts = %+v", rep.Attempts)
	}

	// Later mutation of the reporter does not leak into a finalized report.
	r.Record(Attempt{Outcome: Failure})
	if len(rep.Attempts) != 2 {
		t.Error("finalized report shares attempts with reporter")
	}
}

func TestReporterFail(t *testing.T) {
	r := NewReporter("p", "Cargo.toml")
	r.Fail(nil)
	r.Fail(errors.New("boom"))
	if rep := r.Finalize(Aborted); rep.Error != "boom" {
		t.Errorf("Error = %q", rep.Error)
	}
}

func TestClosestCombination(t *testing.T) {
	missing := diagnose.Issue{Kind: diagnose.Missing, Crate: "a"}
	conflict := diagnose.Issue{Kind: diagnose.Conflict, Crate: "b"}
	unrelated := diagnose.Issue{Kind: diagnose.Unrelated, Raw: "x"}

	tests := []struct {
		name     string
		attempts []Attempt
		want     map[string]string
	}{
		{
			name:     "baseline only",
			attempts: []Attempt{{Outcome: Failure, Diagnostics: []diagnose.Issue{missing}}},
			want:     nil,
		},
		{
			name: "fewest dependency issues wins",
			attempts: []Attempt{
				{Outcome: Failure, Diagnostics: []diagnose.Issue{missing, conflict}},
				{Combination: map[string]string{"a": "2", "b": "5"}, Outcome: Failure, Diagnostics: []diagnose.Issue{conflict}},
				{Combination: map[string]string{"a": "2", "b": "4"}, Outcome: Failure, Diagnostics: []diagnose.Issue{missing, conflict}},
			},
			want: map[string]string{"a": "2", "b": "5"},
		},
		{
			name: "later attempt wins ties and unrelated issues do not count",
			attempts: []Attempt{
				{Combination: map[string]string{"b": "5"}, Outcome: Failure, Diagnostics: []diagnose.Issue{conflict}},
				{Combination: map[string]string{"b": "4"}, Outcome: Failure, Diagnostics: []diagnose.Issue{conflict, unrelated}},
			},
			want: map[string]string{"b": "4"},
		},
		{
			name: "success wins",
			attempts: []Attempt{
				{Combination: map[string]string{"b": "5"}, Outcome: Failure},
				{Combination: map[string]string{"b": "3"}, Outcome: Success},
			},
			want: map[string]string{"b": "3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := &Report{Attempts: tt.attempts}
			if got := rep.ClosestCombination(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ClosestCombination() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	older := &Report{ID: "aaaa-1111", StartedAt: time.Now().Add(-time.Hour), Outcome: Exhausted,
		Attempts: []Attempt{{Number: 1, Outcome: Failure, Diagnostics: []diagnose.Issue{{Kind: diagnose.Missing, Crate: "serde"}}}}}
	newer := &Report{ID: "aabb-2222", StartedAt: time.Now(), Outcome: Resolved}
	for _, r := range []*Report{older, newer} {
		if err := store.Save(ctx, r); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := store.Get(ctx, "aaaa-1111")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Outcome != Exhausted || got.Attempts[0].Diagnostics[0].Kind != diagnose.Missing {
		t.Errorf("round trip lost data: %+v", got)
	}

	if got, err := store.Get(ctx, "aabb"); err != nil || got.ID != "aabb-2222" {
		t.Errorf("prefix Get = %v, %v", got, err)
	}
	if _, err := store.Get(ctx, "aa"); !werrors.Is(err, werrors.ErrCodeInvalidInput) {
		t.Errorf("ambiguous prefix: got %v", err)
	}
	if _, err := store.Get(ctx, "ffff"); !werrors.Is(err, werrors.ErrCodeReportNotFound) {
		t.Errorf("unknown id: got %v", err)
	}
	if _, err := store.Get(ctx, "../etc"); !werrors.Is(err, werrors.ErrCodeInvalidInput) {
		t.Errorf("path id: got %v", err)
	}

	list, err := store.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "aabb-2222" {
		t.Errorf("List order wrong: %v", list)
	}
	if list, _ := store.List(ctx, 1); len(list) != 1 {
		t.Errorf("List limit ignored: %d", len(list))
	}
}

func TestDefaultDir(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/state")
	dir, err := DefaultDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir != "/state/winch/reports" {
		t.Errorf("DefaultDir = %q", dir)
	}
}
