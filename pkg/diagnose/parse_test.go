package diagnose

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestParseMissing(t *testing.T) {
	tests := []struct {
		name  string
		input string
		crate string
	}{
		{"generic crate", "error: cannot find crate named serde_json", "serde_json"},
		{"generic module", "cannot find module named rand", "rand"},
		{"rustc E0463", "error[E0463]: can't find crate for `tokio`", "tokio"},
		{"cargo registry", "error: could not find `serde` in registry `crates-io` with version `=9.9.9`", "serde"},
		{"cargo no matching", "error: no matching package named `anyhow` found", "anyhow"},
		{"undeclared", "error[E0433]: failed to resolve: use of undeclared crate or module `regex`", "regex"},
		{"unresolved import path", "error[E0432]: unresolved import `serde_json::Value`", "serde_json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := Parse(tt.input)
			if len(issues) != 1 {
				t.Fatalf("got %d issues, want 1: %v", len(issues), issues)
			}
			if issues[0].Kind != Missing || issues[0].Crate != tt.crate {
				t.Errorf("got %v %q, want missing %q", issues[0].Kind, issues[0].Crate, tt.crate)
			}
		})
	}
}

func TestParseConflictInline(t *testing.T) {
	issues := Parse("error: conflicting requirement on crate X: dependent A needs >=1, <2, dependent B needs ^3")
	if len(issues) != 1 {
		t.Fatalf("got %d issues, want 1", len(issues))
	}
	is := issues[0]
	if is.Kind != Conflict || is.Crate != "X" {
		t.Fatalf("got %v %q", is.Kind, is.Crate)
	}
	want := []Requirer{{"A", ">=1, <2"}, {"B", "^3"}}
	if !reflect.DeepEqual(is.Requirers, want) {
		t.Errorf("Requirers = %v, want %v", is.Requirers, want)
	}
}

func TestParseCargoSelectionConflict(t *testing.T) {
	output := "    Updating crates.io index\n" +
		"error: failed to select a version for `serde`.\n" +
		"    ... required by package `a v0.1.0 (/work/a)`\n" +
		"    ... which satisfies path dependency `a` of package `app v0.1.0 (/work/app)`\n" +
		"versions that meet the requirements `=1.0.100` are: 1.0.100\n" +
		"\n" +
		"all possible versions conflict with previously selected packages.\n" +
		"\n" +
		"  previously selected package `serde v1.0.190`\n" +
		"    ... which satisfies dependency `serde = \"^1.0.190\"` of package `app v0.1.0 (/work/app)`\n" +
		"\n" +
		"failed to select a version for `serde` which could resolve this conflict\n"

	issues := Parse(output)
	if len(issues) != 1 {
		t.Fatalf("got %d issues, want 1: %v", len(issues), issues)
	}
	is := issues[0]
	if is.Kind != Conflict || is.Crate != "serde" {
		t.Fatalf("got %v %q", is.Kind, is.Crate)
	}
	want := []Requirer{
		{Dependent: "a", Requirement: "=1.0.100"},
		{Dependent: "app", Requirement: "^1.0.190"},
	}
	if !reflect.DeepEqual(is.Requirers, want) {
		t.Errorf("Requirers = %v, want %v", is.Requirers, want)
	}
}

func TestParseCargoRequirementConflict(t *testing.T) {
	output := "error: failed to select a version for the requirement `rand = \"^9\"`\n" +
		"candidate versions found which didn't match: 0.8.5, 0.8.4\n" +
		"location searched: crates.io index\n" +
		"required by package `app v0.1.0 (/work/app)`\n"

	issues := Parse(output)
	if len(issues) != 1 {
		t.Fatalf("got %d issues, want 1", len(issues))
	}
	want := Issue{
		Kind:      Conflict,
		Crate:     "rand",
		Requirers: []Requirer{{Dependent: "app", Requirement: "^9"}},
		Raw:       "error: failed to select a version for the requirement `rand = \"^9\"`",
	}
	if !reflect.DeepEqual(issues[0], want) {
		t.Errorf("got %+v, want %+v", issues[0], want)
	}
}

func TestParseDeduplicates(t *testing.T) {
	output := strings.Join([]string{
		"error[E0432]: unresolved import `serde_json`",
		" --> src/main.rs:1:5",
		"  |",
		"1 | use serde_json::Value;",
		"  |     ^^^^^^^^^^ use of undeclared crate or module `serde_json`",
		"error[E0433]: failed to resolve: use of undeclared crate or module `serde_json`",
		"error: conflicting requirement on crate X: dependent A needs 1",
		"error: conflicting requirement on crate X: dependent B needs 2",
		"error: conflicting requirement on crate X: dependent A needs 1",
		"error: could not compile `app` (bin \"app\") due to 2 previous errors",
		"error: could not compile `app` (bin \"app\") due to 2 previous errors",
	}, "\n")

	issues := Parse(output)
	if len(issues) != 3 {
		t.Fatalf("got %d issues, want 3: %v", len(issues), issues)
	}
	if issues[0].Kind != Missing || issues[0].Crate != "serde_json" {
		t.Errorf("issue 0 = %v", issues[0])
	}
	if issues[1].Kind != Conflict || len(issues[1].Requirers) != 2 {
		t.Errorf("issue 1 = %+v", issues[1])
	}
	if issues[2].Kind != Unrelated {
		t.Errorf("issue 2 = %v", issues[2])
	}
	if got := DependencyCrates(issues); !reflect.DeepEqual(got, []string{"serde_json", "X"}) {
		t.Errorf("DependencyCrates = %v", got)
	}
}

func TestParseDashUnderscoreSameCrate(t *testing.T) {
	issues := Parse("error: can't find crate for `serde_json`\nerror: no matching package named `serde-json` found")
	if len(issues) != 1 {
		t.Errorf("got %d issues, want 1: %v", len(issues), issues)
	}
}

func TestParseUnrelated(t *testing.T) {
	output := strings.Join([]string{
		"   Compiling app v0.1.0 (/work/app)",
		"error: expected one of `!` or `::`, found `}`",
		" --> src/main.rs:3:1",
		"error[E0432]: unresolved import `crate::missing`",
		"error: aborting due to 2 previous errors",
	}, "\n")

	issues := Parse(output)
	if !OnlyUnrelated(issues) {
		t.Fatalf("expected only unrelated issues, got %v", issues)
	}
	if len(issues) != 3 {
		t.Errorf("got %d issues, want 3: %v", len(issues), issues)
	}
	if issues[0].Raw != "error: expected one of `!` or `::`, found `}`" {
		t.Errorf("Raw = %q", issues[0].Raw)
	}
}

func TestParseWithoutDiagnostics(t *testing.T) {
	issues := Parse("line one\n\nsegmentation fault\n")
	if len(issues) != 1 || issues[0].Kind != Unrelated {
		t.Fatalf("got %v", issues)
	}
	if issues[0].Raw != "line one\nsegmentation fault" {
		t.Errorf("Raw = %q", issues[0].Raw)
	}

	issues = Parse("")
	if len(issues) != 1 || issues[0].Raw == "" {
		t.Errorf("empty output: got %v", issues)
	}
}

func TestOnlyUnrelated(t *testing.T) {
	tests := []struct {
		name   string
		issues []Issue
		want   bool
	}{
		{"empty", nil, true},
		{"unrelated", []Issue{{Kind: Unrelated, Raw: "x"}}, true},
		{"mixed", []Issue{{Kind: Unrelated}, {Kind: Missing, Crate: "a"}}, false},
		{"conflict", []Issue{{Kind: Conflict, Crate: "a"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OnlyUnrelated(tt.issues); got != tt.want {
				t.Errorf("OnlyUnrelated = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindJSON(t *testing.T) {
	data, err := json.Marshal(Issue{Kind: Conflict, Crate: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"kind":"conflict"`) {
		t.Errorf("json = %s", data)
	}

	var is Issue
	if err := json.Unmarshal(data, &is); err != nil {
		t.Fatal(err)
	}
	if is.Kind != Conflict {
		t.Errorf("Kind = %v", is.Kind)
	}
}

func TestIssueString(t *testing.T) {
	tests := []struct {
		issue Issue
		want  string
	}{
		{Issue{Kind: Missing, Crate: "serde"}, "missing serde"},
		{Issue{Kind: Conflict, Crate: "x", Requirers: []Requirer{{"a", "1"}, {"b", "2"}}}, "conflict on x (a needs 1, b needs 2)"},
		{Issue{Kind: Unrelated, Raw: "timeout"}, "timeout"},
	}
	for _, tt := range tests {
		if got := tt.issue.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
