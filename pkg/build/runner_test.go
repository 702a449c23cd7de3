package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	werrors "github.com/matzehuels/winch/pkg/errors"
)

// fakeCargo writes an executable shell script standing in for cargo.
func fakeCargo(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "cargo")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

// project creates a minimal crate inside its own parent directory so that
// staging directories can be observed.
func project(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "app")
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"Cargo.toml":       "[package]\nname = \"app\"\n",
		"Cargo.winch.toml": "[package]\nname = \"app\"\n# shadow\n",
		"Cargo.lock":       "# lock\n",
		"src/main.rs":      "fn main() {}\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestCargoRunnerSuccess(t *testing.T) {
	cargo := fakeCargo(t, `echo "args: $@"; exit 0`)
	dir := project(t)

	r := NewCargoRunner(cargo)
	res, err := r.Build(context.Background(), filepath.Join(dir, "Cargo.toml"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !res.Success {
		t.Errorf("expected success, output: %s", res.Output)
	}
	want := "args: build --manifest-path " + filepath.Join(dir, "Cargo.toml")
	if !strings.Contains(res.Output, want) {
		t.Errorf("output %q does not contain %q", res.Output, want)
	}
}

func TestCargoRunnerCompileFailure(t *testing.T) {
	cargo := fakeCargo(t, `echo "error: cannot find crate named serde_json" >&2; exit 101`)
	dir := project(t)

	res, err := NewCargoRunner(cargo).Build(context.Background(), filepath.Join(dir, "Cargo.toml"))
	if err != nil {
		t.Fatalf("compile failure must not be a runner error: %v", err)
	}
	if res.Success {
		t.Error("expected failure")
	}
	if !strings.Contains(res.Output, "cannot find crate named serde_json") {
		t.Errorf("stderr not captured: %q", res.Output)
	}
}

func TestCargoRunnerMissingBinary(t *testing.T) {
	r := NewCargoRunner(filepath.Join(t.TempDir(), "no-such-cargo"))
	_, err := r.Build(context.Background(), filepath.Join(t.TempDir(), "Cargo.toml"))
	if !werrors.Is(err, werrors.ErrCodeBuildRunner) {
		t.Fatalf("expected BUILD_RUNNER, got %v", err)
	}
	if !werrors.Fatal(err) {
		t.Error("runner errors must be fatal")
	}
}

func TestCargoRunnerStagesShadow(t *testing.T) {
	cargo := fakeCargo(t, `
m="$3"
d=$(dirname "$m")
echo "manifest: $(basename "$m")"
cat "$m"
cat "$d/Cargo.lock"
test -L "$d/src" && echo "src linked"
test -e "$d/Cargo.winch.toml" || echo "shadow hidden"
echo "target: $CARGO_TARGET_DIR"
echo "staged: $d"
`)
	dir := project(t)

	res, err := NewCargoRunner(cargo).Build(context.Background(), filepath.Join(dir, "Cargo.winch.toml"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, want := range []string{
		"manifest: Cargo.toml",
		"# shadow",
		"# lock",
		"src linked",
		"shadow hidden",
		"target: " + filepath.Join(dir, "target"),
	} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("output missing %q:\n%s", want, res.Output)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(dir))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "app" {
			t.Errorf("staging directory %s not removed", e.Name())
		}
	}
}

func TestCargoRunnerStagesWorkspaceMember(t *testing.T) {
	cargo := fakeCargo(t, `
m="$3"
d=$(dirname "$m")
r=$(cd "$d/../.." && pwd)
cat "$m"
cat "$r/Cargo.toml"
cat "$r/Cargo.lock"
test -L "$d" || echo "member mirrored"
test -L "$d/src" && echo "src linked"
test -L "$r/crates/other" && echo "sibling linked"
echo "target: $CARGO_TARGET_DIR"
`)
	ws := filepath.Join(t.TempDir(), "ws")
	files := map[string]string{
		"Cargo.toml":                  "[workspace]\nmembers = [\"crates/*\"]\n",
		"Cargo.lock":                  "# workspace lock\n",
		"crates/app/Cargo.toml":       "[package]\nname = \"app\"\n",
		"crates/app/Cargo.winch.toml": "[package]\nname = \"app\"\n# shadow\n",
		"crates/app/src/main.rs":      "fn main() {}\n",
		"crates/other/Cargo.toml":     "[package]\nname = \"other\"\n",
		"crates/other/src/lib.rs":     "\n",
	}
	for name, content := range files {
		path := filepath.Join(ws, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	res, err := NewCargoRunner(cargo).Build(context.Background(), filepath.Join(ws, "crates", "app", "Cargo.winch.toml"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, want := range []string{
		"# shadow",
		"[workspace]",
		"# workspace lock",
		"member mirrored",
		"src linked",
		"sibling linked",
		"target: " + filepath.Join(ws, "target"),
	} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("output missing %q:\n%s", want, res.Output)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(ws))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "ws" {
			t.Errorf("staging directory %s not removed", e.Name())
		}
	}
}

func TestWorkspaceRoot(t *testing.T) {
	base := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(base, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("outer/Cargo.toml", "[workspace]\n")
	write("outer/inner/Cargo.toml", "[workspace]\nmembers = [\"app\"]\n")
	write("outer/inner/app/Cargo.toml", "[package]\nname = \"app\"\n")
	write("outer/pkg/Cargo.toml", "[package]\nname = \"pkg\"\n")
	write("lone/app/Cargo.toml", "[package]\nname = \"app\"\n")

	tests := []struct {
		dir  string
		want string
	}{
		{"outer/inner/app", "outer/inner"},
		{"outer/pkg", "outer"},
		{"lone/app", ""},
	}
	for _, tt := range tests {
		got, ok := workspaceRoot(filepath.Join(base, tt.dir))
		want := ""
		if tt.want != "" {
			want = filepath.Join(base, tt.want)
		}
		if got != want || ok != (tt.want != "") {
			t.Errorf("workspaceRoot(%s) = %q, %v; want %q", tt.dir, got, ok, want)
		}
	}
}

func TestCargoRunnerContextTimeout(t *testing.T) {
	cargo := fakeCargo(t, `exec sleep 5`)
	dir := project(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewCargoRunner(cargo).Build(ctx, filepath.Join(dir, "Cargo.toml"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Error("build was not interrupted")
	}
}
