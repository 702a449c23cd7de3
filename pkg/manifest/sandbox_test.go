package manifest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/matzehuels/winch/pkg/errors"
)

const testManifest = `[package]
name = "app"
version = "0.1.0"

# keep this comment
[dependencies]
serde = { version = "1.0", features = ["derive"] }
rand = "0.7"   # old

[dev-dependencies]
tempfile = "3"
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Cargo.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestShadowPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/p/Cargo.toml", "/p/Cargo.winch.toml"},
		{"Cargo.toml", "Cargo.winch.toml"},
		{"/p/deps.toml", "/p/deps.winch.toml"},
	}
	for _, tt := range tests {
		if got := ShadowPath(tt.in); got != tt.want {
			t.Errorf("ShadowPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpen(t *testing.T) {
	path := writeManifest(t, testManifest)

	sb, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sb.Discard()

	st := sb.State()
	if st.OriginalPath != path {
		t.Errorf("OriginalPath = %q, want %q", st.OriginalPath, path)
	}
	if st.ShadowPath != ShadowPath(path) {
		t.Errorf("ShadowPath = %q", st.ShadowPath)
	}
	if got := readFile(t, st.ShadowPath); got != testManifest {
		t.Errorf("shadow content differs from original:\n%s", got)
	}

	want := map[string]string{"serde": "1.0", "rand": "0.7", "tempfile": "3"}
	for name, req := range want {
		if st.Dependencies[name] != req {
			t.Errorf("Dependencies[%s] = %q, want %q", name, st.Dependencies[name], req)
		}
	}
}

func TestOpenErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "Cargo.toml"))
		if !errors.Is(err, errors.ErrCodeIO) {
			t.Errorf("expected IO_ERROR, got %v", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		path := writeManifest(t, "[dependencies\nserde = \"1\"\n")
		_, err := Open(path)
		if !errors.Is(err, errors.ErrCodeIO) {
			t.Errorf("expected IO_ERROR, got %v", err)
		}
		if _, err := os.Stat(ShadowPath(path)); !os.IsNotExist(err) {
			t.Error("shadow must not be created for a malformed manifest")
		}
	})

	t.Run("directory", func(t *testing.T) {
		_, err := Open(t.TempDir())
		if !errors.Is(err, errors.ErrCodeIO) {
			t.Errorf("expected IO_ERROR, got %v", err)
		}
	})
}

func TestApplyTouchesOnlyShadow(t *testing.T) {
	path := writeManifest(t, testManifest)
	sb, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer sb.Discard()

	st, err := sb.Apply(map[string]string{"rand": "0.8.5", "serde_json": "2.1.0"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if got := readFile(t, path); got != testManifest {
		t.Error("original manifest modified by Apply")
	}

	want := `[package]
name = "app"
version = "0.1.0"

# keep this comment
[dependencies]
serde = { version = "1.0", features = ["derive"] }
rand = "0.8.5"   # old
serde_json = "2.1.0"

[dev-dependencies]
tempfile = "3"
`
	if got := readFile(t, st.ShadowPath); got != want {
		t.Errorf("shadow:\n%s\nwant:\n%s", got, want)
	}
	if st.Dependencies["rand"] != "0.8.5" || st.Dependencies["serde_json"] != "2.1.0" {
		t.Errorf("Dependencies = %v", st.Dependencies)
	}

	// Edits accumulate.
	st, err = sb.Apply(map[string]string{"rand": "0.8.4"})
	if err != nil {
		t.Fatal(err)
	}
	if st.Dependencies["rand"] != "0.8.4" || st.Dependencies["serde_json"] != "2.1.0" {
		t.Errorf("Dependencies after second apply = %v", st.Dependencies)
	}
}

func TestApplyRewritesDeclaredRequirement(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", "[dependencies]\nx = \"5\"\n", "[dependencies]\nx = \"3\"\n"},
		{"dotted", "[dependencies]\nx.version = \"5\"\n", "[dependencies]\nx.version = \"3\"\n"},
		{"subtable", "[dependencies.x]\nversion = \"5\"\n", "[dependencies.x]\nversion = \"3\"\n"},
		{"target", "[target.'cfg(unix)'.dependencies]\nx = \"5\"\n", "[target.'cfg(unix)'.dependencies]\nx = \"3\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb, err := Open(writeManifest(t, tt.content))
			if err != nil {
				t.Fatal(err)
			}
			defer sb.Discard()

			st, err := sb.Apply(map[string]string{"x": "3"})
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if st.Dependencies["x"] != "3" {
				t.Errorf("Dependencies = %v", st.Dependencies)
			}
			if got := readFile(t, st.ShadowPath); got != tt.want {
				t.Errorf("shadow:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestApplyParseError(t *testing.T) {
	content := "[dependencies]\nserde = { workspace = true }\n"
	path := writeManifest(t, content)
	sb, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer sb.Discard()

	_, err = sb.Apply(map[string]string{"serde": "1.0.0"})
	if !errors.Is(err, errors.ErrCodeParse) {
		t.Fatalf("expected PARSE_ERROR, got %v", err)
	}
	if got := readFile(t, sb.State().ShadowPath); got != content {
		t.Error("shadow changed by failed Apply")
	}
}

func TestApplyRejectsUnsafeRequirement(t *testing.T) {
	path := writeManifest(t, testManifest)
	sb, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer sb.Discard()

	if _, err := sb.Apply(map[string]string{"rand": `1" evil = "x`}); !errors.Is(err, errors.ErrCodeParse) {
		t.Errorf("expected PARSE_ERROR, got %v", err)
	}
}

func TestCommit(t *testing.T) {
	path := writeManifest(t, testManifest)
	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, 0640); err != nil {
			t.Fatal(err)
		}
	}

	sb, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	st, err := sb.Apply(map[string]string{"rand": "0.8.5"})
	if err != nil {
		t.Fatal(err)
	}
	if err := sb.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := sb.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	shadowContent := readFile(t, path)
	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Discard()
	if reopened.State().Dependencies["rand"] != st.Dependencies["rand"] {
		t.Errorf("committed rand = %q, want %q", reopened.State().Dependencies["rand"], st.Dependencies["rand"])
	}
	if shadowContent == testManifest {
		t.Error("original unchanged after Commit")
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0640 {
			t.Errorf("mode = %v, want 0640", info.Mode().Perm())
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "Cargo.toml" && e.Name() != "Cargo.winch.toml" {
			t.Errorf("leftover file %s", e.Name())
		}
	}
}

func TestDiscard(t *testing.T) {
	path := writeManifest(t, testManifest)
	sb, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sb.Apply(map[string]string{"rand": "0.8.5"}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := sb.Discard(); err != nil {
			t.Fatalf("Discard #%d: %v", i+1, err)
		}
	}
	if _, err := os.Stat(ShadowPath(path)); !os.IsNotExist(err) {
		t.Error("shadow still exists after Discard")
	}
	if got := readFile(t, path); got != testManifest {
		t.Error("original changed without Commit")
	}
}
