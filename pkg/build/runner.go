package build

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	werrors "github.com/matzehuels/winch/pkg/errors"
)

const (
	// CargoManifest is the only manifest file name cargo accepts.
	CargoManifest = "Cargo.toml"
	lockFile      = "Cargo.lock"

	waitDelay = 2 * time.Second
)

// Result is the outcome of one build.
type Result struct {
	Success  bool
	Output   string // Combined stdout and stderr
	Duration time.Duration
}

// Runner builds a project from a manifest path.
//
// A failed compilation is a Result with Success false and a nil error. An
// error means the runner itself could not be used, or ctx ended first, in
// which case the error is ctx.Err().
type Runner interface {
	Build(ctx context.Context, manifestPath string) (*Result, error)
}

// CargoRunner builds with the cargo binary.
type CargoRunner struct {
	Cargo string   // Binary name or path (default: "cargo")
	Args  []string // Arguments before --manifest-path (default: ["build"])
	Env   []string // Extra environment, appended to the process environment
}

// NewCargoRunner returns a runner for the given cargo binary.
func NewCargoRunner(cargo string) *CargoRunner {
	return &CargoRunner{Cargo: cargo}
}

func (r *CargoRunner) binary() string {
	if r.Cargo == "" {
		return "cargo"
	}
	return r.Cargo
}

func (r *CargoRunner) args() []string {
	if len(r.Args) == 0 {
		return []string{"build"}
	}
	return r.Args
}

// Build runs cargo against manifestPath.
//
// Cargo refuses manifests not named Cargo.toml, so any other manifest is
// staged as Cargo.toml in a temporary mirror next to the project, or next to
// its workspace root when the project is a workspace member. The real target
// directory is reused through CARGO_TARGET_DIR and Cargo.lock is copied,
// never modified. The mirror is removed when Build returns.
func (r *CargoRunner) Build(ctx context.Context, manifestPath string) (*Result, error) {
	bin, err := exec.LookPath(r.binary())
	if err != nil {
		return nil, werrors.Wrap(werrors.ErrCodeBuildRunner, err, "find %s", r.binary())
	}

	if abs, err := filepath.Abs(manifestPath); err == nil {
		manifestPath = abs
	}
	projectDir := filepath.Dir(manifestPath)
	manifest := manifestPath
	env := os.Environ()

	if filepath.Base(manifestPath) != CargoManifest {
		st, err := stage(manifestPath)
		if err != nil {
			return nil, werrors.Wrap(werrors.ErrCodeBuildRunner, err, "stage %s", manifestPath)
		}
		defer os.RemoveAll(st.dir)
		manifest = st.manifest
		env = append(env, "CARGO_TARGET_DIR="+st.targetDir)
	}

	args := append(append([]string{}, r.args()...), "--manifest-path", manifest)
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = projectDir
	cmd.Env = append(env, r.Env...)
	cmd.WaitDelay = waitDelay

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err = cmd.Run()
	res := &Result{Output: out.String(), Duration: time.Since(start)}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Success = true
	case errors.As(err, &exitErr):
	default:
		return nil, werrors.Wrap(werrors.ErrCodeBuildRunner, err, "run %s", bin)
	}
	return res, nil
}

// staging is the mirror tree cargo builds a non-standard manifest from.
type staging struct {
	dir       string // Mirror root, removed after the build
	manifest  string // Staged Cargo.toml
	targetDir string // Target directory of the real project or workspace
}

// stage mirrors the tree cargo sees for manifestPath. The mirror starts at
// the enclosing workspace root, if any, so the staged package keeps its
// place among the workspace members; otherwise it starts at the project
// directory. Directories on the way down to the project are recreated, every
// other entry is a symlink, and Cargo.lock is a private copy.
func stage(manifestPath string) (st *staging, err error) {
	abs, err := filepath.Abs(manifestPath)
	if err != nil {
		return nil, err
	}
	projectDir := filepath.Dir(abs)

	srcRoot := projectDir
	if !declaresWorkspace(abs) {
		if ws, ok := workspaceRoot(projectDir); ok {
			srcRoot = ws
		}
	}
	rel, err := filepath.Rel(srcRoot, projectDir)
	if err != nil {
		return nil, err
	}
	var path []string
	if rel != "." {
		path = strings.Split(rel, string(filepath.Separator))
	}

	dir, err := os.MkdirTemp(filepath.Dir(srcRoot), "."+filepath.Base(srcRoot)+".winch-build-")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()

	src, dst := srcRoot, dir
	for i := 0; ; i++ {
		skip := map[string]bool{"target": true, lockFile: true}
		if i < len(path) {
			skip[path[i]] = true
		} else {
			skip[CargoManifest] = true
			skip[filepath.Base(abs)] = true
		}
		if err := link(src, dst, skip); err != nil {
			return nil, err
		}
		if i == len(path) {
			break
		}
		src, dst = filepath.Join(src, path[i]), filepath.Join(dst, path[i])
		if err := os.Mkdir(dst, 0755); err != nil {
			return nil, err
		}
	}

	manifest := filepath.Join(dst, CargoManifest)
	if err := copyFile(abs, manifest); err != nil {
		return nil, err
	}
	if err := copyFile(filepath.Join(srcRoot, lockFile), filepath.Join(dir, lockFile)); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return &staging{dir: dir, manifest: manifest, targetDir: filepath.Join(srcRoot, "target")}, nil
}

// link symlinks every entry of src not in skip into dst.
func link(src, dst string, skip map[string]bool) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if skip[e.Name()] {
			continue
		}
		if err := os.Symlink(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// workspaceRoot returns the closest ancestor of dir whose Cargo.toml has a
// [workspace] table, which is where cargo looks for the workspace.
func workspaceRoot(dir string) (string, bool) {
	for d := filepath.Dir(dir); ; d = filepath.Dir(d) {
		if declaresWorkspace(filepath.Join(d, CargoManifest)) {
			return d, true
		}
		if filepath.Dir(d) == d {
			return "", false
		}
	}
}

func declaresWorkspace(manifestPath string) bool {
	var m struct {
		Workspace map[string]any `toml:"workspace"`
	}
	if _, err := toml.DecodeFile(manifestPath, &m); err != nil {
		return false
	}
	return m.Workspace != nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
