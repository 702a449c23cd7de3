package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/winch/pkg/errors"
)

// ShadowSuffix is inserted before the manifest extension to name the shadow copy.
const ShadowSuffix = ".winch"

// State is a snapshot of a sandboxed manifest.
type State struct {
	OriginalPath string            // The real manifest; written only by Commit
	ShadowPath   string            // Session-scoped working copy
	Dependencies map[string]string // Crate name to version requirement, as declared in the shadow
}

// Sandbox owns the shadow copy of a manifest for the duration of a session.
//
// A Sandbox is not safe for concurrent use; a resolution session drives it
// from a single goroutine.
type Sandbox struct {
	state State
	mode  os.FileMode
}

// ShadowPath returns the fixed sibling path used for the shadow copy of
// original, e.g. Cargo.toml -> Cargo.winch.toml.
func ShadowPath(original string) string {
	dir, base := filepath.Split(original)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+ShadowSuffix+ext)
}

// Open validates the manifest at path and copies it to its shadow path.
// An unreadable or malformed manifest fails with [errors.ErrCodeIO].
func Open(path string) (*Sandbox, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read manifest %s", path)
	}
	if info.IsDir() {
		return nil, errors.New(errors.ErrCodeIO, "manifest %s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read manifest %s", path)
	}

	decls, err := decode(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "malformed manifest %s", path)
	}

	shadow := ShadowPath(path)
	if err := os.WriteFile(shadow, data, info.Mode().Perm()); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "write shadow manifest %s", shadow)
	}

	return &Sandbox{
		state: State{
			OriginalPath: path,
			ShadowPath:   shadow,
			Dependencies: decls.table(),
		},
		mode: info.Mode().Perm(),
	}, nil
}

// State returns a copy of the sandbox state.
func (s *Sandbox) State() State {
	st := s.state
	st.Dependencies = make(map[string]string, len(s.state.Dependencies))
	for k, v := range s.state.Dependencies {
		st.Dependencies[k] = v
	}
	return st
}

// Apply rewrites the version requirement of each crate in edits inside the
// shadow copy. Edits accumulate across calls. Everything outside the edited
// version fields is preserved byte for byte.
//
// Apply fails with [errors.ErrCodeParse] when the manifest cannot be edited
// safely; the shadow is left as it was before the call.
func (s *Sandbox) Apply(edits map[string]string) (State, error) {
	data, err := os.ReadFile(s.state.ShadowPath)
	if err != nil {
		return State{}, errors.Wrap(errors.ErrCodeIO, err, "read shadow manifest %s", s.state.ShadowPath)
	}

	names := make([]string, 0, len(edits))
	for name := range edits {
		names = append(names, name)
	}
	sort.Strings(names)

	doc := parseDocument(data)
	for _, name := range names {
		version := edits[name]
		if err := errors.ValidateCratesPackageName(name); err != nil {
			return State{}, err
		}
		if version == "" || strings.ContainsAny(version, "\"'\\\n\r") {
			return State{}, errors.New(errors.ErrCodeParse, "cannot write requirement %q for %s", version, name)
		}
		if err := doc.setVersion(name, version); err != nil {
			return State{}, errors.Wrap(errors.ErrCodeParse, err, "edit %s in %s", name, s.state.ShadowPath)
		}
	}

	out := doc.bytes()
	decls, err := decode(out)
	if err != nil {
		return State{}, errors.Wrap(errors.ErrCodeParse, err, "edited manifest no longer parses")
	}
	for _, name := range names {
		if err := decls.verify(name, edits[name]); err != nil {
			return State{}, errors.Wrap(errors.ErrCodeParse, err, "edit %s in %s", name, s.state.ShadowPath)
		}
	}

	if err := os.WriteFile(s.state.ShadowPath, out, s.mode); err != nil {
		return State{}, errors.Wrap(errors.ErrCodeIO, err, "write shadow manifest %s", s.state.ShadowPath)
	}
	s.state.Dependencies = decls.table()
	return s.State(), nil
}

// Commit atomically replaces the original manifest with the shadow content.
// The content is written to a temporary file in the same directory, synced,
// and renamed over the original.
func (s *Sandbox) Commit() error {
	data, err := os.ReadFile(s.state.ShadowPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "read shadow manifest %s", s.state.ShadowPath)
	}

	dir := filepath.Dir(s.state.OriginalPath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.state.OriginalPath)+".*.tmp")
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create temp file in %s", dir)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(errors.ErrCodeIO, err, "write %s", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(errors.ErrCodeIO, err, "sync %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "close %s", tmpPath)
	}
	if err := os.Chmod(tmpPath, s.mode); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "chmod %s", tmpPath)
	}
	if err := os.Rename(tmpPath, s.state.OriginalPath); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "replace %s", s.state.OriginalPath)
	}
	committed = true
	return nil
}

// Discard removes the shadow copy. It is safe to call more than once.
func (s *Sandbox) Discard() error {
	if err := os.Remove(s.state.ShadowPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeIO, err, "remove shadow manifest %s", s.state.ShadowPath)
	}
	return nil
}

// =============================================================================
// Decoding
// =============================================================================

type cargoFile struct {
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
	Target            map[string]struct {
		Dependencies      map[string]any `toml:"dependencies"`
		DevDependencies   map[string]any `toml:"dev-dependencies"`
		BuildDependencies map[string]any `toml:"build-dependencies"`
	} `toml:"target"`
}

type declaration struct {
	name        string
	requirement string
}

type declarations []declaration

func decode(data []byte) (declarations, error) {
	var cargo cargoFile
	if err := toml.Unmarshal(data, &cargo); err != nil {
		return nil, err
	}

	var decls declarations
	decls = decls.extract(cargo.Dependencies)
	decls = decls.extract(cargo.BuildDependencies)
	decls = decls.extract(cargo.DevDependencies)

	targets := make([]string, 0, len(cargo.Target))
	for t := range cargo.Target {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	for _, t := range targets {
		tgt := cargo.Target[t]
		decls = decls.extract(tgt.Dependencies)
		decls = decls.extract(tgt.BuildDependencies)
		decls = decls.extract(tgt.DevDependencies)
	}
	return decls, nil
}

func (d declarations) extract(table map[string]any) declarations {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		decl := declaration{name: key}
		switch v := table[key].(type) {
		case string:
			decl.requirement = v
		case map[string]any:
			if pkg, ok := v["package"].(string); ok && pkg != "" {
				decl.name = pkg
			}
			if req, ok := v["version"].(string); ok {
				decl.requirement = req
			} else if ws, ok := v["workspace"].(bool); ok && ws {
				decl.requirement = "workspace"
			}
		}
		d = append(d, decl)
	}
	return d
}

// table flattens declarations into a name -> requirement map. The first
// declaration of a crate wins ([dependencies] before build and dev tables).
func (d declarations) table() map[string]string {
	out := make(map[string]string, len(d))
	for _, decl := range d {
		if _, ok := out[decl.name]; !ok {
			out[decl.name] = decl.requirement
		}
	}
	return out
}

func (d declarations) verify(name, requirement string) error {
	seen := false
	for _, decl := range d {
		if !SameCrate(decl.name, name) {
			continue
		}
		seen = true
		if decl.requirement != requirement {
			return fmt.Errorf("%s still requires %q after edit", decl.name, decl.requirement)
		}
	}
	if !seen {
		return fmt.Errorf("%s is not declared after edit", name)
	}
	return nil
}
