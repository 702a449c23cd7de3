package candidates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/mod/semver"

	werrors "github.com/matzehuels/winch/pkg/errors"
	"github.com/matzehuels/winch/pkg/integrations"
)

var (
	// ErrNotFound is returned by a Registry for crates it does not know.
	ErrNotFound = errors.New("crate not found")

	// ErrExhausted means no untried candidate remains for a crate.
	ErrExhausted = errors.New("no untried versions left")
)

// Release is one published version as reported by a registry.
type Release struct {
	Version string
	Yanked  bool
}

// Registry lists the published versions of a crate.
//
// Implementations return an error wrapping [ErrNotFound] for unknown crates;
// any other error is treated as a transport failure and may be retried.
type Registry interface {
	Versions(ctx context.Context, crate string) ([]Release, error)
}

// Candidate is a version proposed for a crate.
type Candidate struct {
	Crate   string
	Version string
}

func (c Candidate) String() string {
	return c.Crate + "@" + c.Version
}

// Resolver proposes, newest first, versions that a session has not tried yet.
//
// Version lists are fetched once per crate and kept for the lifetime of the
// Resolver. Failed fetches are not cached. Resolver is safe for concurrent use.
type Resolver struct {
	registry Registry

	mu       sync.Mutex
	versions map[string][]string
}

// NewResolver creates a Resolver backed by registry.
func NewResolver(registry Registry) *Resolver {
	return &Resolver{
		registry: registry,
		versions: make(map[string][]string),
	}
}

// Next returns the newest version of crate not present in tried.
//
// It returns an error wrapping [ErrExhausted] when every published version
// was tried or the registry does not know the crate, and a
// [werrors.ErrCodeRegistryTransport] error when the registry is unreachable.
func (r *Resolver) Next(ctx context.Context, crate string, tried Tried) (Candidate, error) {
	versions, err := r.list(ctx, crate)
	if err != nil {
		return Candidate{}, err
	}
	for _, v := range versions {
		if !tried.Has(crate, v) {
			return Candidate{Crate: crate, Version: v}, nil
		}
	}
	if versions == nil {
		return Candidate{}, fmt.Errorf("%w: %s is not published", ErrExhausted, crate)
	}
	return Candidate{}, fmt.Errorf("%w: %s (%d versions)", ErrExhausted, crate, len(versions))
}

func (r *Resolver) list(ctx context.Context, crate string) ([]string, error) {
	key := integrations.NormalizeCrateName(crate)

	r.mu.Lock()
	versions, ok := r.versions[key]
	r.mu.Unlock()
	if ok {
		return versions, nil
	}

	releases, err := r.registry.Versions(ctx, crate)
	switch {
	case errors.Is(err, ErrNotFound):
		versions = nil
	case werrors.Fatal(err):
		return nil, err
	case err != nil:
		return nil, werrors.Wrap(werrors.ErrCodeRegistryTransport, err, "fetch versions of %s", crate)
	default:
		versions = Order(releases)
	}

	r.mu.Lock()
	r.versions[key] = versions
	r.mu.Unlock()
	return versions, nil
}

// Order drops yanked and non-semver releases and sorts the rest by
// descending precedence, stable releases before pre-releases.
func Order(releases []Release) []string {
	seen := make(map[string]bool, len(releases))
	out := make([]string, 0, len(releases))
	for _, rel := range releases {
		v := strings.TrimSpace(rel.Version)
		if rel.Yanked || seen[v] || !semver.IsValid(canonical(v)) {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := canonical(out[i]), canonical(out[j])
		preA, preB := semver.Prerelease(a) != "", semver.Prerelease(b) != ""
		if preA != preB {
			return !preA
		}
		return semver.Compare(a, b) > 0
	})
	return out
}

func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
