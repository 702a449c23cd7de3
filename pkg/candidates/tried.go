package candidates

import "github.com/matzehuels/winch/pkg/integrations"

// Tried records, per crate, the versions already attempted in a session.
// It only grows. The zero value is ready to use.
//
// Crate names are compared the way Cargo compares them ('-' equals '_').
type Tried struct {
	crates   []string            // display names, first-seen order
	versions map[string][]string // normalized name -> versions in attempt order
}

// Has reports whether version was already tried for crate.
func (t Tried) Has(crate, version string) bool {
	for _, v := range t.versions[integrations.NormalizeCrateName(crate)] {
		if v == version {
			return true
		}
	}
	return false
}

// Add records version for crate. It reports false if it was already present.
func (t *Tried) Add(crate, version string) bool {
	if t.Has(crate, version) {
		return false
	}
	if t.versions == nil {
		t.versions = make(map[string][]string)
	}
	key := integrations.NormalizeCrateName(crate)
	if _, ok := t.versions[key]; !ok {
		t.crates = append(t.crates, crate)
	}
	t.versions[key] = append(t.versions[key], version)
	return true
}

// Count returns how many distinct versions were tried for crate.
func (t Tried) Count(crate string) int {
	return len(t.versions[integrations.NormalizeCrateName(crate)])
}

// Versions returns the versions tried for crate, in attempt order.
func (t Tried) Versions(crate string) []string {
	return append([]string(nil), t.versions[integrations.NormalizeCrateName(crate)]...)
}

// Crates returns every crate with at least one tried version, in the order
// they were first tried.
func (t Tried) Crates() []string {
	return append([]string(nil), t.crates...)
}

// Map returns a copy keyed by crate display name.
func (t Tried) Map() map[string][]string {
	out := make(map[string][]string, len(t.crates))
	for _, c := range t.crates {
		out[c] = t.Versions(c)
	}
	return out
}

// Clone returns an independent copy.
func (t Tried) Clone() Tried {
	c := Tried{crates: t.Crates()}
	if t.versions != nil {
		c.versions = make(map[string][]string, len(t.versions))
		for k, v := range t.versions {
			c.versions[k] = append([]string(nil), v...)
		}
	}
	return c
}
