package diagnose

import (
	"fmt"
	"strings"
)

// Kind classifies a diagnosed build problem.
type Kind int

const (
	// Missing means the build referenced a crate the manifest does not provide.
	Missing Kind = iota + 1
	// Conflict means dependents require incompatible versions of a crate.
	Conflict
	// Unrelated is any diagnostic that is not a dependency problem.
	Unrelated
)

var kindNames = map[Kind]string{
	Missing:   "missing",
	Conflict:  "conflict",
	Unrelated: "unrelated",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText encodes the kind by name so stored reports stay readable.
func (k Kind) MarshalText() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown issue kind %d", int(k))
	}
	return []byte(s), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown issue kind %q", text)
}

// Requirer is one side of a version conflict.
type Requirer struct {
	Dependent   string `json:"dependent" bson:"dependent"`
	Requirement string `json:"requirement" bson:"requirement"`
}

// Issue is a single diagnosed problem from one build.
type Issue struct {
	Kind      Kind       `json:"kind" bson:"kind"`
	Crate     string     `json:"crate,omitempty" bson:"crate,omitempty"`
	Requirers []Requirer `json:"requirers,omitempty" bson:"requirers,omitempty"`
	Raw       string     `json:"raw" bson:"raw"`
}

// IsDependency reports whether the issue names a crate the engine can act on.
func (i Issue) IsDependency() bool {
	return i.Kind == Missing || i.Kind == Conflict
}

func (i Issue) String() string {
	switch i.Kind {
	case Missing:
		return "missing " + i.Crate
	case Conflict:
		if len(i.Requirers) == 0 {
			return "conflict on " + i.Crate
		}
		parts := make([]string, len(i.Requirers))
		for j, r := range i.Requirers {
			parts[j] = r.Dependent + " needs " + r.Requirement
		}
		return fmt.Sprintf("conflict on %s (%s)", i.Crate, strings.Join(parts, ", "))
	default:
		return i.Raw
	}
}

// DependencyCrates returns the crates named by dependency issues, in order.
func DependencyCrates(issues []Issue) []string {
	var crates []string
	seen := make(map[string]bool)
	for _, is := range issues {
		if !is.IsDependency() || seen[is.Crate] {
			continue
		}
		seen[is.Crate] = true
		crates = append(crates, is.Crate)
	}
	return crates
}

// OnlyUnrelated reports whether issues contains nothing the engine can fix.
func OnlyUnrelated(issues []Issue) bool {
	for _, is := range issues {
		if is.IsDependency() {
			return false
		}
	}
	return true
}
