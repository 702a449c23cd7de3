package diagnose

import (
	"regexp"
	"strings"

	"github.com/matzehuels/winch/pkg/errors"
	"github.com/matzehuels/winch/pkg/integrations"
)

const tailLines = 5

var errorLineRe = regexp.MustCompile(`^\s*error(\[E\d+\])?:`)

// Missing-crate phrasings emitted by rustc and cargo.
var missingPatterns = []*regexp.Regexp{
	regexp.MustCompile("cannot find (?:crate|module) (?:named )?`?([A-Za-z0-9_-]+)`?"),
	regexp.MustCompile("can't find crate for `([^`]+)`"),
	regexp.MustCompile("could not find `([^`]+)` in registry"),
	regexp.MustCompile("no matching package named `([^`]+)` found"),
	regexp.MustCompile("use of undeclared crate or module `([^`]+)`"),
	regexp.MustCompile("unresolved import `([^`]+)`"),
}

var (
	conflictRe  = regexp.MustCompile("conflicting requirement on crate `?([A-Za-z0-9_-]+)`?:?(.*)")
	dependentRe = regexp.MustCompile(`dependent\s+` + "`?([^\\s`]+)`?" + `\s+needs\s+`)

	selectRe      = regexp.MustCompile("failed to select a version for (?:the requirement )?`([^`]+)`")
	requiredByRe  = regexp.MustCompile("required by package `([^\\s`]+)")
	meetsRe       = regexp.MustCompile("versions that meet the requirements `([^`]+)`")
	satisfiesRe   = regexp.MustCompile("which satisfies dependency `([^\\s`]+) = \"([^\"]+)\"` of package `([^\\s`]+)")
	requirementRe = regexp.MustCompile(`^([^\s=]+)\s*=\s*"([^"]*)"$`)
)

// Parse classifies raw build output into dependency issues.
//
// Each crate appears at most once; requirers of repeated conflicts are
// merged. Error lines that name no crate become Unrelated issues, and output
// without any recognisable diagnostic yields a single Unrelated issue holding
// its tail. Parse never fails.
func Parse(raw string) []Issue {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	p := &parser{crates: make(map[string]int), unrelated: make(map[string]bool)}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		if m := conflictRe.FindStringSubmatch(line); m != nil && validCrate(m[1]) {
			p.add(Issue{Kind: Conflict, Crate: m[1], Requirers: inlineRequirers(m[2]), Raw: line})
			continue
		}

		if m := selectRe.FindStringSubmatch(line); m != nil {
			crate, requirement := m[1], ""
			if r := requirementRe.FindStringSubmatch(m[1]); r != nil {
				crate, requirement = r[1], r[2]
			}
			end := blockEnd(lines, i+1)
			if validCrate(crate) {
				p.add(Issue{
					Kind:      Conflict,
					Crate:     crate,
					Requirers: blockRequirers(lines[i+1:end], crate, requirement),
					Raw:       line,
				})
				i = end - 1
				continue
			}
		}

		if crate, ok := matchMissing(line); ok {
			p.add(Issue{Kind: Missing, Crate: crate, Raw: line})
			continue
		}

		if errorLineRe.MatchString(line) {
			p.add(Issue{Kind: Unrelated, Raw: line})
		}
	}

	if len(p.issues) == 0 {
		return []Issue{{Kind: Unrelated, Raw: tail(lines)}}
	}
	return p.issues
}

type parser struct {
	issues    []Issue
	crates    map[string]int
	unrelated map[string]bool
}

func (p *parser) add(is Issue) {
	if is.Kind == Unrelated {
		if p.unrelated[is.Raw] {
			return
		}
		p.unrelated[is.Raw] = true
		p.issues = append(p.issues, is)
		return
	}

	key := integrations.NormalizeCrateName(is.Crate)
	idx, ok := p.crates[key]
	if !ok {
		p.crates[key] = len(p.issues)
		p.issues = append(p.issues, is)
		return
	}

	existing := &p.issues[idx]
	if is.Kind == Conflict {
		existing.Kind = Conflict
	}
	for _, r := range is.Requirers {
		if !hasRequirer(existing.Requirers, r) {
			existing.Requirers = append(existing.Requirers, r)
		}
	}
}

func hasRequirer(rs []Requirer, r Requirer) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

func matchMissing(line string) (string, bool) {
	for _, re := range missingPatterns {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		// Import paths name the crate by their first segment.
		crate, _, _ := strings.Cut(m[1], "::")
		if validCrate(crate) {
			return crate, true
		}
	}
	return "", false
}

// inlineRequirers parses "dependent A needs R1, dependent B needs R2".
// Requirements may themselves contain commas (">=1, <2").
func inlineRequirers(s string) []Requirer {
	locs := dependentRe.FindAllStringSubmatchIndex(s, -1)
	var out []Requirer
	for i, loc := range locs {
		end := len(s)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		req := strings.TrimSpace(s[loc[1]:end])
		req = strings.TrimSuffix(req, ",")
		req = strings.TrimSpace(strings.TrimSuffix(req, " and"))
		req = strings.Trim(req, "`\"")
		r := Requirer{Dependent: s[loc[2]:loc[3]], Requirement: req}
		if !hasRequirer(out, r) {
			out = append(out, r)
		}
	}
	return out
}

// blockRequirers collects the dependents cargo lists under a
// "failed to select a version" error.
func blockRequirers(block []string, crate, requirement string) []Requirer {
	var (
		out     []Requirer
		pending string
	)
	addReq := func(r Requirer) {
		if r.Dependent != "" && !hasRequirer(out, r) {
			out = append(out, r)
		}
	}

	for _, line := range block {
		if m := requiredByRe.FindStringSubmatch(line); m != nil && pending == "" {
			pending = m[1]
		}
		if m := meetsRe.FindStringSubmatch(line); m != nil {
			addReq(Requirer{Dependent: pending, Requirement: m[1]})
			pending = ""
		}
		if m := satisfiesRe.FindStringSubmatch(line); m != nil && integrations.NormalizeCrateName(m[1]) == integrations.NormalizeCrateName(crate) {
			addReq(Requirer{Dependent: m[3], Requirement: m[2]})
		}
	}
	if pending != "" && requirement != "" {
		addReq(Requirer{Dependent: pending, Requirement: requirement})
	}
	return out
}

// blockEnd returns the index of the next error line at or after start.
func blockEnd(lines []string, start int) int {
	for i := start; i < len(lines); i++ {
		if errorLineRe.MatchString(lines[i]) {
			return i
		}
	}
	return len(lines)
}

func tail(lines []string) string {
	var kept []string
	for i := len(lines) - 1; i >= 0 && len(kept) < tailLines; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return "build failed without output"
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}

func validCrate(name string) bool {
	return errors.ValidateCratesPackageName(name) == nil
}
