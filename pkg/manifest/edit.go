package manifest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/matzehuels/winch/pkg/integrations"
)

var (
	headerRe  = regexp.MustCompile(`^\s*\[\s*([^\[\]]+?)\s*\]\s*(#.*)?$`)
	arrayRe   = regexp.MustCompile(`^\s*\[\[`)
	keyLineRe = regexp.MustCompile(`^(\s*)("[^"]*"|'[^']*'|[A-Za-z0-9_-]+)(?:\s*\.\s*("[^"]*"|'[^']*'|[A-Za-z0-9_-]+))?\s*=\s*(.*)$`)

	inlineVersionRe   = regexp.MustCompile(`([{,]\s*)version(\s*=\s*)(["'])([^"']*)(["'])`)
	inlineWorkspaceRe = regexp.MustCompile(`[{,]\s*workspace\s*=\s*true`)
	inlinePackageRe   = regexp.MustCompile(`[{,]\s*package\s*=\s*["']([^"']*)["']`)
)

// document is a manifest split into lines. Lines keep any trailing "\r" so
// that untouched content is reproduced byte for byte.
type document struct {
	lines    []string
	crlf     bool
	trailing bool
}

func parseDocument(data []byte) *document {
	s := string(data)
	d := &document{crlf: strings.Contains(s, "\r\n")}
	if s == "" {
		return d
	}
	d.lines = strings.Split(s, "\n")
	if last := len(d.lines) - 1; d.lines[last] == "" {
		d.trailing = true
		d.lines = d.lines[:last]
	}
	return d
}

func (d *document) bytes() []byte {
	s := strings.Join(d.lines, "\n")
	if d.trailing {
		s += "\n"
	}
	return []byte(s)
}

// line builds a new line in the document's line-ending style.
func (d *document) line(text string) string {
	if d.crlf {
		return text + "\r"
	}
	return text
}

type tableKind int

const (
	otherTable tableKind = iota
	depsTable            // [dependencies], [target.'cfg(..)'.dev-dependencies], ...
	crateTable           // [dependencies.serde]
)

type section struct {
	kind   tableKind
	crate  string
	plain  bool // the top-level [dependencies] table
	header int
}

func isDepsName(s string) bool {
	return s == "dependencies" || s == "dev-dependencies" || s == "build-dependencies"
}

func classify(path []string, header int) section {
	sec := section{header: header}
	switch {
	case len(path) == 1 && isDepsName(path[0]):
		sec.kind, sec.plain = depsTable, path[0] == "dependencies"
	case len(path) == 2 && isDepsName(path[0]):
		sec.kind, sec.crate = crateTable, path[1]
	case len(path) == 3 && path[0] == "target" && isDepsName(path[2]):
		sec.kind = depsTable
	case len(path) == 4 && path[0] == "target" && isDepsName(path[2]):
		sec.kind, sec.crate = crateTable, path[3]
	}
	return sec
}

// splitKey splits a dotted TOML key, honouring quoted segments.
func splitKey(key string) []string {
	var (
		parts []string
		cur   strings.Builder
		quote rune
	)
	for _, r := range key {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '.':
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(parts, strings.TrimSpace(cur.String()))
}

func unquote(key string) string {
	if len(key) >= 2 && (key[0] == '"' || key[0] == '\'') && key[len(key)-1] == key[0] {
		return key[1 : len(key)-1]
	}
	return key
}

// SameCrate reports whether two crate names refer to the same package.
// Cargo treats '-' and '_' as equivalent.
func SameCrate(a, b string) bool {
	return integrations.NormalizeCrateName(a) == integrations.NormalizeCrateName(b)
}

type insertion struct {
	at   int
	text string
}

type editor struct {
	doc     *document
	name    string
	version string

	found   bool
	inserts []insertion

	sec        section
	dottedAt   int
	dottedKey  string
	dottedPad  string
	hasVersion bool

	depsHeader int // header line of the top-level [dependencies] table, -1 if absent
	depsLast   int // last content line of that table
}

// setVersion rewrites every declaration of name so that it requires version.
// Undeclared crates are added to [dependencies].
func (d *document) setVersion(name, version string) error {
	e := &editor{doc: d, name: name, version: version, dottedAt: -1, depsHeader: -1, depsLast: -1}

	var multiline string
	for i, raw := range d.lines {
		text := strings.TrimSuffix(raw, "\r")

		if multiline != "" {
			if strings.Contains(text, multiline) {
				multiline = ""
			}
			continue
		}

		if arrayRe.MatchString(text) {
			e.flush()
			e.sec = section{header: i}
			continue
		}
		if m := headerRe.FindStringSubmatch(text); m != nil {
			e.flush()
			e.sec = classify(splitKey(m[1]), i)
			if e.sec.plain && e.depsHeader < 0 {
				e.depsHeader, e.depsLast = i, i
			}
			if e.sec.kind == crateTable && SameCrate(e.sec.crate, name) {
				e.found = true
			}
			continue
		}

		if e.sec.plain && e.sec.header == e.depsHeader {
			if trimmed := strings.TrimSpace(text); trimmed != "" && !strings.HasPrefix(trimmed, "#") {
				e.depsLast = i
			}
		}

		if err := e.editLine(i, text, raw != text); err != nil {
			return err
		}
		multiline = openMultiline(text)
	}
	e.flush()

	if !e.found {
		e.addDependency()
	}

	for i := len(e.inserts) - 1; i >= 0; i-- {
		in := e.inserts[i]
		d.lines = append(d.lines[:in.at], append([]string{d.line(in.text)}, d.lines[in.at:]...)...)
	}
	return nil
}

func openMultiline(text string) string {
	for _, delim := range []string{`"""`, `'''`} {
		if strings.Count(text, delim)%2 == 1 {
			return delim
		}
	}
	return ""
}

func (e *editor) editLine(i int, text string, cr bool) error {
	m := keyLineRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	pad, key, sub, value := m[1], unquote(m[2]), unquote(m[3]), m[4]
	prefix := text[:len(text)-len(value)]

	var (
		out string
		err error
	)
	switch e.sec.kind {
	case crateTable:
		if !SameCrate(e.sec.crate, e.name) || m[3] != "" {
			return nil
		}
		switch key {
		case "version":
			e.hasVersion = true
			out, err = replaceString(value, e.version)
		case "workspace":
			if strings.HasPrefix(value, "true") {
				return errWorkspace(e.name)
			}
			return nil
		default:
			return nil
		}

	case depsTable:
		matchesKey := SameCrate(key, e.name)
		if m[3] == "" {
			if !matchesKey && !renamedTo(value, e.name) {
				return nil
			}
			e.found = true
			out, err = e.rewriteValue(value)
			break
		}
		if !matchesKey {
			return nil
		}
		e.found = true
		switch sub {
		case "version":
			e.hasVersion = true
			out, err = replaceString(value, e.version)
		case "workspace":
			if strings.HasPrefix(value, "true") {
				return errWorkspace(e.name)
			}
			e.dottedAt, e.dottedKey, e.dottedPad = i, m[2], pad
			return nil
		default:
			e.dottedAt, e.dottedKey, e.dottedPad = i, m[2], pad
			return nil
		}

	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("line %d: %w", i+1, err)
	}

	e.doc.lines[i] = prefix + out
	if cr {
		e.doc.lines[i] += "\r"
	}
	return nil
}

// flush closes the current section, scheduling a version key for crate
// tables and dotted declarations that lack one.
func (e *editor) flush() {
	switch {
	case e.sec.kind == crateTable && SameCrate(e.sec.crate, e.name) && !e.hasVersion:
		e.inserts = append(e.inserts, insertion{
			at:   e.sec.header + 1,
			text: fmt.Sprintf("version = %q", e.version),
		})
	case e.sec.kind == depsTable && e.dottedAt >= 0 && !e.hasVersion:
		e.inserts = append(e.inserts, insertion{
			at:   e.dottedAt + 1,
			text: fmt.Sprintf("%s%s.version = %q", e.dottedPad, e.dottedKey, e.version),
		})
	}
	e.dottedAt, e.dottedKey, e.dottedPad = -1, "", ""
	e.hasVersion = false
}

func (e *editor) addDependency() {
	entry := fmt.Sprintf("%s = %q", e.name, e.version)
	if e.depsHeader >= 0 {
		e.inserts = append(e.inserts, insertion{at: e.depsLast + 1, text: entry})
		return
	}
	d := e.doc
	if n := len(d.lines); n > 0 && strings.TrimSpace(d.lines[n-1]) != "" {
		d.lines = append(d.lines, d.line(""))
	}
	d.lines = append(d.lines, d.line("[dependencies]"), d.line(entry))
	d.trailing = true
}

func (e *editor) rewriteValue(value string) (string, error) {
	switch {
	case strings.HasPrefix(value, `"`), strings.HasPrefix(value, `'`):
		return replaceString(value, e.version)
	case strings.HasPrefix(value, "{"):
		return e.rewriteInline(value)
	default:
		return "", fmt.Errorf("unsupported requirement for %s: %s", e.name, value)
	}
}

func (e *editor) rewriteInline(value string) (string, error) {
	if loc := inlineVersionRe.FindStringSubmatchIndex(value); loc != nil {
		// Groups: 3=open quote, 4=requirement, 5=close quote.
		start, end := loc[8], loc[9]
		return value[:start] + e.version + value[end:], nil
	}
	if inlineWorkspaceRe.MatchString(value) {
		return "", errWorkspace(e.name)
	}
	rest := strings.TrimLeft(value[1:], " \t")
	if strings.HasPrefix(rest, "}") {
		return fmt.Sprintf("{ version = %q }", e.version) + rest[1:], nil
	}
	return fmt.Sprintf("{ version = %q, ", e.version) + rest, nil
}

func renamedTo(value, name string) bool {
	if !strings.HasPrefix(value, "{") {
		return false
	}
	m := inlinePackageRe.FindStringSubmatch(value)
	return m != nil && SameCrate(m[1], name)
}

// replaceString swaps the contents of the string literal value starts with,
// keeping its quote style and everything after it.
func replaceString(value, version string) (string, error) {
	if strings.HasPrefix(value, `"""`) || strings.HasPrefix(value, `'''`) {
		return "", fmt.Errorf("multi-line string requirement")
	}
	if value == "" || (value[0] != '"' && value[0] != '\'') {
		return "", fmt.Errorf("requirement is not a string: %s", value)
	}
	q := value[0]
	end := strings.IndexByte(value[1:], q)
	if end < 0 {
		return "", fmt.Errorf("unterminated string: %s", value)
	}
	return string(q) + version + string(q) + value[end+2:], nil
}

func errWorkspace(name string) error {
	return fmt.Errorf("%s is inherited from the workspace; edit the workspace manifest instead", name)
}
