// Package filter renders LDAP search filters from templates with
// placeholder substitution and injection-safe escaping.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// InvalidVariableError indicates that a template references a variable
// that was not supplied at render time.
type InvalidVariableError struct {
	Name string
}

func (e *InvalidVariableError) Error() string {
	return fmt.Sprintf("filter template references unknown variable %q", e.Name)
}

// IsInvalidVariable reports whether err is an InvalidVariableError.
func IsInvalidVariable(err error) bool {
	var e *InvalidVariableError
	return errors.As(err, &e)
}

// segment is one parsed piece of a template: either a literal run of
// text or a {{name}} placeholder.
type segment struct {
	literal  string
	variable string
}

// Template is a parsed filter template. Parsing happens once at
// configure time; Render substitutes and escapes per request.
type Template struct {
	raw      string
	segments []segment
}

// Parse splits a template string into literal and placeholder segments.
// A placeholder is "{{" followed by a non-empty identifier (any
// characters except '}') and "}}". Text that only looks like a
// placeholder ("{{" with no matching "}}", or an empty "{{}}") is kept
// as a literal, matching how a non-greedy substitution would leave it
// untouched.
func Parse(raw string) *Template {
	t := &Template{raw: raw}

	rest := raw
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			break
		}
		closing := strings.Index(rest[open+2:], "}}")
		if closing < 0 {
			break
		}
		name := rest[open+2 : open+2+closing]
		if name == "" || strings.ContainsRune(name, '}') {
			// Not a well-formed placeholder. Emit up to and including
			// the opening braces as literal and keep scanning.
			t.appendLiteral(rest[:open+2])
			rest = rest[open+2:]
			continue
		}
		if open > 0 {
			t.appendLiteral(rest[:open])
		}
		t.segments = append(t.segments, segment{variable: name})
		rest = rest[open+2+closing+2:]
	}
	if rest != "" {
		t.appendLiteral(rest)
	}

	return t
}

func (t *Template) appendLiteral(s string) {
	// Coalesce adjacent literals so Render concatenates a minimal set.
	if n := len(t.segments); n > 0 && t.segments[n-1].variable == "" {
		t.segments[n-1].literal += s
		return
	}
	t.segments = append(t.segments, segment{literal: s})
}

// Variables returns the placeholder names in order of first appearance.
func (t *Template) Variables() []string {
	var names []string
	seen := make(map[string]bool)
	for _, seg := range t.segments {
		if seg.variable != "" && !seen[seg.variable] {
			seen[seg.variable] = true
			names = append(names, seg.variable)
		}
	}
	return names
}

// String returns the raw template text.
func (t *Template) String() string {
	return t.raw
}

// Render substitutes every placeholder with the escaped value from
// vars. A placeholder whose variable is absent from vars fails with
// InvalidVariableError; escaping neutralizes filter metacharacters so
// attacker-controlled values cannot widen the filter's match set.
func (t *Template) Render(vars map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(t.raw))

	for _, seg := range t.segments {
		if seg.variable == "" {
			b.WriteString(seg.literal)
			continue
		}
		value, ok := vars[seg.variable]
		if !ok {
			return "", &InvalidVariableError{Name: seg.variable}
		}
		b.WriteString(EscapeValue(value))
	}

	return b.String(), nil
}

// EscapeValue escapes a value for safe inclusion in a search filter.
// Parentheses, asterisk, backslash and NUL are hex-escaped per RFC 4515;
// leading and trailing whitespace is hex-escaped as well so values
// survive servers that trim assertion values.
func EscapeValue(value string) string {
	escaped := ldap.EscapeFilter(value)

	// EscapeFilter leaves spaces alone; escape them at the edges only.
	start := 0
	for start < len(escaped) && escaped[start] == ' ' {
		start++
	}
	end := len(escaped)
	for end > start && escaped[end-1] == ' ' {
		end--
	}
	if start == 0 && end == len(escaped) {
		return escaped
	}

	var b strings.Builder
	b.Grow(len(escaped) + 2*(start+len(escaped)-end))
	for i := 0; i < start; i++ {
		b.WriteString(`\20`)
	}
	b.WriteString(escaped[start:end])
	for i := end; i < len(escaped); i++ {
		b.WriteString(`\20`)
	}
	return b.String()
}
