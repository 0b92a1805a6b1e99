// Package template implements pure, thread-safe {{name}} substitution.
// It never rejects input; unresolved tokens are left intact.
package template

import "strings"

// Template declares subject/body_html/body_text source strings plus the
// variable names callers may want to validate are present before rendering
// (validation is the caller's choice; Render never rejects).
type Template struct {
	Subject         string
	BodyHTML        string
	BodyText        string
	RequiredVariables []string
}

// Rendered is the output of substituting a variable map into a Template.
type Rendered struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// Render substitutes every `{{key}}` occurrence found in vars; any token
// without a matching key is left intact, never erroring.
func Render(t Template, vars map[string]string) Rendered {
	return Rendered{
		Subject:  substitute(t.Subject, vars),
		BodyHTML: substitute(t.BodyHTML, vars),
		BodyText: substitute(t.BodyText, vars),
	}
}

func substitute(s string, vars map[string]string) string {
	if s == "" || len(vars) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for {
		start := strings.Index(s, "{{")
		if start == -1 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}}")
		if end == -1 {
			b.WriteString(s)
			break
		}
		end += start

		b.WriteString(s[:start])
		key := strings.TrimSpace(s[start+2 : end])
		if val, ok := vars[key]; ok {
			b.WriteString(val)
		} else {
			// Unresolved token: left intact.
			b.WriteString(s[start : end+2])
		}
		s = s[end+2:]
	}
	return b.String()
}

// MissingVariables reports which of t.RequiredVariables are absent from
// vars. Callers may use this to validate before rendering; Render itself
// never rejects.
func MissingVariables(t Template, vars map[string]string) []string {
	var missing []string
	for _, name := range t.RequiredVariables {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
