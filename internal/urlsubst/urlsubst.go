// Package urlsubst expands $name and ${name} occurrences in a URL using an
// ordered variable mapping (spec.md §4.E). Grounded on original_source's
// url_substitution.c, re-expressed without its GLib string-builder idiom.
package urlsubst

import "strings"

// Var is one substitution entry. Order matters only in that earlier entries
// are tried first when variable names could overlap as prefixes of one
// another; spec.md requires the longest matching name to win, so Vars
// should be supplied longest-name-first when ambiguity is possible (see
// Sort).
type Var struct {
	Name  string
	Value string
}

// Vars is an ordered, caller-managed mapping of $name substitutions.
type Vars []Var

// Substitute expands every $name/${name} occurrence in s. An unresolved $
// (no matching variable name follows it) is left verbatim in the output,
// and an empty Vars is the identity transform. The longest matching
// variable name wins when multiple names share a prefix, matching
// spec.md's "longest-prefix variable name wins" rule; greedy recognition
// walks forward from each $.
func Substitute(s string, vars Vars) string {
	if len(vars) == 0 {
		return s
	}

	var out strings.Builder
	out.Grow(len(s))

	i := 0
	for i < len(s) {
		if s[i] != '$' {
			out.WriteByte(s[i])
			i++
			continue
		}

		rest := s[i+1:]
		braced := strings.HasPrefix(rest, "{")
		name := rest
		if braced {
			name = rest[1:]
		}

		if braced {
			// "${name}" requires a matching variable whose name is
			// immediately followed by '}'.
			if v, n, ok := longestMatchWithTerminator(name, vars, '}'); ok {
				out.WriteString(v)
				i += 1 + 1 + n + 1 // '$' + '{' + name + '}'
				continue
			}
		} else if v, n, ok := longestMatch(name, vars); ok {
			out.WriteString(v)
			i += 1 + n // '$' + name
			continue
		}

		// No variable matched: emit the '$' verbatim and continue scanning
		// from the next rune so a following '$' can still match.
		out.WriteByte('$')
		i++
	}

	return out.String()
}

// longestMatch finds, among vars, the longest Name that is a prefix of s,
// returning its Value and the number of bytes of s it consumed.
func longestMatch(s string, vars Vars) (value string, n int, ok bool) {
	bestLen := -1
	for _, v := range vars {
		if v.Name == "" {
			continue
		}
		if strings.HasPrefix(s, v.Name) && len(v.Name) > bestLen {
			bestLen = len(v.Name)
			value = v.Value
			ok = true
		}
	}
	return value, bestLen, ok
}

// longestMatchWithTerminator is like longestMatch but only accepts a
// variable name when it is immediately followed by term in s, as required
// by the "${name}" braced form.
func longestMatchWithTerminator(s string, vars Vars, term byte) (value string, n int, ok bool) {
	bestLen := -1
	for _, v := range vars {
		if v.Name == "" {
			continue
		}
		if !strings.HasPrefix(s, v.Name) {
			continue
		}
		if len(s) <= len(v.Name) || s[len(v.Name)] != term {
			continue
		}
		if len(v.Name) > bestLen {
			bestLen = len(v.Name)
			value = v.Value
			ok = true
		}
	}
	return value, bestLen, ok
}
