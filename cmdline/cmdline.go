// Package cmdline edits a kernel command line the way the bootloader's
// environment does: setting an argument replaces any earlier argument with
// the same key and leaves the others alone.
package cmdline

import "strings"

// Args is an ordered kernel command line.
type Args struct {
	fields []string
}

// Parse splits s into arguments. Whitespace inside double quotes doesn't split.
func Parse(s string) *Args {
	return &Args{fields: split(s)}
}

// String joins the arguments with single spaces.
func (a *Args) String() string {
	if a == nil {
		return ""
	}

	return strings.Join(a.fields, " ")
}

// Fields returns a copy of the arguments.
func (a *Args) Fields() []string {
	return append([]string(nil), a.fields...)
}

// Len returns the number of arguments.
func (a *Args) Len() int {
	return len(a.fields)
}

// Get returns the value of the last argument with the given key. A bare
// argument like "quiet" has an empty value.
func (a *Args) Get(k string) (string, bool) {
	for i := len(a.fields) - 1; i >= 0; i-- {
		if key(a.fields[i]) == k {
			_, v, _ := strings.Cut(a.fields[i], "=")
			return v, true
		}
	}

	return "", false
}

// Update sets every argument in s. An argument whose key is already present
// replaces the first occurrence in place and drops later duplicates; a new
// key is appended.
func (a *Args) Update(s string) {
	for _, f := range split(s) {
		a.set(f)
	}
}

func (a *Args) set(f string) {
	k := key(f)
	out := a.fields[:0]
	found := false

	for _, g := range a.fields {
		if key(g) != k {
			out = append(out, g)
			continue
		}

		if !found {
			out = append(out, f)
			found = true
		}
	}

	if !found {
		out = append(out, f)
	}

	a.fields = out
}

func key(f string) string {
	k, _, _ := strings.Cut(f, "=")
	return k
}

func split(s string) []string {
	var (
		fields []string
		cur    strings.Builder
		quoted bool
	)

	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}

	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case !quoted && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}

	flush()
	return fields
}
