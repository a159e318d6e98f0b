// Package grammar evaluates ordered catalogues of fallback patterns against
// free-text header fragments. Fields are read from named capture groups and
// the first pattern that matches wins.
package grammar

import "regexp"

// Grammar is one named entry of a catalogue
type Grammar struct {
	Name string
	re   *regexp.Regexp
}

// New compiles pattern and panics if it is invalid, like regexp.MustCompile
func New(name, pattern string) Grammar {
	return Grammar{Name: name, re: regexp.MustCompile(pattern)}
}

// Fields holds the named groups of a successful match. Groups that did not
// take part in the match are absent.
type Fields map[string]string

// Match applies the grammar anywhere in s
func (g Grammar) Match(s string) (Fields, bool) {
	m := g.re.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	out := Fields{}
	for i, name := range g.re.SubexpNames() {
		if name != "" && m[i] != "" {
			out[name] = m[i]
		}
	}
	return out, true
}

// Catalogue is an ordered list of fallback grammars
type Catalogue []Grammar

// First tries each grammar in order and commits to the first that matches
func (c Catalogue) First(s string) (Grammar, Fields, bool) {
	for _, g := range c {
		if f, ok := g.Match(s); ok {
			return g, f, true
		}
	}
	return Grammar{}, nil, false
}

// Names lists the grammar names in evaluation order
func (c Catalogue) Names() []string {
	names := make([]string, 0, len(c))
	for _, g := range c {
		names = append(names, g.Name)
	}
	return names
}
