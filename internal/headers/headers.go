// Package headers splits a raw message into its header block and body and
// builds an ordered, multi-valued header map.
package headers

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// LineEnding is the line terminator a message was written with
type LineEnding string

const (
	Unix LineEnding = "\n"
	DOS  LineEnding = "\r\n"
)

// ParseLineEnding maps the "unix" and "dos" names to a LineEnding
func ParseLineEnding(name string) (LineEnding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "unix":
		return Unix, nil
	case "dos":
		return DOS, nil
	}
	return "", eris.Errorf("unknown line ending %q (expected unix or dos)", name)
}

func (le LineEnding) Name() string {
	if le == DOS {
		return "dos"
	}
	return "unix"
}

// Header is one header line. Position counts the header lines below it in
// the unfolded block, so the topmost header has the highest position.
type Header struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Raw      string `json:"raw"`
	Position int    `json:"position"`
}

// Store holds headers grouped by normalized name
type Store struct {
	byName map[string][]Header
	names  []string
}

// Split separates the header block from the body at the first blank line
func Split(raw string, le LineEnding) (string, string, bool) {
	sep := string(le) + string(le)
	idx := strings.Index(raw, sep)
	if idx == -1 {
		return "", "", false
	}
	return raw[:idx], raw[idx+len(sep):], true
}

// NormalizeName lower-cases a header name and replaces "-" with "_"
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

// Unfold joins continuation lines onto the header line they continue
func Unfold(block string, le LineEnding) string {
	re := regexp.MustCompile(regexp.QuoteMeta(string(le)) + `[ \t]+`)
	return re.ReplaceAllString(block, " ")
}

// Parse builds a Store from a header block
func Parse(block string, le LineEnding) *Store {
	s := &Store{byName: map[string][]Header{}}

	lines := strings.Split(Unfold(block, le), string(le))
	for i, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		key := NormalizeName(name)
		if _, seen := s.byName[key]; !seen {
			s.names = append(s.names, key)
		}
		raw := strings.TrimSpace(value)
		s.byName[key] = append(s.byName[key], Header{
			Name:     key,
			Value:    DecodeValue(raw),
			Raw:      raw,
			Position: len(lines) - i - 1,
		})
	}

	return s
}

// Get returns every header with the given name, topmost first
func (s *Store) Get(name string) []Header {
	return s.byName[NormalizeName(name)]
}

// Values returns the decoded values of a header, topmost first
func (s *Store) Values(name string) []string {
	headers := s.Get(name)
	values := make([]string, 0, len(headers))
	for _, h := range headers {
		values = append(values, h.Value)
	}
	return values
}

// First returns the decoded value of the topmost header with the given name
func (s *Store) First(name string) string {
	if headers := s.Get(name); len(headers) > 0 {
		return headers[0].Value
	}
	return ""
}

// Names lists header names in order of first appearance
func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

// Collect gathers the headers of several names into one list restored to
// top-down message order
func (s *Store) Collect(names ...string) []Header {
	var out []Header
	for _, n := range names {
		out = append(out, s.Get(n)...)
	}
	RestoreOrder(out)
	return out
}

// RestoreOrder sorts headers by descending position, which is top-down
// order in the original message
func RestoreOrder(headers []Header) {
	sort.SliceStable(headers, func(i, j int) bool {
		return headers[i].Position > headers[j].Position
	})
}

// Map returns the decoded values keyed by normalized name
func (s *Store) Map() map[string][]string {
	out := make(map[string][]string, len(s.byName))
	for _, n := range s.names {
		out[n] = s.Values(n)
	}
	return out
}
