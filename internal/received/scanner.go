package received

import (
	"regexp"
	"strings"
)

type component int

const (
	noComponent component = iota
	fromComponent
	byComponent
	forComponent
)

var markers = map[string]component{
	"from": fromComponent,
	"by":   byComponent,
	"for":  forComponent,
}

// blockers lists, per component, the components whose presence stops its
// marker word from starting it. The words show up inside free text often
// enough that re-triggering would split one component in two.
var blockers = map[component][]component{
	fromComponent: {byComponent, forComponent},
	byComponent:   {forComponent},
}

var exchangeTLS = regexp.MustCompile(`with Microsoft SMTP Server (\([^)]*\))`)

// Components are the text spans of a Received value. A span is empty when
// the value has no such component.
type Components struct {
	From     string
	By       string
	For      string
	StartTLS string
}

type scanner struct {
	current  component
	tokens   map[component][]string
	leftover []string
}

func (s *scanner) started(c component) bool {
	return len(s.tokens[c]) > 0
}

func (s *scanner) canStart(c component) bool {
	if s.started(c) {
		return false
	}
	for _, b := range blockers[c] {
		if s.started(b) {
			return false
		}
	}
	return true
}

func (s *scanner) add(tok string) {
	if s.current == noComponent {
		s.leftover = append(s.leftover, tok)
		return
	}
	s.tokens[s.current] = append(s.tokens[s.current], tok)
}

func parenDelta(tok string) int {
	return strings.Count(tok, "(") - strings.Count(tok, ")")
}

// Scan splits the part of a Received value before its timestamp into
// components. Marker words inside parentheses never start a component.
func Scan(value string) Components {
	s := &scanner{tokens: map[component][]string{}}
	toks := strings.Fields(value)

	i := 0
	if len(toks) > 0 && toks[0] == "(from" {
		s.current = fromComponent
		depth := 0
		for i < len(toks) {
			s.add(toks[i])
			depth += parenDelta(toks[i])
			i++
			if depth <= 0 {
				break
			}
		}
	}

	depth := 0
	for ; i < len(toks); i++ {
		tok := toks[i]
		if c, ok := markers[tok]; ok && depth == 0 && s.canStart(c) {
			s.current = c
		}
		s.add(tok)
		if depth += parenDelta(tok); depth < 0 {
			depth = 0
		}
	}

	return s.components()
}

func (s *scanner) components() Components {
	byToks := s.tokens[byComponent]
	forToks := s.tokens[forComponent]

	// Without a for component, a comment after the id closes the by span
	var byTail []string
	if len(forToks) == 0 {
		if i := commentAfterID(byToks); i > 0 {
			byToks, byTail = byToks[:i], byToks[i:]
		}
	}

	out := Components{
		From: strings.Join(s.tokens[fromComponent], " "),
		By:   strings.Join(byToks, " "),
	}
	starttls := s.leftover

	if m := exchangeTLS.FindStringSubmatch(out.By); m != nil {
		starttls = append(starttls, m[1])
	}
	starttls = append(starttls, byTail...)

	if len(forToks) > 0 {
		end := mailboxEnd(forToks)
		out.For = strings.Join(forToks[:end], " ")
		starttls = append(starttls, forToks[end:]...)
	}

	out.StartTLS = strings.Join(starttls, " ")
	return out
}

// commentAfterID returns the index of a parenthesized token directly after
// the first "id <x>" pair outside parentheses, or -1
func commentAfterID(toks []string) int {
	depth := 0
	for i, tok := range toks {
		if depth == 0 && strings.EqualFold(tok, "id") && i+2 < len(toks) {
			if strings.HasPrefix(toks[i+2], "(") {
				return i + 2
			}
			return -1
		}
		if depth += parenDelta(tok); depth < 0 {
			depth = 0
		}
	}
	return -1
}

// mailboxEnd returns the index just past the mailbox that follows the "for"
// marker. An angle-bracketed mailbox may contain spaces.
func mailboxEnd(toks []string) int {
	if len(toks) < 2 {
		return len(toks)
	}
	if !strings.HasPrefix(toks[1], "<") || strings.Contains(toks[1], ">") {
		return 2
	}
	for i := 2; i < len(toks); i++ {
		if strings.Contains(toks[i], ">") {
			return i + 1
		}
	}
	return len(toks)
}
