package received

import (
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// timestampPattern pairs a layout with a prefix matcher, so text trailing a
// valid date (comments, mangled zone suffixes) does not defeat the layout
type timestampPattern struct {
	prefix *regexp.Regexp
	layout string
}

var timestampPatterns = []timestampPattern{
	{
		prefix: regexp.MustCompile(`^[A-Za-z]{3}, \d{1,2} [A-Za-z]{3} \d{4} \d{1,2}:\d{2}:\d{2} [+-]\d{4} \([A-Za-z]+\)`),
		layout: "Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	},
	{
		prefix: regexp.MustCompile(`^[A-Za-z]{3}, \d{1,2} [A-Za-z]{3} \d{4} \d{1,2}:\d{2}:\d{2} [+-]\d{4}`),
		layout: "Mon, 2 Jan 2006 15:04:05 -0700",
	},
	{
		prefix: regexp.MustCompile(`^[A-Za-z]{3}, \d{1,2} [A-Za-z]{3} \d{4} \d{1,2}:\d{2}:\d{2} [A-Z]{3,4}\b`),
		layout: "Mon, 2 Jan 2006 15:04:05 MST",
	},
	{
		prefix: regexp.MustCompile(`^\d{1,2} [A-Za-z]{3} \d{4} \d{1,2}:\d{2}:\d{2} [+-]\d{4}`),
		layout: "2 Jan 2006 15:04:05 -0700",
	},
	{
		prefix: regexp.MustCompile(`^\d{1,2} [A-Za-z]{3} \d{4} \d{1,2}:\d{2}:\d{2} [A-Z]{3,4}\b`),
		layout: "2 Jan 2006 15:04:05 MST",
	},
}

// ParseTimestamp parses the date after the last ";" of a Received value.
// It returns nil for a blank timestamp and an error naming the text when no
// pattern matches.
func ParseTimestamp(raw string) (*time.Time, error) {
	ts := strings.Join(strings.Fields(raw), " ")
	if ts == "" {
		return nil, nil
	}
	for _, p := range timestampPatterns {
		prefix := p.prefix.FindString(ts)
		if prefix == "" {
			continue
		}
		t, err := time.Parse(p.layout, prefix)
		if err != nil {
			continue
		}
		return &t, nil
	}
	return nil, eris.Errorf("could not match %q with the available timestamp patterns", strings.TrimSpace(raw))
}
