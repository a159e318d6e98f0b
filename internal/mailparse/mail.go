package mailparse

import (
	"regexp"
	"strings"

	"github.com/charlesgreen/emailtrace/internal/authres"
	"github.com/charlesgreen/emailtrace/internal/body"
	"github.com/charlesgreen/emailtrace/internal/headers"
	"github.com/charlesgreen/emailtrace/internal/received"
)

// Tracing holds the Received and X-Received records, topmost first
type Tracing struct {
	Received []received.Record `json:"received"`
}

// Authentication holds the verdict headers, topmost first
type Authentication struct {
	AuthenticationResults []authres.AuthResults `json:"authentication_results"`
	ReceivedSPF           []authres.SPF         `json:"received_spf"`
}

// Mail is a parsed message
type Mail struct {
	Headers        *headers.Store `json:"-"`
	OriginalHeader string         `json:"-"`
	OriginalBody   string         `json:"-"`
	Tracing        Tracing        `json:"tracing"`
	Authentication Authentication `json:"authentication"`
	Body           *body.Body     `json:"body,omitempty"`
}

var angleAddress = regexp.MustCompile(`<([^>]+)>`)

// ReplyToAddresses returns the unique, lower-cased addresses named by every
// Reply-To header, in order of appearance
func (m *Mail) ReplyToAddresses() []string {
	var out []string
	seen := map[string]bool{}
	for _, value := range m.Headers.Values("reply_to") {
		for _, entry := range strings.Split(value, ",") {
			if sm := angleAddress.FindStringSubmatch(entry); sm != nil {
				entry = sm[1]
			}
			addr := strings.ToLower(strings.TrimSpace(entry))
			if addr == "" || seen[addr] {
				continue
			}
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

// HypertextLinks returns the links of the HTML body. A message without an
// HTML part has none.
func (m *Mail) HypertextLinks() ([]body.Link, error) {
	if m.Body == nil {
		return nil, nil
	}
	return body.Links(m.Body.HTML)
}
