// Package whois finds abuse contacts and registration dates for the hosts
// and addresses that relayed a message.
package whois

import (
	"errors"
	"io"
	"strings"
	"time"

	lwhois "github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"

	"github.com/charlesgreen/emailtrace/internal/ipaddr"
	"github.com/charlesgreen/emailtrace/internal/trace"
)

// DefaultTimeout bounds a single registry query
const DefaultTimeout = 10 * time.Second

// Lookuper returns the raw registry response for a domain or address
type Lookuper interface {
	Lookup(query string) (string, error)
}

// Client queries registries over the WHOIS protocol
type Client struct {
	client *lwhois.Client
}

// NewClient returns a Client. A non-positive timeout uses DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := lwhois.NewClient()
	c.SetTimeout(timeout)
	return &Client{client: c}
}

func (c *Client) Lookup(query string) (string, error) {
	text, err := c.client.Whois(query)
	if err != nil {
		return "", eris.Wrapf(err, "whois query for %s failed", query)
	}
	return text, nil
}

// createdLayouts are the creation date formats registries commonly use
var createdLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
}

// Finder implements trace.HostInformationFinder on top of a Lookuper
type Finder struct {
	client Lookuper
	parse  func(text string) (whoisparser.WhoisInfo, error)
	log    logrus.FieldLogger
}

// NewFinder returns a Finder querying client
func NewFinder(client Lookuper, log logrus.FieldLogger) *Finder {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Finder{client: client, parse: whoisparser.Parse, log: log}
}

// InformationFor looks a public address up directly and walks a hostname
// towards its registered domain. Non-public addresses are never looked up.
func (f *Finder) InformationFor(target *ipaddr.Host) trace.HostInformation {
	info := trace.HostInformation{AbuseContacts: []string{}}
	if target == nil {
		return info
	}

	var text string
	var parsed *whoisparser.WhoisInfo
	switch addr := target.Address.(type) {
	case ipaddr.Simple:
		return info
	case ipaddr.Extended:
		t, err := f.client.Lookup(addr.String())
		if err != nil {
			f.log.WithField("ip", addr.String()).WithError(err).Warn("whois lookup failed")
			return info
		}
		text = t
	default:
		t, p, ok := f.walk(target.Name)
		if !ok {
			return info
		}
		text, parsed = t, p
	}

	info.AbuseContacts = AbuseContacts(text)
	if parsed == nil {
		if p, err := f.parse(text); err == nil {
			parsed = &p
		}
	}
	info.CreationDate = creationDate(parsed)
	return info
}

// walk drops the leftmost label while the registry reports the name as
// available and gives up once only a public suffix is left
func (f *Finder) walk(hostname string) (string, *whoisparser.WhoisInfo, bool) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(hostname)), ".")
	for name != "" {
		if suffix, _ := publicsuffix.PublicSuffix(name); suffix == name {
			f.log.WithField("host", hostname).Debug("no registered domain for host")
			return "", nil, false
		}

		text, err := f.client.Lookup(name)
		if err != nil {
			f.log.WithField("host", name).WithError(err).Warn("whois lookup failed")
			return "", nil, false
		}

		parsed, err := f.parse(text)
		switch {
		case err == nil:
			return text, &parsed, true
		case errors.Is(err, whoisparser.ErrNotFoundDomain):
			f.log.WithField("host", name).Trace("name is not registered")
		default:
			// registered, but the record format is unknown to the parser
			return text, nil, true
		}

		i := strings.IndexByte(name, '.')
		if i < 0 {
			break
		}
		name = name[i+1:]
	}
	return "", nil, false
}

func creationDate(info *whoisparser.WhoisInfo) *time.Time {
	if info == nil || info.Domain == nil || info.Domain.CreatedDate == "" {
		return nil
	}
	raw := strings.TrimSpace(info.Domain.CreatedDate)
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
