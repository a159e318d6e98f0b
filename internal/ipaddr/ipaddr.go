// Package ipaddr classifies address literals found in mail headers as
// non-routable (Simple) or public (Extended) and attaches enrichment data to
// public addresses.
package ipaddr

import (
	"encoding/json"
	"net/netip"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAddressNotFound is returned by an Enricher that has no data for an address
	ErrAddressNotFound = eris.New("address not found")
	// ErrAddressReserved is returned by an Enricher for reserved address ranges
	ErrAddressReserved = eris.New("address reserved")
)

var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

// Enrichment is supplementary geolocation and ownership data for a public address
type Enrichment struct {
	Network           string  `json:"network,omitempty"`
	City              string  `json:"city,omitempty"`
	Country           string  `json:"country,omitempty"`
	CountryCode       string  `json:"country_code,omitempty"`
	Continent         string  `json:"continent,omitempty"`
	RegisteredCountry string  `json:"registered_country,omitempty"`
	PostalCode        string  `json:"postal_code,omitempty"`
	TimeZone          string  `json:"time_zone,omitempty"`
	Latitude          float64 `json:"latitude,omitempty"`
	Longitude         float64 `json:"longitude,omitempty"`
	AccuracyRadius    uint16  `json:"accuracy_radius,omitempty"`
	ASN               uint    `json:"asn,omitempty"`
	Organization      string  `json:"organization,omitempty"`
}

// Enricher looks up enrichment data for a public address literal.
// Implementations may return ErrAddressNotFound or ErrAddressReserved.
type Enricher interface {
	Lookup(literal string) (*Enrichment, error)
}

// Address is either a Simple or an Extended address
type Address interface {
	Addr() netip.Addr
	String() string
	Equal(other Address) bool
	isAddress()
}

// Simple is a loopback or private-range address. It is never enriched.
type Simple struct {
	IP netip.Addr
}

func (s Simple) Addr() netip.Addr { return s.IP }
func (s Simple) String() string   { return s.IP.String() }
func (s Simple) isAddress()       {}

// Equal reports whether other is a Simple address with the same value
func (s Simple) Equal(other Address) bool {
	o, ok := other.(Simple)
	return ok && s.IP == o.IP
}

func (s Simple) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		IP   string `json:"ip"`
		Kind string `json:"kind"`
	}{s.IP.String(), "simple"})
}

// Extended is a public address, optionally carrying enrichment data
type Extended struct {
	IP         netip.Addr
	Enrichment *Enrichment
}

func (e Extended) Addr() netip.Addr { return e.IP }
func (e Extended) String() string   { return e.IP.String() }
func (e Extended) isAddress()       {}

// Equal compares both the address and the attached enrichment, so the same
// address enriched with different data is not equal.
func (e Extended) Equal(other Address) bool {
	o, ok := other.(Extended)
	if !ok || e.IP != o.IP {
		return false
	}
	if e.Enrichment == nil || o.Enrichment == nil {
		return e.Enrichment == o.Enrichment
	}
	return *e.Enrichment == *o.Enrichment
}

func (e Extended) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		IP         string      `json:"ip"`
		Kind       string      `json:"kind"`
		Enrichment *Enrichment `json:"enrichment,omitempty"`
	}{e.IP.String(), "extended", e.Enrichment})
}

// Equal compares two possibly-nil addresses
func Equal(a, b Address) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

// Parse parses a strict IPv4 or IPv6 literal. A CIDR suffix is tolerated and
// masks the address to its network.
func Parse(literal string) (netip.Addr, bool) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return netip.Addr{}, false
	}
	if strings.Contains(literal, "/") {
		prefix, err := netip.ParsePrefix(literal)
		if err != nil {
			return netip.Addr{}, false
		}
		return prefix.Masked().Addr(), true
	}
	addr, err := netip.ParseAddr(literal)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

// NonPublic reports whether addr is loopback or inside an RFC 1918 range
func NonPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() {
		return true
	}
	for _, p := range privateRanges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Classifier turns header literals into classified addresses
type Classifier struct {
	enricher Enricher
	log      logrus.FieldLogger
}

// NewClassifier returns a Classifier. A nil enricher disables enrichment.
func NewClassifier(enricher Enricher, log logrus.FieldLogger) *Classifier {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Classifier{enricher: enricher, log: log}
}

// Classify returns nil when literal is not an address literal
func (c *Classifier) Classify(literal string) Address {
	addr, ok := Parse(literal)
	if !ok {
		return nil
	}
	if NonPublic(addr) {
		return Simple{IP: addr}
	}
	return Extended{IP: addr, Enrichment: c.enrich(strings.TrimSpace(literal))}
}

func (c *Classifier) enrich(literal string) *Enrichment {
	if c.enricher == nil {
		return nil
	}
	data, err := c.enricher.Lookup(literal)
	if err != nil {
		entry := c.log.WithField("ip", literal).WithError(err)
		if eris.Is(err, ErrAddressNotFound) || eris.Is(err, ErrAddressReserved) {
			entry.Debug("no enrichment for address")
		} else {
			entry.Warn("address enrichment failed")
		}
		return nil
	}
	return data
}

// Host classifies value, keeping the raw text when it is not an address.
// It returns nil for an empty value.
func (c *Classifier) Host(value string) *Host {
	if value == "" {
		return nil
	}
	return &Host{Name: value, Address: c.Classify(value)}
}
