// Package geoip enriches public addresses from MaxMind GeoLite2 databases
// and caches the results on disk.
package geoip

import (
	"net"
	"net/netip"
	"os"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"
	"github.com/rotisserie/eris"

	"github.com/charlesgreen/emailtrace/internal/ipaddr"
)

// DefaultCityPaths are searched in order when no city database is configured
var DefaultCityPaths = []string{
	"./GeoLite2-City.mmdb",
	"./data/GeoLite2-City.mmdb",
	"/usr/share/GeoIP/GeoLite2-City.mmdb",
	"/var/lib/GeoIP/GeoLite2-City.mmdb",
}

// DefaultASNPaths are searched in order when no ASN database is configured
var DefaultASNPaths = []string{
	"./GeoLite2-ASN.mmdb",
	"./data/GeoLite2-ASN.mmdb",
	"/usr/share/GeoIP/GeoLite2-ASN.mmdb",
	"/var/lib/GeoIP/GeoLite2-ASN.mmdb",
}

// ErrNoDatabase is returned by OpenFirst when none of the paths can be opened
var ErrNoDatabase = eris.New("no GeoIP database found")

// reservedRanges are special-purpose ranges a database never answers for
var reservedRanges = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("2001:db8::/32"),
	netip.MustParsePrefix("fc00::/7"),
}

// Reserved reports whether addr is in a private or special-purpose range
func Reserved(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsMulticast() {
		return true
	}
	for _, p := range reservedRanges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Reader looks addresses up in a city database and, when present, an ASN
// database
type Reader struct {
	city *maxminddb.Reader
	asn  *maxminddb.Reader
	lang string
}

// Open opens the city database at cityPath and, when asnPath is not empty,
// the ASN database
func Open(cityPath, asnPath string) (*Reader, error) {
	city, err := maxminddb.Open(cityPath)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open city database %s", cityPath)
	}
	r := &Reader{city: city, lang: "en"}
	if asnPath != "" {
		asn, err := maxminddb.Open(asnPath)
		if err != nil {
			_ = city.Close()
			return nil, eris.Wrapf(err, "failed to open ASN database %s", asnPath)
		}
		r.asn = asn
	}
	return r, nil
}

// OpenFirst opens the first readable city database and the first readable
// ASN database. Empty paths are skipped. A missing ASN database is not an
// error.
func OpenFirst(cityPaths, asnPaths []string) (*Reader, error) {
	city := firstExisting(cityPaths)
	if city == "" {
		return nil, eris.Wrapf(ErrNoDatabase, "searched %v", cityPaths)
	}
	return Open(city, firstExisting(asnPaths))
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

// Lookup returns the enrichment data for a public address literal
func (r *Reader) Lookup(literal string) (*ipaddr.Enrichment, error) {
	addr, ok := ipaddr.Parse(literal)
	if !ok {
		return nil, eris.Errorf("%q is not an address", literal)
	}
	if Reserved(addr) {
		return nil, eris.Wrap(ipaddr.ErrAddressReserved, addr.String())
	}
	if r == nil || r.city == nil {
		return nil, eris.Wrap(ipaddr.ErrAddressNotFound, addr.String())
	}

	ip := net.IP(addr.AsSlice())
	var city geoip2.City
	network, found, err := r.city.LookupNetwork(ip, &city)
	if err != nil {
		return nil, eris.Wrapf(err, "city lookup for %s failed", addr)
	}
	if !found {
		return nil, eris.Wrap(ipaddr.ErrAddressNotFound, addr.String())
	}

	e := &ipaddr.Enrichment{
		City:              city.City.Names[r.lang],
		Country:           city.Country.Names[r.lang],
		CountryCode:       city.Country.IsoCode,
		Continent:         city.Continent.Names[r.lang],
		RegisteredCountry: city.RegisteredCountry.Names[r.lang],
		PostalCode:        city.Postal.Code,
		TimeZone:          city.Location.TimeZone,
		Latitude:          city.Location.Latitude,
		Longitude:         city.Location.Longitude,
		AccuracyRadius:    city.Location.AccuracyRadius,
	}
	if network != nil {
		e.Network = network.String()
	}

	if r.asn != nil {
		var asn geoip2.ASN
		if _, found, err := r.asn.LookupNetwork(ip, &asn); err == nil && found {
			e.ASN = asn.AutonomousSystemNumber
			e.Organization = asn.AutonomousSystemOrganization
		}
	}
	return e, nil
}

// Close releases both databases
func (r *Reader) Close() error {
	var err error
	if r.asn != nil {
		err = r.asn.Close()
	}
	if cerr := r.city.Close(); cerr != nil {
		return eris.Wrap(cerr, "failed to close city database")
	}
	if err != nil {
		return eris.Wrap(err, "failed to close ASN database")
	}
	return nil
}
