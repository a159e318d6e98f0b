package ipaddr

import (
	"net/netip"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnricher struct {
	data  map[string]*Enrichment
	err   error
	calls []string
}

func (f *fakeEnricher) Lookup(literal string) (*Enrichment, error) {
	f.calls = append(f.calls, literal)
	if f.err != nil {
		return nil, f.err
	}
	if d, ok := f.data[literal]; ok {
		return d, nil
	}
	return nil, ErrAddressNotFound
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		literal string
		simple  bool
		want    string
	}{
		{"loopback", "127.0.0.1", true, "127.0.0.1"},
		{"ipv6 loopback", "::1", true, "::1"},
		{"class a", "10.0.0.3", true, "10.0.0.3"},
		{"class b", "172.16.4.1", true, "172.16.4.1"},
		{"class b upper edge", "172.31.255.255", true, "172.31.255.255"},
		{"class c", "192.168.1.20", true, "192.168.1.20"},
		{"public v4", "203.0.113.9", false, "203.0.113.9"},
		{"outside class b", "172.32.0.1", false, "172.32.0.1"},
		{"public v6", "2a00:1450:4864:20::543", false, "2a00:1450:4864:20::543"},
		{"cidr suffix", "10.0.0.1/8", true, "10.0.0.0"},
		{"padded", " 10.0.0.5 ", true, "10.0.0.5"},
	}

	c := NewClassifier(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.literal)
			require.NotNil(t, got)
			_, isSimple := got.(Simple)
			assert.Equal(t, tt.simple, isSimple)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestClassifyNotAnAddress(t *testing.T) {
	c := NewClassifier(nil, nil)
	for _, literal := range []string{"", "mx.google.com", "unknown", "10.0.0", "[10.0.0.1]", "10.0.0.1/99", "HELO"} {
		assert.Nil(t, c.Classify(literal), literal)
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	c := NewClassifier(nil, nil)
	a := c.Classify("192.168.0.7")
	b := c.Classify("192.168.0.7")
	assert.True(t, a.Equal(b))
	assert.Equal(t, a, b)
}

func TestClassifyEnrichesPublicOnly(t *testing.T) {
	data := &Enrichment{Country: "Netherlands", CountryCode: "NL", ASN: 64500}
	e := &fakeEnricher{data: map[string]*Enrichment{"198.51.100.7": data}}
	c := NewClassifier(e, nil)

	simple := c.Classify("10.1.2.3")
	assert.Equal(t, Simple{IP: netip.MustParseAddr("10.1.2.3")}, simple)

	ext := c.Classify("198.51.100.7")
	require.IsType(t, Extended{}, ext)
	assert.Same(t, data, ext.(Extended).Enrichment)
	assert.Equal(t, []string{"198.51.100.7"}, e.calls)
}

func TestClassifySwallowsEnrichmentFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", ErrAddressNotFound},
		{"reserved", eris.Wrap(ErrAddressReserved, "lookup")},
		{"io failure", eris.New("connection refused")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&fakeEnricher{err: tt.err}, nil)
			got := c.Classify("198.51.100.7")
			require.IsType(t, Extended{}, got)
			assert.Nil(t, got.(Extended).Enrichment)
		})
	}
}

func TestExtendedEqualityIncludesEnrichment(t *testing.T) {
	ip := netip.MustParseAddr("198.51.100.7")
	a := Extended{IP: ip, Enrichment: &Enrichment{Country: "France"}}
	b := Extended{IP: ip, Enrichment: &Enrichment{Country: "France"}}
	c := Extended{IP: ip, Enrichment: &Enrichment{Country: "Spain"}}
	d := Extended{IP: ip}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
	assert.True(t, d.Equal(Extended{IP: ip}))
	assert.False(t, d.Equal(Simple{IP: ip}))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(d, nil))
}

func TestHost(t *testing.T) {
	c := NewClassifier(nil, nil)

	assert.Nil(t, c.Host(""))

	name := c.Host("helo.zzz")
	assert.False(t, name.IsAddress())
	assert.Equal(t, "helo.zzz", name.String())

	addr := c.Host("10.0.0.7")
	assert.True(t, addr.IsAddress())
	assert.True(t, addr.Equal(c.Host("10.0.0.7")))
	assert.False(t, addr.Equal(name))
}
