package trace

import (
	"time"

	"github.com/charlesgreen/emailtrace/internal/ipaddr"
)

// HostInformation is what a registry discloses about a sender
type HostInformation struct {
	AbuseContacts []string   `json:"abuse_contacts"`
	CreationDate  *time.Time `json:"creation_date,omitempty"`
}

// HostInformationFinder looks up registry details for a hostname or an
// address. Lookup failures are reported as empty information.
type HostInformationFinder interface {
	InformationFor(target *ipaddr.Host) HostInformation
}

// NullFinder never finds anything
type NullFinder struct{}

func (NullFinder) InformationFor(*ipaddr.Host) HostInformation {
	return HostInformation{AbuseContacts: []string{}}
}

type memoKey struct {
	name      string
	isAddress bool
}

// memoFinder asks its finder once per distinct target
type memoFinder struct {
	finder HostInformationFinder
	seen   map[memoKey]HostInformation
}

func newMemoFinder(f HostInformationFinder) *memoFinder {
	if f == nil {
		f = NullFinder{}
	}
	return &memoFinder{finder: f, seen: map[memoKey]HostInformation{}}
}

func (m *memoFinder) InformationFor(target *ipaddr.Host) HostInformation {
	key := memoKey{name: target.String(), isAddress: target.IsAddress()}
	if info, ok := m.seen[key]; ok {
		return info
	}
	info := m.finder.InformationFor(target)
	if info.AbuseContacts == nil {
		info.AbuseContacts = []string{}
	}
	m.seen[key] = info
	return info
}
