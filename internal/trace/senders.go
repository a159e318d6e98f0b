package trace

import (
	"strings"

	"github.com/charlesgreen/emailtrace/internal/authres"
	"github.com/charlesgreen/emailtrace/internal/ipaddr"
	"github.com/charlesgreen/emailtrace/internal/mailparse"
)

// SPFEvidence says where a sender entry came from. Only the topmost
// Authentication-Results header, written by the recipient's own system,
// is trusted.
type SPFEvidence struct {
	Present bool           `json:"present"`
	Trusted bool           `json:"trusted"`
	Result  authres.Result `json:"result,omitempty"`
}

type AuthenticationHost struct {
	Host ipaddr.Address `json:"host"`
	SPF  SPFEvidence    `json:"spf"`
}

type AuthenticationEmail struct {
	EmailAddress string      `json:"email_address"`
	SPF          SPFEvidence `json:"spf"`
}

// AuthSenders are the hosts and envelope senders named by the
// spf clauses of Authentication-Results headers
type AuthSenders struct {
	Hosts          []AuthenticationHost  `json:"hosts"`
	EmailAddresses []AuthenticationEmail `json:"email_addresses"`
}

// AuthenticationSenders collects the first spf clause of every
// Authentication-Results header of m, topmost first. A header from an
// authserv-id already seen is skipped and an envelope sender is listed
// once.
func AuthenticationSenders(m *mailparse.Mail) AuthSenders {
	out := AuthSenders{
		Hosts:          []AuthenticationHost{},
		EmailAddresses: []AuthenticationEmail{},
	}

	seen := map[string]bool{}
	for i, ar := range m.Authentication.AuthenticationResults {
		if i > 0 && seen[ar.AuthservID] {
			continue
		}
		seen[ar.AuthservID] = true
		if len(ar.SPF) == 0 {
			continue
		}

		spf := ar.SPF[0]
		trusted := i == 0
		if spf.IP != nil {
			out.Hosts = append(out.Hosts, AuthenticationHost{
				Host: spf.IP,
				SPF:  SPFEvidence{Present: true, Trusted: trusted},
			})
		}
		if spf.MailFrom != "" && !out.hasEmail(spf.MailFrom) {
			out.EmailAddresses = append(out.EmailAddresses, AuthenticationEmail{
				EmailAddress: spf.MailFrom,
				SPF:          SPFEvidence{Present: true, Trusted: trusted, Result: spf.Result},
			})
		}
	}
	return out
}

func (s AuthSenders) hasEmail(address string) bool {
	for _, e := range s.EmailAddresses {
		if strings.EqualFold(e.EmailAddress, address) {
			return true
		}
	}
	return false
}
