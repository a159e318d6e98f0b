// Package received parses Received header values into hop records.
//
// A value is first split into its from/by/for components by a small state
// machine, then each component is matched against an ordered catalogue of
// fallback grammars. The first grammar that matches wins.
package received

import (
	"time"

	"github.com/charlesgreen/emailtrace/internal/ipaddr"
)

// StartTLS is the TLS session a relay disclosed for a hop
type StartTLS struct {
	Version string `json:"version"`
	Cipher  string `json:"cipher"`
	Bits    string `json:"bits,omitempty"`
}

// Sender is the connecting host as seen by the receiving relay
type Sender struct {
	Host string         `json:"host,omitempty"`
	IP   ipaddr.Address `json:"ip,omitempty"`
}

// Record is one parsed Received header. Every field but Partial may be
// empty: a relay may disclose any subset of them.
type Record struct {
	AdvertisedSender              string       `json:"advertised_sender,omitempty"`
	Helo                          string       `json:"helo,omitempty"`
	Sender                        Sender       `json:"sender"`
	AdvertisedAuthenticatedSender string       `json:"advertised_authenticated_sender,omitempty"`
	Recipient                     *ipaddr.Host `json:"recipient,omitempty"`
	RecipientAdditional           string       `json:"recipient_additional,omitempty"`
	AuthenticatedAs               string       `json:"authenticated_as,omitempty"`
	Protocol                      string       `json:"protocol,omitempty"`
	ID                            string       `json:"id,omitempty"`
	RecipientMailbox              string       `json:"recipient_mailbox,omitempty"`
	StartTLS                      *StartTLS    `json:"starttls,omitempty"`
	Time                          *time.Time   `json:"time,omitempty"`
	Partial                       bool         `json:"partial"`
}

// Complete reports whether a record names both ends of the hop and the
// recipient mailbox, and whether its TLS disclosure agrees with the claimed
// protocol: ESMTPS must come with starttls data, anything else without.
func Complete(r Record) bool {
	if r.AdvertisedSender == "" || r.Recipient == nil || r.RecipientMailbox == "" {
		return false
	}
	return (r.Protocol == "ESMTPS") == (r.StartTLS != nil)
}

// Classify sets Partial from Complete
func Classify(r *Record) {
	r.Partial = !Complete(*r)
}
