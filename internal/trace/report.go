// Package trace builds the forensic report of a parsed message: the SPF
// verdict of the receiving system and the chain of hops from the hop that
// verdict was reached for back towards the origin.
package trace

import (
	"github.com/charlesgreen/emailtrace/internal/authres"
	"github.com/charlesgreen/emailtrace/internal/ipaddr"
	"github.com/charlesgreen/emailtrace/internal/mailparse"
	"github.com/charlesgreen/emailtrace/internal/received"
)

// SPFSummary is the verdict of the anchor Received-SPF header
type SPFSummary struct {
	Success     bool           `json:"success"`
	Result      authres.Result `json:"result"`
	IP          ipaddr.Address `json:"ip,omitempty"`
	FromAddress string         `json:"from_address,omitempty"`
	ClientIP    *ipaddr.Host   `json:"client_ip,omitempty"`
}

type Authentication struct {
	Mechanisms []string    `json:"mechanisms"`
	SPF        *SPFSummary `json:"spf"`
}

// Origin holds the decoded values of the headers a sender claims to be
type Origin struct {
	From       []string `json:"from"`
	ReturnPath []string `json:"return_path"`
	MessageID  []string `json:"message_id"`
}

// ContactDetails holds registry details for both halves of a hop sender.
// A half is nil when the hop did not disclose it.
type ContactDetails struct {
	Host *HostInformation `json:"host,omitempty"`
	IP   *HostInformation `json:"ip,omitempty"`
}

// Hop is a Received record annotated with its sender's contact details
type Hop struct {
	received.Record
	SenderContactDetails ContactDetails `json:"sender_contact_details"`
}

// Report is built once per message and not modified afterwards
type Report struct {
	Authentication        Authentication    `json:"authentication"`
	Origin                Origin            `json:"origin"`
	Tracing               []Hop             `json:"tracing"`
	SenderChain           []received.Sender `json:"sender_chain"`
	AuthenticationSenders AuthSenders       `json:"authentication_senders"`
}

// Anchor returns the verdict of the topmost Received-SPF header, which the
// recipient's own receiving system wrote. ok is false when there is none.
func Anchor(m *mailparse.Mail) (authres.SPF, bool) {
	if len(m.Authentication.ReceivedSPF) == 0 {
		return authres.SPF{}, false
	}
	return m.Authentication.ReceivedSPF[0], true
}

// Suffix returns the records from the first one sent from anchorIP to the
// end of the list. It is empty when no record matches or anchorIP is nil.
func Suffix(records []received.Record, anchorIP ipaddr.Address) []received.Record {
	if i := anchorIndex(records, anchorIP); i >= 0 {
		return records[i:]
	}
	return nil
}

func anchorIndex(records []received.Record, anchorIP ipaddr.Address) int {
	if anchorIP == nil {
		return -1
	}
	for i, r := range records {
		if ipaddr.Equal(r.Sender.IP, anchorIP) {
			return i
		}
	}
	return -1
}

// BuildReport builds the report of m. finder is asked at most once per
// distinct sender host and address; a nil finder reports no contacts.
func BuildReport(m *mailparse.Mail, finder HostInformationFinder) *Report {
	r := &Report{
		Authentication: Authentication{Mechanisms: []string{"spf"}},
		Origin: Origin{
			From:       nonNil(m.Headers.Values("from")),
			ReturnPath: nonNil(m.Headers.Values("return_path")),
			MessageID:  nonNil(m.Headers.Values("message_id")),
		},
		Tracing:               []Hop{},
		SenderChain:           []received.Sender{},
		AuthenticationSenders: AuthenticationSenders(m),
	}

	anchor, ok := Anchor(m)
	if !ok {
		return r
	}
	r.Authentication.SPF = &SPFSummary{
		Success:     anchor.Result == authres.Pass,
		Result:      anchor.Result,
		IP:          anchor.IP,
		FromAddress: anchor.MailFrom,
		ClientIP:    anchor.ClientIP,
	}

	anchorIP := anchor.CheckedIP()
	memo := newMemoFinder(finder)
	for _, rec := range Suffix(m.Tracing.Received, anchorIP) {
		r.Tracing = append(r.Tracing, Hop{Record: rec, SenderContactDetails: contactDetails(memo, rec.Sender)})
	}
	r.SenderChain = append(r.SenderChain, SenderChain(m.Tracing.Received, anchorIP)...)
	return r
}

func contactDetails(f HostInformationFinder, s received.Sender) ContactDetails {
	var cd ContactDetails
	if s.Host != "" {
		info := f.InformationFor(&ipaddr.Host{Name: s.Host})
		cd.Host = &info
	}
	if s.IP != nil {
		info := f.InformationFor(&ipaddr.Host{Name: s.IP.String(), Address: s.IP})
		cd.IP = &info
	}
	return cd
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
