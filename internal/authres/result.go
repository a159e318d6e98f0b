// Package authres parses the verdict headers a receiving system records
// after checking a message: Authentication-Results and Received-SPF.
package authres

import (
	"strings"

	"github.com/charlesgreen/emailtrace/internal/ipaddr"
)

// Result is a lower-cased verdict token. The set is open ended; tokens
// without a constant below still round-trip.
type Result string

const (
	Pass      Result = "pass"
	Fail      Result = "fail"
	SoftFail  Result = "softfail"
	Neutral   Result = "neutral"
	None      Result = "none"
	TempError Result = "temperror"
	PermError Result = "permerror"
	Policy    Result = "policy"
)

// NewResult normalizes a raw verdict token
func NewResult(token string) Result {
	return Result(strings.ToLower(strings.Trim(token, " \t;,()")))
}

func (r Result) String() string {
	return string(r)
}

// SPF is an SPF verdict from either an Authentication-Results spf= clause
// or a Received-SPF header
type SPF struct {
	Result       Result         `json:"result"`
	AuthservID   string         `json:"authserv_id,omitempty"`
	MailFrom     string         `json:"mailfrom,omitempty"`
	IP           ipaddr.Address `json:"ip,omitempty"`
	ClientIP     *ipaddr.Host   `json:"client_ip,omitempty"`
	Receiver     string         `json:"receiver,omitempty"`
	Helo         *ipaddr.Host   `json:"helo,omitempty"`
	EnvelopeFrom string         `json:"envelope_from,omitempty"`
	Identity     string         `json:"identity,omitempty"`
}

// CheckedIP is the address the verdict was reached for: IP when the
// explanation names one, the client-ip attribute otherwise
func (s SPF) CheckedIP() ipaddr.Address {
	if s.IP != nil {
		return s.IP
	}
	if s.ClientIP != nil {
		return s.ClientIP.Address
	}
	return nil
}

type DKIM struct {
	Result      Result `json:"result"`
	Identity    string `json:"identity,omitempty"`
	Selector    string `json:"selector,omitempty"`
	HashSnippet string `json:"hash_snippet,omitempty"`
}

type Iprev struct {
	Result         Result         `json:"result"`
	RemoteHostName string         `json:"remote_host_name,omitempty"`
	RemoteIP       ipaddr.Address `json:"remote_ip,omitempty"`
}

type Auth struct {
	Result Result `json:"result"`
	Domain string `json:"domain,omitempty"`
}

// DMARC marks a dmarc= clause. It is recognized but not decomposed.
type DMARC struct{}

// AuthResults is one parsed Authentication-Results header
type AuthResults struct {
	AuthservID string  `json:"authserv_id,omitempty"`
	SPF        []SPF   `json:"spf,omitempty"`
	DKIM       []DKIM  `json:"dkim,omitempty"`
	Iprev      []Iprev `json:"iprev,omitempty"`
	Auth       []Auth  `json:"auth,omitempty"`
	DMARC      []DMARC `json:"dmarc,omitempty"`
}
