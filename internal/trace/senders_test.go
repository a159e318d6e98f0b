package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/charlesgreen/emailtrace/internal/authres"
	"github.com/charlesgreen/emailtrace/internal/mailparse"
)

func TestAuthenticationSenders(t *testing.T) {
	tests := []struct {
		name    string
		results []authres.AuthResults
		want    AuthSenders
	}{
		{
			name: "first header trusted",
			results: []authres.AuthResults{
				{AuthservID: "mx.google.com", SPF: []authres.SPF{{Result: authres.Pass, IP: ip1, MailFrom: "a@test.zzz"}}},
				{AuthservID: "relay.test", SPF: []authres.SPF{{Result: authres.SoftFail, IP: ip2, MailFrom: "b@test.zzz"}}},
			},
			want: AuthSenders{
				Hosts: []AuthenticationHost{
					{Host: ip1, SPF: SPFEvidence{Present: true, Trusted: true}},
					{Host: ip2, SPF: SPFEvidence{Present: true}},
				},
				EmailAddresses: []AuthenticationEmail{
					{EmailAddress: "a@test.zzz", SPF: SPFEvidence{Present: true, Trusted: true, Result: authres.Pass}},
					{EmailAddress: "b@test.zzz", SPF: SPFEvidence{Present: true, Result: authres.SoftFail}},
				},
			},
		},
		{
			name: "repeated authserv-id skipped",
			results: []authres.AuthResults{
				{AuthservID: "mx.google.com", SPF: []authres.SPF{{Result: authres.Pass, IP: ip1, MailFrom: "a@test.zzz"}}},
				{AuthservID: "mx.google.com", SPF: []authres.SPF{{Result: authres.Fail, IP: ip2, MailFrom: "b@test.zzz"}}},
				{AuthservID: "relay.test", SPF: []authres.SPF{{Result: authres.Pass, IP: ip3, MailFrom: "c@test.zzz"}}},
				{AuthservID: "relay.test", SPF: []authres.SPF{{Result: authres.Pass, IP: ip4, MailFrom: "d@test.zzz"}}},
			},
			want: AuthSenders{
				Hosts: []AuthenticationHost{
					{Host: ip1, SPF: SPFEvidence{Present: true, Trusted: true}},
					{Host: ip3, SPF: SPFEvidence{Present: true}},
				},
				EmailAddresses: []AuthenticationEmail{
					{EmailAddress: "a@test.zzz", SPF: SPFEvidence{Present: true, Trusted: true, Result: authres.Pass}},
					{EmailAddress: "c@test.zzz", SPF: SPFEvidence{Present: true, Result: authres.Pass}},
				},
			},
		},
		{
			name: "email addresses listed once",
			results: []authres.AuthResults{
				{AuthservID: "mx.google.com", SPF: []authres.SPF{{Result: authres.Pass, IP: ip1, MailFrom: "a@test.zzz"}}},
				{AuthservID: "relay.test", SPF: []authres.SPF{{Result: authres.Fail, IP: ip2, MailFrom: "A@test.zzz"}}},
			},
			want: AuthSenders{
				Hosts: []AuthenticationHost{
					{Host: ip1, SPF: SPFEvidence{Present: true, Trusted: true}},
					{Host: ip2, SPF: SPFEvidence{Present: true}},
				},
				EmailAddresses: []AuthenticationEmail{
					{EmailAddress: "a@test.zzz", SPF: SPFEvidence{Present: true, Trusted: true, Result: authres.Pass}},
				},
			},
		},
		{
			name: "headers without spf or address",
			results: []authres.AuthResults{
				{AuthservID: "mx.google.com", DKIM: []authres.DKIM{{Result: authres.Pass}}},
				{AuthservID: "relay.test", SPF: []authres.SPF{{Result: authres.None}}},
			},
			want: AuthSenders{Hosts: []AuthenticationHost{}, EmailAddresses: []AuthenticationEmail{}},
		},
		{
			name: "no headers",
			want: AuthSenders{Hosts: []AuthenticationHost{}, EmailAddresses: []AuthenticationEmail{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mailparse.Mail{Authentication: mailparse.Authentication{AuthenticationResults: tt.results}}
			assert.Equal(t, tt.want, AuthenticationSenders(m))
		})
	}
}

func TestBuildReportAuthenticationSenders(t *testing.T) {
	m := newMail(t, nil, records())
	m.Authentication.AuthenticationResults = []authres.AuthResults{
		{AuthservID: "mx.google.com", SPF: []authres.SPF{{Result: authres.Pass, IP: ip2, MailFrom: "a@test.zzz"}}},
	}

	r := BuildReport(m, nil)
	assert.Equal(t, []AuthenticationHost{{Host: ip2, SPF: SPFEvidence{Present: true, Trusted: true}}}, r.AuthenticationSenders.Hosts)
	assert.Empty(t, r.Tracing)
}
