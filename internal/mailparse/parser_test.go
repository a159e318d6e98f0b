package mailparse

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlesgreen/emailtrace/internal/authres"
	"github.com/charlesgreen/emailtrace/internal/body"
	"github.com/charlesgreen/emailtrace/internal/headers"
	"github.com/charlesgreen/emailtrace/internal/ipaddr"
	"github.com/charlesgreen/emailtrace/internal/received"
)

var sampleLines = []string{
	"Received: by 10.0.0.1 with SMTP id a1; Sat, 25 Apr 2020 22:14:08 -0700",
	"X-Received: by 10.0.0.2 with SMTP id x2; Sat, 25 Apr 2020 22:14:07 -0700",
	"Authentication-Results: mail.test.zzz; spf=pass (mail.test.zzz: domain of foo@test.com designates 10.0.0.3 as permitted sender) smtp.mailfrom=foo@test.com",
	"Received-SPF: pass (google.com: domain of foo@test.com designates 10.0.0.3 as permitted sender) client-ip=10.0.0.3;",
	"Received: from probably.not.real.com ([10.0.0.3])",
	"        by mx.google.com with ESMTPS id u23si16237783eds.526.2020.06.26.06.27.53",
	"        for <mannequin@test.com> (version=TLS1_2 cipher=ECDHE-ECDSA-AES128-GCM-SHA256 bits=128/128);",
	"        Sat, 25 Apr 2020 22:14:06 -0700",
	"From: =?utf-8?B?8J+Qkg==?= Bank <foo@test.com>",
	"Reply-To: \"Support\" <Support@Test.com>, b@test.com",
	"Return-Path: <bounce@test.com>",
	"Message-Id: <1234@test.com>",
	"Subject: verify",
	"Content-Type: text/html; charset=utf-8",
	"",
	`<p>Please <a href="https://login.test.zzz/#[[Email]]">verify</a></p>`,
	"",
	"<p>Thanks</p>",
}

func sample(le headers.LineEnding) []byte {
	return []byte(strings.Join(sampleLines, string(le)))
}

func simple(literal string) ipaddr.Address {
	return ipaddr.Simple{IP: netip.MustParseAddr(literal)}
}

func TestParse(t *testing.T) {
	for _, le := range []headers.LineEnding{headers.Unix, headers.DOS} {
		t.Run(le.Name(), func(t *testing.T) {
			p := New(nil, le, body.NewDecoder(nil), nil)
			m, err := p.Parse(sample(le))
			require.NoError(t, err)

			require.Len(t, m.Tracing.Received, 3)
			var seconds []int
			for _, r := range m.Tracing.Received {
				require.NotNil(t, r.Time)
				seconds = append(seconds, r.Time.Second())
			}
			assert.Equal(t, []int{8, 7, 6}, seconds)

			origin := m.Tracing.Received[2]
			assert.Equal(t, "probably.not.real.com", origin.AdvertisedSender)
			assert.Equal(t, simple("10.0.0.3"), origin.Sender.IP)
			assert.Equal(t, "ESMTPS", origin.Protocol)
			assert.Equal(t, "mannequin@test.com", origin.RecipientMailbox)
			assert.Equal(t, &received.StartTLS{Version: "TLS1_2", Cipher: "ECDHE-ECDSA-AES128-GCM-SHA256", Bits: "128/128"}, origin.StartTLS)
			assert.False(t, origin.Partial)

			require.Len(t, m.Authentication.AuthenticationResults, 1)
			ar := m.Authentication.AuthenticationResults[0]
			assert.Equal(t, "mail.test.zzz", ar.AuthservID)
			require.Len(t, ar.SPF, 1)
			assert.Equal(t, authres.Pass, ar.SPF[0].Result)
			assert.Equal(t, "foo@test.com", ar.SPF[0].MailFrom)

			require.Len(t, m.Authentication.ReceivedSPF, 1)
			spf := m.Authentication.ReceivedSPF[0]
			assert.Equal(t, "google.com", spf.AuthservID)
			assert.Equal(t, simple("10.0.0.3"), spf.CheckedIP())

			assert.Equal(t, "🐒 Bank <foo@test.com>", m.Headers.First("from"))
			assert.Equal(t, []string{"<1234@test.com>"}, m.Headers.Values("message_id"))

			require.NotNil(t, m.Body)
			assert.Contains(t, m.Body.HTML, `<a href="https://login.test.zzz/#[[Email]]">verify</a>`)
			assert.Contains(t, m.Body.HTML, "<p>Thanks</p>")
		})
	}
}

func TestParseWithoutDecoder(t *testing.T) {
	m, err := New(nil, headers.Unix, nil, nil).Parse(sample(headers.Unix))
	require.NoError(t, err)
	assert.Nil(t, m.Body)
	assert.True(t, strings.HasPrefix(m.OriginalBody, "<p>Please"))

	links, err := m.HypertextLinks()
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestParseNoHeaderSeparator(t *testing.T) {
	_, err := New(nil, headers.Unix, nil, nil).Parse([]byte("Subject: x\nFrom: y"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoHeaderSeparator))

	// a DOS message read with unix line endings has no "\n\n"
	_, err = New(nil, headers.Unix, nil, nil).Parse(sample(headers.DOS))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoHeaderSeparator))
}

func TestParseUnknownTimestamp(t *testing.T) {
	raw := "Received: from a.test by b.test; foo bar baz\nSubject: x\n\nbody"
	_, err := New(nil, headers.Unix, nil, nil).Parse([]byte(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "foo bar baz")
}

func TestParseWithoutTracingHeaders(t *testing.T) {
	m, err := New(nil, headers.Unix, nil, nil).Parse([]byte("Subject: x\n\nbody"))
	require.NoError(t, err)
	assert.Empty(t, m.Tracing.Received)
	assert.Empty(t, m.Authentication.AuthenticationResults)
	assert.Empty(t, m.Authentication.ReceivedSPF)
}

func TestReplyToAddresses(t *testing.T) {
	raw := strings.Join([]string{
		"Reply-To: a@b.com",
		"Reply-To: c@d.com, <d@e.com >",
		"Reply-To: d@e.com, e@F.com",
		"Reply-To: G <g@h.com>, H <h@i.com>",
		"",
		"",
	}, "\n")
	m, err := New(nil, headers.Unix, nil, nil).Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"a@b.com", "c@d.com", "d@e.com", "e@f.com", "g@h.com", "h@i.com"}, m.ReplyToAddresses())
}

func TestHypertextLinks(t *testing.T) {
	m, err := New(nil, headers.Unix, body.NewDecoder(nil), nil).Parse(sample(headers.Unix))
	require.NoError(t, err)

	links, err := m.HypertextLinks()
	require.NoError(t, err)
	assert.Equal(t, []body.Link{{
		RawHref: "https://login.test.zzz/#[[Email]]",
		Href:    "https://login.test.zzz/",
		Text:    "verify",
		Kind:    body.URL,
	}}, links)
}
