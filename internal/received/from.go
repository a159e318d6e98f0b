package received

import (
	"strings"

	"github.com/charlesgreen/emailtrace/internal/grammar"
)

var fromGrammars = grammar.Catalogue{
	grammar.New("authenticated sender",
		`from\s(?P<advertised_sender>\S+)\s\((?P<sender_host>\S+?)\.?\s\[(?P<sender_ip>[^\]]+)\]\)`+
			`(?:\s\((?P<starttls>using\s[^()]*\([^)]*\))\))?.*?\(Authenticated sender:\s(?P<advertised_authenticated_sender>[^)]+)\)`),
	grammar.New("host and bracketed ip with tls",
		`from\s(?P<advertised_sender>\S+)\s\((?P<sender_host>\S+?)\.?\s\[(?P<sender_ip>[^\]]+)\]\) \((?P<starttls>[^\)]+\))`),
	grammar.New("helo without ip",
		`from\s(?P<advertised_sender>\S+)\s\((?:HELO|EHLO)\s(?P<helo>[^)]+)\)\s\(\)`),
	grammar.New("helo with bracketed ip",
		`from\s(?P<advertised_sender>\S+)\s\((?:HELO|EHLO)\s(?P<helo>[^)]+)\)\s\(\[(?P<sender_ip>[^\]]+)\]\)`),
	grammar.New("exim helo",
		`from\s(?P<advertised_sender>\S+)\s\(\[(?P<sender_ip>[^\]]+)\](?::\d+)?\shelo=(?P<helo>[^)]+)\)`),
	grammar.New("host and bracketed ip",
		`from\s(?P<advertised_sender>\S+)\s\((?P<sender_host>\S+?)\.?\s\[(?P<sender_ip>[^\]]+)\]\)`),
	grammar.New("host and ip",
		`from\s(?P<advertised_sender>\S+)\s\((?P<sender_host>\S+?)\.?\s(?P<sender_ip>\S+?)\)`),
	grammar.New("bracketed ip",
		`from\s(?P<advertised_sender>\S+)\s\(\[(?P<sender_ip>[^\]]+)\]\)`),
	grammar.New("parenthesized ip",
		`from\s(?P<advertised_sender>\S+)\s\((?P<sender_ip>[^)]+)\)`),
	grammar.New("parenthesized from",
		`\(from\s(?P<advertised_sender>[^)]+)\)`),
	grammar.New("bare",
		`from\s(?P<advertised_sender>\S+)`),
}

type fromFields struct {
	AdvertisedSender              string
	Helo                          string
	Sender                        Sender
	AdvertisedAuthenticatedSender string
	StartTLS                      *StartTLS
}

func (p *Parser) parseFrom(span string) fromFields {
	if span == "" {
		return fromFields{}
	}
	g, f, ok := fromGrammars.First(span)
	if !ok {
		p.log.WithField("component", "from").WithField("value", span).Debug("no grammar matched")
		return fromFields{}
	}
	p.log.WithField("component", "from").WithField("grammar", g.Name).Trace("grammar matched")

	out := fromFields{
		AdvertisedSender:              f["advertised_sender"],
		Helo:                          f["helo"],
		AdvertisedAuthenticatedSender: f["advertised_authenticated_sender"],
		Sender:                        Sender{Host: f["sender_host"]},
	}
	if ip := f["sender_ip"]; ip != "" {
		out.Sender.IP = p.ips.Classify(stripIPv6Tag(ip))
	}
	if tls := f["starttls"]; tls != "" {
		out.StartTLS = p.parseStartTLS(tls)
	}
	return out
}

// stripIPv6Tag removes the "IPv6:" prefix of RFC 5321 address literals
func stripIPv6Tag(literal string) string {
	if len(literal) > 5 && strings.EqualFold(literal[:5], "ipv6:") {
		return literal[5:]
	}
	return literal
}
