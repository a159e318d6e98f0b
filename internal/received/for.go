package received

import (
	"regexp"

	"github.com/charlesgreen/emailtrace/internal/grammar"
)

var forGrammars = grammar.Catalogue{
	grammar.New("google transport security",
		`\Afor\s(?P<recipient_mailbox>\S+)\s\(Google Transport Security\)\z`),
	grammar.New("mailbox with tls",
		`\Afor\s(?P<recipient_mailbox>\S+)\s(?P<starttls>\([^\)]+\))\z`),
	grammar.New("mailbox",
		`\Afor\s(?P<recipient_mailbox>.+)\z`),
}

var angleAddress = regexp.MustCompile(`<\s?([^>]+?)\s?>`)

type forFields struct {
	RecipientMailbox string
	StartTLS         *StartTLS
}

func (p *Parser) parseFor(span string) forFields {
	if span == "" {
		return forFields{}
	}
	g, f, ok := forGrammars.First(span)
	if !ok {
		p.log.WithField("component", "for").WithField("value", span).Debug("no grammar matched")
		return forFields{}
	}
	p.log.WithField("component", "for").WithField("grammar", g.Name).Trace("grammar matched")

	out := forFields{RecipientMailbox: stripAngleBrackets(f["recipient_mailbox"])}
	if tls := f["starttls"]; tls != "" {
		out.StartTLS = p.parseStartTLS(tls)
	}
	return out
}

func stripAngleBrackets(mailbox string) string {
	if m := angleAddress.FindStringSubmatch(mailbox); m != nil {
		return m[1]
	}
	return mailbox
}
