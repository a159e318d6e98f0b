package received

import (
	"github.com/charlesgreen/emailtrace/internal/grammar"
	"github.com/charlesgreen/emailtrace/internal/ipaddr"
)

var byGrammars = grammar.Catalogue{
	grammar.New("exchange frontend transport",
		`by\s(?P<recipient>\S+)\s\((?P<additional>[^)]+)\)\swith\sMicrosoft\sSMTP\sServer\s\([^\)]+\)\sid\s(?P<id>\S+)\svia\s(?P<protocol>Frontend\sTransport)`),
	grammar.New("with id",
		`by\s(?P<recipient>\S+)\swith\s(?P<protocol>\S+)\sid\s(?P<id>\S+)`),
	grammar.New("parenthesized additional with id",
		`by\s(?P<recipient>\S+)\s\((?P<additional>[^)]+)\)\swith\s(?P<protocol>\S+)\sid\s(?P<id>\S+)`),
	grammar.New("free additional with id",
		`by\s(?P<recipient>\S+)\s(?P<additional>.+)\swith\s(?P<protocol>\S+)\sid\s(?P<id>\S+)`),
	grammar.New("parenthesized additional id only",
		`by\s(?P<recipient>\S+)\s\((?P<additional>[^)]+)\)\sid\s(?P<id>\S+)`),
	grammar.New("parenthesized additional multi-word protocol",
		`by\s(?P<recipient>\S+)\s\((?P<additional>[^)]+)\)\swith\s(?P<protocol>.+)\sid\s(?P<id>\S+)`),
	grammar.New("parenthesized additional upper-case id",
		`by\s(?P<recipient>\S+)\s\((?P<additional>[^)]+)\)\swith\s(?P<protocol>\S+)\sID\s(?P<id>\S+)`),
	grammar.New("multi-word protocol with id",
		`by\s(?P<recipient>\S+)\swith\s(?P<protocol>.+)\sid\s(?P<id>\S+)`),
	grammar.New("protocol only",
		`by\s(?P<recipient>\S+)\swith\s(?P<protocol>.+)`),
	grammar.New("authenticated as",
		`by\s(?P<recipient>\S+)\s\((?P<additional>[^)]+)\)\s\(authenticated as (?P<authenticated_as>[^\)]+)\)\sid\s(?P<id>\S+)`),
	grammar.New("id only",
		`by\s(?P<recipient>\S+)\sid\s(?P<id>\S+)`),
	grammar.New("recipient only",
		`by\s(?P<recipient>\S+)`),
}

type byFields struct {
	Recipient           *ipaddr.Host
	RecipientAdditional string
	AuthenticatedAs     string
	Protocol            string
	ID                  string
}

func (p *Parser) parseBy(span string) byFields {
	if span == "" {
		return byFields{}
	}
	g, f, ok := byGrammars.First(span)
	if !ok {
		p.log.WithField("component", "by").WithField("value", span).Debug("no grammar matched")
		return byFields{}
	}
	p.log.WithField("component", "by").WithField("grammar", g.Name).Trace("grammar matched")

	return byFields{
		Recipient:           p.ips.Host(f["recipient"]),
		RecipientAdditional: f["additional"],
		AuthenticatedAs:     f["authenticated_as"],
		Protocol:            f["protocol"],
		ID:                  f["id"],
	}
}
