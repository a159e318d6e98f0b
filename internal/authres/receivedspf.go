package authres

import (
	"regexp"
	"strings"

	"github.com/charlesgreen/emailtrace/internal/grammar"
)

var receivedSPFShape = regexp.MustCompile(`(?s)\A\s*(?P<result>[^\s(;]+)(?:\s*\((?P<additional>[^)]*)\))?(?P<attributes>.*)\z`)

// explanationGrammars read the parenthesized explanation of a Received-SPF
// value
var explanationGrammars = grammar.Catalogue{
	grammar.New("best guess record",
		`(?P<authserv_id>[^:]+):\sbest\sguess\srecord\sfor\sdomain\sof\s(?P<mailfrom>\S+)\s.+?\s(?P<ip>\S+)\sas\spermitted\ssender`),
	grammar.New("designates",
		`(?:(?P<authserv_id>[^:]+):\s)?domain\sof\s(?P<mailfrom>\S+)\sdesignates\s(?P<ip>\S+)\sas\spermitted\ssender`),
	grammar.New("no permitted sender hosts",
		`(?:(?P<authserv_id>[^:]+):\s)?domain\sof\s(?P<mailfrom>\S+)\sdoes\snot\sdesignate\spermitted\ssender\shosts`),
	grammar.New("transitioning domain",
		`(?P<authserv_id>[^:]+):\stransitioning\sdomain\sof\s(?P<mailfrom>\S+)\s.+?\s(?P<ip>\S+)\sas\spermitted\ssender`),
	grammar.New("domain of transitioning",
		`(?P<authserv_id>[^:]+):\sdomain\sof\stransitioning\s(?P<mailfrom>\S+)\s.+?\s(?P<ip>\S+)\sas\spermitted\ssender`),
	grammar.New("domain of",
		`(?P<authserv_id>[^:]+):\sdomain\sof\s(?P<mailfrom>\S+)\s.+?\s(?P<ip>\S+)\sas\spermitted\ssender`),
	grammar.New("neither permitted nor denied",
		`(?P<authserv_id>[^:]+):\s(?P<ip>\S+)\sis\sneither\s.+?domain\sof\s(?P<mailfrom>\S+)`),
}

var spfAttribute = regexp.MustCompile(`([A-Za-z][\w.-]*)=("[^"]*"|[^\s;]+)`)

// ParseReceivedSPF parses one Received-SPF value of the form
// "RESULT (explanation) key=value; key=value"
func (p *Parser) ParseReceivedSPF(value string) SPF {
	m := receivedSPFShape.FindStringSubmatch(value)
	if m == nil {
		return SPF{}
	}
	out := SPF{Result: NewResult(m[1])}

	if additional := m[2]; additional != "" {
		if g, f, ok := explanationGrammars.First(additional); ok {
			p.log.WithField("grammar", g.Name).Trace("received-spf explanation matched")
			out.AuthservID = strings.TrimSpace(f["authserv_id"])
			out.MailFrom = f["mailfrom"]
			out.IP = p.ips.Classify(f["ip"])
		} else {
			p.log.WithField("value", additional).Debug("unrecognized received-spf explanation")
		}
	}

	for _, kv := range spfAttribute.FindAllStringSubmatch(m[3], -1) {
		key := strings.ReplaceAll(strings.ToLower(kv[1]), "-", "_")
		val := strings.Trim(kv[2], `"[];`)
		switch key {
		case "client_ip":
			out.ClientIP = p.ips.Host(val)
		case "helo":
			out.Helo = p.ips.Host(val)
		case "receiver":
			out.Receiver = val
		case "envelope_from":
			out.EnvelopeFrom = val
		case "identity":
			out.Identity = val
		}
	}
	return out
}
