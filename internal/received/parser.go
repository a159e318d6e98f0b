package received

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/charlesgreen/emailtrace/internal/ipaddr"
)

// Parser turns Received header values into Records
type Parser struct {
	ips *ipaddr.Classifier
	log logrus.FieldLogger
}

// NewParser returns a Parser classifying addresses with ips. A nil log
// discards grammar-miss diagnostics.
func NewParser(ips *ipaddr.Classifier, log logrus.FieldLogger) *Parser {
	if ips == nil {
		ips = ipaddr.NewClassifier(nil, log)
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Parser{ips: ips, log: log}
}

// Parse parses one Received header value. Components no grammar recognizes
// are left empty; only an unparseable timestamp is an error.
func (p *Parser) Parse(header string) (Record, error) {
	value, stamp := splitTimestamp(header)

	ts, err := ParseTimestamp(stamp)
	if err != nil {
		return Record{}, eris.Wrap(err, "failed to parse received header")
	}

	c := Scan(value)
	from := p.parseFrom(c.From)
	by := p.parseBy(c.By)
	rcpt := p.parseFor(c.For)

	r := Record{
		AdvertisedSender:              from.AdvertisedSender,
		Helo:                          from.Helo,
		Sender:                        from.Sender,
		AdvertisedAuthenticatedSender: from.AdvertisedAuthenticatedSender,
		Recipient:                     by.Recipient,
		RecipientAdditional:           by.RecipientAdditional,
		AuthenticatedAs:               by.AuthenticatedAs,
		Protocol:                      by.Protocol,
		ID:                            by.ID,
		RecipientMailbox:              rcpt.RecipientMailbox,
		Time:                          ts,
	}

	switch {
	case from.StartTLS != nil:
		r.StartTLS = from.StartTLS
	case rcpt.StartTLS != nil:
		r.StartTLS = rcpt.StartTLS
	default:
		r.StartTLS = p.parseStartTLS(c.StartTLS)
	}

	Classify(&r)
	return r, nil
}

// ParseAll parses values in order and stops at the first error
func (p *Parser) ParseAll(values []string) ([]Record, error) {
	records := make([]Record, 0, len(values))
	for _, v := range values {
		r, err := p.Parse(v)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// splitTimestamp splits a value at its last ";" outside parentheses
func splitTimestamp(header string) (string, string) {
	depth, at := 0, -1
	for i, r := range header {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ';':
			if depth == 0 {
				at = i
			}
		}
	}
	if at == -1 {
		return header, ""
	}
	return header[:at], header[at+1:]
}
