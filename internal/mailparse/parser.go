// Package mailparse turns a raw message into a Mail: its ordered header
// store, parsed tracing and authentication headers, and decoded body.
package mailparse

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/charlesgreen/emailtrace/internal/authres"
	"github.com/charlesgreen/emailtrace/internal/body"
	"github.com/charlesgreen/emailtrace/internal/headers"
	"github.com/charlesgreen/emailtrace/internal/ipaddr"
	"github.com/charlesgreen/emailtrace/internal/received"
)

// ErrNoHeaderSeparator is returned when a message has no blank line between
// its headers and its body
var ErrNoHeaderSeparator = eris.New("no blank line separating headers from body")

// Parser parses raw messages written with one line ending
type Parser struct {
	lineEnding headers.LineEnding
	received   *received.Parser
	auth       *authres.Parser
	body       *body.Decoder
	log        logrus.FieldLogger
}

// New returns a Parser. ips classifies every address found in tracing and
// authentication headers; a nil decoder skips body decoding.
func New(ips *ipaddr.Classifier, le headers.LineEnding, decoder *body.Decoder, log logrus.FieldLogger) *Parser {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	if ips == nil {
		ips = ipaddr.NewClassifier(nil, log)
	}
	if le == "" {
		le = headers.Unix
	}
	return &Parser{
		lineEnding: le,
		received:   received.NewParser(ips, log),
		auth:       authres.NewParser(ips, log),
		body:       decoder,
		log:        log,
	}
}

// Parse parses one raw message. It fails when the message has no header
// separator or when a Received timestamp matches none of the known layouts.
func (p *Parser) Parse(raw []byte) (*Mail, error) {
	block, rest, ok := headers.Split(string(raw), p.lineEnding)
	if !ok {
		return nil, eris.Wrapf(ErrNoHeaderSeparator, "expected %s line endings", p.lineEnding.Name())
	}
	store := headers.Parse(block, p.lineEnding)

	tracing := store.Collect("received", "x_received")
	values := make([]string, 0, len(tracing))
	for _, h := range tracing {
		values = append(values, h.Value)
	}
	records, err := p.received.ParseAll(values)
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse tracing headers")
	}

	m := &Mail{
		Headers:        store,
		OriginalHeader: block,
		OriginalBody:   rest,
		Tracing:        Tracing{Received: records},
		Authentication: p.authentication(store),
	}

	if p.body != nil {
		decoded, err := p.body.Decode(raw)
		if err != nil {
			p.log.WithError(err).Warn("body could not be decoded")
		} else {
			m.Body = decoded
		}
	}

	p.log.WithFields(logrus.Fields{
		"received":               len(records),
		"authentication_results": len(m.Authentication.AuthenticationResults),
		"received_spf":           len(m.Authentication.ReceivedSPF),
	}).Debug("parsed message")
	return m, nil
}

func (p *Parser) authentication(store *headers.Store) Authentication {
	var a Authentication
	for _, v := range store.Values("authentication_results") {
		a.AuthenticationResults = append(a.AuthenticationResults, p.auth.ParseAuthResults(v))
	}
	for _, v := range store.Values("received_spf") {
		a.ReceivedSPF = append(a.ReceivedSPF, p.auth.ParseReceivedSPF(v))
	}
	return a
}
