package received

import "github.com/charlesgreen/emailtrace/internal/grammar"

var starttlsGrammars = grammar.Catalogue{
	grammar.New("version cipher bits",
		`\(version=(?P<version>\S+)\scipher=(?P<cipher>\S+)\sbits=(?P<bits>\S+)\)`),
	grammar.New("exchange version cipher",
		`\(version=(?P<version>\S+),\scipher=(?P<cipher>\S+)\)`),
	grammar.New("using with cipher",
		`using\s(?P<version>\S+)\swith cipher\s(?P<cipher>\S+)\s\((?P<bits>.+?) bits\)`),
}

func (p *Parser) parseStartTLS(span string) *StartTLS {
	if span == "" {
		return nil
	}
	_, f, ok := starttlsGrammars.First(span)
	if !ok {
		p.log.WithField("component", "starttls").WithField("value", span).Debug("no grammar matched")
		return nil
	}
	return &StartTLS{
		Version: f["version"],
		Cipher:  f["cipher"],
		Bits:    f["bits"],
	}
}
