package authres

import (
	"io"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/charlesgreen/emailtrace/internal/grammar"
	"github.com/charlesgreen/emailtrace/internal/ipaddr"
)

var spfGrammars = grammar.Catalogue{
	grammar.New("neither permitted nor denied",
		`(?i)\Aspf=(?P<result>[^\s;()]+)\s+\((?:(?P<authserv_id>[^:()]+):\s)?(?P<ip>\S+)\sis\sneither\spermitted\snor\sdenied[^)]*\)\s+smtp\.mailfrom=(?P<mailfrom>[^\s;]+)`),
	grammar.New("permitted sender",
		`(?i)\Aspf=(?P<result>[^\s;()]+)\s+\((?:(?P<authserv_id>[^:()]+):\s)?[^)]*?\s(?P<ip>\S+)\sas\spermitted\ssender\)\s+smtp\.mailfrom=(?P<mailfrom>[^\s;]+)`),
	grammar.New("ipv4 in comment",
		`(?i)\Aspf=(?P<result>[^\s;()]+)\s+\([^)]*?(?P<ip>\d{1,3}(?:\.\d{1,3}){3})[^)]*\)\s+smtp\.mailfrom=(?P<mailfrom>[^\s;]+)`),
	grammar.New("mailfrom",
		`(?i)\Aspf=(?P<result>[^\s;()]+)(?:\s+\([^)]*\))?\s+smtp\.mailfrom=(?P<mailfrom>[^\s;]+)`),
	grammar.New("result only",
		`(?i)\Aspf=(?P<result>[^\s;()]+)`),
}

var dkimGrammars = grammar.Catalogue{
	grammar.New("with hash snippet",
		`(?i)\Adkim=(?P<result>[^\s;()]+)(?:\s+\([^)]*\))?\s+header\.i=(?P<identity>[^\s;]+)\s+header\.s=(?P<selector>[^\s;]+)\s+header\.b=(?P<hash_snippet>[^\s;"]{1,8})`),
	grammar.New("without hash snippet",
		`(?i)\Adkim=(?P<result>[^\s;()]+)(?:\s+\([^)]*\))?\s+header\.i=(?P<identity>[^\s;]+)\s+header\.s=(?P<selector>[^\s;]+)`),
	grammar.New("signing domain",
		`(?i)\Adkim=(?P<result>[^\s;()]+)(?:\s+\([^)]*\))?\s+header\.d=(?P<identity>[^\s;]+)(?:\s+header\.s=(?P<selector>[^\s;]+))?`),
	grammar.New("result only",
		`(?i)\Adkim=(?P<result>[^\s;()]+)`),
}

var iprevGrammars = grammar.Catalogue{
	grammar.New("host and remote ip",
		`(?i)\Aiprev=(?P<result>[^\s;()]+)\s+\((?P<remote_host_name>[^)]+)\)\s+smtp\.remote-ip=(?P<remote_ip>[^\s;]+)`),
	grammar.New("policy iprev",
		`(?i)\Aiprev=(?P<result>[^\s;()]+)\s+policy\.iprev=(?P<remote_ip>[^\s;()]+)(?:\s+\((?P<remote_host_name>[^)]+)\))?`),
	grammar.New("remote ip",
		`(?i)\Aiprev=(?P<result>[^\s;()]+)\s+smtp\.remote-ip=(?P<remote_ip>[^\s;]+)`),
	grammar.New("result only",
		`(?i)\Aiprev=(?P<result>[^\s;()]+)`),
}

var authGrammars = grammar.Catalogue{
	grammar.New("smtp auth",
		`(?i)\Aauth=(?P<result>[^\s;()]+)(?:\s+\([^)]*\))?\s+smtp\.auth=(?P<domain>[^\s;]+)`),
	grammar.New("result only",
		`(?i)\Aauth=(?P<result>[^\s;()]+)`),
}

// mechanismName matches a method keyword at the start of a clause. Methods
// other than spf, dkim, iprev, auth and dmarc only delimit clauses.
var mechanismName = regexp.MustCompile(`(?i)\A(dkim-atps|spf|dkim|iprev|auth|dmarc|arc|compauth|bimi|domainkeys|sender-id)=`)

// Parser parses Authentication-Results and Received-SPF values
type Parser struct {
	ips *ipaddr.Classifier
	log logrus.FieldLogger
}

// NewParser returns a Parser classifying addresses with ips
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

// ParseAuthResults parses one Authentication-Results value. Text ahead of
// the first method clause is the authserv-id, whether or not a ";"
// separates them.
func (p *Parser) ParseAuthResults(value string) AuthResults {
	var out AuthResults
	for _, part := range splitOutsideParens(value, ';') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		starts := clauseStarts(part)
		if len(starts) == 0 || starts[0] > 0 {
			end := len(part)
			if len(starts) > 0 {
				end = starts[0]
			}
			if lead := strings.TrimSpace(part[:end]); lead != "" && out.AuthservID == "" {
				out.AuthservID = lead
			}
		}
		for i, start := range starts {
			end := len(part)
			if i+1 < len(starts) {
				end = starts[i+1]
			}
			p.addClause(&out, strings.TrimSpace(part[start:end]))
		}
	}
	return out
}

func (p *Parser) addClause(out *AuthResults, clause string) {
	name := strings.ToLower(mechanismName.FindStringSubmatch(clause)[1])
	switch name {
	case "spf":
		if _, f, ok := spfGrammars.First(clause); ok {
			out.SPF = append(out.SPF, SPF{
				Result:     NewResult(f["result"]),
				AuthservID: f["authserv_id"],
				MailFrom:   f["mailfrom"],
				IP:         p.ips.Classify(f["ip"]),
			})
		}
	case "dkim":
		if _, f, ok := dkimGrammars.First(clause); ok {
			out.DKIM = append(out.DKIM, DKIM{
				Result:      NewResult(f["result"]),
				Identity:    f["identity"],
				Selector:    f["selector"],
				HashSnippet: f["hash_snippet"],
			})
		}
	case "iprev":
		if _, f, ok := iprevGrammars.First(clause); ok {
			out.Iprev = append(out.Iprev, Iprev{
				Result:         NewResult(f["result"]),
				RemoteHostName: f["remote_host_name"],
				RemoteIP:       p.ips.Classify(strings.Trim(f["remote_ip"], "[]")),
			})
		}
	case "auth":
		if _, f, ok := authGrammars.First(clause); ok {
			out.Auth = append(out.Auth, Auth{
				Result: NewResult(f["result"]),
				Domain: f["domain"],
			})
		}
	case "dmarc":
		out.DMARC = append(out.DMARC, DMARC{})
	default:
		p.log.WithField("method", name).Debug("skipping authentication method")
	}
}

// clauseStarts returns the offsets of method keywords that sit outside
// parentheses at the start of a word
func clauseStarts(part string) []int {
	var starts []int
	depth := 0
	for i := 0; i < len(part); i++ {
		switch part[i] {
		case '(':
			depth++
			continue
		case ')':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth > 0 || (i > 0 && part[i-1] != ' ' && part[i-1] != '\t') {
			continue
		}
		if mechanismName.MatchString(part[i:]) {
			starts = append(starts, i)
		}
	}
	return starts
}

// splitOutsideParens splits s at every sep that is not inside a comment
func splitOutsideParens(s string, sep byte) []string {
	var parts []string
	depth, last := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	return append(parts, s[last:])
}
