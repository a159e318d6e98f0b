package body

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// LinkKind classifies the target of a hyperlink
type LinkKind string

const (
	URL             LinkKind = "url"
	URLFragment     LinkKind = "url_fragment"
	EmailAddress    LinkKind = "email_address"
	TelephoneNumber LinkKind = "telephone_number"
)

// Link is an <a href> element of an HTML body
type Link struct {
	RawHref string   `json:"raw_href"`
	Href    string   `json:"href"`
	Text    string   `json:"text"`
	Kind    LinkKind `json:"kind"`
}

// NewLink classifies href. For URLs, Href drops the fragment.
func NewLink(href, text string) Link {
	trimmed := strings.TrimSpace(href)
	l := Link{RawHref: href, Href: trimmed, Text: text, Kind: URL}

	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, "#"):
		l.Kind = URLFragment
	case strings.HasPrefix(lower, "mailto:"):
		l.Kind = EmailAddress
	case strings.HasPrefix(lower, "tel:"):
		l.Kind = TelephoneNumber
	default:
		l.Href, _, _ = strings.Cut(trimmed, "#")
	}
	return l
}

// SupportsRetrieval reports whether the target could be fetched
func (l Link) SupportsRetrieval() bool {
	return l.Kind == URL && l.Href != ""
}

// Addresses returns the unique, trimmed recipients of a mailto link
func (l Link) Addresses() []string {
	if l.Kind != EmailAddress {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, a := range strings.Split(l.Href[len("mailto:"):], ";") {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

// Links returns every <a> element of html that carries an href attribute,
// in document order
func Links(html string) ([]Link, error) {
	if strings.TrimSpace(html) == "" {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse html body")
	}

	var links []Link
	doc.Find("a").Each(func(i int, s *goquery.Selection) {
		if href, exists := s.Attr("href"); exists {
			links = append(links, NewLink(href, s.Text()))
		}
	})
	return links, nil
}
