package whois

import (
	"regexp"
	"strings"
)

var (
	orgAbuseEmailRe  = regexp.MustCompile(`OrgAbuseEmail:\s+(\S+)`)
	abuseContactRe   = regexp.MustCompile(`Abuse contact for .+? is '([^']+)'`)
	registrarAbuseRe = regexp.MustCompile(`Registrar Abuse Contact Email:\s+(\S+)`)
	abuseAddressRe   = regexp.MustCompile(`(abuse@\S+)`)
)

// AbuseContacts extracts abuse contact addresses from a raw registry
// response. ARIN style OrgAbuseEmail entries win, then the RIPE abuse-c
// comment, then the registrar contact and finally any abuse@ address.
func AbuseContacts(contents string) []string {
	if strings.Contains(contents, "OrgAbuseEmail") {
		found := []string{}
		seen := map[string]bool{}
		for _, m := range orgAbuseEmailRe.FindAllStringSubmatch(contents, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				found = append(found, m[1])
			}
		}
		return found
	}

	for _, re := range []*regexp.Regexp{abuseContactRe, registrarAbuseRe, abuseAddressRe} {
		if m := re.FindStringSubmatch(contents); m != nil {
			return []string{m[1]}
		}
	}
	return []string{}
}
