package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/charlesgreen/emailtrace/internal/authres"
	"github.com/charlesgreen/emailtrace/internal/body"
	"github.com/charlesgreen/emailtrace/internal/ipaddr"
	"github.com/charlesgreen/emailtrace/internal/mailparse"
	"github.com/charlesgreen/emailtrace/internal/received"
	"github.com/charlesgreen/emailtrace/internal/trace"
)

var (
	passColor    = color.New(color.FgGreen).Add(color.Bold).SprintFunc()
	failColor    = color.New(color.FgRed).Add(color.Bold).SprintFunc()
	warnColor    = color.New(color.FgYellow).Add(color.Bold).SprintFunc()
	headingColor = color.New(color.FgCyan).Add(color.Bold).SprintFunc()
)

// analysis is everything reported for one message
type analysis struct {
	Source                string                `json:"source,omitempty"`
	Subject               string                `json:"subject"`
	Report                *trace.Report         `json:"report"`
	ReplyTo               []string              `json:"reply_to"`
	AuthenticationResults []authres.AuthResults `json:"authentication_results"`
	Links                 []body.Link           `json:"links"`
	Attachments           []string              `json:"attachments,omitempty"`
}

// batchResult is one message of a mailbox. Exactly one of Error and
// Analysis is set.
type batchResult struct {
	Index    int       `json:"index"`
	Error    string    `json:"error,omitempty"`
	Analysis *analysis `json:"analysis,omitempty"`
}

func newAnalysis(m *mailparse.Mail, report *trace.Report, log logrus.FieldLogger) *analysis {
	a := &analysis{
		Subject:               m.Headers.First("subject"),
		Report:                report,
		ReplyTo:               m.ReplyToAddresses(),
		AuthenticationResults: m.Authentication.AuthenticationResults,
		Links:                 []body.Link{},
	}
	if a.ReplyTo == nil {
		a.ReplyTo = []string{}
	}
	if a.AuthenticationResults == nil {
		a.AuthenticationResults = []authres.AuthResults{}
	}

	links, err := m.HypertextLinks()
	if err != nil {
		log.WithError(err).Warn("failed to extract links from the HTML body")
	} else if links != nil {
		a.Links = links
	}
	if m.Body != nil {
		a.Attachments = m.Body.Attachments
	}
	return a
}

// outputJSON writes v as indented JSON
func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(true)
	return encoder.Encode(v)
}

// textWriter keeps the first write error so the report code can print
// unconditionally
type textWriter struct {
	w   io.Writer
	err error
}

func (t *textWriter) printf(format string, args ...any) {
	if t.err == nil {
		_, t.err = fmt.Fprintf(t.w, format, args...)
	}
}

func (t *textWriter) println(args ...any) {
	if t.err == nil {
		_, t.err = fmt.Fprintln(t.w, args...)
	}
}

func (t *textWriter) banner(title string) {
	t.println("=" + strings.Repeat("=", 79))
	t.println(headingColor(title))
	t.println("=" + strings.Repeat("=", 79))
	t.println()
}

func (t *textWriter) section(title string) {
	t.println(headingColor(title))
	t.println("-" + strings.Repeat("-", 79))
}

// outputText outputs the report in human-readable text format
func outputText(w io.Writer, a *analysis, verbose bool) error {
	t := &textWriter{w: w}
	t.banner("EMAIL TRACE REPORT")
	writeAnalysis(t, a, verbose)
	t.println("=" + strings.Repeat("=", 79))
	return t.err
}

// outputBatchText outputs every report of a mailbox in order
func outputBatchText(w io.Writer, results []*batchResult, verbose bool) error {
	t := &textWriter{w: w}
	failed := 0
	for _, r := range results {
		t.banner(fmt.Sprintf("MESSAGE #%d", r.Index))
		if r.Error != "" {
			failed++
			t.printf("%s %s\n\n", failColor("Error:"), sanitizeHeader(r.Error))
			continue
		}
		writeAnalysis(t, r.Analysis, verbose)
	}
	t.println("=" + strings.Repeat("=", 79))
	t.printf("Messages: %d, traced: %d, failed: %d\n", len(results), len(results)-failed, failed)
	return t.err
}

func writeAnalysis(t *textWriter, a *analysis, verbose bool) {
	r := a.Report

	t.section("MESSAGE ORIGIN")
	if a.Source != "" {
		t.printf("File:        %s\n", sanitizeHeader(a.Source))
	}
	t.printf("Subject:     %s\n", sanitizeHeader(a.Subject))
	t.printf("From:        %s\n", joinSanitized(r.Origin.From))
	t.printf("Return-Path: %s\n", joinSanitized(r.Origin.ReturnPath))
	t.printf("Message-ID:  %s\n", joinSanitized(r.Origin.MessageID))
	if len(a.ReplyTo) > 0 {
		t.printf("Reply-To:    %s\n", joinSanitized(a.ReplyTo))
	}
	t.println()

	t.section("SPF VERDICT")
	t.println("The verdict recorded by the receiving system anchors the trace.")
	t.println()
	if spf := r.Authentication.SPF; spf != nil {
		t.printf("  Result:     %s\n", formatResult(string(spf.Result)))
		if spf.IP != nil {
			t.printf("  Checked IP: %s\n", describeAddress(spf.IP))
		}
		if spf.ClientIP != nil {
			t.printf("  Client IP:  %s\n", sanitizeHeader(spf.ClientIP.String()))
		}
		if spf.FromAddress != "" {
			t.printf("  Mail From:  %s\n", sanitizeHeader(spf.FromAddress))
		}
	} else {
		t.println("  No Received-SPF header found")
	}
	t.println()

	t.section("DELIVERY TRACE")
	t.println("Hops from the one the verdict was reached for back towards the origin.")
	t.println()
	if len(r.Tracing) == 0 {
		t.println("  No hop matches the checked IP")
		t.println()
	}
	for i, hop := range r.Tracing {
		writeHop(t, i, hop, r.Tracing)
	}

	if len(r.SenderChain) > 0 {
		t.section("UNBROKEN SENDER CHAIN")
		for i, s := range r.SenderChain {
			t.printf("  %d. %s\n", i+1, describeSender(s))
		}
		t.println()
	}

	if senders := r.AuthenticationSenders; verbose && (len(senders.Hosts) > 0 || len(senders.EmailAddresses) > 0) {
		t.section("AUTHENTICATION SENDERS")
		for _, h := range senders.Hosts {
			t.printf("  Host:        %s%s\n", describeAddress(h.Host), trustLabel(h.SPF.Trusted))
		}
		for _, e := range senders.EmailAddresses {
			t.printf("  Email:       %s spf=%s%s\n", sanitizeHeader(e.EmailAddress), formatResult(string(e.SPF.Result)), trustLabel(e.SPF.Trusted))
		}
		t.println()
	}

	if verbose && len(a.AuthenticationResults) > 0 {
		t.section("AUTHENTICATION-RESULTS HEADERS")
		for i, ar := range a.AuthenticationResults {
			writeAuthResults(t, i, ar)
		}
	}

	if verbose && len(a.Links) > 0 {
		t.section("LINKS")
		for _, l := range a.Links {
			t.printf("  [%s] %s", l.Kind, sanitizeHeader(truncate(l.Href, 100)))
			if l.Text != "" {
				t.printf(" (%s)", sanitizeHeader(truncate(l.Text, 40)))
			}
			t.println()
		}
		t.println()
	}

	if len(a.Attachments) > 0 {
		t.section("ATTACHMENTS")
		for _, name := range a.Attachments {
			t.printf("  %s\n", sanitizeHeader(name))
		}
		t.println()
	}

	t.section("SUMMARY")
	summarizeTrace(t, r)
	t.println()
}

func writeHop(t *textWriter, i int, hop trace.Hop, hops []trace.Hop) {
	t.printf("Hop #%d", i+1)
	if hop.Partial {
		t.printf(" %s", warnColor("(partial)"))
	}
	t.println()
	if hop.Sender.IP != nil {
		t.printf("  Sender IP:   %s\n", describeAddress(hop.Sender.IP))
	}
	if hop.Sender.Host != "" {
		t.printf("  Sender Host: %s\n", sanitizeHeader(hop.Sender.Host))
	}
	if hop.AdvertisedSender != "" {
		t.printf("  Advertised:  %s\n", sanitizeHeader(hop.AdvertisedSender))
	}
	if hop.Helo != "" {
		t.printf("  HELO:        %s\n", sanitizeHeader(hop.Helo))
	}
	if hop.Recipient != nil {
		t.printf("  Recipient:   %s\n", sanitizeHeader(hop.Recipient.String()))
	}
	if hop.Protocol != "" {
		t.printf("  Protocol:    %s", sanitizeHeader(hop.Protocol))
		if hop.StartTLS != nil {
			t.printf(" (%s %s)", sanitizeHeader(hop.StartTLS.Version), sanitizeHeader(hop.StartTLS.Cipher))
		}
		t.println()
	}
	if hop.Time != nil {
		t.printf("  Time:        %s", hop.Time.Format(time.RFC1123Z))
		if i+1 < len(hops) {
			if d := delay(hops[i+1].Time, hop.Time); d != "" {
				t.printf(" (%s after the previous hop)", d)
			}
		}
		t.println()
	}
	writeContacts(t, "Host Abuse:  ", hop.SenderContactDetails.Host)
	writeContacts(t, "IP Abuse:    ", hop.SenderContactDetails.IP)
	t.println()
}

func writeContacts(t *textWriter, label string, info *trace.HostInformation) {
	if info == nil {
		return
	}
	contacts := "none found"
	if len(info.AbuseContacts) > 0 {
		contacts = joinSanitized(info.AbuseContacts)
	}
	t.printf("  %s%s", label, contacts)
	if info.CreationDate != nil {
		t.printf(" (registered %s)", humanize.Time(*info.CreationDate))
	}
	t.println()
}

func writeAuthResults(t *textWriter, i int, ar authres.AuthResults) {
	t.printf("Auth Server #%d: %s\n", i+1, sanitizeHeader(ar.AuthservID))
	for _, spf := range ar.SPF {
		t.printf("  SPF:   %s", formatResult(string(spf.Result)))
		if spf.MailFrom != "" {
			t.printf(" (mailfrom=%s)", sanitizeHeader(spf.MailFrom))
		}
		t.println()
	}
	for _, dkim := range ar.DKIM {
		t.printf("  DKIM:  %s", formatResult(string(dkim.Result)))
		if dkim.Identity != "" {
			t.printf(" (identity=%s)", sanitizeHeader(dkim.Identity))
		}
		t.println()
	}
	for _, iprev := range ar.Iprev {
		t.printf("  IPREV: %s", formatResult(string(iprev.Result)))
		if iprev.RemoteIP != nil {
			t.printf(" (%s)", iprev.RemoteIP.String())
		}
		t.println()
	}
	for _, auth := range ar.Auth {
		t.printf("  AUTH:  %s\n", formatResult(string(auth.Result)))
	}
	if len(ar.DMARC) > 0 {
		t.println("  DMARC: present")
	}
	t.println()
}

// summarizeTrace gives a one-paragraph assessment of the trace
func summarizeTrace(t *textWriter, r *trace.Report) {
	spf := r.Authentication.SPF
	switch {
	case spf == nil:
		t.printf("SPF Authentication: %s\n", warnColor("UNKNOWN"))
	case spf.Success:
		t.printf("SPF Authentication: %s\n", formatResult("pass"))
	default:
		t.printf("SPF Authentication: %s\n", formatResult(string(spf.Result)))
	}
	t.printf("Traced hops:        %d\n", len(r.Tracing))
	t.printf("Chained senders:    %d\n", len(r.SenderChain))

	contacts := abuseContacts(r)
	if len(contacts) > 0 {
		t.printf("Report abuse to:    %s\n", joinSanitized(contacts))
	}
	t.println()

	switch {
	case spf == nil || len(r.Tracing) == 0:
		t.println("Overall Assessment: " + warnColor("UNTRACEABLE ⚠"))
		t.println("The delivery path could not be anchored to a verdict of the receiving system.")
	case !spf.Success:
		t.println("Overall Assessment: " + failColor("SPOOFED SENDER ✗"))
		t.println("The origin host is not permitted to send for the claimed domain.")
	default:
		t.println("Overall Assessment: " + passColor("TRACED ✓"))
		t.println("The first hop below the receiving system is authorized for the sender domain.")
	}
}

// abuseContacts collects the contacts of the traced hops, nearest first
func abuseContacts(r *trace.Report) []string {
	var out []string
	seen := map[string]bool{}
	add := func(info *trace.HostInformation) {
		if info == nil {
			return
		}
		for _, c := range info.AbuseContacts {
			c = strings.ToLower(c)
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	for _, hop := range r.Tracing {
		add(hop.SenderContactDetails.IP)
		add(hop.SenderContactDetails.Host)
	}
	return out
}

// formatResult formats a result string with color/styling indicators
func formatResult(result string) string {
	result = strings.ToUpper(result)
	switch result {
	case "PASS":
		return passColor(result + " ✓")
	case "FAIL":
		return failColor(result + " ✗")
	case "SOFTFAIL":
		return warnColor(result + " ⚠")
	case "NEUTRAL":
		return result + " ~"
	case "NONE":
		return result + " ○"
	default:
		return result
	}
}

// describeAddress adds the enrichment of a public address
func describeAddress(addr ipaddr.Address) string {
	ext, ok := addr.(ipaddr.Extended)
	if !ok || ext.Enrichment == nil {
		return addr.String()
	}
	e := ext.Enrichment

	var parts []string
	if place := strings.Join(nonEmpty(e.City, e.Country), ", "); place != "" {
		parts = append(parts, place)
	}
	if e.ASN != 0 {
		parts = append(parts, strings.TrimSpace(fmt.Sprintf("AS%d %s", e.ASN, e.Organization)))
	}
	if len(parts) == 0 {
		return addr.String()
	}
	return fmt.Sprintf("%s (%s)", addr, sanitizeHeader(strings.Join(parts, "; ")))
}

func trustLabel(trusted bool) string {
	if trusted {
		return " (trusted)"
	}
	return " (untrusted)"
}

func describeSender(s received.Sender) string {
	switch {
	case s.Host != "" && s.IP != nil:
		return fmt.Sprintf("%s [%s]", sanitizeHeader(s.Host), s.IP)
	case s.IP != nil:
		return fmt.Sprintf("[%s]", s.IP)
	default:
		return sanitizeHeader(s.Host)
	}
}

// delay describes how long a message took from the older hop to the newer
// one. Clock skew between relays can make it negative.
func delay(older, newer *time.Time) string {
	if older == nil || newer == nil {
		return ""
	}
	if newer.Sub(*older) < time.Second && older.Sub(*newer) < time.Second {
		return "less than a second"
	}
	if newer.Before(*older) {
		return strings.TrimSpace(humanize.RelTime(*newer, *older, "", "")) + " of clock skew"
	}
	return strings.TrimSpace(humanize.RelTime(*older, *newer, "", ""))
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func joinSanitized(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = sanitizeHeader(v)
	}
	return strings.Join(out, ", ")
}

// truncate truncates a string to a maximum length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
