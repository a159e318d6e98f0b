package trace

import (
	"strings"

	"github.com/charlesgreen/emailtrace/internal/ipaddr"
	"github.com/charlesgreen/emailtrace/internal/received"
)

// SenderChain walks from the first record sent from anchorIP towards the
// origin, keeping each older record while its recipient is the host the
// previous record says it was sent from. The walk stops at the first break.
func SenderChain(records []received.Record, anchorIP ipaddr.Address) []received.Sender {
	start := anchorIndex(records, anchorIP)
	if start < 0 {
		return nil
	}

	chain := []received.Sender{records[start].Sender}
	for _, r := range records[start+1:] {
		last := chain[len(chain)-1]
		if !handedOver(r.Recipient, last) {
			break
		}
		chain = append(chain, r.Sender)
	}
	return chain
}

// handedOver reports whether recipient is the sender a newer hop names
func handedOver(recipient *ipaddr.Host, sender received.Sender) bool {
	if recipient == nil {
		return false
	}
	if sender.Host != "" && strings.EqualFold(strings.TrimSuffix(recipient.Name, "."), strings.TrimSuffix(sender.Host, ".")) {
		return true
	}
	return recipient.IsAddress() && ipaddr.Equal(recipient.Address, sender.IP)
}
