package ipaddr

import "encoding/json"

// Host is a header value that may be an address literal or a hostname.
// Address is nil when Name is not an address literal.
type Host struct {
	Name    string
	Address Address
}

func (h *Host) String() string {
	if h == nil {
		return ""
	}
	if h.Address != nil {
		return h.Address.String()
	}
	return h.Name
}

// IsAddress reports whether the host holds a classified address
func (h *Host) IsAddress() bool {
	return h != nil && h.Address != nil
}

// Equal compares the classified address when both sides have one, and the
// raw text otherwise
func (h *Host) Equal(other *Host) bool {
	if h == nil || other == nil {
		return h == nil && other == nil
	}
	if h.Address != nil || other.Address != nil {
		return Equal(h.Address, other.Address)
	}
	return h.Name == other.Name
}

func (h *Host) MarshalJSON() ([]byte, error) {
	if h.Address != nil {
		return json.Marshal(h.Address)
	}
	return json.Marshal(h.Name)
}
