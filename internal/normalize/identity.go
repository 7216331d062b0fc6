package normalize

import (
	"strings"

	"github.com/matheus3301/wppsync/internal/model"
)

// Identity describes who the local user is on the gateway.
type Identity struct {
	// Sentinel is the sender id the gateway uses for the local user.
	Sentinel string
	// Canonical is the local user's own address, if known.
	Canonical string
	// Prefix is an address prefix that marks the local user. Only consulted
	// when PrefixFallback is set.
	Prefix         string
	PrefixFallback bool
}

// DefaultIdentity recognizes only the sentinel sender.
func DefaultIdentity() Identity {
	return Identity{Sentinel: model.LocalSender}
}

// IsLocal reports whether senderID is the local user.
func (id Identity) IsLocal(senderID string) bool {
	if senderID == "" {
		return false
	}
	sentinel := id.Sentinel
	if sentinel == "" {
		sentinel = model.LocalSender
	}
	if senderID == sentinel {
		return true
	}
	addr := Address(senderID)
	if id.Canonical != "" && addr != "" && addr == Address(id.Canonical) {
		return true
	}
	if id.PrefixFallback && id.Prefix != "" && addr != "" {
		return strings.HasPrefix(addr, Address(id.Prefix))
	}
	return false
}

// Address reduces an address in any of its common forms to digits only:
// "5511999998888@c.us", "5511999998888:12@s.whatsapp.net" and
// "+55 (11) 99999-8888" all become "5511999998888".
// Returns "" when nothing numeric remains.
func Address(raw string) string {
	if i := strings.IndexByte(raw, '@'); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		raw = raw[:i]
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatPhone renders Brazilian numbers as "+55 (DD) XXXXX-XXX" and returns
// anything else unchanged.
func FormatPhone(number string) string {
	d := Address(number)
	if strings.HasPrefix(d, "55") && len(d) == 12 {
		return "+55 (" + d[2:4] + ") " + d[4:9] + "-" + d[9:12]
	}
	return number
}
