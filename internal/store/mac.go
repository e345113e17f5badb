package store

import "strings"

// NormalizeMAC canonicalizes a MAC address to uppercase, colon-separated
// form (invariant 1: MAC is normalized identically everywhere).
func NormalizeMAC(mac string) string {
	raw := strings.ToUpper(mac)
	raw = strings.ReplaceAll(raw, "-", ":")
	raw = strings.ReplaceAll(raw, ".", "")
	if !strings.Contains(raw, ":") && len(raw) == 12 {
		var b strings.Builder
		for i := 0; i < 12; i += 2 {
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteString(raw[i : i+2])
		}
		return b.String()
	}
	return raw
}

// IsBroadcastOrZero reports whether mac (in any common form) is the
// broadcast address or the all-zeros address — both are filtered out
// before a sighting ever reaches the Store.
func IsBroadcastOrZero(mac string) bool {
	norm := NormalizeMAC(mac)
	switch norm {
	case "FF:FF:FF:FF:FF:FF", "00:00:00:00:00:00":
		return true
	default:
		return false
	}
}
