// Package network holds small, self-contained LAN lookup tables used by the
// enrichment engine: MAC vendor prefixes. The Apple model-code table lives
// in the enrichment package.
package network

import "strings"

// OUIEntry describes what a MAC vendor prefix tells us about a device.
type OUIEntry struct {
	Manufacturer string
	// DeviceTypeHint is a coarse guess ("router", "nas", "printer") for
	// vendors whose product line is narrow enough to imply it. Empty when
	// the vendor makes too broad a range of devices to guess from alone.
	DeviceTypeHint string
}

// ouiTable is a compile-time seed table, not the full IEEE registry: it is
// deliberately small and meant to be replaced or extended at build time by
// whoever deploys this. Keys are the uppercase 6-hex-digit OUI (MA-L)
// prefix; entries are not comprehensive and do not attempt MA-M/MA-S
// granularity since the seed table only needs vendor hints, not precise
// block ownership.
var ouiTable = map[string]OUIEntry{
	// Virtualization (common on LANs running this appliance itself)
	"005056": {Manufacturer: "VMware, Inc."},
	"000C29": {Manufacturer: "VMware, Inc."},
	"525400": {Manufacturer: "QEMU Virtual NIC"},
	"001C42": {Manufacturer: "Parallels, Inc."},
	"080027": {Manufacturer: "Oracle VirtualBox"},

	// Apple
	"A4C361": {Manufacturer: "Apple, Inc."},
	"A8667F": {Manufacturer: "Apple, Inc."},
	"F0B479": {Manufacturer: "Apple, Inc."},
	"14C213": {Manufacturer: "Apple, Inc."},
	"38F9D3": {Manufacturer: "Apple, Inc."},
	"60FACD": {Manufacturer: "Apple, Inc."},
	"78CA39": {Manufacturer: "Apple, Inc."},
	"88E87F": {Manufacturer: "Apple, Inc."},
	"AC1F74": {Manufacturer: "Apple, Inc."},
	"D4619D": {Manufacturer: "Apple, Inc."},

	// TP-Link — mostly consumer routers/APs
	"10FE2B": {Manufacturer: "TP-Link Technologies", DeviceTypeHint: "router"},
	"14EB08": {Manufacturer: "TP-Link Technologies", DeviceTypeHint: "router"},
	"30B49E": {Manufacturer: "TP-Link Technologies", DeviceTypeHint: "router"},
	"54A7D3": {Manufacturer: "TP-Link Technologies", DeviceTypeHint: "router"},
	"98DA0C": {Manufacturer: "TP-Link Technologies", DeviceTypeHint: "router"},

	// Ubiquiti — APs and switches
	"24A43C": {Manufacturer: "Ubiquiti Inc", DeviceTypeHint: "router"},
	"44D9E7": {Manufacturer: "Ubiquiti Inc", DeviceTypeHint: "router"},
	"788A20": {Manufacturer: "Ubiquiti Inc", DeviceTypeHint: "router"},
	"B4FBE4": {Manufacturer: "Ubiquiti Inc", DeviceTypeHint: "router"},
	"F09FC2": {Manufacturer: "Ubiquiti Inc", DeviceTypeHint: "router"},
	"FC6C3F": {Manufacturer: "Ubiquiti Inc", DeviceTypeHint: "router"},

	// Netgear — routers and NAS
	"000FB5": {Manufacturer: "Netgear", DeviceTypeHint: "router"},
	"20E52A": {Manufacturer: "Netgear", DeviceTypeHint: "router"},
	"4CED63": {Manufacturer: "Netgear", DeviceTypeHint: "router"},
	"6CB0CE": {Manufacturer: "Netgear", DeviceTypeHint: "router"},
	"84F3EB": {Manufacturer: "Netgear", DeviceTypeHint: "router"},
	"A00460": {Manufacturer: "Netgear", DeviceTypeHint: "router"},

	// Cisco/Linksys
	"000F66": {Manufacturer: "Cisco-Linksys", DeviceTypeHint: "router"},
	"001217": {Manufacturer: "Cisco-Linksys", DeviceTypeHint: "router"},
	"001310": {Manufacturer: "Cisco-Linksys", DeviceTypeHint: "router"},
	"001E58": {Manufacturer: "Cisco-Linksys", DeviceTypeHint: "router"},
	"00233F": {Manufacturer: "Cisco Systems"},

	// ASUS
	"048D38": {Manufacturer: "ASUS", DeviceTypeHint: "router"},
	"105A17": {Manufacturer: "ASUS", DeviceTypeHint: "router"},
	"2C4D54": {Manufacturer: "ASUS", DeviceTypeHint: "router"},
	"40B076": {Manufacturer: "ASUS", DeviceTypeHint: "router"},
	"90E6BA": {Manufacturer: "ASUS", DeviceTypeHint: "router"},

	// Intel — NICs, no device-type signal
	"002500": {Manufacturer: "Intel Corporate"},
	"003067": {Manufacturer: "Intel Corporate"},
	"00D861": {Manufacturer: "Intel Corporate"},
	"18CC18": {Manufacturer: "Intel Corporate"},
	"48452B": {Manufacturer: "Intel Corporate"},
	"4C346B": {Manufacturer: "Intel Corporate"},
	"8C8D28": {Manufacturer: "Intel Corporate"},
	"D4F5C7": {Manufacturer: "Intel Corporate"},

	// Printer vendors
	"000A79": {Manufacturer: "Hewlett Packard", DeviceTypeHint: "printer"},
	"3C4A92": {Manufacturer: "Hewlett Packard", DeviceTypeHint: "printer"},
	"D4C9EF": {Manufacturer: "Brother Industries", DeviceTypeHint: "printer"},
	"001B6B": {Manufacturer: "Seiko Epson", DeviceTypeHint: "printer"},

	// Synology / QNAP — NAS
	"0011D1": {Manufacturer: "Synology Incorporated", DeviceTypeHint: "nas"},
	"001132": {Manufacturer: "Synology Incorporated", DeviceTypeHint: "nas"},
	"245EBE": {Manufacturer: "QNAP Systems", DeviceTypeHint: "nas"},
}

// LookupOUI returns vendor info for mac, looked up by its 6-hex-digit OUI
// (MA-L) prefix. ok is false when the prefix is unknown or mac is a
// randomized/locally-administered address (in which case no stable vendor
// exists to look up).
func LookupOUI(mac string) (entry OUIEntry, ok bool) {
	raw := normalizeMAC(mac)
	if len(raw) < 6 {
		return OUIEntry{}, false
	}
	if isLocallyAdministered(raw) {
		return OUIEntry{}, false
	}
	entry, ok = ouiTable[raw[:6]]
	return entry, ok
}

// LookupVendor returns the manufacturer name for mac, or "" if unknown, or
// "Random MAC" if mac looks locally administered (randomized).
func LookupVendor(mac string) string {
	raw := normalizeMAC(mac)
	if len(raw) < 2 {
		return ""
	}
	if isLocallyAdministered(raw) {
		return "Random MAC"
	}
	if len(raw) < 6 {
		return ""
	}
	if entry, ok := ouiTable[raw[:6]]; ok {
		return entry.Manufacturer
	}
	return ""
}

func normalizeMAC(mac string) string {
	raw := strings.ReplaceAll(mac, ":", "")
	raw = strings.ReplaceAll(raw, "-", "")
	raw = strings.ReplaceAll(raw, ".", "")
	return strings.ToUpper(raw)
}

// isLocallyAdministered reports whether raw (normalized hex, no delimiters)
// has the locally-administered bit set in its first octet — the second hex
// digit being 2, 6, A, or E. Such addresses are randomized by the OS or
// hypervisor and carry no vendor information.
func isLocallyAdministered(raw string) bool {
	if len(raw) < 2 {
		return false
	}
	switch raw[1] {
	case '2', '6', 'A', 'E':
		return true
	default:
		return false
	}
}
