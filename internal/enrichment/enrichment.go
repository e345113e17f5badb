// Package enrichment implements the multi-signal device classification
// engine: a pure function from a Signals bundle to a Result, with a strict
// source precedence, plus a Store-backed persist step that honors the
// per-device user-correction lock.
package enrichment

import (
	"strconv"
	"strings"

	"panoptikon.dev/panoptikon/internal/network"
)

// Signals bundles every input the enrichment engine may consult for one
// device. Callers populate whichever fields they have; zero values are
// simply skipped by the corresponding rule.
type Signals struct {
	MAC             string
	TTL             int
	MDNSServices    []string
	MDNSTXT         map[string]string
	Hostname        string
	DHCPVendorClass string
	// DHCPFingerprintOS is the OS family, if any, that the DHCP sniffer's
	// option-55 (parameter request list) fingerprint table matched. Coarser
	// than the option-60 vendor class but finer than a bare TTL band.
	DHCPFingerprintOS string
}

// Result is the set of fields enrichment may set. Source names the single
// signal that fired last and meaningfully contributed.
type Result struct {
	OSFamily     string
	OSVersion    string
	DeviceType   string
	DeviceBrand  string
	DeviceModel  string
	MDNSServices string
	Source       string
}

// hostnamePatterns is the ordered substring-token table used by the
// hostname-pattern rule. Order does not encode priority among these
// entries — precedence across *sources* is fixed by Enrich, not within a
// single source's own table.
var hostnamePatterns = []struct {
	token      string
	osFamily   string
	deviceType string
}{
	{"iphone", "iOS", "phone"},
	{"ipad", "iOS", "tablet"},
	{"macbook", "macOS", "laptop"},
	{"imac", "macOS", "desktop"},
	{"android", "Android", "phone"},
	{"galaxy", "Android", "phone"},
	{"desktop-", "Windows", "desktop"},
	{"server", "", "server"},
	{"printer", "", "printer"},
	{"tv", "", "tv"},
}

// mdnsServiceTable maps an mDNS service type to the device type it implies.
var mdnsServiceTable = map[string]string{
	"_ipp._tcp":           "printer",
	"_ipps._tcp":          "printer",
	"_printer._tcp":       "printer",
	"_airplay._tcp":       "tv",
	"_googlecast._tcp":    "tv",
	"_apple-mobdev2._tcp": "phone",
	"_homekit._tcp":       "home_hub",
}

// Enrich runs the full precedence chain over signals and returns the
// combined Result. Once a field is set by a higher-priority source it is
// never overwritten by a lower-priority one within this call — each rule
// below only fills fields still at their zero value, except the Apple
// model-code rule, which runs last and overrides model and type.
func Enrich(signals Signals) Result {
	var result Result

	// TTL band is the coarsest signal available (three buckets covering
	// every Unix-like, Windows, and networking OS in existence) so it only
	// ever fills an os_family the other rules left blank, even though it is
	// listed second in the source precedence table: see
	// TestEnrich_TTLNeverOverridesSetOSFamily.
	applyOUI(signals, &result)
	applyMDNS(signals, &result)
	applyHostname(signals, &result)
	applyDHCPVendorClass(signals, &result)
	applyDHCPFingerprint(signals, &result)
	applyTTL(signals, &result)
	applyAppleModel(signals, &result)

	return result
}

func applyOUI(signals Signals, result *Result) {
	entry, ok := network.LookupOUI(signals.MAC)
	if !ok {
		return
	}
	if result.DeviceBrand == "" {
		result.DeviceBrand = entry.Manufacturer
		result.Source = "oui"
	}
	if result.DeviceType == "" && entry.DeviceTypeHint != "" {
		result.DeviceType = entry.DeviceTypeHint
		result.Source = "oui"
	}
}

func applyTTL(signals Signals, result *Result) {
	if signals.TTL == 0 {
		return
	}
	band := ttlBand(signals.TTL)
	if band == "" {
		return
	}
	if result.OSFamily == "" {
		result.OSFamily = band
		result.Source = "ttl"
	}
}

// ttlBand maps an observed TTL to the coarse OS family it suggests,
// tolerating a handful of intervening hops.
func ttlBand(ttl int) string {
	switch {
	case ttl > 60 && ttl <= 64:
		return "Unix-like"
	case ttl > 120 && ttl <= 128:
		return "Windows"
	case ttl > 245 && ttl <= 255:
		return "network gear"
	default:
		return ""
	}
}

func applyMDNS(signals Signals, result *Result) {
	if len(signals.MDNSServices) == 0 {
		return
	}
	if result.MDNSServices == "" {
		result.MDNSServices = strings.Join(signals.MDNSServices, ",")
	}
	if result.DeviceType != "" {
		return
	}
	for _, svc := range signals.MDNSServices {
		if dt, ok := mdnsServiceTable[svc]; ok {
			result.DeviceType = dt
			result.Source = "mdns"
			return
		}
	}
}

func applyHostname(signals Signals, result *Result) {
	if signals.Hostname == "" {
		return
	}
	lower := strings.ToLower(signals.Hostname)
	for _, p := range hostnamePatterns {
		if !strings.Contains(lower, p.token) {
			continue
		}
		changed := false
		if result.OSFamily == "" && p.osFamily != "" {
			result.OSFamily = p.osFamily
			changed = true
		}
		if result.DeviceType == "" && p.deviceType != "" {
			result.DeviceType = p.deviceType
			changed = true
		}
		if changed {
			result.Source = "hostname"
		}
		return
	}
}

// applyDHCPVendorClass implements the option-60 rule: android-dhcp-N →
// Android vN, MSFT → Windows, iPhone → iOS, dhcpcd-/udhcpc → Linux.
func applyDHCPVendorClass(signals Signals, result *Result) {
	vc := signals.DHCPVendorClass
	if vc == "" {
		return
	}
	switch {
	case strings.HasPrefix(vc, "android-dhcp-"):
		if result.OSFamily == "" {
			result.OSFamily = "Android"
			result.Source = "dhcp_option60"
		}
		version := strings.TrimPrefix(vc, "android-dhcp-")
		if result.OSVersion == "" && version != "" {
			if _, err := strconv.Atoi(version); err == nil {
				result.OSVersion = version
				result.Source = "dhcp_option60"
			}
		}
	case strings.HasPrefix(vc, "MSFT"):
		if result.OSFamily == "" {
			result.OSFamily = "Windows"
			result.Source = "dhcp_option60"
		}
	case strings.HasPrefix(vc, "iPhone"):
		if result.OSFamily == "" {
			result.OSFamily = "iOS"
			result.Source = "dhcp_option60"
		}
	case strings.HasPrefix(vc, "dhcpcd-"), strings.HasPrefix(vc, "udhcpc"):
		if result.OSFamily == "" {
			result.OSFamily = "Linux"
			result.Source = "dhcp_option60"
		}
	}
}

// applyDHCPFingerprint fills os_family from the DHCP sniffer's option-55
// fingerprint lookup when nothing more specific already has. The caller
// (the DHCP sighting handler) runs the fingerprint table lookup itself and
// passes the result in, since that table lives alongside the sniffer that
// captured it.
func applyDHCPFingerprint(signals Signals, result *Result) {
	if signals.DHCPFingerprintOS == "" {
		return
	}
	if result.OSFamily == "" {
		result.OSFamily = signals.DHCPFingerprintOS
		result.Source = "dhcp_fingerprint"
	}
}

// applyAppleModel consults the hostname and mDNS TXT "md"/"model" fields
// for a raw Apple model code (e.g. "iPhone14,6") and, if found, overrides
// model and coarse type — this source always wins on device_model/type
// because it runs last and is the most specific signal available.
func applyAppleModel(signals Signals, result *Result) {
	candidates := []string{signals.Hostname}
	if signals.MDNSTXT != nil {
		candidates = append(candidates, signals.MDNSTXT["md"], signals.MDNSTXT["model"])
	}

	for _, c := range candidates {
		model, ok := lookupAppleModelToken(c)
		if !ok {
			continue
		}
		result.DeviceModel = model.Name
		result.DeviceType = model.DeviceType
		result.DeviceBrand = "Apple"
		result.Source = "model_db"
		return
	}
}

// lookupAppleModelToken scans s for a known Apple model code token
// (e.g. "iPhone14,6") anywhere in the string.
func lookupAppleModelToken(s string) (AppleModel, bool) {
	if s == "" {
		return AppleModel{}, false
	}
	for code, model := range appleModelTable {
		if strings.Contains(s, code) {
			return model, true
		}
	}
	return AppleModel{}, false
}
