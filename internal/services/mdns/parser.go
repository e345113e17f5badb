package mdns

import (
	"encoding/hex"
	"net"
	"strings"

	"golang.org/x/net/dns/dnsmessage"
)

// ParsedMDNS is everything worth attributing to a device from one
// multicast DNS packet: the service types it announced, any hostname a
// PTR/A/AAAA/SRV record revealed, and the raw TXT-record key/value pairs
// profiler.go classifies into a device profile.
type ParsedMDNS struct {
	SrcMAC     string
	SrcIP      string
	Interface  string
	Hostname   string
	Services   []string
	TXTRecords map[string]string
}

// ParseMDNSPacket decodes one overheard mDNS packet into ParsedMDNS. It
// walks the answer, authority, and additional sections — a genuine
// announcement commonly splits its PTR/SRV/TXT trio across more than one
// of these — and returns as soon as the header parses, even if some
// individual resource record is malformed or truncated.
func ParseMDNSPacket(data []byte, srcIP net.IP, iface string) (*ParsedMDNS, error) {
	var parser dnsmessage.Parser
	if _, err := parser.Start(data); err != nil {
		return nil, err
	}

	result := &ParsedMDNS{
		SrcIP:      srcIP.String(),
		Interface:  iface,
		Services:   []string{},
		TXTRecords: make(map[string]string),
	}

	if err := parser.SkipAllQuestions(); err != nil {
		return nil, err
	}

	for {
		rr, err := parser.Answer()
		if err == dnsmessage.ErrSectionDone {
			break
		}
		if err != nil {
			break
		}
		extractRecord(rr, result)
	}
	for {
		rr, err := parser.Authority()
		if err == dnsmessage.ErrSectionDone {
			break
		}
		if err != nil {
			break
		}
		extractRecord(rr, result)
	}
	for {
		rr, err := parser.Additional()
		if err == dnsmessage.ErrSectionDone {
			break
		}
		if err != nil {
			break
		}
		extractRecord(rr, result)
	}

	return result, nil
}

// extractRecord folds one resource record into the accumulated parse
// result. PTR/A/AAAA/SRV records contribute a hostname or service-type
// name; TXT records contribute the key=value pairs profiler.go scores
// against its per-protocol device signatures.
func extractRecord(rr dnsmessage.Resource, result *ParsedMDNS) {
	name := rr.Header.Name.String()

	switch body := rr.Body.(type) {
	case *dnsmessage.PTRResource:
		// _googlecast._tcp.local -> service type; a bare "host.local" PTR
		// target doubles as a hostname hint.
		ptr := body.PTR.String()
		if strings.Contains(name, "_tcp") || strings.Contains(name, "_udp") {
			recordService(result, extractServiceType(name))
		}
		if strings.HasSuffix(ptr, ".local.") && !strings.Contains(ptr, "_") {
			result.Hostname = strings.TrimSuffix(ptr, ".local.")
		}

	case *dnsmessage.AResource:
		if strings.HasSuffix(name, ".local.") && !strings.Contains(name, "_") {
			result.Hostname = strings.TrimSuffix(name, ".local.")
		}

	case *dnsmessage.AAAAResource:
		if strings.HasSuffix(name, ".local.") && !strings.Contains(name, "_") {
			result.Hostname = strings.TrimSuffix(name, ".local.")
		}

	case *dnsmessage.SRVResource:
		recordService(result, extractServiceType(name))
		target := body.Target.String()
		if strings.HasSuffix(target, ".local.") && !strings.Contains(target, "_") {
			result.Hostname = strings.TrimSuffix(target, ".local.")
		}

	case *dnsmessage.TXTResource:
		for _, txt := range body.TXT {
			if idx := strings.Index(txt, "="); idx > 0 {
				result.TXTRecords[txt[:idx]] = txt[idx+1:]
				continue
			}
			// Some devices (e.g. HomeKit) advertise a bare flag rather
			// than key=value; key it on a hex prefix so it doesn't
			// collide with a real key and the raw value still survives.
			key := "txt_" + hex.EncodeToString([]byte(txt[:min(4, len(txt))]))
			result.TXTRecords[key] = txt
		}
		recordService(result, extractServiceType(name))
	}
}

func recordService(result *ParsedMDNS, svc string) {
	if svc == "" {
		return
	}
	for _, existing := range result.Services {
		if existing == svc {
			return
		}
	}
	result.Services = append(result.Services, svc)
}

// extractServiceType pulls the "_service._proto" pair out of a DNS name,
// e.g. "My Chromecast._googlecast._tcp.local." -> "_googlecast._tcp".
func extractServiceType(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		if strings.HasPrefix(part, "_") && i+1 < len(parts) {
			next := parts[i+1]
			if next == "_tcp" || next == "_udp" {
				return part + "." + next
			}
		}
	}
	return ""
}
