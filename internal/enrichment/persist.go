package enrichment

import (
	"panoptikon.dev/panoptikon/internal/metrics"
	"panoptikon.dev/panoptikon/internal/store"
)

// Persist builds Signals from the Store's view of deviceID, runs Enrich,
// and writes the result back — a thin bridge so the discovery loop can
// call a single function per device without assembling Signals itself.
// mdnsServices/mdnsTXT/ttl/dhcpVendorClass/dhcpFingerprintOS carry whatever
// out-of-band signal sources (passive mDNS listener, DHCP sniffer, NetFlow
// TTL) have observed for this device since its last enrichment pass.
func Persist(s *store.Store, deviceID string, ttl int, mdnsServices []string, mdnsTXT map[string]string, dhcpVendorClass, dhcpFingerprintOS string) error {
	sig, err := s.DeviceSignalsFor(deviceID)
	if err != nil {
		return err
	}

	signals := Signals{
		MAC:               sig.MAC,
		TTL:               ttl,
		MDNSServices:      mdnsServices,
		MDNSTXT:           mdnsTXT,
		Hostname:          sig.Hostname,
		DHCPVendorClass:   dhcpVendorClass,
		DHCPFingerprintOS: dhcpFingerprintOS,
	}
	result := Enrich(signals)
	if result.Source != "" {
		metrics.Get().EnrichmentsApplied.WithLabelValues(result.Source).Inc()
	}

	return s.PersistEnrichment(deviceID, store.EnrichmentResult{
		OSFamily:     result.OSFamily,
		OSVersion:    result.OSVersion,
		DeviceType:   result.DeviceType,
		DeviceBrand:  result.DeviceBrand,
		DeviceModel:  result.DeviceModel,
		MDNSServices: result.MDNSServices,
		Source:       result.Source,
	})
}
