package store

import (
	"database/sql"
	"strings"

	"panoptikon.dev/panoptikon/internal/errs"
)

// DeviceSignals is what the enrichment engine needs read out of the Store
// to build its signal set for a device: its MAC, current hostname/vendor,
// and whether a user has locked its enrichment columns.
type DeviceSignals struct {
	DeviceID            string
	MAC                 string
	Hostname            string
	Vendor              string
	MDNSServices        string
	EnrichmentCorrected bool
}

// DeviceSignalsFor reads the signal inputs for deviceID.
func (s *Store) DeviceSignalsFor(deviceID string) (DeviceSignals, error) {
	var (
		sig      DeviceSignals
		hostname sql.NullString
		vendor   sql.NullString
		mdns     sql.NullString
	)
	err := s.db.QueryRow(`SELECT id, mac, hostname, vendor, mdns_services, enrichment_corrected
		FROM devices WHERE id = ?`, deviceID).
		Scan(&sig.DeviceID, &sig.MAC, &hostname, &vendor, &mdns, &sig.EnrichmentCorrected)
	if err == sql.ErrNoRows {
		return DeviceSignals{}, errs.New(errs.NotFound, "device not found")
	}
	if err != nil {
		return DeviceSignals{}, errs.Wrap(errs.Storage, "reading device signals", err)
	}
	sig.Hostname = hostname.String
	sig.Vendor = vendor.String
	sig.MDNSServices = mdns.String
	return sig, nil
}

// EnrichmentResult is the set of columns the enrichment engine may write.
// Zero-value fields (empty string) are left untouched by PersistEnrichment.
type EnrichmentResult struct {
	OSFamily     string
	OSVersion    string
	DeviceType   string
	DeviceBrand  string
	DeviceModel  string
	Source       string
	MDNSServices string
}

// PersistEnrichment writes result's non-empty fields to deviceID, unless
// enrichment_corrected is set, in which case it is a no-op (invariant 4).
// It never touches is_known, is_favorite, or notes.
func (s *Store) PersistEnrichment(deviceID string, result EnrichmentResult) error {
	var corrected bool
	if err := s.db.QueryRow(`SELECT enrichment_corrected FROM devices WHERE id = ?`, deviceID).Scan(&corrected); err != nil {
		if err == sql.ErrNoRows {
			return errs.New(errs.NotFound, "device not found")
		}
		return errs.Wrap(errs.Storage, "checking enrichment lock", err)
	}
	if corrected {
		return nil
	}

	sets := []string{"updated_at = ?"}
	args := []any{formatTime(s.clock.Now())}

	if result.OSFamily != "" {
		sets = append(sets, "os_family = ?")
		args = append(args, result.OSFamily)
	}
	if result.OSVersion != "" {
		sets = append(sets, "os_version = ?")
		args = append(args, result.OSVersion)
	}
	if result.DeviceType != "" {
		sets = append(sets, "device_type = ?")
		args = append(args, result.DeviceType)
	}
	if result.DeviceBrand != "" {
		sets = append(sets, "device_brand = ?")
		args = append(args, result.DeviceBrand)
	}
	if result.DeviceModel != "" {
		sets = append(sets, "device_model = ?")
		args = append(args, result.DeviceModel)
	}
	if result.MDNSServices != "" {
		sets = append(sets, "mdns_services = ?")
		args = append(args, result.MDNSServices)
	}
	if result.Source != "" {
		sets = append(sets, "enrichment_source = ?")
		args = append(args, result.Source)
	}

	query := "UPDATE devices SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, deviceID)

	if _, err := s.db.Exec(query, args...); err != nil {
		return errs.Wrap(errs.Storage, "persisting enrichment", err)
	}
	return nil
}
