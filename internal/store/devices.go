package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"panoptikon.dev/panoptikon/internal/clock"
	"panoptikon.dev/panoptikon/internal/errs"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// SightingResult reports what upsertDeviceSighting actually changed, so the
// discovery loop can decide which events to emit.
type SightingResult struct {
	DeviceID  string
	WasNew    bool
	IPChanged bool
	// WentOnline is true when the device transitioned from offline (or
	// nonexistent) to online as a result of this sighting.
	WentOnline bool
}

// UpsertDeviceSighting records that mac was seen at ip. It finds the device
// by MAC or creates it; if the device's current IP differs from ip, the old
// DeviceIP row is marked historical and a new current row is inserted;
// last_seen_at is set to now; and is_online flips to true if the device was
// previously offline or just created.
//
// A second sighting of the same (mac, ip) within the same tick is
// idempotent by construction: the current-IP row is simply re-stamped, no
// duplicate row is inserted, and WasNew/IPChanged are both false.
func (s *Store) UpsertDeviceSighting(mac, ip string, graceSeconds int) (SightingResult, error) {
	mac = NormalizeMAC(mac)
	now := s.clock.Now()

	var result SightingResult
	err := s.withTx(func(tx *sql.Tx) error {
		var (
			deviceID    string
			isOnline    bool
			lastSeenStr string
			exists      bool
		)
		err := tx.QueryRow(`SELECT id, is_online, last_seen_at FROM devices WHERE mac = ?`, mac).
			Scan(&deviceID, &isOnline, &lastSeenStr)
		switch {
		case err == sql.ErrNoRows:
			exists = false
		case err != nil:
			return fmt.Errorf("looking up device by mac: %w", err)
		default:
			exists = true
		}

		if !exists {
			deviceID = uuid.NewString()
			if _, err := tx.Exec(`INSERT INTO devices
				(id, mac, is_known, is_favorite, first_seen_at, last_seen_at, is_online, enrichment_corrected, updated_at)
				VALUES (?, ?, 0, 0, ?, ?, 1, 0, ?)`,
				deviceID, mac, formatTime(now), formatTime(now), formatTime(now)); err != nil {
				return fmt.Errorf("inserting device: %w", err)
			}
			result.WasNew = true
			result.WentOnline = true
		} else {
			if _, err := tx.Exec(`UPDATE devices SET last_seen_at = ?, is_online = 1, updated_at = ? WHERE id = ?`,
				formatTime(now), formatTime(now), deviceID); err != nil {
				return fmt.Errorf("updating device last_seen_at: %w", err)
			}
			if !isOnline {
				result.WentOnline = true
			}
		}

		var currentIP sql.NullString
		err = tx.QueryRow(`SELECT ip FROM device_ips WHERE device_id = ? AND is_current = 1`, deviceID).Scan(&currentIP)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("looking up current ip: %w", err)
		}

		switch {
		case !currentIP.Valid:
			if _, err := tx.Exec(`INSERT INTO device_ips (device_id, ip, seen_at, is_current) VALUES (?, ?, ?, 1)`,
				deviceID, ip, formatTime(now)); err != nil {
				return fmt.Errorf("inserting current ip: %w", err)
			}
		case currentIP.String == ip:
			// Idempotent re-sighting: nothing to change about the IP table.
		default:
			if _, err := tx.Exec(`UPDATE device_ips SET is_current = 0 WHERE device_id = ? AND is_current = 1`, deviceID); err != nil {
				return fmt.Errorf("marking old ip historical: %w", err)
			}
			if _, err := tx.Exec(`INSERT INTO device_ips (device_id, ip, seen_at, is_current) VALUES (?, ?, ?, 1)`,
				deviceID, ip, formatTime(now)); err != nil {
				return fmt.Errorf("inserting new current ip: %w", err)
			}
			result.IPChanged = true
		}

		result.DeviceID = deviceID
		return nil
	})
	return result, err
}

// MarkStaleOffline flips is_online=false for every device whose
// last_seen_at is older than graceSeconds, returning only the ids that
// actually transitioned (so the caller never double-emits an offline
// event).
func (s *Store) MarkStaleOffline(graceSeconds int) ([]string, error) {
	cutoff := s.clock.Now().Add(-time.Duration(graceSeconds) * time.Second)

	var ids []string
	err := s.withTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT id FROM devices WHERE is_online = 1 AND last_seen_at < ?`, formatTime(cutoff))
		if err != nil {
			return fmt.Errorf("selecting stale devices: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scanning stale device id: %w", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		for _, id := range ids {
			if _, err := tx.Exec(`UPDATE devices SET is_online = 0, updated_at = ? WHERE id = ?`, formatTime(s.clock.Now()), id); err != nil {
				return fmt.Errorf("marking device %s offline: %w", id, err)
			}
		}
		return nil
	})
	return ids, err
}

// StaleCandidate is a device about to be flipped offline by MarkStaleOffline,
// returned early so the discovery loop can attempt an active reachability
// probe before trusting the stale ARP entry.
type StaleCandidate struct {
	DeviceID string
	IP       string
}

// StaleCandidates returns the (id, ip) of every online device whose
// last_seen_at has already crossed graceSeconds, without modifying any row.
func (s *Store) StaleCandidates(graceSeconds int) ([]StaleCandidate, error) {
	cutoff := s.clock.Now().Add(-time.Duration(graceSeconds) * time.Second)

	rows, err := s.db.Query(`
		SELECT d.id, COALESCE(ip.ip, '')
		FROM devices d
		LEFT JOIN device_ips ip ON ip.device_id = d.id AND ip.is_current = 1
		WHERE d.is_online = 1 AND d.last_seen_at < ?`, formatTime(cutoff))
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "selecting stale candidates", err)
	}
	defer rows.Close()

	var out []StaleCandidate
	for rows.Next() {
		var c StaleCandidate
		if err := rows.Scan(&c.DeviceID, &c.IP); err != nil {
			return nil, errs.Wrap(errs.Storage, "scanning stale candidate", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RefreshLastSeen bumps last_seen_at to now without touching is_online or
// emitting any transition. The discovery loop calls this when an active
// probe confirms a device the ARP table has aged out is still reachable.
func (s *Store) RefreshLastSeen(deviceID string) error {
	_, err := s.db.Exec(`UPDATE devices SET last_seen_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(s.clock.Now()), formatTime(s.clock.Now()), deviceID)
	if err != nil {
		return errs.Wrap(errs.Storage, "refreshing last_seen_at", err)
	}
	return nil
}

// IsDeviceMuted reports whether deviceID's muted_until is in the future.
func (s *Store) IsDeviceMuted(deviceID string) (bool, error) {
	var mutedUntil sql.NullString
	err := s.db.QueryRow(`SELECT muted_until FROM devices WHERE id = ?`, deviceID).Scan(&mutedUntil)
	if err == sql.ErrNoRows {
		return false, errs.New(errs.NotFound, "device not found")
	}
	if err != nil {
		return false, errs.Wrap(errs.Storage, "querying mute state", err)
	}
	if !mutedUntil.Valid {
		return false, nil
	}
	until, err := parseTime(mutedUntil.String)
	if err != nil {
		return false, errs.Wrap(errs.Internal, "parsing muted_until", err)
	}
	return until.After(s.clock.Now()), nil
}

// SetMuted sets deviceID's muted_until. This is not part of spec.md's Store
// contract, but is required by the muted-device test scenario: a per-device
// mute is a user action the Alert Engine must respect on every subsequent
// event.
func (s *Store) SetMuted(deviceID string, until time.Time) error {
	res, err := s.db.Exec(`UPDATE devices SET muted_until = ?, updated_at = ? WHERE id = ?`,
		formatTime(until), formatTime(s.clock.Now()), deviceID)
	if err != nil {
		return errs.Wrap(errs.Storage, "setting muted_until", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.Storage, "checking rows affected", err)
	}
	if n == 0 {
		return errs.New(errs.NotFound, "device not found")
	}
	return nil
}

// SetDeviceHostnameIfEmpty records a passively observed hostname (e.g. a
// DHCP option 12 value) for deviceID, but only if the device has none yet —
// a passive sniffer should never clobber a hostname the discovery loop or
// an mDNS announcement already established.
func (s *Store) SetDeviceHostnameIfEmpty(deviceID, hostname string) error {
	if hostname == "" {
		return nil
	}
	_, err := s.db.Exec(`UPDATE devices SET hostname = ?, updated_at = ?
		WHERE id = ? AND (hostname IS NULL OR hostname = '')`,
		hostname, formatTime(s.clock.Now()), deviceID)
	if err != nil {
		return errs.Wrap(errs.Storage, "setting device hostname", err)
	}
	return nil
}

// SetDeviceModelIfEmpty records a device model guessed from mDNS TXT-record
// profiling (e.g. a Cast/HomeKit/Printer model string), but only if no
// enrichment source has already set one — passive mDNS profiling is a
// supplementary hint, not a replacement for the precedence-ordered
// enrichment engine's own model_db match.
func (s *Store) SetDeviceModelIfEmpty(deviceID, model string) error {
	if model == "" {
		return nil
	}
	_, err := s.db.Exec(`UPDATE devices SET device_model = ?, updated_at = ?
		WHERE id = ? AND (device_model IS NULL OR device_model = '')`,
		model, formatTime(s.clock.Now()), deviceID)
	if err != nil {
		return errs.Wrap(errs.Storage, "setting device model", err)
	}
	return nil
}

// SetDeviceAliasIfEmpty records an mDNS-derived friendly name (e.g. a Cast
// or HomeKit device's "fn" TXT field) into notes as a user-visible alias
// suggestion, but only if notes is still empty — a user's own note always
// wins and is never overwritten by a passive signal.
func (s *Store) SetDeviceAliasIfEmpty(deviceID, alias string) error {
	if alias == "" {
		return nil
	}
	_, err := s.db.Exec(`UPDATE devices SET notes = ?, updated_at = ?
		WHERE id = ? AND (notes IS NULL OR notes = '')`,
		alias, formatTime(s.clock.Now()), deviceID)
	if err != nil {
		return errs.Wrap(errs.Storage, "setting device alias suggestion", err)
	}
	return nil
}

// RecordEvent appends a row to device_events.
func (s *Store) RecordEvent(deviceID, eventType string) error {
	_, err := s.db.Exec(`INSERT INTO device_events (device_id, occurred_at, event_type) VALUES (?, ?, ?)`,
		deviceID, formatTime(s.clock.Now()), eventType)
	if err != nil {
		return errs.Wrap(errs.Storage, "recording device event", err)
	}
	return nil
}

// LastEventTime returns the most recent occurred_at for deviceID's
// eventType rows (e.g. "offline"), used by the Alert Engine to measure how
// long a device was offline before an online transition.
func (s *Store) LastEventTime(deviceID, eventType string) (time.Time, bool, error) {
	var occurredAt string
	err := s.db.QueryRow(`SELECT occurred_at FROM device_events WHERE device_id = ? AND event_type = ? ORDER BY occurred_at DESC LIMIT 1`,
		deviceID, eventType).Scan(&occurredAt)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errs.Wrap(errs.Storage, "querying last device event", err)
	}
	t, err := parseTime(occurredAt)
	if err != nil {
		return time.Time{}, false, errs.Wrap(errs.Internal, "parsing device event time", err)
	}
	return t, true, nil
}

// Clock exposes the store's injected clock so callers (e.g. the Alert
// Engine) that need "now" can stay in step with the same mocked time the
// store itself uses in tests.
func (s *Store) Clock() clock.Clock {
	return s.clock
}

// CountOnlineDevices returns how many devices currently have is_online=true,
// for the discovery loop's devices-online gauge.
func (s *Store) CountOnlineDevices() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM devices WHERE is_online = 1`).Scan(&n); err != nil {
		return 0, errs.Wrap(errs.Storage, "counting online devices", err)
	}
	return n, nil
}

// busyRetryBackoff is the pause before withTx's single retry of a
// SQLITE_BUSY/locked transaction. Short enough not to stall a discovery
// tick, long enough to outlast the kind of brief writer overlap the
// WAL-mode busy timeout doesn't already absorb on its own.
const busyRetryBackoff = 25 * time.Millisecond

func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	err := s.runTx(fn)
	if err != nil && isBusy(err) {
		time.Sleep(busyRetryBackoff)
		err = s.runTx(fn)
	}
	if err != nil {
		if isBusy(err) {
			return errs.Wrap(errs.Storage, "transaction failed (busy) after one retry", err)
		}
		return err
	}
	return nil
}

func (s *Store) runTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errs.Wrap(errs.Storage, "beginning transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.Storage, "committing transaction", err)
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
