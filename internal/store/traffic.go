package store

import (
	"database/sql"

	"panoptikon.dev/panoptikon/internal/errs"
)

// TrafficSampleInput is one device's flushed byte counts for a window,
// ready for the bps conversion and insertion performed by
// FlushTrafficSamples.
type TrafficSampleInput struct {
	DeviceID string
	RxBytes  uint64
	TxBytes  uint64
}

// FlushTrafficSamples converts each input's byte counts to bits-per-second
// over windowSeconds and writes one row per device in a single transaction.
// Rows where both rx_bps and tx_bps would be zero are skipped, per the
// NetFlow Collector's flush rule. Never decrements a raw counter: bytes is
// trusted to already be a non-negative window total.
func (s *Store) FlushTrafficSamples(samples []TrafficSampleInput, windowSeconds float64, source string) error {
	if len(samples) == 0 {
		return nil
	}
	now := formatTime(s.clock.Now())

	return s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO traffic_samples (device_id, sampled_at, source, rx_bps, tx_bps) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, sample := range samples {
			rxBps := float64(sample.RxBytes) * 8 / windowSeconds
			txBps := float64(sample.TxBytes) * 8 / windowSeconds
			if rxBps == 0 && txBps == 0 {
				continue
			}
			if _, err := stmt.Exec(sample.DeviceID, now, source, rxBps, txBps); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeviceIDForIP returns the device id whose current IP is ip, if any.
func (s *Store) DeviceIDForIP(ip string) (string, bool, error) {
	var id string
	err := s.db.QueryRow(`SELECT device_id FROM device_ips WHERE ip = ? AND is_current = 1`, ip).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.Wrap(errs.Storage, "looking up device by ip", err)
	}
	return id, true, nil
}

// DeviceIDForMAC returns the device id for mac, if a device with that MAC
// has ever been sighted. Used by signal sources that observe a MAC before
// the device has an IP, such as a DHCP DISCOVER.
func (s *Store) DeviceIDForMAC(mac string) (string, bool, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM devices WHERE mac = ?`, NormalizeMAC(mac)).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.Wrap(errs.Storage, "looking up device by mac", err)
	}
	return id, true, nil
}

// RecentTrafficSamples returns the last n rx_bps readings for deviceID,
// most recent first — used by the high_bandwidth threshold rule to check
// for 3 consecutive windows over a limit.
func (s *Store) RecentTrafficSamples(deviceID string, n int) ([]TrafficSampleInput, error) {
	rows, err := s.db.Query(`SELECT rx_bps, tx_bps FROM traffic_samples WHERE device_id = ? ORDER BY sampled_at DESC LIMIT ?`, deviceID, n)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "querying recent traffic samples", err)
	}
	defer rows.Close()

	var out []TrafficSampleInput
	for rows.Next() {
		var rx, tx float64
		if err := rows.Scan(&rx, &tx); err != nil {
			return nil, errs.Wrap(errs.Storage, "scanning traffic sample", err)
		}
		out = append(out, TrafficSampleInput{DeviceID: deviceID, RxBytes: uint64(rx), TxBytes: uint64(tx)})
	}
	return out, rows.Err()
}
