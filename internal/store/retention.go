package store

import (
	"time"

	"panoptikon.dev/panoptikon/internal/errs"
)

// PruneTrafficSamples deletes traffic_samples older than maxAge.
func (s *Store) PruneTrafficSamples(maxAge time.Duration) (int64, error) {
	return s.deleteOlderThan(`DELETE FROM traffic_samples WHERE sampled_at < ?`, maxAge)
}

// PruneAgentReports deletes agent_reports older than maxAge.
func (s *Store) PruneAgentReports(maxAge time.Duration) (int64, error) {
	return s.deleteOlderThan(`DELETE FROM agent_reports WHERE reported_at < ?`, maxAge)
}

// PruneDeviceEvents deletes device_events older than maxAge.
func (s *Store) PruneDeviceEvents(maxAge time.Duration) (int64, error) {
	return s.deleteOlderThan(`DELETE FROM device_events WHERE occurred_at < ?`, maxAge)
}

// PruneAcknowledgedAlerts deletes alerts older than maxAge that have been
// acknowledged. Unacknowledged alerts are never deleted.
func (s *Store) PruneAcknowledgedAlerts(maxAge time.Duration) (int64, error) {
	return s.deleteOlderThan(
		`DELETE FROM alerts WHERE created_at < ? AND acknowledged_at IS NOT NULL`, maxAge)
}

func (s *Store) deleteOlderThan(query string, maxAge time.Duration) (int64, error) {
	cutoff := formatTime(s.clock.Now().Add(-maxAge))
	res, err := s.db.Exec(query, cutoff)
	if err != nil {
		return 0, errs.Wrap(errs.Storage, "pruning rows", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Wrap(errs.Storage, "checking rows affected", err)
	}
	return n, nil
}

// LastVacuumAt returns the last_vacuum_at setting, or the zero time if
// never set.
func (s *Store) LastVacuumAt() (time.Time, error) {
	value, ok, err := s.GetSetting("last_vacuum_at")
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, nil
	}
	return parseTime(value)
}

// Vacuum runs a WAL checkpoint and SQLite's VACUUM, then stamps
// last_vacuum_at to now.
func (s *Store) Vacuum() error {
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return errs.Wrap(errs.Storage, "checkpointing WAL", err)
	}
	if _, err := s.db.Exec(`VACUUM`); err != nil {
		return errs.Wrap(errs.Storage, "vacuuming database", err)
	}
	return s.SetSetting("last_vacuum_at", formatTime(s.clock.Now()))
}
