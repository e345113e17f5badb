package store

import (
	"database/sql"

	"github.com/google/uuid"

	"panoptikon.dev/panoptikon/internal/errs"
)

// Alert mirrors the Alert entity.
type Alert struct {
	ID             string
	Type           string
	Severity       string
	DeviceID       string
	AgentID        string
	Message        string
	Details        string
	IsRead         bool
	AcknowledgedAt sql.NullString
	AcknowledgedBy string
	CreatedAt      string
}

// InsertAlert inserts a new alert row and returns its id.
func (s *Store) InsertAlert(kind, severity, deviceID, agentID, message, details string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`INSERT INTO alerts
		(id, type, severity, device_id, agent_id, message, details, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		id, kind, severity, nullable(deviceID), nullable(agentID), message, nullable(details), formatTime(s.clock.Now()))
	if err != nil {
		return "", errs.Wrap(errs.Storage, "inserting alert", err)
	}
	return id, nil
}

// AcknowledgeAlert sets acknowledged_at/by and marks the alert read
// (invariant 5: acknowledged_at != null implies is_read).
func (s *Store) AcknowledgeAlert(id, by string) error {
	res, err := s.db.Exec(`UPDATE alerts SET acknowledged_at = ?, acknowledged_by = ?, is_read = 1 WHERE id = ?`,
		formatTime(s.clock.Now()), by, id)
	if err != nil {
		return errs.Wrap(errs.Storage, "acknowledging alert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.Storage, "checking rows affected", err)
	}
	if n == 0 {
		return errs.New(errs.NotFound, "alert not found")
	}
	return nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
