package store

import (
	"database/sql"

	"golang.org/x/crypto/bcrypt"

	"panoptikon.dev/panoptikon/internal/errs"
)

// CreateAgent inserts a new agent with a bcrypt hash of apiKey.
func (s *Store) CreateAgent(id, name, apiKey string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return errs.Wrap(errs.Internal, "hashing api key", err)
	}
	_, err = s.db.Exec(`INSERT INTO agents (id, name, api_key_hash, created_at) VALUES (?, ?, ?, ?)`,
		id, name, string(hash), formatTime(s.clock.Now()))
	if err != nil {
		return errs.Wrap(errs.Storage, "inserting agent", err)
	}
	return nil
}

// AuthenticateAgent verifies apiKey against agents.api_key_hash for id. It
// deliberately returns the same Unauthorized error whether the id doesn't
// exist or the key doesn't match, so the caller never leaks which one was
// wrong.
func (s *Store) AuthenticateAgent(id, apiKey string) error {
	var hash string
	err := s.db.QueryRow(`SELECT api_key_hash FROM agents WHERE id = ?`, id).Scan(&hash)
	if err == sql.ErrNoRows {
		return errs.New(errs.Unauthorized, "authentication failed")
	}
	if err != nil {
		return errs.Wrap(errs.Storage, "looking up agent", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)) != nil {
		return errs.New(errs.Unauthorized, "authentication failed")
	}
	return nil
}

// TouchAgentLastReport stamps agents.last_report_at = now.
func (s *Store) TouchAgentLastReport(id string) error {
	_, err := s.db.Exec(`UPDATE agents SET last_report_at = ? WHERE id = ?`, formatTime(s.clock.Now()), id)
	if err != nil {
		return errs.Wrap(errs.Storage, "touching agent last_report_at", err)
	}
	return nil
}

// AgentOnline implements agent_online(id) = now - last_report_at < 120s.
func (s *Store) AgentOnline(id string, livenessWindowSeconds int) (bool, error) {
	var lastReport sql.NullString
	err := s.db.QueryRow(`SELECT last_report_at FROM agents WHERE id = ?`, id).Scan(&lastReport)
	if err == sql.ErrNoRows {
		return false, errs.New(errs.NotFound, "agent not found")
	}
	if err != nil {
		return false, errs.Wrap(errs.Storage, "looking up agent", err)
	}
	if !lastReport.Valid {
		return false, nil
	}
	t, err := parseTime(lastReport.String)
	if err != nil {
		return false, errs.Wrap(errs.Internal, "parsing last_report_at", err)
	}
	return s.clock.Now().Sub(t).Seconds() < float64(livenessWindowSeconds), nil
}

// InsertAgentReport appends a report row. reportedAt is always the Store's
// clock, never a client-supplied timestamp (invariant 7).
func (s *Store) InsertAgentReport(agentID string, cpuPercent float64, memUsed, memTotal int64, hostname, disksJSON, interfacesJSON, osName, osVersion string) error {
	_, err := s.db.Exec(`INSERT INTO agent_reports
		(agent_id, reported_at, cpu_percent, mem_used, mem_total, hostname, disks, interfaces, os_name, os_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agentID, formatTime(s.clock.Now()), cpuPercent, memUsed, memTotal, hostname, disksJSON, interfacesJSON, osName, osVersion)
	if err != nil {
		return errs.Wrap(errs.Storage, "inserting agent report", err)
	}
	return nil
}

// ListAgentIDs returns every known agent id, for callers that need to
// sweep all agents (e.g. the Alert Engine's liveness check).
func (s *Store) ListAgentIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM agents`)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "listing agent ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Wrap(errs.Storage, "scanning agent id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LinkAgentToDevice sets agents.device_id by matching hostname or MAC
// against the devices table, if not already linked.
func (s *Store) LinkAgentToDevice(agentID, hostname, mac string) error {
	var deviceID string
	var err error
	if mac != "" {
		err = s.db.QueryRow(`SELECT id FROM devices WHERE mac = ?`, NormalizeMAC(mac)).Scan(&deviceID)
	}
	if (err == sql.ErrNoRows || mac == "") && hostname != "" {
		err = s.db.QueryRow(`SELECT id FROM devices WHERE hostname = ?`, hostname).Scan(&deviceID)
	}
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.Storage, "looking up device for agent link", err)
	}
	if _, err := s.db.Exec(`UPDATE agents SET device_id = ? WHERE id = ? AND device_id IS NULL`, deviceID, agentID); err != nil {
		return errs.Wrap(errs.Storage, "linking agent to device", err)
	}
	return nil
}
