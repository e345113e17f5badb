package store

import (
	"database/sql"
	"time"

	"panoptikon.dev/panoptikon/internal/errs"
)

func secondsToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// GetSetting returns the value stored under key, or ("", false, nil) if
// unset.
func (s *Store) GetSetting(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.Wrap(errs.Storage, "reading setting", err)
	}
	return value, true, nil
}

// SetSetting upserts key=value. Used for the webhook URL, admin password
// hash, last_vacuum_at, and similar singletons.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return errs.Wrap(errs.Storage, "writing setting", err)
	}
	return nil
}

// CreateSession inserts a UI session token with the given expiry.
func (s *Store) CreateSession(token string, expiresAtSeconds int) error {
	expiresAt := formatTime(s.clock.Now().Add(secondsToDuration(expiresAtSeconds)))
	_, err := s.db.Exec(`INSERT INTO sessions (token, expires_at) VALUES (?, ?)`, token, expiresAt)
	if err != nil {
		return errs.Wrap(errs.Storage, "creating session", err)
	}
	return nil
}

// ValidateSession reports whether token exists and has not expired.
func (s *Store) ValidateSession(token string) (bool, error) {
	var expiresAtStr string
	err := s.db.QueryRow(`SELECT expires_at FROM sessions WHERE token = ?`, token).Scan(&expiresAtStr)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.Storage, "looking up session", err)
	}
	expiresAt, err := parseTime(expiresAtStr)
	if err != nil {
		return false, errs.Wrap(errs.Internal, "parsing session expiry", err)
	}
	return expiresAt.After(s.clock.Now()), nil
}

// DeleteSession invalidates token (logout).
func (s *Store) DeleteSession(token string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return errs.Wrap(errs.Storage, "deleting session", err)
	}
	return nil
}
