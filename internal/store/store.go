// Package store is the sole mutator of persisted state: devices, their IP
// history, agents and their reports, traffic samples, alerts, device
// events, settings, and UI sessions. Every other component borrows a Store
// handle; all multi-statement operations run inside a transaction.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"panoptikon.dev/panoptikon/internal/clock"
	"panoptikon.dev/panoptikon/internal/errs"
)

// Store wraps a pooled SQLite connection. It is cheap to pass around by
// pointer; every long-lived component (discovery loop, netflow collector,
// agent hub, alert engine, retention sweeper) holds the same one.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// Options configures Open.
type Options struct {
	// Path is the database file, or ":memory:" for an ephemeral store used
	// in tests.
	Path string
	// Clock supplies "now" for last_seen_at/first_seen_at comparisons.
	// Defaults to clock.RealClock when nil.
	Clock clock.Clock
	// MaxOpenConns caps the connection pool. Defaults to 8.
	MaxOpenConns int
}

// Open opens (creating if necessary) the SQLite database at opts.Path,
// applies WAL-mode pragmas, runs pending migrations, and returns a ready
// Store.
func Open(opts Options) (*Store, error) {
	dsn := opts.Path
	if dsn != ":memory:" {
		dsn += "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "opening database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.Storage, "connecting to database", err)
	}

	maxConns := opts.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 8
	}
	db.SetMaxOpenConns(maxConns)

	clk := opts.Clock
	if clk == nil {
		clk = &clock.RealClock{}
	}

	s := &Store{db: db, clock: clk}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.Storage, "running migrations", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for read-only query code (list/filter
// handlers) that the core does not otherwise specify.
func (s *Store) DB() *sql.DB {
	return s.db
}

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{1, schemaV1},
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		var applied int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM _migrations WHERE version = ?`, m.version).Scan(&applied)
		if err != nil {
			return fmt.Errorf("checking migration %d: %w", m.version, err)
		}
		if applied > 0 {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO _migrations (version, applied_at) VALUES (?, ?)`,
			m.version, s.clock.Now().UTC().Format(timeLayout)); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schemaV1 = `
CREATE TABLE devices (
	id TEXT PRIMARY KEY,
	mac TEXT NOT NULL UNIQUE,
	hostname TEXT,
	vendor TEXT,
	icon TEXT NOT NULL DEFAULT '',
	notes TEXT,
	is_known INTEGER NOT NULL DEFAULT 0,
	is_favorite INTEGER NOT NULL DEFAULT 0,
	first_seen_at TEXT NOT NULL,
	last_seen_at TEXT NOT NULL,
	is_online INTEGER NOT NULL DEFAULT 0,
	os_family TEXT,
	os_version TEXT,
	device_type TEXT,
	device_brand TEXT,
	device_model TEXT,
	enrichment_source TEXT,
	enrichment_corrected INTEGER NOT NULL DEFAULT 0,
	mdns_services TEXT,
	muted_until TEXT,
	updated_at TEXT NOT NULL
);

CREATE TABLE device_ips (
	device_id TEXT NOT NULL REFERENCES devices(id),
	ip TEXT NOT NULL,
	seen_at TEXT NOT NULL,
	is_current INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (device_id, ip, seen_at)
);
CREATE INDEX idx_device_ips_device ON device_ips(device_id);
CREATE INDEX idx_device_ips_current ON device_ips(ip) WHERE is_current = 1;

CREATE TABLE agents (
	id TEXT PRIMARY KEY,
	device_id TEXT REFERENCES devices(id),
	name TEXT,
	api_key_hash TEXT NOT NULL,
	last_report_at TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE agent_reports (
	agent_id TEXT NOT NULL REFERENCES agents(id),
	reported_at TEXT NOT NULL,
	cpu_percent REAL,
	mem_used INTEGER,
	mem_total INTEGER,
	hostname TEXT,
	disks TEXT,
	interfaces TEXT,
	os_name TEXT,
	os_version TEXT,
	PRIMARY KEY (agent_id, reported_at)
);
CREATE INDEX idx_agent_reports_reported_at ON agent_reports(reported_at);

CREATE TABLE traffic_samples (
	device_id TEXT NOT NULL REFERENCES devices(id),
	sampled_at TEXT NOT NULL,
	source TEXT NOT NULL,
	rx_bps REAL NOT NULL,
	tx_bps REAL NOT NULL,
	PRIMARY KEY (device_id, sampled_at, source)
);
CREATE INDEX idx_traffic_samples_sampled_at ON traffic_samples(sampled_at);

CREATE TABLE alerts (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	severity TEXT NOT NULL,
	device_id TEXT REFERENCES devices(id),
	agent_id TEXT REFERENCES agents(id),
	message TEXT NOT NULL,
	details TEXT,
	is_read INTEGER NOT NULL DEFAULT 0,
	acknowledged_at TEXT,
	acknowledged_by TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX idx_alerts_created_at ON alerts(created_at);
CREATE INDEX idx_alerts_acknowledged ON alerts(acknowledged_at);

CREATE TABLE device_events (
	device_id TEXT NOT NULL REFERENCES devices(id),
	occurred_at TEXT NOT NULL,
	event_type TEXT NOT NULL,
	PRIMARY KEY (device_id, occurred_at, event_type)
);
CREATE INDEX idx_device_events_occurred_at ON device_events(occurred_at);

CREATE TABLE settings (
	key TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE sessions (
	token TEXT PRIMARY KEY,
	expires_at TEXT NOT NULL
);
`
