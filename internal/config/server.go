// Package config loads and validates the server and agent TOML
// configuration files. Defaults are applied before validation runs, and
// validation failures are aggregated into a single error so a caller can
// report every problem at once instead of one at a time.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ScannerConfig controls the discovery loop and NetFlow collector.
type ScannerConfig struct {
	Subnets              []string `toml:"subnets"`
	IntervalSeconds      int      `toml:"interval_seconds"`
	OfflineGraceSeconds  int      `toml:"offline_grace_seconds"`
	NetflowEnabled       bool     `toml:"netflow_enabled"`
	NetflowPort          int      `toml:"netflow_port"`
	DHCPSniffInterfaces  []string `toml:"dhcp_sniff_interfaces"`
	MDNSEnabled          bool     `toml:"mdns_enabled"`
	MDNSInterfaces       []string `toml:"mdns_interfaces"`
	ActiveProbeEnabled   bool     `toml:"active_probe_enabled"`
}

// VyosConfig describes the router-admin proxy collaborator. This repository
// only needs the struct shape to exist so a full config file round-trips
// without "unknown key" noise — the proxy behavior itself is out of scope.
type VyosConfig struct {
	URL         string `toml:"url"`
	APIKey      string `toml:"api_key"`
	InsecureTLS bool   `toml:"insecure_tls"`
}

// AuthConfig controls UI session lifetime.
type AuthConfig struct {
	SessionExpirySeconds int `toml:"session_expiry_seconds"`
}

// RetentionConfig controls the retention sweeper's per-table age limits.
type RetentionConfig struct {
	TrafficSamplesHours int `toml:"traffic_samples_hours"`
	AgentReportsDays    int `toml:"agent_reports_days"`
	DeviceEventsDays    int `toml:"device_events_days"`
	AlertsDays          int `toml:"alerts_days"`
}

// Server is the full server configuration.
type Server struct {
	Listen    string          `toml:"listen"`
	DBPath    string          `toml:"db_path"`
	Scanner   ScannerConfig   `toml:"scanner"`
	Vyos      VyosConfig      `toml:"vyos"`
	Auth      AuthConfig      `toml:"auth"`
	Retention RetentionConfig `toml:"retention"`
}

// DefaultServer returns a Server with every optional field populated with
// its documented default.
func DefaultServer() Server {
	return Server{
		Listen: "0.0.0.0:8080",
		DBPath: "panoptikon.db",
		Scanner: ScannerConfig{
			IntervalSeconds:     60,
			OfflineGraceSeconds: 300,
			NetflowEnabled:      true,
			NetflowPort:         9995,
			MDNSEnabled:         true,
			ActiveProbeEnabled:  true,
		},
		Auth: AuthConfig{
			SessionExpirySeconds: 24 * 3600,
		},
		Retention: RetentionConfig{
			TrafficSamplesHours: 48,
			AgentReportsDays:    7,
			DeviceEventsDays:    30,
			AlertsDays:          30,
		},
	}
}

// LoadServer reads and validates a server TOML config file at path, applying
// defaults for any field the file leaves unset. Unknown keys are ignored
// (forward compatibility).
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()

	data, err := os.ReadFile(path)
	if err != nil {
		return Server{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	dec := toml.NewDecoder(strings.NewReader(string(data)))
	if err := dec.Decode(&cfg); err != nil {
		return Server{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if errs := cfg.validate(); len(errs) > 0 {
		return Server{}, aggregateErrors(errs)
	}
	return cfg, nil
}

func (c Server) validate() []string {
	var problems []string
	if c.Listen == "" {
		problems = append(problems, "listen must not be empty")
	}
	if c.DBPath == "" {
		problems = append(problems, "db_path must not be empty")
	}
	if c.Scanner.IntervalSeconds <= 0 {
		problems = append(problems, "scanner.interval_seconds must be positive")
	}
	if c.Scanner.OfflineGraceSeconds <= 0 {
		problems = append(problems, "scanner.offline_grace_seconds must be positive")
	}
	if c.Scanner.NetflowEnabled && (c.Scanner.NetflowPort <= 0 || c.Scanner.NetflowPort > 65535) {
		problems = append(problems, "scanner.netflow_port must be a valid port when netflow_enabled")
	}
	if c.Auth.SessionExpirySeconds <= 0 {
		problems = append(problems, "auth.session_expiry_seconds must be positive")
	}
	if c.Retention.TrafficSamplesHours <= 0 {
		problems = append(problems, "retention.traffic_samples_hours must be positive")
	}
	if c.Retention.AgentReportsDays <= 0 {
		problems = append(problems, "retention.agent_reports_days must be positive")
	}
	if c.Retention.DeviceEventsDays <= 0 {
		problems = append(problems, "retention.device_events_days must be positive")
	}
	if c.Retention.AlertsDays <= 0 {
		problems = append(problems, "retention.alerts_days must be positive")
	}
	return problems
}

func aggregateErrors(problems []string) error {
	return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
}
