// Package uibus is the in-process publish/subscribe bus that fans server-side
// state changes out to connected UI clients (and anything else in-process
// that wants to watch them, such as the alert engine).
package uibus

import "time"

// Kind identifies the category of a published Event. Every event carries the
// same envelope; Kind plus the optional fields below distinguish payloads
// instead of a type hierarchy.
type Kind string

const (
	KindDeviceUp      Kind = "device_up"
	KindDeviceDown    Kind = "device_down"
	KindDeviceNew     Kind = "device_new"
	KindIPChanged     Kind = "ip_changed"
	KindAlertCreated  Kind = "alert_created"
	KindAgentReport   Kind = "agent_report"
	KindScanCompleted Kind = "scan_completed"
)

// Event is the single message type carried on the bus: a tagged variant, not
// an interface hierarchy. Callers switch on Kind and read the fields that
// kind defines.
type Event struct {
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`

	DeviceID string `json:"device_id,omitempty"`
	AgentID  string `json:"agent_id,omitempty"`

	// Data carries the kind-specific payload (DeviceSnapshot, AlertSummary,
	// AgentReportSummary, ScanCompletedSummary). Callers type-assert after
	// checking Kind.
	Data any `json:"data,omitempty"`
}

// DeviceSnapshot is the Data payload for device_up, device_down, device_new,
// and ip_changed events.
type DeviceSnapshot struct {
	DeviceID string `json:"device_id"`
	MAC      string `json:"mac"`
	IP       string `json:"ip,omitempty"`
	PrevIP   string `json:"prev_ip,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Vendor   string `json:"vendor,omitempty"`
}

// AlertSummary is the Data payload for alert_created events.
type AlertSummary struct {
	AlertID  string `json:"alert_id"`
	DeviceID string `json:"device_id,omitempty"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// AgentReportSummary is the Data payload for agent_report events.
type AgentReportSummary struct {
	AgentID    string    `json:"agent_id"`
	CPUPct     float64   `json:"cpu_pct"`
	MemPct     float64   `json:"mem_pct"`
	ReceivedAt time.Time `json:"received_at"`
}

// ScanCompletedSummary is the Data payload for scan_completed events.
type ScanCompletedSummary struct {
	DevicesSeen int           `json:"devices_seen"`
	Duration    time.Duration `json:"duration"`
}
