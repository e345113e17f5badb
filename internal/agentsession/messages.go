// Package agentsession implements the Agent Session Hub: the server-side
// websocket endpoint agents connect to, and the agent-side client that
// dials it, authenticates, and reports system metrics on a schedule.
package agentsession

// clientMessage is the single frame type the protocol carries in either
// direction; Type selects which of the optional fields applies, the same
// tagged-variant approach internal/uibus uses for its own Event type.
type clientMessage struct {
	Type   string         `json:"type"`
	Token  string         `json:"token,omitempty"`
	Report *ReportPayload `json:"report,omitempty"`
	Status string         `json:"status,omitempty"`
}

// ReportPayload is one agent metrics report.
type ReportPayload struct {
	Hostname           string            `json:"hostname"`
	MAC                string            `json:"mac,omitempty"`
	CPUPercent         float64           `json:"cpu_percent"`
	MemUsedBytes       int64             `json:"mem_used_bytes"`
	MemTotalBytes      int64             `json:"mem_total_bytes"`
	OSName             string            `json:"os_name,omitempty"`
	OSVersion          string            `json:"os_version,omitempty"`
	Disks              []DiskUsage       `json:"disks,omitempty"`
	InterfaceDeltas    []InterfaceDelta  `json:"interfaces,omitempty"`
	ReportIntervalSecs int               `json:"report_interval_secs,omitempty"`
}

// DiskUsage is one mounted filesystem's usage at report time.
type DiskUsage struct {
	Mountpoint  string  `json:"mountpoint"`
	UsedBytes   uint64  `json:"used_bytes"`
	TotalBytes  uint64  `json:"total_bytes"`
	PercentUsed float64 `json:"percent_used"`
}

// InterfaceDelta is the bytes sent/received since the previous report for
// one network interface, clamped to 0 on first sight or counter reset.
type InterfaceDelta struct {
	Name      string `json:"name"`
	BytesSent uint64 `json:"bytes_sent"`
	BytesRecv uint64 `json:"bytes_recv"`
}
