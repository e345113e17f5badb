package agentsession

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"panoptikon.dev/panoptikon/internal/logging"
)

// refreshCadence is how many collection cycles pass between disk/interface
// enumerations. CPU and memory are cheap and refreshed every cycle; disks
// and interfaces are amortized over this many cycles.
const refreshCadence = 5

// backoff bounds.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
)

// ClientConfig configures the agent-side session client.
type ClientConfig struct {
	ServerURL          string
	AgentID            string
	APIKey             string
	ReportIntervalSecs int
	CounterStatePath   string
}

// Client is the agent-side half of the Agent Session Hub protocol: it
// dials the server, authenticates, and reports on a schedule, reconnecting
// with exponential backoff on any session-terminating error.
type Client struct {
	cfg       ClientConfig
	collector Collector
	logger    *logging.Logger
}

// NewClient constructs a Client using the real gopsutil-backed Collector.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		cfg:       cfg,
		collector: NewCollector(),
		logger:    logging.Default().WithComponent("agent"),
	}
}

// Run dials and reports until ctx is cancelled, reconnecting on failure
// with exponential backoff (1s, doubling, capped at 60s; reset to 1s on a
// clean close).
func (c *Client) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		clean, err := c.runOnce(ctx)
		if err != nil {
			c.logger.Warn("agent session ended", "error", err)
		}
		if clean {
			backoff = initialBackoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(backoff)):
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * 2)
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func jitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}

// runOnce dials once, authenticates, and reports until the connection
// fails or ctx is cancelled. It returns clean=true only for a context
// cancellation or a server-initiated clean close.
func (c *Client) runOnce(ctx context.Context) (clean bool, err error) {
	conn, err := c.dialAndAuthenticate(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	interval := time.Duration(c.cfg.ReportIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	state, err := loadCounterState(c.cfg.CounterStatePath)
	if err != nil {
		c.logger.Warn("loading counter state, starting fresh", "error", err)
		state = counterState{Interfaces: make(map[string]rawInterfaceCounters)}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cycle := 0
	var lastDisks []DiskUsage
	var lastIfaces []rawInterfaceCounters

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return true, nil
		case <-ticker.C:
			cpuPct, memUsed, memTotal, err := c.collector.CPUMemory()
			if err != nil {
				return false, fmt.Errorf("collecting cpu/memory: %w", err)
			}

			if cycle%refreshCadence == 0 {
				disks, ifaces, err := c.collector.DisksAndInterfaces()
				if err != nil {
					c.logger.Warn("collecting disks/interfaces", "error", err)
				} else {
					lastDisks, lastIfaces = disks, ifaces
				}
			}
			cycle++

			deltas, next := interfaceDeltas(state.Interfaces, lastIfaces)
			state.Interfaces = next
			if err := saveCounterState(c.cfg.CounterStatePath, state); err != nil {
				c.logger.Warn("persisting counter state", "error", err)
			}

			hostname, osName, osVersion, err := c.collector.HostInfo()
			if err != nil {
				c.logger.Warn("collecting host info", "error", err)
			}

			report, _ := json.Marshal(clientMessage{Type: "report", Report: &ReportPayload{
				Hostname:           hostname,
				CPUPercent:         cpuPct,
				MemUsedBytes:       memUsed,
				MemTotalBytes:      memTotal,
				OSName:             osName,
				OSVersion:          osVersion,
				Disks:              lastDisks,
				InterfaceDeltas:    deltas,
				ReportIntervalSecs: c.cfg.ReportIntervalSecs,
			}})
			if err := conn.WriteMessage(websocket.TextMessage, report); err != nil {
				return false, fmt.Errorf("sending report: %w", err)
			}

			// The ack is best-effort: read with a short deadline and move
			// on regardless of whether one arrives. A normal close frame
			// from the server in its place ends the session cleanly.
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			if _, _, err := conn.ReadMessage(); websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, nil
			}
			conn.SetReadDeadline(time.Time{})
		}
	}
}

// dialAndAuthenticate dials the server and sends the auth frame. Shared by
// Run's reconnect loop and RunOnce's single-shot path.
func (c *Client) dialAndAuthenticate(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing: %w", err)
	}

	auth, _ := json.Marshal(clientMessage{
		Type:  "auth",
		Token: fmt.Sprintf("%s:%s", c.cfg.AgentID, c.cfg.APIKey),
	})
	if err := conn.WriteMessage(websocket.TextMessage, auth); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending auth frame: %w", err)
	}
	return conn, nil
}

// RunOnce dials, authenticates, collects a single report, sends it, and
// closes cleanly — the body of a systemd Type=oneshot health check rather
// than the always-running daemon Run provides.
func (c *Client) RunOnce(ctx context.Context) error {
	conn, err := c.dialAndAuthenticate(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	state, err := loadCounterState(c.cfg.CounterStatePath)
	if err != nil {
		c.logger.Warn("loading counter state, starting fresh", "error", err)
		state = counterState{Interfaces: make(map[string]rawInterfaceCounters)}
	}

	cpuPct, memUsed, memTotal, err := c.collector.CPUMemory()
	if err != nil {
		return fmt.Errorf("collecting cpu/memory: %w", err)
	}
	disks, ifaces, err := c.collector.DisksAndInterfaces()
	if err != nil {
		c.logger.Warn("collecting disks/interfaces", "error", err)
	}
	deltas, next := interfaceDeltas(state.Interfaces, ifaces)
	state.Interfaces = next
	if err := saveCounterState(c.cfg.CounterStatePath, state); err != nil {
		c.logger.Warn("persisting counter state", "error", err)
	}

	hostname, osName, osVersion, err := c.collector.HostInfo()
	if err != nil {
		c.logger.Warn("collecting host info", "error", err)
	}

	report, _ := json.Marshal(clientMessage{Type: "report", Report: &ReportPayload{
		Hostname:           hostname,
		CPUPercent:         cpuPct,
		MemUsedBytes:       memUsed,
		MemTotalBytes:      memTotal,
		OSName:             osName,
		OSVersion:          osVersion,
		Disks:              disks,
		InterfaceDeltas:    deltas,
		ReportIntervalSecs: c.cfg.ReportIntervalSecs,
	}})
	if err := conn.WriteMessage(websocket.TextMessage, report); err != nil {
		return fmt.Errorf("sending report: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	conn.ReadMessage()
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return nil
}
