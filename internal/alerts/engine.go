// Package alerts implements the Alert Engine: it subscribes to every event
// published on the UI bus and derives device lifecycle alerts from it,
// sweeps agent liveness on a ticker, and is handed traffic samples through
// CheckTrafficSample. Alerts follow the frozen severity table; each is
// inserted atomically, broadcast, and optionally POSTed to a configured
// webhook.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"panoptikon.dev/panoptikon/internal/logging"
	"panoptikon.dev/panoptikon/internal/metrics"
	"panoptikon.dev/panoptikon/internal/store"
	"panoptikon.dev/panoptikon/internal/uibus"
)

const (
	severityInfo    = "INFO"
	severityWarning = "WARNING"

	// onlineMinOfflineDuration is the "only if the device was known-offline
	// > 5 min" condition on device_online alerts.
	onlineMinOfflineDuration = 5 * time.Minute

	// agentOfflineAfter is the agent_offline threshold: no report for this
	// long.
	agentOfflineAfter = 120 * time.Second

	// highBandwidthConsecutiveWindows is how many consecutive over-threshold
	// traffic samples are required before a high_bandwidth alert fires.
	highBandwidthConsecutiveWindows = 3

	webhookURLSettingKey  = "webhook_url"
	bandwidthThresholdKey = "high_bandwidth_threshold_bps"
	webhookTimeout        = 5 * time.Second
)

// Engine derives and dispatches alerts from the event stream.
type Engine struct {
	store  *store.Store
	bus    *uibus.Bus
	logger *logging.Logger

	httpClient *http.Client

	mu                 sync.Mutex
	agentOfflineFired  map[string]bool
	bandwidthOverCount map[string]int
}

// NewEngine constructs an Alert Engine bound to store and bus.
func NewEngine(st *store.Store, bus *uibus.Bus) *Engine {
	return &Engine{
		store:              st,
		bus:                bus,
		logger:             logging.Default().WithComponent("alerts"),
		httpClient:         &http.Client{Timeout: webhookTimeout},
		agentOfflineFired:  make(map[string]bool),
		bandwidthOverCount: make(map[string]int),
	}
}

// livenessSweepInterval is how often Run polls every known agent for the
// agent_offline condition, since that alert is driven by the absence of a
// report rather than an event on the bus.
const livenessSweepInterval = 30 * time.Second

// Run subscribes to the bus and processes events until ctx is cancelled,
// and separately sweeps agent liveness on a ticker.
func (e *Engine) Run(ctx context.Context) {
	sub := e.bus.Subscribe() // every kind
	defer e.bus.Unsubscribe(sub)

	ticker := time.NewTicker(livenessSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub:
			e.handle(ev)
		case <-ticker.C:
			e.sweepAgentLiveness()
		}
	}
}

func (e *Engine) sweepAgentLiveness() {
	ids, err := e.store.ListAgentIDs()
	if err != nil {
		e.logger.Error("listing agents for liveness sweep", "error", err)
		return
	}
	for _, id := range ids {
		e.CheckAgentLiveness(id)
	}
}

func (e *Engine) handle(ev uibus.Event) {
	switch ev.Kind {
	case uibus.KindDeviceNew:
		e.onDeviceLifecycle(ev.DeviceID, "new_device", severityInfo, "new device discovered")
	case uibus.KindDeviceUp:
		e.onDeviceOnline(ev.DeviceID)
	case uibus.KindDeviceDown:
		e.onDeviceLifecycle(ev.DeviceID, "device_offline", severityWarning, "device went offline")
	}
	// agent_offline and high_bandwidth are driven by explicit polling
	// (CheckAgentLiveness, CheckTrafficSample) rather than a bus event,
	// since they depend on the absence of an event (no report) or on a
	// streak across samples rather than a single occurrence.
}

func (e *Engine) onDeviceLifecycle(deviceID, alertType, severity, message string) {
	muted, err := e.store.IsDeviceMuted(deviceID)
	if err != nil {
		e.logger.Error("checking mute state", "device_id", deviceID, "error", err)
		return
	}
	if muted {
		return
	}
	e.dispatch(alertType, severity, deviceID, "", message)
}

func (e *Engine) onDeviceOnline(deviceID string) {
	offlineAt, ok, err := e.store.LastEventTime(deviceID, "offline")
	if err != nil {
		e.logger.Error("checking offline duration", "device_id", deviceID, "error", err)
		return
	}
	if !ok {
		return
	}
	if e.store.Clock().Now().Sub(offlineAt) <= onlineMinOfflineDuration {
		return
	}
	e.dispatch("device_online", severityInfo, deviceID, "", "device came back online")
}

// CheckAgentLiveness evaluates agent_offline for one agent. Run's liveness
// sweep calls this every livenessSweepInterval; it is not driven by a bus
// event because the condition is the absence of a report.
func (e *Engine) CheckAgentLiveness(agentID string) {
	online, err := e.store.AgentOnline(agentID, int(agentOfflineAfter.Seconds()))
	if err != nil {
		e.logger.Error("checking agent liveness", "agent_id", agentID, "error", err)
		return
	}

	e.mu.Lock()
	alreadyFired := e.agentOfflineFired[agentID]
	if online {
		e.agentOfflineFired[agentID] = false
		e.mu.Unlock()
		return
	}
	if alreadyFired {
		e.mu.Unlock()
		return
	}
	e.agentOfflineFired[agentID] = true
	e.mu.Unlock()

	e.dispatchAgent("agent_offline", severityWarning, agentID, "agent has not reported in over 2 minutes")
}

// CheckTrafficSample evaluates the high_bandwidth rule for one freshly
// flushed sample. thresholdBps <= 0 means the rule is disabled (the safe
// default until an operator configures a threshold).
func (e *Engine) CheckTrafficSample(deviceID string, rxBps, txBps float64) {
	thresholdStr, ok, err := e.store.GetSetting(bandwidthThresholdKey)
	if err != nil || !ok {
		return
	}
	threshold := parseThreshold(thresholdStr)
	if threshold <= 0 {
		return
	}

	over := rxBps > threshold || txBps > threshold

	e.mu.Lock()
	if !over {
		e.bandwidthOverCount[deviceID] = 0
		e.mu.Unlock()
		return
	}
	e.bandwidthOverCount[deviceID]++
	count := e.bandwidthOverCount[deviceID]
	if count == highBandwidthConsecutiveWindows {
		// Reset so the next streak starts fresh rather than firing every
		// window once past the threshold count.
		e.bandwidthOverCount[deviceID] = 0
	}
	e.mu.Unlock()

	if count == highBandwidthConsecutiveWindows {
		e.dispatch("high_bandwidth", severityWarning, deviceID, "", "sustained high bandwidth usage")
	}
}

func parseThreshold(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func (e *Engine) dispatch(alertType, severity, deviceID, agentID, message string) {
	id, err := e.store.InsertAlert(alertType, severity, deviceID, agentID, message, "")
	if err != nil {
		e.logger.Error("inserting alert", "type", alertType, "error", err)
		return
	}
	metrics.Get().AlertsTotal.WithLabelValues(alertType, severity).Inc()

	e.bus.Publish(uibus.Event{
		Kind:     uibus.KindAlertCreated,
		DeviceID: deviceID,
		AgentID:  agentID,
		Data: uibus.AlertSummary{
			AlertID:  id,
			DeviceID: deviceID,
			Severity: severity,
			Message:  message,
		},
	})

	go e.postWebhook(alertType, severity, deviceID, agentID, message)
}

func (e *Engine) dispatchAgent(alertType, severity, agentID, message string) {
	e.dispatch(alertType, severity, "", agentID, message)
}

// webhookPayload is POSTed as {type, data, timestamp} per the spec's wire
// shape for outbound alert notifications.
type webhookPayload struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// postWebhook fires the configured webhook. Failures are logged, not
// retried: this is fire-and-forget per the Alert Engine's contract.
func (e *Engine) postWebhook(alertType, severity, deviceID, agentID, message string) {
	url, ok, err := e.store.GetSetting(webhookURLSettingKey)
	if err != nil || !ok || url == "" {
		return
	}

	body, err := json.Marshal(webhookPayload{
		Type: alertType,
		Data: map[string]string{
			"severity":  severity,
			"device_id": deviceID,
			"agent_id":  agentID,
			"message":   message,
		},
		Timestamp: e.store.Clock().Now(),
	})
	if err != nil {
		e.logger.Error("marshaling webhook payload", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		e.logger.Error("building webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Error("posting alert webhook", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		e.logger.Error("alert webhook returned error status", "status", resp.StatusCode)
	}
}
