package agentsession

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"panoptikon.dev/panoptikon/internal/logging"
	"panoptikon.dev/panoptikon/internal/metrics"
	"panoptikon.dev/panoptikon/internal/ratelimit"
	"panoptikon.dev/panoptikon/internal/store"
	"panoptikon.dev/panoptikon/internal/uibus"
)

// livenessWindowSeconds backs agent_online(id) = now - last_report_at < 120s.
const livenessWindowSeconds = 120

// defaultReportIntervalSecs is assumed when an agent's auth frame omits one.
const defaultReportIntervalSecs = 30

// authAttemptLimit and authAttemptWindow bound how many auth frames a single
// remote host (address without port) may send per window, so an API key
// cannot be brute-forced by reconnecting over and over.
const (
	authAttemptLimit  = 5
	authAttemptWindow = time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// session tracks one connected, authenticated agent.
type session struct {
	agentID string
	conn    *websocket.Conn
}

// Hub is the server side of the Agent Session Hub: it accepts websocket
// connections at the agent endpoint, runs each through the
// UNAUTH->READY->CLOSED state machine, and persists/broadcasts reports.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session

	store     *store.Store
	bus       *uibus.Bus
	logger    *logging.Logger
	authLimit *ratelimit.Limiter
}

// NewHub constructs an Agent Session Hub.
func NewHub(st *store.Store, bus *uibus.Bus) *Hub {
	return &Hub{
		sessions:  make(map[string]*session),
		store:     st,
		bus:       bus,
		logger:    logging.Default().WithComponent("agentsession"),
		authLimit: ratelimit.NewLimiter(),
	}
}

// AgentOnline reports whether id's last report arrived within the liveness
// window. Used by the Alert Engine and the UI join query.
func (h *Hub) AgentOnline(id string) (bool, error) {
	return h.store.AgentOnline(id, livenessWindowSeconds)
}

// ServeHTTP upgrades the connection and hands the session to its own
// goroutine, which runs it to completion. It never returns an error to the
// caller: protocol failures close the socket and are logged, matching a
// websocket endpoint's usual contract.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrading agent websocket", "error", err)
		return
	}
	remoteHost := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteHost = host
	}
	go h.serve(conn, remoteHost)
}

func (h *Hub) serve(conn *websocket.Conn, remoteAddr string) {
	defer conn.Close()

	agentID, interval, ok := h.authenticate(conn, remoteAddr)
	if !ok {
		return
	}

	sess := &session{agentID: agentID, conn: conn}
	h.register(sess)
	defer h.unregister(agentID)

	timeout := time.Duration(3*interval) * time.Second
	conn.SetReadDeadline(time.Now().Add(timeout))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type != "report" || msg.Report == nil {
			continue
		}

		if err := h.handleReport(agentID, msg.Report); err != nil {
			h.logger.Error("handling agent report", "agent_id", agentID, "error", err)
		}
		conn.SetReadDeadline(time.Now().Add(timeout))

		// Acks are best-effort: an unsent ack does not tear down the session.
		ack, _ := json.Marshal(clientMessage{Type: "ack", Status: "ok"})
		conn.WriteMessage(websocket.TextMessage, ack)
	}
}

// authenticate reads the first frame, which must carry a bearer token of
// the form "<agent_id>:<api_key>". On any failure it closes with 1008
// (policy violation) and returns false without distinguishing an unknown
// id from a wrong key. remoteAddr is rate-limited independently of agentID,
// since the id in a forged frame is attacker-controlled.
func (h *Hub) authenticate(conn *websocket.Conn, remoteAddr string) (agentID string, reportIntervalSecs int, ok bool) {
	if !h.authLimit.Allow(remoteAddr, authAttemptLimit, authAttemptWindow) {
		metrics.Get().AgentAuthFailures.Inc()
		h.closePolicy(conn)
		return "", 0, false
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", 0, false
	}

	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "auth" {
		metrics.Get().AgentAuthFailures.Inc()
		h.closePolicy(conn)
		return "", 0, false
	}

	id, key, ok := splitToken(msg.Token)
	if !ok {
		metrics.Get().AgentAuthFailures.Inc()
		h.closePolicy(conn)
		return "", 0, false
	}

	if err := h.store.AuthenticateAgent(id, key); err != nil {
		metrics.Get().AgentAuthFailures.Inc()
		h.closePolicy(conn)
		return "", 0, false
	}

	interval := msg.Report.intervalOr(defaultReportIntervalSecs)
	return id, interval, true
}

// intervalOr reads ReportIntervalSecs off a possibly-nil report, since the
// auth frame may carry it before any report has been sent.
func (p *ReportPayload) intervalOr(fallback int) int {
	if p == nil || p.ReportIntervalSecs <= 0 {
		return fallback
	}
	return p.ReportIntervalSecs
}

func splitToken(token string) (agentID, apiKey string, ok bool) {
	token = strings.TrimPrefix(token, "Bearer ")
	parts := strings.SplitN(token, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (h *Hub) closePolicy(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	h.sessions[s.agentID] = s
	n := len(h.sessions)
	h.mu.Unlock()
	metrics.Get().AgentSessionsActive.Set(float64(n))
}

func (h *Hub) unregister(agentID string) {
	h.mu.Lock()
	delete(h.sessions, agentID)
	n := len(h.sessions)
	h.mu.Unlock()
	metrics.Get().AgentSessionsActive.Set(float64(n))
}

// handleReport records the report, stamps last_report_at, links the agent
// to a device by hostname/MAC when possible, and broadcasts a summary.
func (h *Hub) handleReport(agentID string, r *ReportPayload) error {
	disksJSON, err := json.Marshal(r.Disks)
	if err != nil {
		return err
	}
	ifacesJSON, err := json.Marshal(r.InterfaceDeltas)
	if err != nil {
		return err
	}

	if err := h.store.InsertAgentReport(agentID, r.CPUPercent, r.MemUsedBytes, r.MemTotalBytes, r.Hostname, string(disksJSON), string(ifacesJSON), r.OSName, r.OSVersion); err != nil {
		return err
	}
	if err := h.store.TouchAgentLastReport(agentID); err != nil {
		return err
	}
	if err := h.store.LinkAgentToDevice(agentID, r.Hostname, r.MAC); err != nil {
		h.logger.Error("linking agent to device", "agent_id", agentID, "error", err)
	}
	metrics.Get().AgentReportsTotal.Inc()

	h.bus.Publish(uibus.Event{
		Kind:    uibus.KindAgentReport,
		AgentID: agentID,
		Data: uibus.AgentReportSummary{
			AgentID: agentID,
			CPUPct:  r.CPUPercent,
			MemPct:  memPercent(r.MemUsedBytes, r.MemTotalBytes),
		},
	})
	return nil
}

func memPercent(used, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(used) / float64(total) * 100
}
