package netflow

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"panoptikon.dev/panoptikon/internal/config"
	"panoptikon.dev/panoptikon/internal/logging"
	"panoptikon.dev/panoptikon/internal/metrics"
	"panoptikon.dev/panoptikon/internal/services"
	"panoptikon.dev/panoptikon/internal/store"
)

// windowSeconds is the fixed aggregation window the bps conversion divides
// by. The flush ticker runs on this period too, so every ticker-driven
// flush covers windowSeconds of wall-clock time; the final flush on
// shutdown covers only the time since the last tick but is divided by
// windowSeconds all the same.
const windowSeconds = 60.0

// counters accumulates one device's byte totals for the current window.
type counters struct {
	txBytes uint64
	rxBytes uint64
}

// Service is the NetFlow v5 UDP collector.
type Service struct {
	mu      sync.Mutex
	store   *store.Store
	logger  *logging.Logger
	cfg     config.ScannerConfig
	conn    net.PacketConn
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	acc map[string]*counters

	flowsReceived atomic.Uint64
	parseFailures atomic.Uint64

	// onSample is called once per device per flush, after the row is
	// written, so the Alert Engine can evaluate the high_bandwidth rule.
	// A func field rather than an imported Engine type keeps this package
	// from depending on internal/alerts.
	onSample func(deviceID string, rxBps, txBps float64)
}

// SetSampleHook registers fn to be called with each device's converted
// bps for every flushed window. Pass nil to disable.
func (s *Service) SetSampleHook(fn func(deviceID string, rxBps, txBps float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSample = fn
}

// NewService constructs a NetFlow collector. cfg is the scanner section of
// the server configuration (netflow_enabled, netflow_port).
func NewService(st *store.Store, cfg config.ScannerConfig) *Service {
	return &Service{
		store:  st,
		cfg:    cfg,
		logger: logging.Default().WithComponent("netflow"),
		acc:    make(map[string]*counters),
	}
}

func (s *Service) Name() string { return "netflow" }

// FlowsReceived returns the total record count observed since start. It is
// an explicit accessor on the Service handle rather than a package-level
// counter, so nothing in this repo reaches for global mutable state.
func (s *Service) FlowsReceived() uint64 { return s.flowsReceived.Load() }

// ParseFailures returns the total number of packets dropped for failing to
// parse as NetFlow v5.
func (s *Service) ParseFailures() uint64 { return s.parseFailures.Load() }

func (s *Service) Status() services.ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return services.ServiceStatus{Name: s.Name(), Running: s.running}
}

func (s *Service) Reload(cfg config.Server) (bool, error) {
	s.mu.Lock()
	wasRunning := s.running
	s.cfg = cfg.Scanner
	s.mu.Unlock()

	if !wasRunning {
		return false, nil
	}
	if err := s.Stop(context.Background()); err != nil {
		return false, err
	}
	if err := s.Start(context.Background()); err != nil {
		return false, err
	}
	return true, nil
}

// Start binds the UDP socket and begins collecting. A bind failure is
// returned to the caller rather than panicking: per the collector's
// failure model, a bad bind is fatal to this task only, not the process.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if !s.cfg.NetflowEnabled {
		s.mu.Unlock()
		return nil
	}

	addr := fmt.Sprintf("0.0.0.0:%d", s.cfg.NetflowPort)
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("netflow: binding %s: %w", addr, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.conn = conn
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	go s.run(runCtx, conn)
	return nil
}

func (s *Service) run(ctx context.Context, conn net.PacketConn) {
	defer close(s.done)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.receiveLoop(conn)
	}()
	go func() {
		defer wg.Done()
		s.flushLoop(ctx)
	}()
	wg.Wait()
}

func (s *Service) receiveLoop(conn net.PacketConn) {
	buf := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		pkt, err := parsePacket(buf[:n])
		if err != nil {
			s.parseFailures.Add(1)
			metrics.Get().NetflowParseErrors.Inc()
			continue
		}
		metrics.Get().NetflowFlowsTotal.Add(float64(len(pkt.Records)))
		s.ingest(pkt)
	}
}

func (s *Service) ingest(pkt packet) {
	s.flowsReceived.Add(uint64(len(pkt.Records)))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range pkt.Records {
		srcIP := addrString(rec.SrcAddr)
		dstIP := addrString(rec.DstAddr)

		if id, ok, err := s.store.DeviceIDForIP(srcIP); err == nil && ok {
			s.acc[id] = addCounters(s.acc[id], rec.DOctets, 0)
		}
		if id, ok, err := s.store.DeviceIDForIP(dstIP); err == nil && ok {
			s.acc[id] = addCounters(s.acc[id], 0, uint64(rec.DOctets))
		}
	}
}

func addCounters(c *counters, tx, rx uint64) *counters {
	if c == nil {
		c = &counters{}
	}
	c.txBytes += tx
	c.rxBytes += rx
	return c
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(windowSeconds * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush()
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

func (s *Service) flush() {
	s.mu.Lock()
	acc := s.acc
	s.acc = make(map[string]*counters)
	s.mu.Unlock()

	if len(acc) == 0 {
		return
	}

	samples := make([]store.TrafficSampleInput, 0, len(acc))
	for deviceID, c := range acc {
		samples = append(samples, store.TrafficSampleInput{
			DeviceID: deviceID,
			RxBytes:  c.rxBytes,
			TxBytes:  c.txBytes,
		})
	}

	if err := s.store.FlushTrafficSamples(samples, windowSeconds, "netflow"); err != nil {
		s.logger.Error("flushing traffic samples", "error", err)
		return
	}
	metrics.Get().NetflowFlushes.Inc()

	s.mu.Lock()
	hook := s.onSample
	s.mu.Unlock()
	if hook == nil {
		return
	}
	for _, sample := range samples {
		rxBps := float64(sample.RxBytes) * 8 / windowSeconds
		txBps := float64(sample.TxBytes) * 8 / windowSeconds
		if rxBps == 0 && txBps == 0 {
			continue
		}
		hook(sample.DeviceID, rxBps, txBps)
	}
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	if conn != nil {
		conn.Close()
	}
	<-done
	return nil
}
