// Package discovery implements the tick-based device discovery loop: it
// snapshots the local ARP/neighbor table, reconciles sightings against the
// Store, dispatches enrichment for new or moved devices, and publishes
// device lifecycle events to the UI bus.
package discovery

import (
	"context"
	"sync"
	"time"

	"panoptikon.dev/panoptikon/internal/config"
	"panoptikon.dev/panoptikon/internal/enrichment"
	"panoptikon.dev/panoptikon/internal/logging"
	"panoptikon.dev/panoptikon/internal/metrics"
	"panoptikon.dev/panoptikon/internal/reachability"
	"panoptikon.dev/panoptikon/internal/services"
	"panoptikon.dev/panoptikon/internal/store"
	"panoptikon.dev/panoptikon/internal/uibus"
)

// faultLogWindow bounds how often a scan-source failure is logged: once per
// window, not once per tick, so a long-lived ARP-read failure doesn't flood
// the log.
const faultLogWindow = 5 * time.Minute

// Service runs the discovery loop described by the scanner configuration.
type Service struct {
	mu      sync.Mutex
	store   *store.Store
	bus     *uibus.Bus
	logger  *logging.Logger
	cfg     config.ScannerConfig
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	lastFaultLoggedAt time.Time
}

// NewService constructs a discovery Service. cfg is the scanner section of
// the server configuration.
func NewService(st *store.Store, bus *uibus.Bus, cfg config.ScannerConfig) *Service {
	return &Service{
		store:  st,
		bus:    bus,
		cfg:    cfg,
		logger: logging.Default().WithComponent("discovery"),
	}
}

func (s *Service) Name() string { return "discovery" }

func (s *Service) Status() services.ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return services.ServiceStatus{Name: s.Name(), Running: s.running}
}

// Reload applies a new scanner configuration. The loop always restarts so
// a changed interval takes effect immediately rather than on the next tick.
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

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	interval := time.Duration(s.cfg.IntervalSeconds) * time.Second
	s.mu.Unlock()

	go s.run(runCtx, interval)
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (s *Service) run(ctx context.Context, interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick runs one full discovery cycle: steps 1-6 of the discovery loop.
func (s *Service) tick() {
	neighbors, err := snapshotNeighborsFn()
	if err != nil {
		metrics.Get().DiscoveryFaults.Inc()
		s.logFault(err)
		return
	}
	metrics.Get().DiscoveryTicks.Inc()

	for _, n := range neighbors {
		if store.IsBroadcastOrZero(n.MAC) {
			continue
		}

		res, err := s.store.UpsertDeviceSighting(n.MAC, n.IP, s.cfg.OfflineGraceSeconds)
		if err != nil {
			s.logger.Error("upserting sighting", "mac", n.MAC, "error", err)
			continue
		}

		s.emitSightingEvents(res, n)

		if res.WasNew || res.IPChanged {
			if err := enrichment.Persist(s.store, res.DeviceID, 0, nil, nil, "", ""); err != nil {
				s.logger.Error("enrichment dispatch failed", "device_id", res.DeviceID, "error", err)
			}
		}
	}

	if s.cfg.ActiveProbeEnabled {
		s.reviveReachable()
	}

	offlineIDs, err := s.store.MarkStaleOffline(s.cfg.OfflineGraceSeconds)
	if err != nil {
		s.logger.Error("marking stale devices offline", "error", err)
		return
	}
	for _, id := range offlineIDs {
		s.publishDeviceEvent(uibus.KindDeviceDown, id, uibus.DeviceSnapshot{DeviceID: id})
		metrics.Get().DeviceEvents.WithLabelValues("offline").Inc()
		if err := s.store.RecordEvent(id, "offline"); err != nil {
			s.logger.Error("recording offline event", "device_id", id, "error", err)
		}
	}

	if count, err := s.store.CountOnlineDevices(); err == nil {
		metrics.Get().DevicesOnline.Set(float64(count))
	}
}

// reviveReachable gives every device about to be marked offline one last
// chance: if it still answers an ICMP probe, its last_seen_at is bumped so
// MarkStaleOffline leaves it alone this tick. This only matters for hosts
// quiet enough that their ARP entry aged out while the host itself did not.
func (s *Service) reviveReachable() {
	candidates, err := s.store.StaleCandidates(s.cfg.OfflineGraceSeconds)
	if err != nil {
		s.logger.Error("listing stale candidates", "error", err)
		return
	}
	for _, c := range candidates {
		if !reachability.Reachable(c.IP) {
			continue
		}
		if err := s.store.RefreshLastSeen(c.DeviceID); err != nil {
			s.logger.Error("refreshing last_seen_at after active probe", "device_id", c.DeviceID, "error", err)
		}
	}
}

func (s *Service) emitSightingEvents(res store.SightingResult, n neighbor) {
	snap := uibus.DeviceSnapshot{DeviceID: res.DeviceID, MAC: n.MAC, IP: n.IP}

	switch {
	case res.WasNew:
		s.publishDeviceEvent(uibus.KindDeviceNew, res.DeviceID, snap)
		metrics.Get().DeviceEvents.WithLabelValues("new_device").Inc()
		if err := s.store.RecordEvent(res.DeviceID, "new_device"); err != nil {
			s.logger.Error("recording new_device event", "device_id", res.DeviceID, "error", err)
		}
	case res.IPChanged:
		s.publishDeviceEvent(uibus.KindIPChanged, res.DeviceID, snap)
		metrics.Get().DeviceEvents.WithLabelValues("ip_changed").Inc()
		if err := s.store.RecordEvent(res.DeviceID, "ip_changed"); err != nil {
			s.logger.Error("recording ip_changed event", "device_id", res.DeviceID, "error", err)
		}
	}

	// WentOnline is distinct from WasNew: a freshly-created device is
	// both new and online, but only fires new_device per the edge policy
	// (a real off->on transition on an already-known device fires online).
	if res.WentOnline && !res.WasNew {
		s.publishDeviceEvent(uibus.KindDeviceUp, res.DeviceID, snap)
		metrics.Get().DeviceEvents.WithLabelValues("online").Inc()
		if err := s.store.RecordEvent(res.DeviceID, "online"); err != nil {
			s.logger.Error("recording online event", "device_id", res.DeviceID, "error", err)
		}
	}
}

func (s *Service) publishDeviceEvent(kind uibus.Kind, deviceID string, data uibus.DeviceSnapshot) {
	s.bus.Publish(uibus.Event{
		Kind:     kind,
		DeviceID: deviceID,
		Data:     data,
	})
}

// logFault logs a scan-source failure at most once per faultLogWindow, per
// the "log once per fault window, skip the tick" edge policy.
func (s *Service) logFault(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastFaultLoggedAt) < faultLogWindow {
		return
	}
	s.lastFaultLoggedAt = time.Now()
	s.logger.Error("discovery scan source unavailable, skipping tick", "error", err)
}
