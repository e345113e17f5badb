// Package retention implements the periodic sweeper that prunes aged rows
// out of traffic_samples, agent_reports, device_events, and acknowledged
// alerts, and runs a weekly VACUUM. It is the garbage collector the rest of
// the system leans on to keep the SQLite file from growing unbounded.
package retention

import (
	"context"
	"sync"
	"time"

	"panoptikon.dev/panoptikon/internal/config"
	"panoptikon.dev/panoptikon/internal/logging"
	"panoptikon.dev/panoptikon/internal/metrics"
	"panoptikon.dev/panoptikon/internal/services"
	"panoptikon.dev/panoptikon/internal/store"
)

// sweepInterval is how often the janitor wakes up and prunes every table.
// This is much finer-grained than any single retention window, since the
// cost of an extra no-op sweep is negligible and it keeps the gap between
// "row crossed its retention age" and "row gets deleted" small.
const sweepInterval = time.Hour

// vacuumInterval is the minimum gap between VACUUM runs. VACUUM rewrites
// the whole database file, so it only runs when LastVacuumAt is this old.
const vacuumInterval = 7 * 24 * time.Hour

// Service is the retention sweeper.
type Service struct {
	mu      sync.Mutex
	store   *store.Store
	logger  *logging.Logger
	cfg     config.RetentionConfig
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewService constructs a retention sweeper bound to st, configured by
// cfg (the retention section of the server configuration).
func NewService(st *store.Store, cfg config.RetentionConfig) *Service {
	return &Service{
		store:  st,
		cfg:    cfg,
		logger: logging.Default().WithComponent("retention"),
	}
}

func (s *Service) Name() string { return "retention" }

func (s *Service) Status() services.ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return services.ServiceStatus{Name: s.Name(), Running: s.running}
}

func (s *Service) Reload(cfg config.Server) (bool, error) {
	s.mu.Lock()
	wasRunning := s.running
	s.cfg = cfg.Retention
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
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep prunes every table per its configured window, then vacuums if a
// week has passed since the last one.
func (s *Service) sweep() {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	if n, err := s.store.PruneTrafficSamples(time.Duration(cfg.TrafficSamplesHours) * time.Hour); err != nil {
		s.logger.Error("pruning traffic samples", "error", err)
	} else if n > 0 {
		s.logger.Info("pruned traffic samples", "rows", n)
		metrics.Get().RetentionRowsPruned.WithLabelValues("traffic_samples").Add(float64(n))
	}

	if n, err := s.store.PruneAgentReports(time.Duration(cfg.AgentReportsDays) * 24 * time.Hour); err != nil {
		s.logger.Error("pruning agent reports", "error", err)
	} else if n > 0 {
		s.logger.Info("pruned agent reports", "rows", n)
		metrics.Get().RetentionRowsPruned.WithLabelValues("agent_reports").Add(float64(n))
	}

	if n, err := s.store.PruneDeviceEvents(time.Duration(cfg.DeviceEventsDays) * 24 * time.Hour); err != nil {
		s.logger.Error("pruning device events", "error", err)
	} else if n > 0 {
		s.logger.Info("pruned device events", "rows", n)
		metrics.Get().RetentionRowsPruned.WithLabelValues("device_events").Add(float64(n))
	}

	if n, err := s.store.PruneAcknowledgedAlerts(time.Duration(cfg.AlertsDays) * 24 * time.Hour); err != nil {
		s.logger.Error("pruning acknowledged alerts", "error", err)
	} else if n > 0 {
		s.logger.Info("pruned acknowledged alerts", "rows", n)
		metrics.Get().RetentionRowsPruned.WithLabelValues("alerts").Add(float64(n))
	}

	s.maybeVacuum()
}

func (s *Service) maybeVacuum() {
	lastVacuum, err := s.store.LastVacuumAt()
	if err != nil {
		s.logger.Error("checking last vacuum time", "error", err)
		return
	}
	if !lastVacuum.IsZero() && s.store.Clock().Now().Sub(lastVacuum) < vacuumInterval {
		return
	}
	if err := s.store.Vacuum(); err != nil {
		s.logger.Error("vacuuming database", "error", err)
		return
	}
	s.logger.Info("vacuum complete")
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
