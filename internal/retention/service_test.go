package retention

import (
	"testing"
	"time"

	"panoptikon.dev/panoptikon/internal/clock"
	"panoptikon.dev/panoptikon/internal/config"
	"panoptikon.dev/panoptikon/internal/store"
)

func newTestService(t *testing.T, cfg config.RetentionConfig) (*Service, *store.Store, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	st, err := store.Open(store.Options{Path: ":memory:", Clock: clk})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewService(st, cfg), st, clk
}

func defaultRetentionConfig() config.RetentionConfig {
	return config.RetentionConfig{
		TrafficSamplesHours: 48,
		AgentReportsDays:    7,
		DeviceEventsDays:    30,
		AlertsDays:          30,
	}
}

func TestSweep_PrunesRowsOlderThanTheirWindow(t *testing.T) {
	svc, st, clk := newTestService(t, defaultRetentionConfig())

	res, err := st.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.5", 300)
	if err != nil {
		t.Fatalf("seeding device: %v", err)
	}
	if err := st.RecordEvent(res.DeviceID, "online"); err != nil {
		t.Fatalf("recording event: %v", err)
	}

	clk.Advance(31 * 24 * time.Hour)
	svc.sweep()

	var count int
	if err := st.DB().QueryRow(`SELECT COUNT(*) FROM device_events WHERE device_id = ?`, res.DeviceID).Scan(&count); err != nil {
		t.Fatalf("querying device_events: %v", err)
	}
	if count != 0 {
		t.Errorf("expected the 31-day-old event to be pruned, found %d rows", count)
	}
}

func TestSweep_KeepsRowsWithinWindow(t *testing.T) {
	svc, st, clk := newTestService(t, defaultRetentionConfig())

	res, err := st.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.5", 300)
	if err != nil {
		t.Fatalf("seeding device: %v", err)
	}
	if err := st.RecordEvent(res.DeviceID, "online"); err != nil {
		t.Fatalf("recording event: %v", err)
	}

	clk.Advance(time.Hour)
	svc.sweep()

	var count int
	if err := st.DB().QueryRow(`SELECT COUNT(*) FROM device_events WHERE device_id = ?`, res.DeviceID).Scan(&count); err != nil {
		t.Fatalf("querying device_events: %v", err)
	}
	if count != 1 {
		t.Errorf("expected the fresh event to survive, found %d rows", count)
	}
}

func TestMaybeVacuum_SkipsWhenRecent(t *testing.T) {
	svc, st, clk := newTestService(t, defaultRetentionConfig())

	if err := st.Vacuum(); err != nil {
		t.Fatalf("seeding vacuum stamp: %v", err)
	}
	before, err := st.LastVacuumAt()
	if err != nil {
		t.Fatalf("reading last vacuum: %v", err)
	}

	clk.Advance(time.Hour)
	svc.maybeVacuum()

	after, err := st.LastVacuumAt()
	if err != nil {
		t.Fatalf("reading last vacuum: %v", err)
	}
	if !after.Equal(before) {
		t.Errorf("expected vacuum to be skipped within the interval, stamp moved from %v to %v", before, after)
	}
}

func TestMaybeVacuum_RunsAfterInterval(t *testing.T) {
	svc, st, clk := newTestService(t, defaultRetentionConfig())

	if err := st.Vacuum(); err != nil {
		t.Fatalf("seeding vacuum stamp: %v", err)
	}
	before, err := st.LastVacuumAt()
	if err != nil {
		t.Fatalf("reading last vacuum: %v", err)
	}

	clk.Advance(8 * 24 * time.Hour)
	svc.maybeVacuum()

	after, err := st.LastVacuumAt()
	if err != nil {
		t.Fatalf("reading last vacuum: %v", err)
	}
	if !after.After(before) {
		t.Errorf("expected vacuum to run after the interval elapsed, stamp did not advance past %v", before)
	}
}

func TestMaybeVacuum_RunsWhenNeverVacuumed(t *testing.T) {
	svc, st, _ := newTestService(t, defaultRetentionConfig())

	svc.maybeVacuum()

	after, err := st.LastVacuumAt()
	if err != nil {
		t.Fatalf("reading last vacuum: %v", err)
	}
	if after.IsZero() {
		t.Error("expected a first-ever vacuum to stamp last_vacuum_at")
	}
}
