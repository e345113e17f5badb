package discovery

import (
	"testing"
	"time"

	"panoptikon.dev/panoptikon/internal/clock"
	"panoptikon.dev/panoptikon/internal/config"
	"panoptikon.dev/panoptikon/internal/reachability"
	"panoptikon.dev/panoptikon/internal/store"
	"panoptikon.dev/panoptikon/internal/uibus"
)

func newTestService(t *testing.T) (*Service, *store.Store, *uibus.Bus, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	st, err := store.Open(store.Options{Path: ":memory:", Clock: clk})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bus := uibus.New(clk)
	cfg := config.ScannerConfig{IntervalSeconds: 60, OfflineGraceSeconds: 300}
	return NewService(st, bus, cfg), st, bus, clk
}

func TestTick_NewDeviceEmitsNewDeviceEvent(t *testing.T) {
	svc, _, bus, _ := newTestService(t)
	sub := bus.Subscribe(uibus.KindDeviceNew)

	orig := snapshotNeighborsFn
	snapshotNeighborsFn = func() ([]neighbor, error) {
		return []neighbor{{IP: "10.0.0.5", MAC: "AA:BB:CC:DD:EE:FF"}}, nil
	}
	defer func() { snapshotNeighborsFn = orig }()

	svc.tick()

	select {
	case ev := <-sub:
		if ev.Kind != uibus.KindDeviceNew {
			t.Errorf("expected device_new, got %s", ev.Kind)
		}
	default:
		t.Fatal("expected a device_new event to be published")
	}
}

func TestTick_BroadcastMACFiltered(t *testing.T) {
	svc, st, _, _ := newTestService(t)

	orig := snapshotNeighborsFn
	snapshotNeighborsFn = func() ([]neighbor, error) {
		return []neighbor{{IP: "10.0.0.255", MAC: "FF:FF:FF:FF:FF:FF"}}, nil
	}
	defer func() { snapshotNeighborsFn = orig }()

	svc.tick()

	var count int
	st.DB().QueryRow(`SELECT COUNT(*) FROM devices`).Scan(&count)
	if count != 0 {
		t.Errorf("expected broadcast mac to be filtered out, got %d devices", count)
	}
}

func TestTick_IPChangeWithinOneTickEmitsExactlyOneEvent(t *testing.T) {
	svc, _, bus, _ := newTestService(t)

	orig := snapshotNeighborsFn
	defer func() { snapshotNeighborsFn = orig }()

	snapshotNeighborsFn = func() ([]neighbor, error) {
		return []neighbor{{IP: "10.0.0.5", MAC: "AA:BB:CC:DD:EE:FF"}}, nil
	}
	svc.tick()

	sub := bus.Subscribe(uibus.KindIPChanged, uibus.KindDeviceDown)
	snapshotNeighborsFn = func() ([]neighbor, error) {
		return []neighbor{{IP: "10.0.0.6", MAC: "AA:BB:CC:DD:EE:FF"}}, nil
	}
	svc.tick()

	count := 0
	drain := true
	for drain {
		select {
		case ev := <-sub:
			if ev.Kind == uibus.KindIPChanged {
				count++
			}
			if ev.Kind == uibus.KindDeviceDown {
				t.Error("ip change within a tick must not emit offline")
			}
		default:
			drain = false
		}
	}
	if count != 1 {
		t.Errorf("expected exactly 1 ip_changed event, got %d", count)
	}
}

func TestTick_ReSightingWithinGraceDoesNotEmitOnline(t *testing.T) {
	svc, _, bus, clk := newTestService(t)

	orig := snapshotNeighborsFn
	defer func() { snapshotNeighborsFn = orig }()
	snapshotNeighborsFn = func() ([]neighbor, error) {
		return []neighbor{{IP: "10.0.0.5", MAC: "AA:BB:CC:DD:EE:FF"}}, nil
	}
	svc.tick()

	clk.Advance(10 * time.Second)
	sub := bus.Subscribe(uibus.KindDeviceUp)
	svc.tick()

	select {
	case ev := <-sub:
		t.Errorf("expected no online event on re-sighting within grace, got %v", ev.Kind)
	default:
	}
}

func TestTick_OfflineTransitionEmitsOnce(t *testing.T) {
	svc, _, bus, clk := newTestService(t)

	orig := snapshotNeighborsFn
	snapshotNeighborsFn = func() ([]neighbor, error) {
		return []neighbor{{IP: "10.0.0.5", MAC: "AA:BB:CC:DD:EE:FF"}}, nil
	}
	svc.tick()
	snapshotNeighborsFn = func() ([]neighbor, error) { return nil, nil }
	defer func() { snapshotNeighborsFn = orig }()

	clk.Advance(400 * time.Second)
	sub := bus.Subscribe(uibus.KindDeviceDown)
	svc.tick()

	select {
	case ev := <-sub:
		if ev.Kind != uibus.KindDeviceDown {
			t.Errorf("expected device_down, got %s", ev.Kind)
		}
	default:
		t.Fatal("expected an offline transition event")
	}

	svc.tick()
	select {
	case ev := <-sub:
		t.Errorf("expected no second offline event, got %v", ev.Kind)
	default:
	}
}

func TestTick_ActiveProbeRevivesStaleDeviceInsteadOfMarkingOffline(t *testing.T) {
	svc, st, bus, clk := newTestService(t)
	svc.cfg.ActiveProbeEnabled = true

	origNeighbors := snapshotNeighborsFn
	defer func() { snapshotNeighborsFn = origNeighbors }()
	snapshotNeighborsFn = func() ([]neighbor, error) {
		return []neighbor{{IP: "10.0.0.5", MAC: "AA:BB:CC:DD:EE:FF"}}, nil
	}
	svc.tick()

	origCheck := reachability.CheckFunc
	defer func() { reachability.CheckFunc = origCheck }()
	reachability.CheckFunc = func(ip string) error { return nil } // still answers pings

	snapshotNeighborsFn = func() ([]neighbor, error) { return nil, nil } // aged out of ARP
	clk.Advance(400 * time.Second)

	sub := bus.Subscribe(uibus.KindDeviceDown)
	svc.tick()

	select {
	case ev := <-sub:
		t.Errorf("expected no offline event for a device that still answers probes, got %v", ev.Kind)
	default:
	}

	var online int
	st.DB().QueryRow(`SELECT is_online FROM devices`).Scan(&online)
	if online != 1 {
		t.Errorf("expected device to remain online after a successful active probe, is_online=%d", online)
	}
}
