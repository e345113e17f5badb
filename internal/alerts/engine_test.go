package alerts

import (
	"context"
	"testing"
	"time"

	"panoptikon.dev/panoptikon/internal/clock"
	"panoptikon.dev/panoptikon/internal/store"
	"panoptikon.dev/panoptikon/internal/uibus"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store, *uibus.Bus, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	st, err := store.Open(store.Options{Path: ":memory:", Clock: clk})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bus := uibus.New(clk)
	return NewEngine(st, bus), st, bus, clk
}

func TestNewDevice_CreatesInfoAlertUnlessMuted(t *testing.T) {
	e, st, bus, clk := newTestEngine(t)
	res, err := st.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.5", 300)
	if err != nil {
		t.Fatalf("sighting: %v", err)
	}

	sub := bus.Subscribe(uibus.KindAlertCreated)
	go e.Run(contextWithCancel(t))

	bus.Publish(uibus.Event{Kind: uibus.KindDeviceNew, DeviceID: res.DeviceID})

	select {
	case ev := <-sub:
		summary := ev.Data.(uibus.AlertSummary)
		if summary.Severity != severityInfo {
			t.Errorf("expected INFO severity, got %s", summary.Severity)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an alert_created event")
	}

	// Mute and verify suppression.
	if err := st.SetMuted(res.DeviceID, clk.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SetMuted: %v", err)
	}
	bus.Publish(uibus.Event{Kind: uibus.KindDeviceNew, DeviceID: res.DeviceID})
	select {
	case ev := <-sub:
		t.Fatalf("expected muted device to suppress the alert, got %v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDeviceOnline_SuppressedUnderFiveMinutes(t *testing.T) {
	e, st, bus, clk := newTestEngine(t)
	res, err := st.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.5", 300)
	if err != nil {
		t.Fatalf("sighting: %v", err)
	}
	if err := st.RecordEvent(res.DeviceID, "offline"); err != nil {
		t.Fatalf("recording offline: %v", err)
	}

	sub := bus.Subscribe(uibus.KindAlertCreated)
	go e.Run(contextWithCancel(t))

	clk.Advance(2 * time.Minute)
	bus.Publish(uibus.Event{Kind: uibus.KindDeviceUp, DeviceID: res.DeviceID})

	select {
	case ev := <-sub:
		t.Fatalf("expected no alert for a short offline gap, got %v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDeviceOnline_FiresAfterFiveMinutes(t *testing.T) {
	e, st, bus, clk := newTestEngine(t)
	res, err := st.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.5", 300)
	if err != nil {
		t.Fatalf("sighting: %v", err)
	}
	if err := st.RecordEvent(res.DeviceID, "offline"); err != nil {
		t.Fatalf("recording offline: %v", err)
	}

	sub := bus.Subscribe(uibus.KindAlertCreated)
	go e.Run(contextWithCancel(t))

	clk.Advance(10 * time.Minute)
	bus.Publish(uibus.Event{Kind: uibus.KindDeviceUp, DeviceID: res.DeviceID})

	select {
	case ev := <-sub:
		summary := ev.Data.(uibus.AlertSummary)
		if summary.Severity != severityInfo {
			t.Errorf("expected INFO, got %s", summary.Severity)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an alert after a long offline gap")
	}
}

func TestHighBandwidth_FiresOnThirdConsecutiveWindow(t *testing.T) {
	e, st, bus, _ := newTestEngine(t)
	res, err := st.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.5", 300)
	if err != nil {
		t.Fatalf("sighting: %v", err)
	}
	if err := st.SetSetting(bandwidthThresholdKey, "1000"); err != nil {
		t.Fatalf("setting threshold: %v", err)
	}

	sub := bus.Subscribe(uibus.KindAlertCreated)

	e.CheckTrafficSample(res.DeviceID, 2000, 0)
	e.CheckTrafficSample(res.DeviceID, 2000, 0)
	select {
	case ev := <-sub:
		t.Fatalf("expected no alert before 3 consecutive windows, got %v", ev)
	default:
	}

	e.CheckTrafficSample(res.DeviceID, 2000, 0)
	select {
	case ev := <-sub:
		summary := ev.Data.(uibus.AlertSummary)
		if summary.Severity != severityWarning {
			t.Errorf("expected WARNING, got %s", summary.Severity)
		}
	default:
		t.Fatal("expected an alert on the third consecutive over-threshold window")
	}
}

func TestHighBandwidth_DisabledWithoutThreshold(t *testing.T) {
	e, st, bus, _ := newTestEngine(t)
	res, err := st.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.5", 300)
	if err != nil {
		t.Fatalf("sighting: %v", err)
	}

	sub := bus.Subscribe(uibus.KindAlertCreated)
	for i := 0; i < 5; i++ {
		e.CheckTrafficSample(res.DeviceID, 999999, 0)
	}
	select {
	case ev := <-sub:
		t.Fatalf("expected no alerts with no threshold configured, got %v", ev)
	default:
	}
}

func TestAgentOffline_FiresOncePerTransition(t *testing.T) {
	e, st, bus, clk := newTestEngine(t)
	if err := st.CreateAgent("agent-1", "test", "key"); err != nil {
		t.Fatalf("creating agent: %v", err)
	}

	sub := bus.Subscribe(uibus.KindAlertCreated)
	e.CheckAgentLiveness("agent-1")
	select {
	case ev := <-sub:
		summary := ev.Data.(uibus.AlertSummary)
		if summary.Severity != severityWarning {
			t.Errorf("expected WARNING, got %s", summary.Severity)
		}
	default:
		t.Fatal("expected agent_offline alert for an agent that has never reported")
	}

	// Second consecutive check while still offline must not re-fire.
	e.CheckAgentLiveness("agent-1")
	select {
	case ev := <-sub:
		t.Fatalf("expected no duplicate agent_offline alert, got %v", ev)
	default:
	}

	// A report brings it back online; resets the transition tracker.
	if err := st.TouchAgentLastReport("agent-1"); err != nil {
		t.Fatalf("touching last report: %v", err)
	}
	clk.Advance(time.Second)
	e.CheckAgentLiveness("agent-1")

	// Going offline again should re-fire.
	clk.Advance(3 * time.Minute)
	e.CheckAgentLiveness("agent-1")
	select {
	case ev := <-sub:
		summary := ev.Data.(uibus.AlertSummary)
		if summary.Severity != severityWarning {
			t.Errorf("expected WARNING, got %s", summary.Severity)
		}
	default:
		t.Fatal("expected agent_offline to re-fire on a second transition")
	}
}

func contextWithCancel(t *testing.T) (ctx context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
