package store

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"panoptikon.dev/panoptikon/internal/clock"
)

func newTestStore(t *testing.T, now time.Time) (*Store, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(now)
	s, err := Open(Options{Path: ":memory:", Clock: clk})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clk
}

func TestUpsertDeviceSighting_FirstSighting(t *testing.T) {
	s, _ := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	res, err := s.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.42", 300)
	if err != nil {
		t.Fatalf("UpsertDeviceSighting: %v", err)
	}
	if !res.WasNew {
		t.Error("expected WasNew=true on first sighting")
	}
	if !res.WentOnline {
		t.Error("expected WentOnline=true on first sighting")
	}
	if res.IPChanged {
		t.Error("expected IPChanged=false on first sighting")
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM device_ips WHERE device_id = ? AND is_current = 1`, res.DeviceID).Scan(&count); err != nil {
		t.Fatalf("counting current ips: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly 1 current DeviceIP, got %d", count)
	}
}

func TestUpsertDeviceSighting_IdempotentWithinTick(t *testing.T) {
	s, _ := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	first, err := s.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.42", 300)
	if err != nil {
		t.Fatalf("first sighting: %v", err)
	}
	second, err := s.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.42", 300)
	if err != nil {
		t.Fatalf("second sighting: %v", err)
	}
	if second.WasNew || second.IPChanged {
		t.Error("re-sighting the same (mac, ip) must not look new or changed")
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM device_ips WHERE device_id = ?`, first.DeviceID).Scan(&count); err != nil {
		t.Fatalf("counting ips: %v", err)
	}
	if count != 1 {
		t.Errorf("expected no duplicate DeviceIP row, got %d rows", count)
	}
}

func TestUpsertDeviceSighting_IPChange(t *testing.T) {
	s, clk := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	first, err := s.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.10", 300)
	if err != nil {
		t.Fatalf("first sighting: %v", err)
	}

	clk.Advance(time.Minute)
	second, err := s.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.11", 300)
	if err != nil {
		t.Fatalf("second sighting: %v", err)
	}
	if second.DeviceID != first.DeviceID {
		t.Fatal("expected same device id across ticks")
	}
	if !second.IPChanged {
		t.Error("expected IPChanged=true on tick 2")
	}
	if second.WasNew {
		t.Error("expected WasNew=false on tick 2")
	}

	var total, current int
	s.db.QueryRow(`SELECT COUNT(*) FROM device_ips WHERE device_id = ?`, first.DeviceID).Scan(&total)
	s.db.QueryRow(`SELECT COUNT(*) FROM device_ips WHERE device_id = ? AND is_current = 1`, first.DeviceID).Scan(&current)
	if total != 2 {
		t.Errorf("expected 2 DeviceIP rows, got %d", total)
	}
	if current != 1 {
		t.Errorf("expected exactly 1 current DeviceIP, got %d", current)
	}

	var currentIP string
	s.db.QueryRow(`SELECT ip FROM device_ips WHERE device_id = ? AND is_current = 1`, first.DeviceID).Scan(&currentIP)
	if currentIP != "10.0.0.11" {
		t.Errorf("expected current ip 10.0.0.11, got %s", currentIP)
	}
}

func TestMarkStaleOffline(t *testing.T) {
	s, clk := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	res, err := s.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.42", 300)
	if err != nil {
		t.Fatalf("sighting: %v", err)
	}

	clk.Advance(400 * time.Second)
	ids, err := s.MarkStaleOffline(300)
	if err != nil {
		t.Fatalf("MarkStaleOffline: %v", err)
	}
	if len(ids) != 1 || ids[0] != res.DeviceID {
		t.Fatalf("expected device %s to go offline, got %v", res.DeviceID, ids)
	}

	var isOnline bool
	s.db.QueryRow(`SELECT is_online FROM devices WHERE id = ?`, res.DeviceID).Scan(&isOnline)
	if isOnline {
		t.Error("expected is_online=false after stale transition")
	}

	// A second call within grace should not re-report the same device.
	ids, err = s.MarkStaleOffline(300)
	if err != nil {
		t.Fatalf("MarkStaleOffline (second call): %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no further transitions, got %v", ids)
	}
}

func TestIsDeviceMuted(t *testing.T) {
	s, clk := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	res, err := s.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.42", 300)
	if err != nil {
		t.Fatalf("sighting: %v", err)
	}

	muted, err := s.IsDeviceMuted(res.DeviceID)
	if err != nil || muted {
		t.Fatalf("expected not muted, got muted=%v err=%v", muted, err)
	}

	if err := s.SetMuted(res.DeviceID, clk.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SetMuted: %v", err)
	}
	muted, err = s.IsDeviceMuted(res.DeviceID)
	if err != nil || !muted {
		t.Fatalf("expected muted, got muted=%v err=%v", muted, err)
	}
}

func TestPersistEnrichment_RespectsCorrectionLock(t *testing.T) {
	s, _ := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	res, err := s.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.42", 300)
	if err != nil {
		t.Fatalf("sighting: %v", err)
	}
	if _, err := s.db.Exec(`UPDATE devices SET enrichment_corrected = 1, device_type = 'router' WHERE id = ?`, res.DeviceID); err != nil {
		t.Fatalf("setting correction lock: %v", err)
	}

	if err := s.PersistEnrichment(res.DeviceID, EnrichmentResult{DeviceType: "phone", Source: "hostname"}); err != nil {
		t.Fatalf("PersistEnrichment: %v", err)
	}

	var deviceType string
	s.db.QueryRow(`SELECT device_type FROM devices WHERE id = ?`, res.DeviceID).Scan(&deviceType)
	if deviceType != "router" {
		t.Errorf("expected locked device_type to remain 'router', got %q", deviceType)
	}
}

func TestFlushTrafficSamples_ZeroRowsSkipped(t *testing.T) {
	s, _ := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	res, err := s.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.10", 300)
	if err != nil {
		t.Fatalf("sighting: %v", err)
	}

	err = s.FlushTrafficSamples([]TrafficSampleInput{
		{DeviceID: res.DeviceID, RxBytes: 0, TxBytes: 0},
	}, 60, "netflow")
	if err != nil {
		t.Fatalf("FlushTrafficSamples: %v", err)
	}

	var count int
	s.db.QueryRow(`SELECT COUNT(*) FROM traffic_samples`).Scan(&count)
	if count != 0 {
		t.Errorf("expected all-zero sample to be skipped, got %d rows", count)
	}
}

func TestFlushTrafficSamples_BpsConversion(t *testing.T) {
	s, _ := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	res, err := s.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.10", 300)
	if err != nil {
		t.Fatalf("sighting: %v", err)
	}

	err = s.FlushTrafficSamples([]TrafficSampleInput{
		{DeviceID: res.DeviceID, RxBytes: 120000, TxBytes: 60000},
	}, 60, "netflow")
	if err != nil {
		t.Fatalf("FlushTrafficSamples: %v", err)
	}

	var rxBps, txBps float64
	s.db.QueryRow(`SELECT rx_bps, tx_bps FROM traffic_samples WHERE device_id = ?`, res.DeviceID).Scan(&rxBps, &txBps)
	if rxBps != 16000 {
		t.Errorf("expected rx_bps 16000, got %v", rxBps)
	}
	if txBps != 8000 {
		t.Errorf("expected tx_bps 8000, got %v", txBps)
	}
}

func TestAcknowledgeAlert_SetsIsRead(t *testing.T) {
	s, _ := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	id, err := s.InsertAlert("new_device", "INFO", "", "", "device seen", "")
	if err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}
	if err := s.AcknowledgeAlert(id, "admin"); err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}

	var isRead bool
	var ackAt string
	s.db.QueryRow(`SELECT is_read, acknowledged_at FROM alerts WHERE id = ?`, id).Scan(&isRead, &ackAt)
	if !isRead {
		t.Error("expected is_read=true after acknowledgement")
	}
	if ackAt == "" {
		t.Error("expected acknowledged_at to be set")
	}
}

func TestNormalizeMAC(t *testing.T) {
	cases := map[string]string{
		"aa:bb:cc:dd:ee:ff": "AA:BB:CC:DD:EE:FF",
		"AA-BB-CC-DD-EE-FF": "AA:BB:CC:DD:EE:FF",
		"aabbccddeeff":       "AA:BB:CC:DD:EE:FF",
	}
	for in, want := range cases {
		if got := NormalizeMAC(in); got != want {
			t.Errorf("NormalizeMAC(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsBroadcastOrZero(t *testing.T) {
	if !IsBroadcastOrZero("ff:ff:ff:ff:ff:ff") {
		t.Error("expected broadcast MAC to be filtered")
	}
	if !IsBroadcastOrZero("00:00:00:00:00:00") {
		t.Error("expected all-zero MAC to be filtered")
	}
	if IsBroadcastOrZero("aa:bb:cc:dd:ee:ff") {
		t.Error("expected ordinary MAC to pass through")
	}
}

func TestWithTx_RetriesOnceOnBusy(t *testing.T) {
	s, _ := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	attempts := 0
	err := s.withTx(func(tx *sql.Tx) error {
		attempts++
		if attempts == 1 {
			return errors.New("SQLITE_BUSY: database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withTx returned an error after the retry should have succeeded: %v", err)
	}
	if attempts != 2 {
		t.Errorf("fn ran %d times, want exactly 2 (one retry)", attempts)
	}
}

func TestWithTx_SurfacesBusyAfterExhaustingRetry(t *testing.T) {
	s, _ := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	attempts := 0
	err := s.withTx(func(tx *sql.Tx) error {
		attempts++
		return errors.New("database is locked")
	})
	if err == nil {
		t.Fatal("expected withTx to surface the error once the retry also hits busy")
	}
	if attempts != 2 {
		t.Errorf("fn ran %d times, want exactly 2 (initial attempt + one retry, no more)", attempts)
	}
}

func TestWithTx_DoesNotRetryNonBusyErrors(t *testing.T) {
	s, _ := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	attempts := 0
	err := s.withTx(func(tx *sql.Tx) error {
		attempts++
		return errors.New("constraint failed: UNIQUE")
	})
	if err == nil {
		t.Fatal("expected withTx to surface a non-busy error")
	}
	if attempts != 1 {
		t.Errorf("fn ran %d times, want exactly 1 — non-busy errors must not retry", attempts)
	}
}
