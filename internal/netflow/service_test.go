package netflow

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"panoptikon.dev/panoptikon/internal/clock"
	"panoptikon.dev/panoptikon/internal/config"
	"panoptikon.dev/panoptikon/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	st, err := store.Open(store.Options{Path: ":memory:", Clock: clk})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewService(st, config.ScannerConfig{NetflowEnabled: true, NetflowPort: 9995}), st
}

func ipToUint32(t *testing.T, s string) uint32 {
	t.Helper()
	ip := net.ParseIP(s).To4()
	if ip == nil {
		t.Fatalf("not an ipv4 address: %s", s)
	}
	return binary.BigEndian.Uint32(ip)
}

func TestIngestAndFlush_AttributesBytesToKnownDevice(t *testing.T) {
	svc, st := newTestService(t)
	res, err := st.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.5", 300)
	if err != nil {
		t.Fatalf("seeding device: %v", err)
	}

	pkt := packet{
		Records: []record{
			{SrcAddr: ipToUint32(t, "10.0.0.5"), DstAddr: ipToUint32(t, "8.8.8.8"), DOctets: 120000},
		},
	}
	svc.ingest(pkt)
	svc.flush()

	var rxBps, txBps float64
	if err := st.DB().QueryRow(`SELECT rx_bps, tx_bps FROM traffic_samples WHERE device_id = ?`, res.DeviceID).Scan(&rxBps, &txBps); err != nil {
		t.Fatalf("querying sample: %v", err)
	}
	if txBps != 16000 {
		t.Errorf("expected tx_bps 16000 (sender), got %v", txBps)
	}
	if rxBps != 0 {
		t.Errorf("expected rx_bps 0 (no matching receiver device), got %v", rxBps)
	}
}

func TestIngestUnknownIP_SilentlyIgnored(t *testing.T) {
	svc, st := newTestService(t)

	pkt := packet{
		Records: []record{
			{SrcAddr: ipToUint32(t, "192.168.50.1"), DstAddr: ipToUint32(t, "192.168.50.2"), DOctets: 1000},
		},
	}
	svc.ingest(pkt)
	svc.flush()

	var count int
	st.DB().QueryRow(`SELECT COUNT(*) FROM traffic_samples`).Scan(&count)
	if count != 0 {
		t.Errorf("expected no samples written for unmanaged ips, got %d", count)
	}
}

func TestIngest_IncrementsFlowsReceivedCounter(t *testing.T) {
	svc, _ := newTestService(t)
	pkt := packet{Records: []record{{}, {}, {}}}
	svc.ingest(pkt)
	if svc.FlowsReceived() != 3 {
		t.Errorf("expected flows received = 3, got %d", svc.FlowsReceived())
	}
}

func TestFlush_SkipsAllZeroRows(t *testing.T) {
	svc, st := newTestService(t)
	res, err := st.UpsertDeviceSighting("AA:BB:CC:DD:EE:FF", "10.0.0.5", 300)
	if err != nil {
		t.Fatalf("seeding device: %v", err)
	}
	svc.mu.Lock()
	svc.acc[res.DeviceID] = &counters{txBytes: 0, rxBytes: 0}
	svc.mu.Unlock()

	svc.flush()

	var count int
	st.DB().QueryRow(`SELECT COUNT(*) FROM traffic_samples`).Scan(&count)
	if count != 0 {
		t.Errorf("expected zero-byte accumulation to be skipped, got %d rows", count)
	}
}
