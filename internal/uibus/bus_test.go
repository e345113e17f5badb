package uibus

import (
	"sync"
	"testing"
	"time"

	"panoptikon.dev/panoptikon/internal/clock"
)

func newTestBus() *Bus {
	return New(clock.NewMockClock(time.Unix(0, 0)))
}

func TestBus_PublishSubscribe(t *testing.T) {
	b := newTestBus()
	ch := b.Subscribe(KindDeviceNew)

	b.Publish(Event{Kind: KindDeviceNew, DeviceID: "dev-1", Data: DeviceSnapshot{MAC: "aa:bb:cc:dd:ee:ff"}})

	select {
	case e := <-ch:
		if e.Kind != KindDeviceNew {
			t.Errorf("expected KindDeviceNew, got %s", e.Kind)
		}
		snap, ok := e.Data.(DeviceSnapshot)
		if !ok {
			t.Fatal("expected DeviceSnapshot")
		}
		if snap.MAC != "aa:bb:cc:dd:ee:ff" {
			t.Errorf("expected MAC aa:bb:cc:dd:ee:ff, got %s", snap.MAC)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestBus_GlobalSubscription(t *testing.T) {
	b := newTestBus()
	ch := b.Subscribe()

	b.Publish(Event{Kind: KindDeviceNew})
	b.Publish(Event{Kind: KindDeviceUp})
	b.Publish(Event{Kind: KindAlertCreated})

	received := 0
	for i := 0; i < 3; i++ {
		select {
		case <-ch:
			received++
		case <-time.After(100 * time.Millisecond):
		}
	}
	if received != 3 {
		t.Errorf("expected 3 events, got %d", received)
	}
}

func TestBus_KindFiltering(t *testing.T) {
	b := newTestBus()
	ch := b.Subscribe(KindAlertCreated, KindAgentReport)

	b.Publish(Event{Kind: KindDeviceNew})
	b.Publish(Event{Kind: KindAlertCreated})
	b.Publish(Event{Kind: KindDeviceUp})
	b.Publish(Event{Kind: KindAgentReport})

	received := 0
loop:
	for {
		select {
		case <-ch:
			received++
		case <-time.After(50 * time.Millisecond):
			break loop
		}
	}
	if received != 2 {
		t.Errorf("expected 2 filtered events, got %d", received)
	}
}

func TestBus_NonBlockingDrop(t *testing.T) {
	b := newTestBus()
	ch := b.Subscribe(KindScanCompleted)

	for i := 0; i < defaultBufSize+10; i++ {
		b.Publish(Event{Kind: KindScanCompleted})
	}

	published, dropped := b.Stats()
	if published != uint64(defaultBufSize+10) {
		t.Errorf("expected %d published, got %d", defaultBufSize+10, published)
	}
	if dropped == 0 {
		t.Error("expected some drops once the buffer filled")
	}
	_ = ch
}

func TestBus_Unsubscribe(t *testing.T) {
	b := newTestBus()
	ch := b.Subscribe(KindDeviceDown)
	b.Unsubscribe(ch)

	b.Publish(Event{Kind: KindDeviceDown})

	select {
	case <-ch:
		t.Error("unsubscribed channel should not receive events")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_Concurrent(t *testing.T) {
	b := newTestBus()
	ch := b.Subscribe(KindAgentReport)

	var wg sync.WaitGroup
	const publishers = 10
	const perPublisher = 100

	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				b.Publish(Event{Kind: KindAgentReport})
			}
		}()
	}
	wg.Wait()

	received := 0
drain:
	for {
		select {
		case <-ch:
			received++
		default:
			break drain
		}
	}
	if received != defaultBufSize {
		t.Errorf("expected a full buffer of %d events, got %d", defaultBufSize, received)
	}
}

func TestBus_DefaultTimestamp(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := New(clock.NewMockClock(now))
	ch := b.Subscribe(KindDeviceUp)

	b.Publish(Event{Kind: KindDeviceUp})

	e := <-ch
	if !e.OccurredAt.Equal(now) {
		t.Errorf("expected OccurredAt %v, got %v", now, e.OccurredAt)
	}
}
