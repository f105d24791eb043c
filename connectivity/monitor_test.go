package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMonitorEmitsTransitionsOnly(t *testing.T) {
	var up atomic.Bool
	monitor, err := NewMonitor(Config{
		Interval: 10 * time.Millisecond,
		Initial:  true,
		Probe: func(ctx context.Context) error {
			if up.Load() {
				return nil
			}
			return errors.New("connection refused")
		},
	})
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}
	monitor.Start()
	defer monitor.Stop()

	event := waitForEvent(t, monitor.Events())
	if event.Online || event.Err == nil {
		t.Fatalf("expected offline event with error, got %+v", event)
	}

	up.Store(true)
	event = waitForEvent(t, monitor.Events())
	if !event.Online {
		t.Fatalf("expected online event, got %+v", event)
	}
	if !monitor.Online() {
		t.Fatal("expected monitor to report online")
	}

	select {
	case extra := <-monitor.Events():
		t.Fatalf("unexpected event without a transition: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMonitorRefreshAndExplicitSignal(t *testing.T) {
	var probes atomic.Int32
	monitor, err := NewMonitor(Config{
		Interval: time.Hour,
		Probe: func(ctx context.Context) error {
			probes.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}

	if _, err := monitor.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh before start to fail")
	}

	monitor.Start()
	defer monitor.Stop()

	if event := waitForEvent(t, monitor.Events()); !event.Online {
		t.Fatalf("expected first probe to bring monitor online, got %+v", event)
	}

	online, err := monitor.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !online || probes.Load() < 2 {
		t.Fatalf("expected refresh probe, online=%v probes=%d", online, probes.Load())
	}

	monitor.Set(false)
	if event := waitForEvent(t, monitor.Events()); event.Online {
		t.Fatalf("expected explicit offline event, got %+v", event)
	}
	if monitor.Online() {
		t.Fatal("expected monitor to report offline")
	}
}

func TestMonitorSetAfterStopDoesNotPanic(t *testing.T) {
	monitor, err := NewMonitor(Config{
		Interval: time.Hour,
		Probe:    func(ctx context.Context) error { return nil },
	})
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}

	monitor.Start()
	waitForEvent(t, monitor.Events())
	monitor.Stop()

	monitor.Set(false)
	monitor.Set(true)
	if !monitor.Online() {
		t.Fatal("expected state to keep tracking explicit signals after stop")
	}
	if _, ok := <-monitor.Events(); ok {
		t.Fatal("expected event channel to stay closed")
	}
}

func TestMonitorRequiresProbe(t *testing.T) {
	if _, err := NewMonitor(Config{}); err == nil {
		t.Fatal("expected error without probe")
	}
}

func waitForEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()

	select {
	case event, ok := <-events:
		if !ok {
			t.Fatal("event channel closed")
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connectivity event")
	}
	return Event{}
}
