package exchange

import (
	"testing"
	"time"

	"github.com/backkem/coap/pkg/config"
)

func TestRetransmitTimerFiresAndStops(t *testing.T) {
	cfg := config.New()
	cfg.AckTimeout = 10 * time.Millisecond
	cfg.AckRandomFactor = 1
	cfg.MaxRetransmit = 2

	rt := NewRetransmitTimer(cfg)

	fired := make(chan struct{}, 1)
	if ok := rt.Schedule(func() { fired <- struct{}{} }); !ok {
		t.Fatal("Schedule() returned false on first attempt")
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	if rt.Attempts() != 1 {
		t.Errorf("Attempts() = %d, want 1", rt.Attempts())
	}
}

func TestRetransmitTimerExhaustsMaxRetransmit(t *testing.T) {
	cfg := config.New()
	cfg.AckTimeout = time.Millisecond
	cfg.AckRandomFactor = 1
	cfg.MaxRetransmit = 2

	rt := NewRetransmitTimer(cfg)

	for i := 0; i < cfg.MaxRetransmit; i++ {
		if !rt.Schedule(func() {}) {
			t.Fatalf("Schedule() returned false on attempt %d", i)
		}
	}
	if rt.Schedule(func() {}) {
		t.Error("Schedule() returned true past MaxRetransmit")
	}
}

func TestRetransmitTimerStopCancelsPending(t *testing.T) {
	cfg := config.New()
	cfg.AckTimeout = time.Hour
	rt := NewRetransmitTimer(cfg)

	fired := false
	rt.Schedule(func() { fired = true })
	rt.Stop()

	time.Sleep(10 * time.Millisecond)
	if fired {
		t.Error("callback fired after Stop")
	}
}
