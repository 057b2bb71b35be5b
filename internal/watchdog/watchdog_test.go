package watchdog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/piotrkotrych/tarczownix/internal/logger"
	"github.com/piotrkotrych/tarczownix/internal/types"
)

type breachRecorder struct {
	pairs []int
	sides []types.Side
}

func (r *breachRecorder) record(pair int, side types.Side) {
	r.pairs = append(r.pairs, pair)
	r.sides = append(r.sides, side)
}

func newTestWatchdog(rec *breachRecorder) (*Watchdog, *time.Time) {
	w := New(5*time.Millisecond, rec.record, logger.NewLogger(nil, logger.LogLevelError))
	now := time.Now()
	w.now = func() time.Time { return now }
	return w, &now
}

func TestWatchdogBreachesAfterDeadline(t *testing.T) {
	rec := &breachRecorder{}
	w, now := newTestWatchdog(rec)

	w.Arm(1, types.SideB, now.Add(time.Second))

	w.check()
	if len(rec.pairs) != 0 {
		t.Fatal("breach fired before the deadline")
	}

	*now = now.Add(time.Second)
	w.check()
	if len(rec.pairs) != 1 || rec.pairs[0] != 1 || rec.sides[0] != types.SideB {
		t.Fatalf("breach record = %v/%v, want pair 1 side B", rec.pairs, rec.sides)
	}

	// The abort cleared the registry; nothing fires again.
	*now = now.Add(time.Minute)
	w.check()
	if len(rec.pairs) != 1 {
		t.Errorf("breach fired %d times, want once", len(rec.pairs))
	}
}

func TestWatchdogDisarmPreventsBreach(t *testing.T) {
	rec := &breachRecorder{}
	w, now := newTestWatchdog(rec)

	w.Arm(0, types.SideA, now.Add(time.Second))
	w.Disarm(0)

	*now = now.Add(time.Minute)
	w.check()
	if len(rec.pairs) != 0 {
		t.Errorf("disarmed deadline still breached: %v", rec.pairs)
	}
}

func TestWatchdogRearmReplacesDeadline(t *testing.T) {
	rec := &breachRecorder{}
	w, now := newTestWatchdog(rec)

	w.Arm(2, types.SideA, now.Add(time.Second))
	w.Arm(2, types.SideB, now.Add(3*time.Second))

	*now = now.Add(2 * time.Second)
	w.check()
	if len(rec.pairs) != 0 {
		t.Fatal("replaced deadline still live")
	}

	*now = now.Add(2 * time.Second)
	w.check()
	if len(rec.pairs) != 1 || rec.sides[0] != types.SideB {
		t.Fatalf("breach record = %v/%v, want side B", rec.pairs, rec.sides)
	}
}

func TestWatchdogReportsEarliestBreach(t *testing.T) {
	rec := &breachRecorder{}
	w, now := newTestWatchdog(rec)

	w.Arm(0, types.SideA, now.Add(2*time.Second))
	w.Arm(1, types.SideA, now.Add(1*time.Second))

	*now = now.Add(5 * time.Second)
	w.check()
	if len(rec.pairs) != 1 {
		t.Fatalf("breach fired %d times, want one global abort", len(rec.pairs))
	}
	if rec.pairs[0] != 1 {
		t.Errorf("breached pair = %d, want 1 (earliest deadline)", rec.pairs[0])
	}
}

func TestWatchdogRunLoop(t *testing.T) {
	var fired atomic.Int32
	w := New(2*time.Millisecond, func(pair int, side types.Side) {
		fired.Add(1)
	}, logger.NewLogger(nil, logger.LogLevelError))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Arm(0, types.SideA, time.Now().Add(20*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Errorf("breach fired %d times, want 1", got)
	}
}
