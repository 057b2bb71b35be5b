package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/piotrkotrych/tarczownix/internal/logger"
	"github.com/piotrkotrych/tarczownix/internal/types"
)

type entry struct {
	side     types.Side
	deadline time.Time
}

// Watchdog holds one deadline per pair, armed when an actuator is
// energized and disarmed when its gating sensor fires. A deadline that
// elapses first triggers exactly one breach callback; the caller is
// expected to abort the whole system, so every armed entry is dropped
// at that point.
type Watchdog struct {
	mu       sync.Mutex
	armed    map[int]entry
	interval time.Duration
	onBreach func(pairIndex int, side types.Side)
	logger   *logger.Logger
	now      func() time.Time
}

func New(interval time.Duration, onBreach func(pairIndex int, side types.Side), log *logger.Logger) *Watchdog {
	return &Watchdog{
		armed:    make(map[int]entry),
		interval: interval,
		onBreach: onBreach,
		logger:   log.WithTag("watchdog"),
		now:      time.Now,
	}
}

// Arm registers the deadline for a pair's current activation,
// replacing any earlier one.
func (w *Watchdog) Arm(pairIndex int, side types.Side, deadline time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed[pairIndex] = entry{side: side, deadline: deadline}
}

// Disarm withdraws a pair's deadline after its sensor fired.
func (w *Watchdog) Disarm(pairIndex int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.armed, pairIndex)
}

// DisarmAll drops every deadline, used on shutdown.
func (w *Watchdog) DisarmAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = make(map[int]entry)
}

// Run scans the deadlines until the context is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watchdog) check() {
	w.mu.Lock()
	now := w.now()
	breached := -1
	var side types.Side
	var earliest time.Time
	for pair, e := range w.armed {
		if now.Before(e.deadline) {
			continue
		}
		if breached < 0 || e.deadline.Before(earliest) {
			breached = pair
			side = e.side
			earliest = e.deadline
		}
	}
	if breached >= 0 {
		// The abort resets every pair, so no armed deadline survives.
		w.armed = make(map[int]entry)
	}
	w.mu.Unlock()

	if breached >= 0 {
		w.logger.Errorf("Pair %d side %s missed its sensor deadline", breached, side)
		w.onBreach(breached, side)
	}
}
