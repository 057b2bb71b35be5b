package sequencer

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/piotrkotrych/tarczownix/internal/logger"
	"github.com/piotrkotrych/tarczownix/internal/types"
)

// Bus is the slice of the hardware gateway a sequencer drives. All
// calls serialize on the gateway's bus lock.
type Bus interface {
	SetActuator(pin int, on bool) error
	SensorTriggered(pin int) (bool, error)
	ActuatorOn(pin int) bool
}

// ActivationWatch supervises the time between energizing an actuator
// and its gating sensor firing.
type ActivationWatch interface {
	Arm(pairIndex int, side types.Side, deadline time.Time)
	Disarm(pairIndex int)
}

// Events receives notable sequencing events. Called from the pair
// goroutine between polls, so implementations should return promptly.
type Events interface {
	PairHit(pairIndex int, side types.Side, dwell time.Duration)
}

// PairConfig fixes one pair's wiring and timing at construction. The
// delay range is only the initial value; it can be changed live.
type PairConfig struct {
	Index            int
	ActuatorA        int
	ActuatorB        int
	SensorA          int
	SensorB          int
	DelayMinMs       int
	DelayMaxMs       int
	PollInterval     time.Duration
	DebounceInterval time.Duration
	WatchdogDeadline time.Duration
}

// Sequencer runs one pair's alternation: energize one side, wait for
// its sensor, de-energize, dwell a randomized delay, energize the
// other side. All per-pair state is owned by the Run goroutine; the
// delay range and the published status snapshot are the only fields
// shared with other goroutines.
type Sequencer struct {
	cfg    PairConfig
	bus    Bus
	watch  ActivationWatch
	events Events
	ctl    *Control
	logger *logger.Logger

	now func() time.Time
	rng *rand.Rand

	mu       sync.Mutex
	delayMin int
	delayMax int
	status   types.PairStatus

	resetFlag atomic.Bool

	// Owned by the Run goroutine.
	parked     bool
	activeSide types.Side
	phase      types.PairPhase
	dwell      time.Duration
	phaseStart time.Time
	hits       uint64
	debA       *Debouncer
	debB       *Debouncer
}

func NewSequencer(cfg PairConfig, bus Bus, watch ActivationWatch, events Events, ctl *Control, log *logger.Logger) *Sequencer {
	s := &Sequencer{
		cfg:        cfg,
		bus:        bus,
		watch:      watch,
		events:     events,
		ctl:        ctl,
		logger:     log.WithTag("pair"),
		now:        time.Now,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano() + int64(cfg.Index))),
		delayMin:   cfg.DelayMinMs,
		delayMax:   cfg.DelayMaxMs,
		parked:     true,
		activeSide: types.SideA,
		phase:      types.PhaseIdle,
		debA:       NewDebouncer(cfg.DebounceInterval),
		debB:       NewDebouncer(cfg.DebounceInterval),
	}
	s.status = types.PairStatus{
		PairIndex:  cfg.Index,
		ActiveSide: types.SideA,
		Phase:      types.PhaseIdle,
		DelayMinMs: cfg.DelayMinMs,
		DelayMaxMs: cfg.DelayMaxMs,
	}
	return s
}

// Run polls until the context is cancelled. One goroutine per pair.
func (s *Sequencer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.releaseBoth()
			return
		case <-ticker.C:
			s.step()
		}
	}
}

// SetDelayRange replaces the dwell range. The caller validates; the
// new range takes effect at the next dwell sample.
func (s *Sequencer) SetDelayRange(minMs, maxMs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delayMin = minMs
	s.delayMax = maxMs
	s.status.DelayMinMs = minMs
	s.status.DelayMaxMs = maxMs
}

// DelayRange returns the current dwell range in milliseconds.
func (s *Sequencer) DelayRange() (minMs, maxMs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delayMin, s.delayMax
}

// Status returns the snapshot published by the last poll.
func (s *Sequencer) Status() types.PairStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Reset makes the pair drop whatever it is doing and re-arm from side
// A on its next polls, for a start issued while already running.
func (s *Sequencer) Reset() {
	s.resetFlag.Store(true)
}

func (s *Sequencer) step() {
	now := s.now()

	if !s.ctl.Enabled() {
		if !s.parked {
			s.park()
		}
		s.publishStatus()
		return
	}

	if s.resetFlag.Load() {
		if !s.parked {
			s.park()
			if !s.parked {
				s.publishStatus()
				return
			}
		}
		s.resetFlag.Store(false)
	}

	if s.parked {
		s.begin(now)
		s.publishStatus()
		return
	}

	trigA := s.sampleSensor(s.debA, s.cfg.SensorA, now)
	trigB := s.sampleSensor(s.debB, s.cfg.SensorB, now)

	switch s.phase {
	case types.PhaseWaiting:
		triggered := trigA
		if s.activeSide == types.SideB {
			triggered = trigB
		}
		if triggered {
			s.onHit(now)
		}
	case types.PhaseDwelling:
		if now.Sub(s.phaseStart) >= s.dwell {
			s.advance(now)
		}
	}

	s.publishStatus()
}

// begin arms the pair from the parked state: side A energized, side B
// released. A failed bus write leaves the pair parked so the next poll
// retries the whole entry.
func (s *Sequencer) begin(now time.Time) {
	if err := s.bus.SetActuator(s.cfg.ActuatorB, false); err != nil {
		return
	}
	if err := s.bus.SetActuator(s.cfg.ActuatorA, true); err != nil {
		return
	}

	s.parked = false
	s.activeSide = types.SideA
	s.phase = types.PhaseWaiting
	s.phaseStart = now
	s.debA.Reset()
	s.debB.Reset()
	s.watch.Arm(s.cfg.Index, types.SideA, now.Add(s.cfg.WatchdogDeadline))
	s.logger.Infof("Pair %d armed, side A up", s.cfg.Index)
}

// park forces both actuators off after a disable. Kept unparked on a
// failed write so the next poll retries; the watchdog is disarmed
// first so a slow release cannot breach.
func (s *Sequencer) park() {
	s.watch.Disarm(s.cfg.Index)

	okA := s.bus.SetActuator(s.cfg.ActuatorA, false) == nil
	okB := s.bus.SetActuator(s.cfg.ActuatorB, false) == nil
	if !okA || !okB {
		return
	}

	s.parked = true
	s.activeSide = types.SideA
	s.phase = types.PhaseIdle
	s.logger.Infof("Pair %d parked", s.cfg.Index)
}

func (s *Sequencer) sampleSensor(deb *Debouncer, pin int, now time.Time) bool {
	raw, err := s.bus.SensorTriggered(pin)
	if err != nil {
		// Already logged and counted by the gateway; hold the last
		// stable value and let the next poll retry.
		return deb.Stable()
	}
	return deb.Sample(raw, now)
}

// onHit handles the gating sensor firing: active actuator off, dwell
// sampled, watchdog stood down. A failed off-write leaves the phase
// unchanged; the sensor is still stable-triggered, so the next poll
// lands here again.
func (s *Sequencer) onHit(now time.Time) {
	pin := s.cfg.ActuatorA
	if s.activeSide == types.SideB {
		pin = s.cfg.ActuatorB
	}
	if err := s.bus.SetActuator(pin, false); err != nil {
		return
	}

	s.watch.Disarm(s.cfg.Index)
	s.hits++
	s.dwell = s.sampleDwell()
	s.phase = types.PhaseDwelling
	s.phaseStart = now
	s.logger.Infof("Pair %d side %s hit, dwelling %s", s.cfg.Index, s.activeSide, s.dwell)

	if s.events != nil {
		s.events.PairHit(s.cfg.Index, s.activeSide, s.dwell)
	}
}

// advance ends the dwell: opposite actuator on, side flipped, watchdog
// armed for the new activation. A failed write retries next poll since
// the elapsed dwell only grows.
func (s *Sequencer) advance(now time.Time) {
	next := s.activeSide.Opposite()
	pin := s.cfg.ActuatorA
	if next == types.SideB {
		pin = s.cfg.ActuatorB
	}
	if err := s.bus.SetActuator(pin, true); err != nil {
		return
	}

	s.activeSide = next
	s.phase = types.PhaseWaiting
	s.phaseStart = now
	s.watch.Arm(s.cfg.Index, next, now.Add(s.cfg.WatchdogDeadline))
	s.logger.Debugf("Pair %d dwell over, side %s up", s.cfg.Index, next)
}

// sampleDwell draws uniformly from the current range, inclusive of
// both ends.
func (s *Sequencer) sampleDwell() time.Duration {
	s.mu.Lock()
	lo, hi := s.delayMin, s.delayMax
	s.mu.Unlock()

	ms := lo
	if hi > lo {
		ms = lo + s.rng.Intn(hi-lo+1)
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *Sequencer) releaseBoth() {
	s.watch.Disarm(s.cfg.Index)
	s.bus.SetActuator(s.cfg.ActuatorA, false)
	s.bus.SetActuator(s.cfg.ActuatorB, false)
}

func (s *Sequencer) publishStatus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.ActiveSide = s.activeSide
	s.status.Phase = s.phase
	s.status.ActuatorAOn = s.bus.ActuatorOn(s.cfg.ActuatorA)
	s.status.ActuatorBOn = s.bus.ActuatorOn(s.cfg.ActuatorB)
	s.status.SensorATriggered = s.debA.Stable()
	s.status.SensorBTriggered = s.debB.Stable()
	s.status.Hits = s.hits
}
