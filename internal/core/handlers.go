package core

import (
	"errors"
	"fmt"

	"github.com/piotrkotrych/tarczownix/internal/fsm"
)

// Validation failures for control-surface commands. Rejected commands
// never mutate state.
var (
	ErrSequenceRunning   = errors.New("sequence is running")
	ErrUnknownPair       = errors.New("unknown pair index")
	ErrUnknownChannel    = errors.New("unknown relay channel")
	ErrInvalidDelayRange = errors.New("invalid delay range")
)

// handleStart enables sequencing. Issued while already running it
// re-arms every pair from side A, matching the rig's start command.
func (s *System) handleStart() error {
	if s.machine.CurrentState() == fsm.StateRunning {
		s.logger.Infof("Start while running, re-arming all pairs")
		for _, p := range s.pairs {
			p.Reset()
		}
		return nil
	}
	return s.sendEvent(fsm.EvStart)
}

// handleStop disables sequencing. A stop while already stopped, or
// while faulted, is a no-op; the fault record stays untouched.
func (s *System) handleStop() error {
	if s.machine.CurrentState() != fsm.StateRunning {
		return nil
	}
	return s.sendEvent(fsm.EvStop)
}

func (s *System) handleClearFault() error {
	if s.machine.CurrentState() != fsm.StateFaulted {
		// Nothing latched; tolerate a stray clear.
		s.ctl.ClearFault()
		return nil
	}
	return s.sendEvent(fsm.EvClearFault)
}

// handleToggle is the manual relay override: read the tracked level,
// write the inverse. Refused while the sequence runs.
func (s *System) handleToggle(channel int) error {
	if s.ctl.Enabled() {
		return fmt.Errorf("refusing to toggle relay %d: %w", channel, ErrSequenceRunning)
	}
	if !s.knownActuator(channel) {
		return fmt.Errorf("toggle %d: %w", channel, ErrUnknownChannel)
	}

	on := s.gateway.ActuatorOn(channel)
	if err := s.gateway.SetActuator(channel, !on); err != nil {
		return fmt.Errorf("toggling relay %d: %w", channel, err)
	}
	s.logger.Infof("Relay %d toggled %s", channel, onOff(!on))
	return nil
}

// handleSetDelay validates and applies a new dwell range for one pair.
// The change takes effect at the pair's next dwell sample and is
// persisted; a persistence failure does not undo the accepted change.
func (s *System) handleSetDelay(pairIndex, minMs, maxMs int) error {
	if pairIndex < 0 || pairIndex >= len(s.pairs) {
		return fmt.Errorf("pair %d: %w", pairIndex, ErrUnknownPair)
	}
	if err := s.validateDelayRange(minMs, maxMs); err != nil {
		return err
	}

	s.pairs[pairIndex].SetDelayRange(minMs, maxMs)
	s.logger.Infof("Pair %d delay range set to %d..%dms", pairIndex, minMs, maxMs)

	if err := s.redis.SaveDelayRange(pairIndex, minMs, maxMs); err != nil {
		s.logger.Warnf("Accepted delay range for pair %d not persisted: %v", pairIndex, err)
	}
	return nil
}

func (s *System) validateDelayRange(minMs, maxMs int) error {
	if minMs <= 0 {
		return fmt.Errorf("%w: min %dms must be positive", ErrInvalidDelayRange, minMs)
	}
	if minMs >= maxMs {
		return fmt.Errorf("%w: need min %d < max %d", ErrInvalidDelayRange, minMs, maxMs)
	}
	if maxMs > s.cfg.Sequencer.DelayCeilingMs {
		return fmt.Errorf("%w: max %dms exceeds ceiling %dms",
			ErrInvalidDelayRange, maxMs, s.cfg.Sequencer.DelayCeilingMs)
	}
	return nil
}

func (s *System) knownActuator(channel int) bool {
	for _, wiring := range s.cfg.Sequencer.Pairs {
		if wiring.ActuatorA == channel || wiring.ActuatorB == channel {
			return true
		}
	}
	return false
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
