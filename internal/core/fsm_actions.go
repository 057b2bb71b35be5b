package core

import (
	"context"
	"fmt"
	"time"

	"github.com/librescoot/librefsm"

	"github.com/piotrkotrych/tarczownix/internal/fsm"
	"github.com/piotrkotrych/tarczownix/internal/types"
)

// Ensure System implements fsm.Actions
var _ fsm.Actions = (*System)(nil)

func stateIDToSystemState(id librefsm.StateID) types.SystemState {
	switch id {
	case fsm.StateInit:
		return types.StateInit
	case fsm.StateStandby:
		return types.StateStandby
	case fsm.StateRunning:
		return types.StateRunning
	case fsm.StateFaulted:
		return types.StateFaulted
	default:
		return types.SystemState(string(id))
	}
}

// initFSM builds and starts the librefsm machine.
func (s *System) initFSM(ctx context.Context) error {
	def := fsm.NewDefinition(s)
	machine, err := def.Build()
	if err != nil {
		return err
	}
	s.machine = machine

	s.machine.OnStateChange(func(from, to librefsm.StateID) {
		oldState := stateIDToSystemState(from)
		newState := stateIDToSystemState(to)
		s.logger.Infof("State transition: %s -> %s", oldState, newState)

		if err := s.redis.PublishControllerState(newState); err != nil {
			s.logger.Errorf("Failed to publish state: %v", err)
		}
	})

	if err := s.machine.Start(ctx); err != nil {
		return err
	}

	// Startup is synchronous up to this point, so init work is done.
	if err := s.sendEvent(fsm.EvReady); err != nil {
		return fmt.Errorf("leaving init state: %w", err)
	}

	s.logger.Infof("State machine started")
	return nil
}

func (s *System) sendEvent(event librefsm.EventID) error {
	return s.machine.SendSync(librefsm.Event{ID: event})
}

// EnterStandby stops sequencing. The pairs park and release their
// relays within one poll interval.
func (s *System) EnterStandby(c *librefsm.Context) error {
	s.ctl.SetEnabled(false)

	s.mu.Lock()
	wasSequencing := s.sequencing
	s.sequencing = false
	s.mu.Unlock()

	if wasSequencing {
		s.publishSystemEvent("SEQUENCE_STOP", "")
	}
	return nil
}

// EnterRunning resets every pair to side A and enables sequencing.
func (s *System) EnterRunning(c *librefsm.Context) error {
	for _, p := range s.pairs {
		p.Reset()
	}
	s.ctl.SetEnabled(true)

	s.mu.Lock()
	s.sequencing = true
	s.mu.Unlock()

	s.publishSystemEvent("SEQUENCE_START", "")
	s.logger.Infof("Sequence started")
	return nil
}

// EnterFaulted performs the global abort after a watchdog breach:
// sequencing disabled, every relay force-released, every pair reset.
// The fault record was retained by the breach handler and stays until
// the operator clears it.
func (s *System) EnterFaulted(c *librefsm.Context) error {
	s.ctl.SetEnabled(false)

	s.mu.Lock()
	s.sequencing = false
	s.mu.Unlock()

	// The pairs park on their next poll anyway; forcing the writes here
	// bounds the abort latency by the bus, not the poll cadence.
	for _, wiring := range s.cfg.Sequencer.Pairs {
		s.gateway.SetActuator(wiring.ActuatorA, false)
		s.gateway.SetActuator(wiring.ActuatorB, false)
	}
	for _, p := range s.pairs {
		p.Reset()
	}

	rec := s.ctl.Fault()
	if rec == nil {
		s.logger.Errorf("Entered faulted state without a fault record")
		return nil
	}

	if err := s.redis.ReportFaultPresent(*rec); err != nil {
		s.logger.Warnf("Failed to report fault: %v", err)
	}
	if s.history != nil {
		ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
		if err := s.history.RecordFault(ctx, *rec); err != nil {
			s.logger.Warnf("Failed to record fault: %v", err)
		}
		cancel()
	}
	s.publishSystemEvent("FAULT", rec.Message)
	return nil
}

// OnClearFault drops the retained fault record on the way back to
// stand-by.
func (s *System) OnClearFault(c *librefsm.Context) error {
	rec := s.ctl.Fault()
	s.ctl.ClearFault()

	if rec != nil {
		if err := s.redis.ReportFaultAbsent(rec.PairIndex); err != nil {
			s.logger.Warnf("Failed to report fault cleared: %v", err)
		}
		s.publishSystemEvent("FAULT_CLEARED", fmt.Sprintf("pair %d", rec.PairIndex))
	}
	s.logger.Infof("Fault cleared")
	return nil
}

// handleBreach runs on the watchdog goroutine when a pair misses its
// sensor deadline. The record is retained first so EnterFaulted can
// report it.
func (s *System) handleBreach(pairIndex int, side types.Side) {
	rec := types.FaultRecord{
		PairIndex: pairIndex,
		Side:      side,
		Timestamp: time.Now(),
		Message: fmt.Sprintf("sensor %s did not trigger within %s",
			side, s.cfg.Sequencer.WatchdogDeadline()),
	}
	s.ctl.SetFault(rec)

	if err := s.sendEvent(fsm.EvTimeoutFault); err != nil {
		s.logger.Errorf("Failed to enter faulted state: %v", err)
	}
}
