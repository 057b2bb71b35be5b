package fsm

import (
	"github.com/librescoot/librefsm"
)

// NewDefinition creates the controller FSM definition. The actions
// parameter provides the implementation for state entry and the
// clear-fault transition.
func NewDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateInit).
		State(StateStandby,
			librefsm.WithOnEnter(actions.EnterStandby),
		).
		State(StateRunning,
			librefsm.WithOnEnter(actions.EnterRunning),
		).
		State(StateFaulted,
			librefsm.WithOnEnter(actions.EnterFaulted),
		).

		// Startup
		Transition(StateInit, EvReady, StateStandby).

		// Operator start and stop
		Transition(StateStandby, EvStart, StateRunning).
		Transition(StateRunning, EvStop, StateStandby).

		// Timeout abort. A breach can land just after a stop, so the
		// transition exists from stand-by too.
		Transition(StateRunning, EvTimeoutFault, StateFaulted).
		Transition(StateStandby, EvTimeoutFault, StateFaulted).

		// A latched fault does not block restarting; the record stays
		// until it is cleared explicitly.
		Transition(StateFaulted, EvStart, StateRunning).
		Transition(StateFaulted, EvClearFault, StateStandby,
			librefsm.WithAction(actions.OnClearFault),
		).

		// Initial state
		Initial(StateInit)
}
