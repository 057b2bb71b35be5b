package fsm

import "github.com/librescoot/librefsm"

// Actions defines the interface for controller state machine actions.
// System implements this interface to handle state entry and the
// clear-fault transition.
type Actions interface {
	// State entry actions
	EnterStandby(c *librefsm.Context) error
	EnterRunning(c *librefsm.Context) error
	EnterFaulted(c *librefsm.Context) error

	// Transition actions
	OnClearFault(c *librefsm.Context) error
}
