package fsm

import "github.com/librescoot/librefsm"

// Controller states
const (
	StateInit    librefsm.StateID = "init"
	StateStandby librefsm.StateID = "stand-by"
	StateRunning librefsm.StateID = "running"
	StateFaulted librefsm.StateID = "faulted"
)

// Controller events
const (
	// External commands (from Redis)
	EvStart      librefsm.EventID = "start"
	EvStop       librefsm.EventID = "stop"
	EvClearFault librefsm.EventID = "clear-fault"

	// Internal events
	EvReady        librefsm.EventID = "ready"
	EvTimeoutFault librefsm.EventID = "timeout-fault"
)
