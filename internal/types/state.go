package types

import "time"

type SystemState string

const (
	StateInit    SystemState = "init"
	StateStandby SystemState = "stand-by"
	StateRunning SystemState = "running"
	StateFaulted SystemState = "faulted"
)

type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Opposite returns the other side of a pair.
func (s Side) Opposite() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

type PairPhase string

const (
	PhaseIdle     PairPhase = "idle"
	PhaseWaiting  PairPhase = "waiting"
	PhaseDwelling PairPhase = "dwelling"
)

// FaultRecord describes the most recent timeout abort. Only one is
// retained; a newer fault overwrites it.
type FaultRecord struct {
	PairIndex int
	Side      Side
	Timestamp time.Time
	Message   string
}

// PairStatus is a point-in-time snapshot of one pair, safe to read
// outside the sequencer goroutine.
type PairStatus struct {
	PairIndex        int
	ActiveSide       Side
	Phase            PairPhase
	ActuatorAOn      bool
	ActuatorBOn      bool
	SensorATriggered bool
	SensorBTriggered bool
	Hits             uint64
	DelayMinMs       int
	DelayMaxMs       int
}

// Status aggregates the control-surface view of the whole system.
type Status struct {
	SequenceRunning bool
	State           SystemState
	Fault           *FaultRecord
	BusErrors       uint64
	Pairs           []PairStatus
}
