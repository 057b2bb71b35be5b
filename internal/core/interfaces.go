package core

import (
	"github.com/piotrkotrych/tarczownix/internal/messaging"
	"github.com/piotrkotrych/tarczownix/internal/types"
)

// MessagingClient is the slice of the Redis client the System needs:
// the command listener, the status mirror, the persisted delay store,
// and fault reporting.
type MessagingClient interface {
	SetCallbacks(callbacks messaging.Callbacks)
	Connect() error
	StartListening() error
	Close() error

	PublishControllerState(state types.SystemState) error
	PublishStatus(st types.Status) error

	LoadDelayRanges(pairCount int) (map[int][2]int, error)
	SaveDelayRange(pairIndex, minMs, maxMs int) error

	ReportFaultPresent(rec types.FaultRecord) error
	ReportFaultAbsent(pairIndex int) error
}
