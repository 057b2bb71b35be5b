package hardware

import (
	"fmt"
	"sync"

	"github.com/piotrkotrych/tarczownix/internal/logger"
)

// Expander drives the two port-expander devices of a rig, one carrying
// relay outputs and one carrying sensor inputs. Implementations apply
// the electrical polarity (relays and inputs are both active-low) so
// callers deal in logical values only. Implementations are not safe for
// concurrent use; the Gateway serializes all calls.
type Expander interface {
	// Init probes both devices and drives every relay to the released
	// state. An error here means the bus cannot be trusted.
	Init() error
	// SetActuator energizes or releases one relay channel.
	SetActuator(pin int, on bool) error
	// SensorTriggered reads one input channel.
	SensorTriggered(pin int) (bool, error)
	Close() error
}

// Gateway is the sole owner of the expander bus. Every read and write
// goes through one exclusive lock, so operations from different
// goroutines never interleave on the wire. Failed transactions are
// logged and counted but returned to the caller, which is expected to
// skip the operation and retry on its next poll.
type Gateway struct {
	mu        sync.Mutex
	exp       Expander
	logger    *logger.Logger
	busErrors uint64
	onState   map[int]bool
}

func NewGateway(exp Expander, log *logger.Logger) *Gateway {
	return &Gateway{
		exp:     exp,
		logger:  log.WithTag("bus"),
		onState: make(map[int]bool),
	}
}

// Init probes the expander devices. Failure here is fatal to the
// caller; the system must not schedule against an unverified bus.
func (g *Gateway) Init() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.exp.Init(); err != nil {
		return fmt.Errorf("expander init: %w", err)
	}
	g.logger.Infof("Expander bus initialized")
	return nil
}

func (g *Gateway) SetActuator(pin int, on bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.exp.SetActuator(pin, on); err != nil {
		g.busErrors++
		g.logger.Warnf("Actuator %d write skipped: %v", pin, err)
		return fmt.Errorf("set actuator %d: %w", pin, err)
	}
	g.onState[pin] = on
	return nil
}

// ActuatorOn reports the last successfully written state of a relay
// channel without touching the bus.
func (g *Gateway) ActuatorOn(pin int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.onState[pin]
}

func (g *Gateway) SensorTriggered(pin int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	triggered, err := g.exp.SensorTriggered(pin)
	if err != nil {
		g.busErrors++
		g.logger.Warnf("Sensor %d read skipped: %v", pin, err)
		return false, fmt.Errorf("read sensor %d: %w", pin, err)
	}
	return triggered, nil
}

// BusErrors returns the count of skipped transactions since startup.
func (g *Gateway) BusErrors() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busErrors
}

func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exp.Close()
}
