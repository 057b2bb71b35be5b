package sequencer

import (
	"sync"

	"github.com/piotrkotrych/tarczownix/internal/types"
)

// Control is the shared runtime state handed to every sequencing
// goroutine at construction: the global enable flag and the retained
// fault record. Both propagate to the pair loops within one poll
// interval; nothing here is a package global.
type Control struct {
	mu      sync.RWMutex
	enabled bool
	fault   *types.FaultRecord
}

func NewControl() *Control {
	return &Control{}
}

func (c *Control) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

func (c *Control) SetEnabled(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = on
}

// Fault returns a copy of the retained fault record, or nil.
func (c *Control) Fault() *types.FaultRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fault == nil {
		return nil
	}
	f := *c.fault
	return &f
}

// SetFault retains rec as the current fault, overwriting any earlier
// one.
func (c *Control) SetFault(rec types.FaultRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fault = &rec
}

func (c *Control) ClearFault() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fault = nil
}
