package telemetry

import "sync"

// FakePublisher records published events for test assertions. Safe for
// concurrent use; hits arrive from pair goroutines.
type FakePublisher struct {
	mu sync.Mutex

	hits         []HitEvent
	systemEvents []SystemEvent
	closed       bool

	// PublishError, if set, is returned by both publish methods.
	PublishError error
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishHit records the hit event.
func (f *FakePublisher) PublishHit(event HitEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.hits = append(f.hits, event)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.systemEvents = append(f.systemEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Hits returns a copy of the recorded hit events.
func (f *FakePublisher) Hits() []HitEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]HitEvent, len(f.hits))
	copy(out, f.hits)
	return out
}

// SystemEvents returns a copy of the recorded lifecycle events.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SystemEvent, len(f.systemEvents))
	copy(out, f.systemEvents)
	return out
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
