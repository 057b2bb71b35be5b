package hardware

import (
	"fmt"
	"sync"
)

// FakeExpander is an in-memory stand-in for the real devices, used by
// the fake backend for dry runs and by tests. Sensor levels are
// scripted through SetSensor; failure injection covers the transient
// bus error paths.
type FakeExpander struct {
	mu         sync.Mutex
	actuators  map[int]bool
	sensors    map[int]bool
	initErr    error
	failWrites int
	failReads  int
	writes     int
	reads      int
}

func NewFakeExpander() *FakeExpander {
	return &FakeExpander{
		actuators: make(map[int]bool),
		sensors:   make(map[int]bool),
	}
}

func (f *FakeExpander) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initErr
}

func (f *FakeExpander) SetActuator(pin int, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.failWrites > 0 {
		f.failWrites--
		return fmt.Errorf("injected bus write failure")
	}
	f.actuators[pin] = on
	return nil
}

func (f *FakeExpander) SensorTriggered(pin int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failReads > 0 {
		f.failReads--
		return false, fmt.Errorf("injected bus read failure")
	}
	return f.sensors[pin], nil
}

func (f *FakeExpander) Close() error {
	return nil
}

// SetSensor scripts the logical triggered level of one input channel.
func (f *FakeExpander) SetSensor(pin int, triggered bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sensors[pin] = triggered
}

// ActuatorOn reports the last written logical state of one relay.
func (f *FakeExpander) ActuatorOn(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actuators[pin]
}

// FailWrites makes the next n relay writes return an error.
func (f *FakeExpander) FailWrites(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = n
}

// FailReads makes the next n sensor reads return an error.
func (f *FakeExpander) FailReads(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads = n
}

// SetInitError makes Init fail, for startup failure tests.
func (f *FakeExpander) SetInitError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initErr = err
}

// Transactions returns the write and read counts since construction.
func (f *FakeExpander) Transactions() (writes, reads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes, f.reads
}
