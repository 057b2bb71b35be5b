package hardware

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/piotrkotrych/tarczownix/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.NewLogger(nil, logger.LogLevelError)
}

func TestGatewayActuatorState(t *testing.T) {
	fake := NewFakeExpander()
	gw := NewGateway(fake, testLogger())
	if err := gw.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if gw.ActuatorOn(3) {
		t.Error("actuator 3 reported on before any write")
	}

	if err := gw.SetActuator(3, true); err != nil {
		t.Fatalf("SetActuator failed: %v", err)
	}
	if !gw.ActuatorOn(3) {
		t.Error("actuator 3 not reported on after write")
	}
	if !fake.ActuatorOn(3) {
		t.Error("write did not reach the expander")
	}

	if err := gw.SetActuator(3, false); err != nil {
		t.Fatalf("SetActuator failed: %v", err)
	}
	if gw.ActuatorOn(3) {
		t.Error("actuator 3 still reported on after release")
	}
}

func TestGatewaySensorRead(t *testing.T) {
	fake := NewFakeExpander()
	gw := NewGateway(fake, testLogger())

	triggered, err := gw.SensorTriggered(0)
	if err != nil {
		t.Fatalf("SensorTriggered failed: %v", err)
	}
	if triggered {
		t.Error("sensor 0 triggered with no stimulus")
	}

	fake.SetSensor(0, true)
	triggered, err = gw.SensorTriggered(0)
	if err != nil {
		t.Fatalf("SensorTriggered failed: %v", err)
	}
	if !triggered {
		t.Error("sensor 0 not triggered after SetSensor")
	}
}

func TestGatewayCountsBusErrors(t *testing.T) {
	fake := NewFakeExpander()
	gw := NewGateway(fake, testLogger())

	if err := gw.SetActuator(1, true); err != nil {
		t.Fatalf("SetActuator failed: %v", err)
	}

	fake.FailWrites(1)
	fake.FailReads(1)
	if err := gw.SetActuator(1, false); err == nil {
		t.Error("SetActuator succeeded despite injected failure")
	}
	if _, err := gw.SensorTriggered(1); err == nil {
		t.Error("SensorTriggered succeeded despite injected failure")
	}

	if got := gw.BusErrors(); got != 2 {
		t.Errorf("BusErrors = %d, want 2", got)
	}

	// The failed write must not corrupt the tracked state.
	if !gw.ActuatorOn(1) {
		t.Error("tracked state changed on a failed write")
	}

	// The bus recovers on the next transaction.
	if err := gw.SetActuator(1, false); err != nil {
		t.Errorf("SetActuator after recovery failed: %v", err)
	}
	if gw.ActuatorOn(1) {
		t.Error("actuator 1 still on after recovered write")
	}
}

func TestGatewayInitFailure(t *testing.T) {
	fake := NewFakeExpander()
	fake.SetInitError(errors.New("no ack from 0x24"))
	gw := NewGateway(fake, testLogger())

	if err := gw.Init(); err == nil {
		t.Fatal("Init succeeded with a failing expander")
	}
}

// overlapExpander trips a flag if two operations ever run concurrently.
type overlapExpander struct {
	active   atomic.Bool
	overlaps atomic.Int32
}

func (o *overlapExpander) enter() {
	if !o.active.CompareAndSwap(false, true) {
		o.overlaps.Add(1)
		return
	}
	time.Sleep(time.Millisecond)
	o.active.Store(false)
}

func (o *overlapExpander) Init() error { return nil }

func (o *overlapExpander) SetActuator(pin int, on bool) error {
	o.enter()
	return nil
}

func (o *overlapExpander) SensorTriggered(pin int) (bool, error) {
	o.enter()
	return false, nil
}

func (o *overlapExpander) Close() error { return nil }

func TestGatewaySerializesBusAccess(t *testing.T) {
	exp := &overlapExpander{}
	gw := NewGateway(exp, testLogger())

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if g%2 == 0 {
					gw.SetActuator(g, i%2 == 0)
				} else {
					gw.SensorTriggered(g)
				}
			}
		}(g)
	}
	wg.Wait()

	if n := exp.overlaps.Load(); n != 0 {
		t.Errorf("%d operations overlapped on the bus", n)
	}
}
