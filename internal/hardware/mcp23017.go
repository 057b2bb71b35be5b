package hardware

import (
	"fmt"

	"github.com/piotrkotrych/tarczownix/internal/logger"

	"github.com/racerxdl/go-mcp23017"
)

const mcpPinCount = 16

// MCP23017Expander serves rigs wired with MCP23017 16-bit expanders
// instead of the PCF8574 pair. Same bus layout: one device for sensor
// inputs, one for relay outputs, both active-low.
type MCP23017Expander struct {
	busNo    uint8
	inputDev uint8
	relayDev uint8
	inputs   *mcp23017.Device
	relays   *mcp23017.Device
	logger   *logger.Logger
}

// NewMCP23017Expander accepts the same address scheme as the config
// file. Addresses at or above 0x20 are converted to the device number
// the driver expects.
func NewMCP23017Expander(bus, inputAddr, relayAddr int, log *logger.Logger) *MCP23017Expander {
	return &MCP23017Expander{
		busNo:    uint8(bus),
		inputDev: mcpDeviceNumber(inputAddr),
		relayDev: mcpDeviceNumber(relayAddr),
		logger:   log.WithTag("mcp23017"),
	}
}

func mcpDeviceNumber(addr int) uint8 {
	if addr >= 0x20 {
		return uint8(addr - 0x20)
	}
	return uint8(addr)
}

func (d *MCP23017Expander) Init() error {
	relays, err := mcp23017.Open(d.busNo, d.relayDev)
	if err != nil {
		return fmt.Errorf("opening relay expander %d: %w", d.relayDev, err)
	}
	d.relays = relays

	inputs, err := mcp23017.Open(d.busNo, d.inputDev)
	if err != nil {
		relays.Close()
		d.relays = nil
		return fmt.Errorf("opening input expander %d: %w", d.inputDev, err)
	}
	d.inputs = inputs

	for pin := uint8(0); pin < mcpPinCount; pin++ {
		if err := d.relays.PinMode(pin, mcp23017.OUTPUT); err != nil {
			d.Close()
			return fmt.Errorf("configuring relay pin %d: %w", pin, err)
		}
		if err := d.relays.DigitalWrite(pin, mcp23017.PinLevel(true)); err != nil {
			d.Close()
			return fmt.Errorf("releasing relay pin %d: %w", pin, err)
		}
		if err := d.inputs.PinMode(pin, mcp23017.INPUT); err != nil {
			d.Close()
			return fmt.Errorf("configuring input pin %d: %w", pin, err)
		}
		if err := d.inputs.SetPullUp(pin, true); err != nil {
			d.Close()
			return fmt.Errorf("enabling pull-up on input pin %d: %w", pin, err)
		}
	}

	d.logger.Infof("MCP23017 pair ready on bus %d (inputs dev %d, relays dev %d)",
		d.busNo, d.inputDev, d.relayDev)
	return nil
}

func (d *MCP23017Expander) SetActuator(pin int, on bool) error {
	if pin < 0 || pin >= mcpPinCount {
		return fmt.Errorf("relay pin %d out of range", pin)
	}
	return d.relays.DigitalWrite(uint8(pin), mcp23017.PinLevel(!on))
}

func (d *MCP23017Expander) SensorTriggered(pin int) (bool, error) {
	if pin < 0 || pin >= mcpPinCount {
		return false, fmt.Errorf("sensor pin %d out of range", pin)
	}
	level, err := d.inputs.DigitalRead(uint8(pin))
	if err != nil {
		return false, err
	}
	return !bool(level), nil
}

func (d *MCP23017Expander) Close() error {
	var firstErr error
	if d.relays != nil {
		for pin := uint8(0); pin < mcpPinCount; pin++ {
			d.relays.DigitalWrite(pin, mcp23017.PinLevel(true))
		}
		if err := d.relays.Close(); err != nil {
			firstErr = err
		}
		d.relays = nil
	}
	if d.inputs != nil {
		if err := d.inputs.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.inputs = nil
	}
	return firstErr
}
