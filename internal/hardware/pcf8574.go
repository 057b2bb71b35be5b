package hardware

import (
	"fmt"

	"github.com/piotrkotrych/tarczownix/internal/logger"

	"golang.org/x/sys/unix"
)

const i2cSlave = 0x0703 // I2C_SLAVE from linux/i2c-dev.h

// PCF8574Expander drives the reference rig: two PCF8574 8-bit quasi-
// bidirectional expanders on one I2C bus, inputs at 0x22 and relays at
// 0x24. The chip has no registers; writing a byte sets the port,
// reading a byte samples it. Relay outputs are active-low. Input pins
// must be written high once so the weak pull-ups let external switches
// drive them low.
type PCF8574Expander struct {
	busPath   string
	inputAddr int
	relayAddr int
	fd        int
	// Last byte written to the relay port. All ones means every relay
	// released.
	relayPort byte
	logger    *logger.Logger
}

func NewPCF8574Expander(bus, inputAddr, relayAddr int, log *logger.Logger) *PCF8574Expander {
	return &PCF8574Expander{
		busPath:   fmt.Sprintf("/dev/i2c-%d", bus),
		inputAddr: inputAddr,
		relayAddr: relayAddr,
		fd:        -1,
		relayPort: 0xFF,
		logger:    log.WithTag("pcf8574"),
	}
}

func (d *PCF8574Expander) Init() error {
	fd, err := unix.Open(d.busPath, unix.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", d.busPath, err)
	}
	d.fd = fd

	// Releasing every relay doubles as the probe for the relay device.
	d.relayPort = 0xFF
	if err := d.writePort(d.relayAddr, d.relayPort); err != nil {
		unix.Close(fd)
		d.fd = -1
		return fmt.Errorf("probing relay expander 0x%02x: %w", d.relayAddr, err)
	}

	// Park the input port high so the pins float under pull-up and can
	// be pulled low externally.
	if err := d.writePort(d.inputAddr, 0xFF); err != nil {
		unix.Close(fd)
		d.fd = -1
		return fmt.Errorf("probing input expander 0x%02x: %w", d.inputAddr, err)
	}
	if _, err := d.readPort(d.inputAddr); err != nil {
		unix.Close(fd)
		d.fd = -1
		return fmt.Errorf("reading input expander 0x%02x: %w", d.inputAddr, err)
	}

	d.logger.Infof("PCF8574 pair ready on %s (inputs 0x%02x, relays 0x%02x)",
		d.busPath, d.inputAddr, d.relayAddr)
	return nil
}

func (d *PCF8574Expander) SetActuator(pin int, on bool) error {
	if pin < 0 || pin > 7 {
		return fmt.Errorf("relay pin %d out of range", pin)
	}

	next := d.relayPort
	if on {
		next &^= 1 << pin
	} else {
		next |= 1 << pin
	}
	if err := d.writePort(d.relayAddr, next); err != nil {
		return err
	}
	d.relayPort = next
	return nil
}

func (d *PCF8574Expander) SensorTriggered(pin int) (bool, error) {
	if pin < 0 || pin > 7 {
		return false, fmt.Errorf("sensor pin %d out of range", pin)
	}

	port, err := d.readPort(d.inputAddr)
	if err != nil {
		return false, err
	}
	return port&(1<<pin) == 0, nil
}

func (d *PCF8574Expander) Close() error {
	if d.fd < 0 {
		return nil
	}
	// Best effort release of every relay before dropping the bus.
	if err := d.writePort(d.relayAddr, 0xFF); err != nil {
		d.logger.Warnf("Releasing relays on close: %v", err)
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

func (d *PCF8574Expander) writePort(addr int, b byte) error {
	if err := unix.IoctlSetInt(d.fd, i2cSlave, addr); err != nil {
		return fmt.Errorf("selecting slave 0x%02x: %w", addr, err)
	}
	n, err := unix.Write(d.fd, []byte{b})
	if err != nil {
		return fmt.Errorf("writing port 0x%02x: %w", addr, err)
	}
	if n != 1 {
		return fmt.Errorf("writing port 0x%02x: short write", addr)
	}
	return nil
}

func (d *PCF8574Expander) readPort(addr int) (byte, error) {
	if err := unix.IoctlSetInt(d.fd, i2cSlave, addr); err != nil {
		return 0, fmt.Errorf("selecting slave 0x%02x: %w", addr, err)
	}
	buf := make([]byte, 1)
	n, err := unix.Read(d.fd, buf)
	if err != nil {
		return 0, fmt.Errorf("reading port 0x%02x: %w", addr, err)
	}
	if n != 1 {
		return 0, fmt.Errorf("reading port 0x%02x: short read", addr)
	}
	return buf[0], nil
}
