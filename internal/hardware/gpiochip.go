package hardware

import (
	"fmt"

	"github.com/piotrkotrych/tarczownix/internal/logger"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOChipExpander covers direct-wired rigs without expander chips:
// each channel maps to a line of one gpiochip. Line offsets come from
// the config tables, indexed by channel. Polarity matches the expander
// rigs, relays driven low to energize and sensors pulled up.
type GPIOChipExpander struct {
	chipName      string
	actuatorTable []int
	sensorTable   []int
	chip          *gpiocdev.Chip
	actuators     map[int]*gpiocdev.Line
	sensors       map[int]*gpiocdev.Line
	logger        *logger.Logger
}

func NewGPIOChipExpander(chipName string, actuatorLines, sensorLines []int, log *logger.Logger) *GPIOChipExpander {
	return &GPIOChipExpander{
		chipName:      chipName,
		actuatorTable: actuatorLines,
		sensorTable:   sensorLines,
		actuators:     make(map[int]*gpiocdev.Line),
		sensors:       make(map[int]*gpiocdev.Line),
		logger:        log.WithTag("gpiochip"),
	}
}

func (d *GPIOChipExpander) Init() error {
	if len(d.actuatorTable) == 0 || len(d.sensorTable) == 0 {
		return fmt.Errorf("gpiochip backend needs actuator and sensor line tables")
	}

	chip, err := gpiocdev.NewChip(d.chipName)
	if err != nil {
		return fmt.Errorf("opening %s: %w", d.chipName, err)
	}
	d.chip = chip

	for pin, offset := range d.actuatorTable {
		line, err := chip.RequestLine(offset,
			gpiocdev.AsOutput(1),
			gpiocdev.WithConsumer("tarczownix"))
		if err != nil {
			d.Close()
			return fmt.Errorf("requesting actuator line %d: %w", offset, err)
		}
		d.actuators[pin] = line
	}

	for pin, offset := range d.sensorTable {
		line, err := chip.RequestLine(offset,
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithConsumer("tarczownix"))
		if err != nil {
			d.Close()
			return fmt.Errorf("requesting sensor line %d: %w", offset, err)
		}
		d.sensors[pin] = line
	}

	d.logger.Infof("%s ready, %d actuator and %d sensor lines",
		d.chipName, len(d.actuators), len(d.sensors))
	return nil
}

func (d *GPIOChipExpander) SetActuator(pin int, on bool) error {
	line, ok := d.actuators[pin]
	if !ok {
		return fmt.Errorf("no actuator line for pin %d", pin)
	}
	val := 1
	if on {
		val = 0
	}
	return line.SetValue(val)
}

func (d *GPIOChipExpander) SensorTriggered(pin int) (bool, error) {
	line, ok := d.sensors[pin]
	if !ok {
		return false, fmt.Errorf("no sensor line for pin %d", pin)
	}
	val, err := line.Value()
	if err != nil {
		return false, err
	}
	return val == 0, nil
}

func (d *GPIOChipExpander) Close() error {
	for pin, line := range d.actuators {
		line.SetValue(1)
		line.Close()
		delete(d.actuators, pin)
	}
	for pin, line := range d.sensors {
		line.Close()
		delete(d.sensors, pin)
	}
	if d.chip != nil {
		err := d.chip.Close()
		d.chip = nil
		return err
	}
	return nil
}
