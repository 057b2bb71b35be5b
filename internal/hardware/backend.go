package hardware

import (
	"fmt"

	"github.com/piotrkotrych/tarczownix/internal/config"
	"github.com/piotrkotrych/tarczownix/internal/logger"
)

// NewExpander builds the expander backend selected in the config.
func NewExpander(cfg config.HardwareConfig, log *logger.Logger) (Expander, error) {
	switch cfg.Backend {
	case config.BackendPCF8574:
		return NewPCF8574Expander(cfg.I2CBus, cfg.InputAddress, cfg.RelayAddress, log), nil
	case config.BackendMCP23017:
		return NewMCP23017Expander(cfg.I2CBus, cfg.InputAddress, cfg.RelayAddress, log), nil
	case config.BackendGPIOChip:
		return NewGPIOChipExpander(cfg.GPIOChip, cfg.ActuatorLines, cfg.SensorLines, log), nil
	case config.BackendFake:
		return NewFakeExpander(), nil
	default:
		return nil, fmt.Errorf("unknown hardware backend %q", cfg.Backend)
	}
}
