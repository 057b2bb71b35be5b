package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendPCF8574  = "pcf8574"
	BackendMCP23017 = "mcp23017"
	BackendGPIOChip = "gpiochip"
	BackendFake     = "fake"
)

type Config struct {
	Hardware  HardwareConfig  `yaml:"hardware"`
	Sequencer SequencerConfig `yaml:"sequencer"`
	Redis     RedisConfig     `yaml:"redis"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	History   HistoryConfig   `yaml:"history"`
	Influx    InfluxConfig    `yaml:"influx"`
	Log       LogConfig       `yaml:"log"`
}

type HardwareConfig struct {
	Backend      string `yaml:"backend"`
	I2CBus       int    `yaml:"i2c_bus"`
	InputAddress int    `yaml:"input_address"`
	RelayAddress int    `yaml:"relay_address"`
	GPIOChip     string `yaml:"gpiochip"`
	// Line tables for the gpiochip backend, indexed by channel.
	ActuatorLines []int `yaml:"actuator_lines"`
	SensorLines   []int `yaml:"sensor_lines"`
}

// PairWiring maps one pair onto expander pins. Actuator pins address the
// relay device, sensor pins the input device.
type PairWiring struct {
	ActuatorA int `yaml:"actuator_a"`
	ActuatorB int `yaml:"actuator_b"`
	SensorA   int `yaml:"sensor_a"`
	SensorB   int `yaml:"sensor_b"`
}

type SequencerConfig struct {
	Pairs            []PairWiring `yaml:"pairs"`
	PollIntervalMs   int          `yaml:"poll_interval_ms"`
	DebounceMs       int          `yaml:"debounce_ms"`
	WatchdogMs       int          `yaml:"watchdog_ms"`
	DelayCeilingMs   int          `yaml:"delay_ceiling_ms"`
	DefaultDelayMin  int          `yaml:"default_delay_min_ms"`
	DefaultDelayMax  int          `yaml:"default_delay_max_ms"`
	StatusIntervalMs int          `yaml:"status_interval_ms"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type InfluxConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval_s"`
}

type LogConfig struct {
	Level int `yaml:"level"`
}

func (s SequencerConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

func (s SequencerConfig) DebounceInterval() time.Duration {
	return time.Duration(s.DebounceMs) * time.Millisecond
}

func (s SequencerConfig) WatchdogDeadline() time.Duration {
	return time.Duration(s.WatchdogMs) * time.Millisecond
}

func (s SequencerConfig) StatusInterval() time.Duration {
	return time.Duration(s.StatusIntervalMs) * time.Millisecond
}

// Load reads the config file at path, falling back to defaults for any
// value the file omits. A missing file is not an error; the defaults
// describe the reference rig.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Hardware: HardwareConfig{
			Backend:      BackendPCF8574,
			I2CBus:       1,
			InputAddress: 0x22,
			RelayAddress: 0x24,
			GPIOChip:     "gpiochip0",
		},
		Sequencer: SequencerConfig{
			Pairs: []PairWiring{
				{ActuatorA: 0, ActuatorB: 1, SensorA: 0, SensorB: 1},
				{ActuatorA: 2, ActuatorB: 3, SensorA: 2, SensorB: 3},
				{ActuatorA: 4, ActuatorB: 5, SensorA: 4, SensorB: 5},
			},
			PollIntervalMs:   5,
			DebounceMs:       100,
			WatchdogMs:       1000,
			DelayCeilingMs:   20000,
			DefaultDelayMin:  2000,
			DefaultDelayMax:  5000,
			StatusIntervalMs: 1000,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		MQTT: MQTTConfig{
			ClientID: "tarczownix",
		},
		History: HistoryConfig{
			RetentionDays: 30,
		},
		Influx: InfluxConfig{
			BatchSize:     20,
			FlushInterval: 10,
		},
		Log: LogConfig{
			Level: 3,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv("TARCZOWNIX_REDIS_ADDR"); addr != "" {
		if host, port, err := net.SplitHostPort(addr); err == nil {
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Redis.Host = host
				cfg.Redis.Port = p
			}
		}
	}
	if broker := os.Getenv("TARCZOWNIX_MQTT_BROKER"); broker != "" {
		cfg.MQTT.Broker = broker
	}
	if path := os.Getenv("TARCZOWNIX_HISTORY_PATH"); path != "" {
		cfg.History.Path = path
	}
	if token := os.Getenv("TARCZOWNIX_INFLUX_TOKEN"); token != "" {
		cfg.Influx.Token = token
	}
}

// Validate checks cross-field invariants and reports every violation at
// once, joined into a single error.
func (c *Config) Validate() error {
	var errs []string

	switch c.Hardware.Backend {
	case BackendPCF8574, BackendMCP23017, BackendGPIOChip, BackendFake:
	default:
		errs = append(errs, fmt.Sprintf("hardware.backend: unknown backend %q", c.Hardware.Backend))
	}

	if len(c.Sequencer.Pairs) == 0 {
		errs = append(errs, "sequencer.pairs: at least one pair required")
	}

	actuatorSeen := make(map[int]bool)
	sensorSeen := make(map[int]bool)
	for i, p := range c.Sequencer.Pairs {
		for _, pin := range []int{p.ActuatorA, p.ActuatorB} {
			if pin < 0 {
				errs = append(errs, fmt.Sprintf("sequencer.pairs[%d]: negative actuator pin %d", i, pin))
			}
			if actuatorSeen[pin] {
				errs = append(errs, fmt.Sprintf("sequencer.pairs[%d]: actuator pin %d assigned twice", i, pin))
			}
			actuatorSeen[pin] = true
		}
		for _, pin := range []int{p.SensorA, p.SensorB} {
			if pin < 0 {
				errs = append(errs, fmt.Sprintf("sequencer.pairs[%d]: negative sensor pin %d", i, pin))
			}
			if sensorSeen[pin] {
				errs = append(errs, fmt.Sprintf("sequencer.pairs[%d]: sensor pin %d assigned twice", i, pin))
			}
			sensorSeen[pin] = true
		}
	}

	if c.Sequencer.PollIntervalMs <= 0 {
		errs = append(errs, "sequencer.poll_interval_ms: must be positive")
	}
	if c.Sequencer.DebounceMs <= 0 {
		errs = append(errs, "sequencer.debounce_ms: must be positive")
	}
	if c.Sequencer.WatchdogMs <= 0 {
		errs = append(errs, "sequencer.watchdog_ms: must be positive")
	}
	if c.Sequencer.DelayCeilingMs <= 0 {
		errs = append(errs, "sequencer.delay_ceiling_ms: must be positive")
	}
	if c.Sequencer.DefaultDelayMin <= 0 || c.Sequencer.DefaultDelayMin >= c.Sequencer.DefaultDelayMax {
		errs = append(errs, "sequencer.default_delay: need 0 < min < max")
	}
	if c.Sequencer.DefaultDelayMax > c.Sequencer.DelayCeilingMs {
		errs = append(errs, fmt.Sprintf("sequencer.default_delay_max_ms: exceeds ceiling %d", c.Sequencer.DelayCeilingMs))
	}

	if c.Redis.Host == "" {
		errs = append(errs, "redis.host: required")
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("redis.port: invalid port %d", c.Redis.Port))
	}

	if c.Influx.Enabled {
		if c.Influx.URL == "" {
			errs = append(errs, "influx.url: required when influx is enabled")
		}
		if c.Influx.Token == "" {
			errs = append(errs, "influx.token: required when influx is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
