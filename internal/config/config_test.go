package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with empty path failed: %v", err)
	}
	if cfg.Hardware.Backend != BackendPCF8574 {
		t.Errorf("default backend = %q, want %q", cfg.Hardware.Backend, BackendPCF8574)
	}
	if cfg.Hardware.InputAddress != 0x22 || cfg.Hardware.RelayAddress != 0x24 {
		t.Errorf("default addresses = 0x%02x/0x%02x, want 0x22/0x24",
			cfg.Hardware.InputAddress, cfg.Hardware.RelayAddress)
	}
	if len(cfg.Sequencer.Pairs) != 3 {
		t.Errorf("default pair count = %d, want 3", len(cfg.Sequencer.Pairs))
	}
	if cfg.Sequencer.DebounceMs != 100 {
		t.Errorf("default debounce = %d, want 100", cfg.Sequencer.DebounceMs)
	}
	if cfg.Sequencer.PollIntervalMs != 5 {
		t.Errorf("default poll interval = %d, want 5", cfg.Sequencer.PollIntervalMs)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err != nil {
		t.Fatalf("Load with missing file failed: %v", err)
	}
	if cfg.Redis.Port != 6379 {
		t.Errorf("redis port = %d, want default 6379", cfg.Redis.Port)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tarczownix.yml")
	content := `
hardware:
  backend: fake
sequencer:
  pairs:
    - actuator_a: 0
      actuator_b: 1
      sensor_a: 0
      sensor_b: 1
  debounce_ms: 50
redis:
  host: redis.local
  port: 6380
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Hardware.Backend != BackendFake {
		t.Errorf("backend = %q, want fake", cfg.Hardware.Backend)
	}
	if len(cfg.Sequencer.Pairs) != 1 {
		t.Errorf("pair count = %d, want 1", len(cfg.Sequencer.Pairs))
	}
	if cfg.Sequencer.DebounceMs != 50 {
		t.Errorf("debounce = %d, want 50", cfg.Sequencer.DebounceMs)
	}
	if cfg.Redis.Host != "redis.local" || cfg.Redis.Port != 6380 {
		t.Errorf("redis = %s:%d, want redis.local:6380", cfg.Redis.Host, cfg.Redis.Port)
	}
	// Fields the file omitted keep their defaults.
	if cfg.Sequencer.WatchdogMs != 1000 {
		t.Errorf("watchdog = %d, want default 1000", cfg.Sequencer.WatchdogMs)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TARCZOWNIX_REDIS_ADDR", "10.0.0.7:6400")
	t.Setenv("TARCZOWNIX_MQTT_BROKER", "tcp://broker.local:1883")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Redis.Host != "10.0.0.7" || cfg.Redis.Port != 6400 {
		t.Errorf("redis = %s:%d, want 10.0.0.7:6400", cfg.Redis.Host, cfg.Redis.Port)
	}
	if cfg.MQTT.Broker != "tcp://broker.local:1883" {
		t.Errorf("mqtt broker = %q, want tcp://broker.local:1883", cfg.MQTT.Broker)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Hardware.Backend = "spi" },
			wantSub: "unknown backend",
		},
		{
			name:    "no pairs",
			mutate:  func(c *Config) { c.Sequencer.Pairs = nil },
			wantSub: "at least one pair",
		},
		{
			name: "duplicate actuator pin",
			mutate: func(c *Config) {
				c.Sequencer.Pairs[1].ActuatorA = c.Sequencer.Pairs[0].ActuatorA
			},
			wantSub: "assigned twice",
		},
		{
			name:    "inverted delay range",
			mutate:  func(c *Config) { c.Sequencer.DefaultDelayMin = 5000; c.Sequencer.DefaultDelayMax = 2000 },
			wantSub: "0 < min < max",
		},
		{
			name:    "delay above ceiling",
			mutate:  func(c *Config) { c.Sequencer.DefaultDelayMax = 30000 },
			wantSub: "exceeds ceiling",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Sequencer.PollIntervalMs = 0 },
			wantSub: "poll_interval_ms",
		},
		{
			name:    "influx enabled without url",
			mutate:  func(c *Config) { c.Influx.Enabled = true; c.Influx.Token = "t" },
			wantSub: "influx.url",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate accepted invalid config")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q does not mention %q", err.Error(), tc.wantSub)
			}
		})
	}
}
