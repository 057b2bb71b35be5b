package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/piotrkotrych/tarczownix/internal/config"
	"github.com/piotrkotrych/tarczownix/internal/core"
	"github.com/piotrkotrych/tarczownix/internal/hardware"
	"github.com/piotrkotrych/tarczownix/internal/history"
	"github.com/piotrkotrych/tarczownix/internal/logger"
	"github.com/piotrkotrych/tarczownix/internal/messaging"
	"github.com/piotrkotrych/tarczownix/internal/metrics"
	"github.com/piotrkotrych/tarczownix/internal/telemetry"
)

func main() {
	var configPath string
	var logLevel int
	flag.StringVar(&configPath, "config", "/etc/tarczownix/config.yaml", "Path to the config file")
	flag.IntVar(&logLevel, "log", -1, "Log level override (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	flag.Parse()

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	level := cfg.Log.Level
	if logLevel >= 0 {
		level = logLevel
	}
	l := logger.NewLogger(stdLogger, logger.LogLevel(level))

	l.Infof("Starting tarczownix controller...")

	exp, err := hardware.NewExpander(cfg.Hardware, l)
	if err != nil {
		l.Fatalf("Failed to build hardware backend: %v", err)
	}

	redis := messaging.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, l)
	system := core.NewSystem(cfg, redis, exp, l)

	if cfg.MQTT.Broker != "" {
		pub, err := telemetry.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			// Telemetry is best effort; the range runs without it.
			l.Warnf("MQTT disabled: %v", err)
		} else {
			system.AttachTelemetry(pub)
		}
	}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			l.Fatalf("Failed to open history store: %v", err)
		}
		system.AttachHistory(store)
	}

	if cfg.Influx.Enabled {
		sink, err := metrics.Connect(cfg.Influx, l)
		if err != nil {
			l.Warnf("InfluxDB disabled: %v", err)
		} else {
			system.AttachMetrics(sink)
		}
	}

	if err := system.Start(); err != nil {
		l.Fatalf("Failed to start system: %v", err)
	}

	l.Infof("System started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	l.Infof("Received signal %v, shutting down...", sig)
	system.Shutdown()
	l.Infof("Shutdown complete")
}
