package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/librescoot/librefsm"

	"github.com/piotrkotrych/tarczownix/internal/config"
	"github.com/piotrkotrych/tarczownix/internal/hardware"
	"github.com/piotrkotrych/tarczownix/internal/history"
	"github.com/piotrkotrych/tarczownix/internal/logger"
	"github.com/piotrkotrych/tarczownix/internal/messaging"
	"github.com/piotrkotrych/tarczownix/internal/metrics"
	"github.com/piotrkotrych/tarczownix/internal/sequencer"
	"github.com/piotrkotrych/tarczownix/internal/telemetry"
	"github.com/piotrkotrych/tarczownix/internal/types"
	"github.com/piotrkotrych/tarczownix/internal/watchdog"
)

// System owns the whole controller: the expander bus gateway, one
// sequencer per pair, the timeout watchdog, the lifecycle FSM, and the
// Redis control surface. Telemetry, history, and metrics are optional
// attachments wired before Start.
type System struct {
	cfg     *config.Config
	logger  *logger.Logger
	redis   MessagingClient
	gateway *hardware.Gateway
	ctl     *sequencer.Control
	watch   *watchdog.Watchdog
	pairs   []*sequencer.Sequencer
	machine *librefsm.Machine

	telemetry telemetry.Publisher
	history   *history.Store
	metrics   *metrics.Sink

	// Hit events cross from the pair goroutines to the recording sinks
	// through this queue so a slow sink never stalls a poll loop.
	hitCh chan telemetry.HitEvent

	mu         sync.Mutex
	sequencing bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSystem(cfg *config.Config, redis MessagingClient, exp hardware.Expander, log *logger.Logger) *System {
	ctx, cancel := context.WithCancel(context.Background())
	return &System{
		cfg:     cfg,
		logger:  log,
		redis:   redis,
		gateway: hardware.NewGateway(exp, log),
		ctl:     sequencer.NewControl(),
		hitCh:   make(chan telemetry.HitEvent, 64),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AttachTelemetry wires an MQTT publisher. Call before Start.
func (s *System) AttachTelemetry(p telemetry.Publisher) { s.telemetry = p }

// AttachHistory wires the local hit/fault store. Call before Start.
func (s *System) AttachHistory(h *history.Store) { s.history = h }

// AttachMetrics wires the InfluxDB sink. Call before Start.
func (s *System) AttachMetrics(m *metrics.Sink) { s.metrics = m }

func (s *System) Start() error {
	s.logger.Infof("Starting controller")

	s.redis.SetCallbacks(messaging.Callbacks{
		StartCallback:      s.handleStart,
		StopCallback:       s.handleStop,
		ClearFaultCallback: s.handleClearFault,
		ToggleCallback:     s.handleToggle,
		DelayCallback:      s.handleSetDelay,
	})

	if err := s.redis.Connect(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	// The expander probe doubles as the safe-state write: every relay
	// is driven off before anything is scheduled. Failure here is
	// fatal; the bus cannot be trusted.
	if err := s.gateway.Init(); err != nil {
		return fmt.Errorf("bus initialization failed: %w", err)
	}

	ranges, err := s.redis.LoadDelayRanges(len(s.cfg.Sequencer.Pairs))
	if err != nil {
		return fmt.Errorf("loading persisted delay ranges: %w", err)
	}

	s.watch = watchdog.New(s.cfg.Sequencer.PollInterval(), s.handleBreach, s.logger)

	for i, wiring := range s.cfg.Sequencer.Pairs {
		minMs, maxMs := s.cfg.Sequencer.DefaultDelayMin, s.cfg.Sequencer.DefaultDelayMax
		if r, ok := ranges[i]; ok {
			if err := s.validateDelayRange(r[0], r[1]); err != nil {
				s.logger.Warnf("Ignoring stored delay range %d:%d for pair %d: %v", r[0], r[1], i, err)
			} else {
				minMs, maxMs = r[0], r[1]
			}
		}

		seq := sequencer.NewSequencer(sequencer.PairConfig{
			Index:            i,
			ActuatorA:        wiring.ActuatorA,
			ActuatorB:        wiring.ActuatorB,
			SensorA:          wiring.SensorA,
			SensorB:          wiring.SensorB,
			DelayMinMs:       minMs,
			DelayMaxMs:       maxMs,
			PollInterval:     s.cfg.Sequencer.PollInterval(),
			DebounceInterval: s.cfg.Sequencer.DebounceInterval(),
			WatchdogDeadline: s.cfg.Sequencer.WatchdogDeadline(),
		}, s.gateway, s.watch, s, s.ctl, s.logger)
		s.pairs = append(s.pairs, seq)
	}

	if err := s.initFSM(s.ctx); err != nil {
		return fmt.Errorf("starting state machine: %w", err)
	}

	s.wg.Add(1)
	go s.drainHits()

	for _, p := range s.pairs {
		p := p
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			p.Run(s.ctx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watch.Run(s.ctx)
	}()

	s.wg.Add(1)
	go s.statusLoop()

	if err := s.redis.StartListening(); err != nil {
		return fmt.Errorf("failed to start Redis listeners: %w", err)
	}

	s.publishSystemEvent("STARTUP", "")
	s.logger.Infof("Controller started with %d pairs", len(s.pairs))
	return nil
}

// Status assembles the control-surface snapshot from the per-pair
// snapshots and the shared flags.
func (s *System) Status() types.Status {
	st := types.Status{
		SequenceRunning: s.ctl.Enabled(),
		State:           stateIDToSystemState(s.machine.CurrentState()),
		Fault:           s.ctl.Fault(),
		BusErrors:       s.gateway.BusErrors(),
	}
	for _, p := range s.pairs {
		st.Pairs = append(st.Pairs, p.Status())
	}
	return st
}

// PairHit receives one sensor trigger from a pair goroutine and queues
// it for the recording sinks.
func (s *System) PairHit(pairIndex int, side types.Side, dwell time.Duration) {
	ev := telemetry.HitEvent{
		Timestamp: time.Now(),
		Pair:      pairIndex,
		Side:      side,
		Dwell:     dwell,
	}
	select {
	case s.hitCh <- ev:
	default:
		s.logger.Warnf("Hit queue full, dropping hit for pair %d", pairIndex)
	}
}

func (s *System) drainHits() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.hitCh:
			s.recordHit(ev)
		}
	}
}

func (s *System) recordHit(ev telemetry.HitEvent) {
	if s.history != nil {
		ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
		if err := s.history.RecordHit(ctx, ev.Pair, ev.Side, ev.Dwell); err != nil {
			s.logger.Warnf("Failed to record hit: %v", err)
		}
		cancel()
	}
	if s.telemetry != nil {
		if err := s.telemetry.PublishHit(ev); err != nil {
			s.logger.Warnf("Failed to publish hit: %v", err)
		}
	}
	if s.metrics != nil {
		s.metrics.RecordHit(ev.Pair, ev.Side, ev.Dwell)
	}
}

// statusLoop mirrors the status snapshot into Redis on a fixed cadence
// and prunes the history on a much slower one.
func (s *System) statusLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Sequencer.StatusInterval())
	defer ticker.Stop()
	prune := time.NewTicker(time.Hour)
	defer prune.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			st := s.Status()
			if err := s.redis.PublishStatus(st); err != nil {
				s.logger.Warnf("Failed to publish status: %v", err)
			}
			if s.metrics != nil {
				s.metrics.RecordBusErrors(st.BusErrors)
			}
			if st.SequenceRunning {
				for _, p := range st.Pairs {
					s.logger.Debugf("Pair %d: side %s, %s, %d hits",
						p.PairIndex, p.ActiveSide, p.Phase, p.Hits)
				}
			}
		case <-prune.C:
			s.pruneHistory()
		}
	}
}

func (s *System) pruneHistory() {
	if s.history == nil || s.cfg.History.RetentionDays <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	retention := time.Duration(s.cfg.History.RetentionDays) * 24 * time.Hour
	pruned, err := s.history.Prune(ctx, retention)
	if err != nil {
		s.logger.Warnf("History prune failed: %v", err)
		return
	}
	if pruned > 0 {
		s.logger.Infof("Pruned %d history rows older than %d days", pruned, s.cfg.History.RetentionDays)
	}
}

func (s *System) publishSystemEvent(event, detail string) {
	if s.telemetry == nil {
		return
	}
	err := s.telemetry.PublishSystem(telemetry.SystemEvent{
		Timestamp: time.Now(),
		Event:     event,
		Detail:    detail,
	})
	if err != nil {
		s.logger.Warnf("Failed to publish %s event: %v", event, err)
	}
}

func (s *System) Shutdown() {
	s.logger.Infof("Shutting down")
	s.publishSystemEvent("SHUTDOWN", "")

	// Disable first so the pairs park, then cancel; each pair releases
	// its relays on the way out.
	s.ctl.SetEnabled(false)
	s.cancel()
	s.wg.Wait()

	if s.redis != nil {
		s.redis.Close()
	}
	if err := s.gateway.Close(); err != nil {
		s.logger.Warnf("Closing bus: %v", err)
	}
	if s.history != nil {
		s.history.Close()
	}
	if s.metrics != nil {
		s.metrics.Close()
	}
	if s.telemetry != nil {
		s.telemetry.Close()
	}
	s.logger.Infof("Shutdown complete")
}
