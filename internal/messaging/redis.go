package messaging

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/piotrkotrych/tarczownix/internal/logger"
	"github.com/piotrkotrych/tarczownix/internal/types"

	"github.com/redis/go-redis/v9"
)

const (
	statusHash    = "tarczownix"
	statusChannel = "tarczownix"
	commandList   = "tarczownix:commands"
	delayHash     = "tarczownix:delays"
	faultSet      = "tarczownix:fault"
	faultStream   = "events:faults"
)

type Callbacks struct {
	StartCallback      func() error
	StopCallback       func() error
	ClearFaultCallback func() error
	ToggleCallback     func(channel int) error           // manual relay override
	DelayCallback      func(pair, minMs, maxMs int) error // dwell range update
}

type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRedisClient(host string, port int, l *logger.Logger) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		logger: l,
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetCallbacks wires the command handlers. Must be called before
// StartListening.
func (r *RedisClient) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		r.logger.Infof("Redis connection failed: %v", err)
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts the command listener after system
// initialization is complete
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	r.wg.Add(1)
	go r.listCommandListener(commandList, r.handleCommand)

	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// Use BRPOP with a short timeout to allow periodic context cancellation checks
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if err == redis.Nil {
					// Timeout elapsed, loop back to check context
					continue
				}
				if err == context.Canceled {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Infof("Error reading from %s list: %v", key, err)
				continue
			}

			select {
			case <-r.ctx.Done():
				r.logger.Infof("Context cancelled, exiting %s listener", key)
				return
			default:
				if len(result) >= 2 { // BRPOP returns [key, value]
					value := result[1]
					r.logger.Debugf("Received command from %s: %s", key, value)
					if err := handler(value); err != nil {
						r.logger.Warnf("Error handling %s command: %v", key, err)
					}
				}
			}
		}
	}
}

func (r *RedisClient) handleCommand(value string) error {
	switch {
	case value == "start":
		if r.callbacks.StartCallback == nil {
			return nil
		}
		return r.callbacks.StartCallback()
	case value == "stop":
		if r.callbacks.StopCallback == nil {
			return nil
		}
		return r.callbacks.StopCallback()
	case value == "clear-fault":
		if r.callbacks.ClearFaultCallback == nil {
			return nil
		}
		return r.callbacks.ClearFaultCallback()
	case strings.HasPrefix(value, "toggle "):
		return r.handleToggleCommand(strings.TrimPrefix(value, "toggle "))
	case strings.HasPrefix(value, "delay "):
		return r.handleDelayCommand(strings.TrimPrefix(value, "delay "))
	default:
		r.logger.Infof("Invalid command value: %s", value)
		return fmt.Errorf("invalid command: %s", value)
	}
}

func (r *RedisClient) handleToggleCommand(arg string) error {
	if r.callbacks.ToggleCallback == nil {
		return nil
	}
	channel, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		r.logger.Infof("Invalid toggle command value: %s, expected integer: %v", arg, err)
		return fmt.Errorf("invalid toggle command: %s", arg)
	}
	return r.callbacks.ToggleCallback(channel)
}

func (r *RedisClient) handleDelayCommand(arg string) error {
	if r.callbacks.DelayCallback == nil {
		return nil
	}
	var pair, minMs, maxMs int
	if _, err := fmt.Sscanf(arg, "%d:%d:%d", &pair, &minMs, &maxMs); err != nil {
		r.logger.Infof("Invalid delay command value: %s, expected 'pair:min:max': %v", arg, err)
		return fmt.Errorf("invalid delay command: %s", arg)
	}
	return r.callbacks.DelayCallback(pair, minMs, maxMs)
}

// publishHashSet is a helper that atomically updates a hash field and publishes a notification
func (r *RedisClient) publishHashSet(hash, field string, value interface{}, channel, payload string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, hash, field, value)
	pipe.Publish(r.ctx, channel, payload)
	_, err := pipe.Exec(r.ctx)
	return err
}

func (r *RedisClient) PublishControllerState(state types.SystemState) error {
	r.logger.Infof("Publishing controller state: %s", state)
	timestamp := time.Now().Format(time.RFC3339)

	// Atomically set both state and timestamp fields
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, statusHash, "state", string(state))
	pipe.HSet(r.ctx, statusHash, "state:timestamp", timestamp)
	pipe.Publish(r.ctx, statusChannel, "state")
	_, err := pipe.Exec(r.ctx)

	if err != nil {
		r.logger.Warnf("Failed to publish controller state: %v", err)
		return err
	}
	r.logger.Debugf("Successfully published controller state with timestamp: %s", timestamp)
	return nil
}

// PublishStatus mirrors the full status snapshot into the controller
// hash in one pipeline.
func (r *RedisClient) PublishStatus(st types.Status) error {
	pipe := r.client.Pipeline()

	pipe.HSet(r.ctx, statusHash, "sequence", onOff(st.SequenceRunning))
	pipe.HSet(r.ctx, statusHash, "bus:errors", st.BusErrors)

	if st.Fault != nil {
		pipe.HSet(r.ctx, statusHash, "fault", fmt.Sprintf("pair %d side %s: %s",
			st.Fault.PairIndex, st.Fault.Side, st.Fault.Message))
		pipe.HSet(r.ctx, statusHash, "fault:timestamp", st.Fault.Timestamp.Format(time.RFC3339))
	} else {
		pipe.HDel(r.ctx, statusHash, "fault", "fault:timestamp")
	}

	for _, p := range st.Pairs {
		prefix := fmt.Sprintf("pair:%d", p.PairIndex)
		pipe.HSet(r.ctx, statusHash, prefix+":side", string(p.ActiveSide))
		pipe.HSet(r.ctx, statusHash, prefix+":phase", string(p.Phase))
		pipe.HSet(r.ctx, statusHash, prefix+":hits", p.Hits)
		pipe.HSet(r.ctx, statusHash, prefix+":delay", fmt.Sprintf("%d:%d", p.DelayMinMs, p.DelayMaxMs))
		pipe.HSet(r.ctx, statusHash, prefix+":actuator:a", onOff(p.ActuatorAOn))
		pipe.HSet(r.ctx, statusHash, prefix+":actuator:b", onOff(p.ActuatorBOn))
		pipe.HSet(r.ctx, statusHash, prefix+":sensor:a", onOff(p.SensorATriggered))
		pipe.HSet(r.ctx, statusHash, prefix+":sensor:b", onOff(p.SensorBTriggered))
	}

	pipe.Publish(r.ctx, statusChannel, "status")
	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warnf("Failed to publish status: %v", err)
		return err
	}
	return nil
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// LoadDelayRanges reads the persisted dwell ranges. Pairs with no
// stored range are absent from the result.
func (r *RedisClient) LoadDelayRanges(pairCount int) (map[int][2]int, error) {
	out := make(map[int][2]int)
	for i := 0; i < pairCount; i++ {
		field := fmt.Sprintf("pair:%d", i)
		value, err := r.client.HGet(r.ctx, delayHash, field).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading delay range for pair %d: %w", i, err)
		}
		var lo, hi int
		if _, err := fmt.Sscanf(value, "%d:%d", &lo, &hi); err != nil {
			r.logger.Warnf("Ignoring malformed delay range %q for pair %d", value, i)
			continue
		}
		out[i] = [2]int{lo, hi}
	}
	return out, nil
}

// SaveDelayRange persists an accepted dwell range for one pair.
func (r *RedisClient) SaveDelayRange(pairIndex, minMs, maxMs int) error {
	field := fmt.Sprintf("pair:%d", pairIndex)
	value := fmt.Sprintf("%d:%d", minMs, maxMs)
	if err := r.client.HSet(r.ctx, delayHash, field, value).Err(); err != nil {
		r.logger.Warnf("Failed to persist delay range for pair %d: %v", pairIndex, err)
		return err
	}
	r.logger.Infof("Persisted delay range %s for pair %d", value, pairIndex)
	return nil
}

// ReportFaultPresent reports a timeout fault to Redis. Fault codes are
// the pair index plus one so the cleared signal, the negated code,
// stays distinguishable for pair 0.
func (r *RedisClient) ReportFaultPresent(rec types.FaultRecord) error {
	code := rec.PairIndex + 1
	r.logger.Infof("Reporting fault present: code=%d, description=%s", code, rec.Message)

	pipe := r.client.Pipeline()

	// Add fault code to active faults set
	pipe.SAdd(r.ctx, faultSet, code)

	// Add fault event to global event stream with metadata
	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: faultStream,
		MaxLen: 1000,
		Values: map[string]interface{}{
			"group":       "tarczownix",
			"code":        code,
			"description": rec.Message,
			"ts":          rec.Timestamp.Unix(),
			"info":        string(rec.Side),
		},
	})

	// Publish notification
	pipe.Publish(r.ctx, statusChannel, "fault")

	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Infof("Failed to report fault present: %v", err)
		return err
	}

	r.logger.Infof("Successfully reported fault %d as present", code)
	return nil
}

// ReportFaultAbsent reports a fault as cleared to Redis.
func (r *RedisClient) ReportFaultAbsent(pairIndex int) error {
	code := pairIndex + 1
	r.logger.Infof("Reporting fault absent: code=%d", code)

	pipe := r.client.Pipeline()

	// Remove fault code from active faults set
	pipe.SRem(r.ctx, faultSet, code)

	// Add clear event to global event stream (negative code indicates cleared)
	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: faultStream,
		MaxLen: 1000,
		Values: map[string]interface{}{
			"group": "tarczownix",
			"code":  -code,
		},
	})

	// Publish notification
	pipe.Publish(r.ctx, statusChannel, "fault")

	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Infof("Failed to report fault absent: %v", err)
		return err
	}

	r.logger.Infof("Successfully reported fault %d as absent", code)
	return nil
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	// Wait for all goroutines to finish with a timeout
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Infof("All Redis goroutines finished")
	case <-time.After(5 * time.Second):
		r.logger.Infof("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}
