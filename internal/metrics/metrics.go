// Package metrics ships hit counts and realized dwell durations to
// InfluxDB. Writes are batched and non-blocking; a broken sink never
// slows the sequencing loops.
package metrics

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/piotrkotrych/tarczownix/internal/config"
	"github.com/piotrkotrych/tarczownix/internal/logger"
	"github.com/piotrkotrych/tarczownix/internal/types"
)

const connectTimeout = 10 * time.Second

// Sink wraps the InfluxDB v2 client. All methods are safe for
// concurrent use.
type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *logger.Logger
}

// Connect builds the sink and verifies the server responds. The
// caller only connects when the config enables the sink.
func Connect(cfg config.InfluxConfig, log *logger.Logger) (*Sink, error) {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*1000))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influx ping: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("influx server not healthy")
	}

	s := &Sink{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		logger:   log.WithTag("influx"),
	}

	// Async write failures only surface on this channel.
	go s.drainErrors(s.writeAPI.Errors())

	return s, nil
}

func (s *Sink) drainErrors(errCh <-chan error) {
	for err := range errCh {
		s.logger.Warnf("Async write failed: %v", err)
	}
}

// RecordHit writes one hit with its sampled dwell.
func (s *Sink) RecordHit(pair int, side types.Side, dwell time.Duration) {
	point := write.NewPoint(
		"hits",
		map[string]string{
			"pair": fmt.Sprintf("%d", pair),
			"side": string(side),
		},
		map[string]interface{}{
			"dwell_ms": dwell.Milliseconds(),
		},
		time.Now(),
	)
	s.writeAPI.WritePoint(point)
}

// RecordBusErrors writes the cumulative skipped-transaction count.
func (s *Sink) RecordBusErrors(count uint64) {
	point := write.NewPoint(
		"bus",
		nil,
		map[string]interface{}{
			"errors": int64(count),
		},
		time.Now(),
	)
	s.writeAPI.WritePoint(point)
}

// Close flushes buffered points and releases the client.
func (s *Sink) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}
