// Package telemetry publishes range events over MQTT, with an
// abstraction for testing. Publishing is best effort: a failed publish
// is logged by the caller and never stops sequencing.
package telemetry

import (
	"encoding/json"
	"time"

	"github.com/piotrkotrych/tarczownix/internal/types"
)

// TopicHits is the MQTT topic for target hit events.
const TopicHits = "range/tarczownix/hits"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "range/tarczownix/system"

// Publisher publishes range events to MQTT.
type Publisher interface {
	// PublishHit sends one target hit to the broker.
	PublishHit(event HitEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// HitEvent describes one sensor trigger: which pair and side was hit
// and the dwell that was sampled for the follow-up.
type HitEvent struct {
	Timestamp time.Time
	Pair      int
	Side      types.Side
	Dwell     time.Duration
}

// SystemEvent describes a lifecycle event: STARTUP, SHUTDOWN,
// SEQUENCE_START, SEQUENCE_STOP, FAULT, FAULT_CLEARED.
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Detail    string
}

type hitPayload struct {
	Hit hitPayloadInner `json:"hit"`
}

type hitPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Pair      int    `json:"pair"`
	Side      string `json:"side"`
	DwellMs   int64  `json:"dwell_ms"`
}

// FormatHitPayload creates the JSON payload for a hit event.
func FormatHitPayload(event HitEvent) ([]byte, error) {
	payload := hitPayload{
		Hit: hitPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Pair:      event.Pair,
			Side:      string(event.Side),
			DwellMs:   event.Dwell.Milliseconds(),
		},
	}
	return json.Marshal(payload)
}

type systemPayload struct {
	System systemPayloadInner `json:"system"`
}

type systemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Detail    string `json:"detail,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := systemPayload{
		System: systemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Detail:    event.Detail,
		},
	}
	return json.Marshal(payload)
}
