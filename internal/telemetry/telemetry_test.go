package telemetry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/piotrkotrych/tarczownix/internal/types"
)

func TestFormatHitPayload(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	payload, err := FormatHitPayload(HitEvent{
		Timestamp: ts,
		Pair:      2,
		Side:      types.SideB,
		Dwell:     1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("FormatHitPayload failed: %v", err)
	}

	var decoded struct {
		Hit struct {
			Timestamp string `json:"timestamp"`
			Pair      int    `json:"pair"`
			Side      string `json:"side"`
			DwellMs   int64  `json:"dwell_ms"`
		} `json:"hit"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded.Hit.Timestamp != "2026-03-14T09:26:53Z" {
		t.Errorf("timestamp = %q, want RFC3339 UTC", decoded.Hit.Timestamp)
	}
	if decoded.Hit.Pair != 2 || decoded.Hit.Side != "B" || decoded.Hit.DwellMs != 1500 {
		t.Errorf("payload = %+v, want pair 2 side B dwell 1500", decoded.Hit)
	}
}

func TestFormatSystemPayloadOmitsEmptyDetail(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SEQUENCE_START",
	})
	if err != nil {
		t.Fatalf("FormatSystemPayload failed: %v", err)
	}

	var decoded map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if _, present := decoded["system"]["detail"]; present {
		t.Error("empty detail field was not omitted")
	}
	if decoded["system"]["event"] != "SEQUENCE_START" {
		t.Errorf("event = %v, want SEQUENCE_START", decoded["system"]["event"])
	}
}

func TestFakePublisherRecords(t *testing.T) {
	fake := NewFakePublisher()

	if err := fake.PublishHit(HitEvent{Pair: 1, Side: types.SideA}); err != nil {
		t.Fatalf("PublishHit failed: %v", err)
	}
	if err := fake.PublishSystem(SystemEvent{Event: "FAULT", Detail: "pair 1"}); err != nil {
		t.Fatalf("PublishSystem failed: %v", err)
	}

	if hits := fake.Hits(); len(hits) != 1 || hits[0].Pair != 1 {
		t.Errorf("hits = %+v, want one hit for pair 1", hits)
	}
	if events := fake.SystemEvents(); len(events) != 1 || events[0].Event != "FAULT" {
		t.Errorf("system events = %+v, want one FAULT", events)
	}

	fake.Close()
	if !fake.Closed() {
		t.Error("Closed not reported after Close")
	}
}

func TestFakePublisherInjectedError(t *testing.T) {
	fake := NewFakePublisher()
	fake.PublishError = errors.New("broker gone")

	if err := fake.PublishHit(HitEvent{}); err == nil {
		t.Error("expected injected error from PublishHit")
	}
	if len(fake.Hits()) != 0 {
		t.Error("failed publish was still recorded")
	}
}
