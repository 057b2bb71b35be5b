package sequencer

import (
	"testing"
	"time"
)

func TestDebouncerPromotesHeldValue(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)
	t0 := time.Now()

	if d.Sample(true, t0) {
		t.Error("stable went true immediately on first raw sample")
	}
	if d.Sample(true, t0.Add(50*time.Millisecond)) {
		t.Error("stable went true before the settle interval")
	}
	if !d.Sample(true, t0.Add(100*time.Millisecond)) {
		t.Error("stable did not promote after the settle interval")
	}
}

func TestDebouncerRejectsBounce(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)
	t0 := time.Now()

	// Alternate the raw value every 10ms, well inside the interval.
	now := t0
	for i := 0; i < 30; i++ {
		raw := i%2 == 0
		if d.Sample(raw, now) {
			t.Fatalf("stable changed during bounce at sample %d", i)
		}
		now = now.Add(10 * time.Millisecond)
	}

	// Once the raw value holds, it promotes.
	for i := 0; i < 11; i++ {
		d.Sample(true, now)
		now = now.Add(10 * time.Millisecond)
	}
	if !d.Stable() {
		t.Error("stable did not promote after bounce ended")
	}
}

func TestDebouncerFlickerRestartsTimer(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)
	t0 := time.Now()

	d.Sample(true, t0)
	d.Sample(true, t0.Add(90*time.Millisecond))
	// A single dropout just before promotion restarts the settle timer.
	d.Sample(false, t0.Add(95*time.Millisecond))
	d.Sample(true, t0.Add(99*time.Millisecond))
	if d.Sample(true, t0.Add(150*time.Millisecond)) {
		t.Error("stable promoted measured from before the dropout")
	}
	if !d.Sample(true, t0.Add(199*time.Millisecond)) {
		t.Error("stable did not promote one interval after the dropout settled")
	}
}

func TestDebouncerReleases(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	t0 := time.Now()

	d.Sample(true, t0)
	if !d.Sample(true, t0.Add(50*time.Millisecond)) {
		t.Fatal("setup: stable did not promote to true")
	}

	d.Sample(false, t0.Add(60*time.Millisecond))
	if !d.Stable() {
		t.Error("stable dropped before the release settled")
	}
	if d.Sample(false, t0.Add(110*time.Millisecond)) {
		t.Error("stable did not drop after the release settled")
	}
}
