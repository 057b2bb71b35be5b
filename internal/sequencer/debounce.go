package sequencer

import "time"

// Debouncer filters one noisy digital channel into a stable logical
// value. A change in the raw reading restarts the settle timer; the
// raw value is promoted to the stable value only after it has held
// unchanged for at least the settle interval. Electrical bounce
// therefore never reaches consumers, at the cost of one interval of
// latency.
type Debouncer struct {
	interval   time.Duration
	lastRaw    bool
	lastChange time.Time
	stable     bool
}

func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Sample feeds one raw reading taken at now and returns the stable
// value after applying it.
func (d *Debouncer) Sample(raw bool, now time.Time) bool {
	if raw != d.lastRaw {
		d.lastRaw = raw
		d.lastChange = now
		return d.stable
	}
	if raw != d.stable && now.Sub(d.lastChange) >= d.interval {
		d.stable = raw
	}
	return d.stable
}

// Stable returns the current stable value without feeding a sample,
// for polls where the raw read was skipped.
func (d *Debouncer) Stable() bool {
	return d.stable
}

// Reset returns the debouncer to the untriggered baseline. A channel
// that is in fact held triggered settles back within one interval.
func (d *Debouncer) Reset() {
	d.lastRaw = false
	d.lastChange = time.Time{}
	d.stable = false
}
