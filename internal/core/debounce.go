package core

import "time"

// Debouncer turns raw button levels into press events. The button is wired
// active-low, so a press is a high to low edge; release edges never count.
type Debouncer struct {
	window         time.Duration
	lastHigh       bool
	lastTransition time.Time
}

func NewDebouncer(window time.Duration, initialHigh bool) *Debouncer {
	return &Debouncer{
		window:   window,
		lastHigh: initialHigh,
	}
}

// Sample records the level seen at now and reports whether it is an
// accepted press. Every level change, rising or falling, restarts the
// window; a falling edge inside the window of the previous change is bounce.
func (d *Debouncer) Sample(high bool, now time.Time) bool {
	if high == d.lastHigh {
		return false
	}

	prev := d.lastTransition
	d.lastHigh = high
	d.lastTransition = now
	if high {
		return false
	}

	return prev.IsZero() || now.Sub(prev) > d.window
}
