package core

import "time"

// ElapsedTimer measures how long a condition has held. The zero value is idle.
type ElapsedTimer struct {
	startedAt time.Time
	running   bool
}

// ArmIfIdle starts the timer at now. Arming a running timer does nothing, so
// repeated arming never hides the true elapsed duration.
func (t *ElapsedTimer) ArmIfIdle(now time.Time) {
	if t.running {
		return
	}
	t.startedAt = now
	t.running = true
}

func (t *ElapsedTimer) Clear() {
	t.startedAt = time.Time{}
	t.running = false
}

func (t *ElapsedTimer) Running() bool {
	return t.running
}

// Elapsed is zero when idle and never negative.
func (t *ElapsedTimer) Elapsed(now time.Time) time.Duration {
	if !t.running {
		return 0
	}
	d := now.Sub(t.startedAt)
	if d < 0 {
		return 0
	}
	return d
}

// SlidingWindow counts events within a trailing window, oldest first.
type SlidingWindow struct {
	window time.Duration
	events []time.Time
}

func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{window: window}
}

func (w *SlidingWindow) Record(at time.Time) {
	w.events = append(w.events, at)
}

// Count evicts everything older than the window relative to now, then
// returns how many events remain.
func (w *SlidingWindow) Count(now time.Time) int {
	cut := 0
	for cut < len(w.events) && now.Sub(w.events[cut]) > w.window {
		cut++
	}
	if cut > 0 {
		w.events = append(w.events[:0], w.events[cut:]...)
	}
	return len(w.events)
}

func (w *SlidingWindow) Clear() {
	w.events = w.events[:0]
}
