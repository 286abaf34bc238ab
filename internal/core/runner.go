package core

import (
	"context"
	"time"

	"drowsy-monitor/internal/logger"
	"drowsy-monitor/internal/types"
)

const (
	fpsReportFrames = 10

	// signals older than this describe a face that may no longer be there
	staleSignalAge = time.Second
)

// Runner drives the monitor from a ticker: sample the button, then either
// pull one perception signal (Active) or advance the rest timer (Paused).
type Runner struct {
	logger    *logger.Logger
	monitor   *Monitor
	button    Button
	source    PerceptionSource
	debouncer *Debouncer
	interval  time.Duration
	clock     func() time.Time

	buttonFailing bool
	frames        int
	framesSince   time.Time
	staleSignals  int
}

func NewRunner(monitor *Monitor, button Button, source PerceptionSource, debounce, interval time.Duration, l *logger.Logger) *Runner {
	r := &Runner{
		logger:   l.WithTag("Runner"),
		monitor:  monitor,
		button:   button,
		source:   source,
		interval: interval,
		clock:    time.Now,
	}

	initial, err := button.Level()
	if err != nil {
		r.logger.Warnf("Failed to read initial button level, assuming released: %v", err)
		initial = true
	}
	r.debouncer = NewDebouncer(debounce, initial)
	return r
}

// Run ticks until ctx is cancelled, then shuts the monitor down.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Infof("Starting tick loop every %s", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Infof("Tick loop stopping: %v", ctx.Err())
			r.monitor.Shutdown(context.Background(), r.clock())
			return nil
		case <-ticker.C:
			r.Step(ctx)
		}
	}
}

// Step runs a single tick. now is sampled once, before any blocking call.
func (r *Runner) Step(ctx context.Context) {
	now := r.clock()

	high, err := r.button.Level()
	switch {
	case err != nil:
		if !r.buttonFailing {
			r.logger.Errorf("Failed to read button: %v", err)
			r.buttonFailing = true
		}
	default:
		if r.buttonFailing {
			r.logger.Infof("Button readable again")
			r.buttonFailing = false
		}
		if r.debouncer.Sample(high, now) {
			r.logger.Debugf("Button pressed")
			r.monitor.Press(ctx, now)
		}
	}

	if r.monitor.Session() != types.SessionActive {
		r.frames = 0
		r.monitor.Rest(ctx, now)
		return
	}

	sig, err := r.source.Next(ctx)
	if err != nil {
		r.logger.Warnf("Perception unavailable: %v", err)
		sig = types.NoSignal
	}
	if sig.Valid && r.stale(now, sig.At) {
		sig = types.NoSignal
	}
	r.monitor.Observe(ctx, now, sig)

	if sig.Valid {
		r.countFrame(now)
	}
}

func (r *Runner) stale(now, at time.Time) bool {
	if at.IsZero() {
		return false
	}
	age := now.Sub(at)
	if age <= staleSignalAge {
		return false
	}
	r.staleSignals++
	if r.staleSignals == 1 || r.staleSignals%100 == 0 {
		r.logger.Warnf("Dropping stale perception signal, %s old (%d so far)", age.Round(time.Millisecond), r.staleSignals)
	}
	return true
}

func (r *Runner) countFrame(now time.Time) {
	if r.frames == 0 {
		r.framesSince = now
	}
	r.frames++
	if r.frames%fpsReportFrames != 0 {
		return
	}
	if elapsed := now.Sub(r.framesSince); elapsed > 0 {
		r.logger.Debugf("FPS: %.2f", float64(r.frames)/elapsed.Seconds())
	}
}
