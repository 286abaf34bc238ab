package core

import (
	"time"

	"drowsy-monitor/internal/types"
)

// ArbiterConfig carries the thresholds the arbiter is built with.
type ArbiterConfig struct {
	FaceMissingTime time.Duration
	EyeClosedTime   time.Duration
	YawnThreshold   int
	YawnWindow      time.Duration
}

// Inputs are one valid frame's facts. EyesClosed is already debounced by
// the consecutive-frame filter.
type Inputs struct {
	FacePresent bool
	EyesClosed  bool
}

// Outcome is the arbiter's verdict for a tick.
type Outcome struct {
	State   types.AlertState
	Changed bool
	// Raised lists latches raised during this tick, highest priority first.
	Raised []types.AlertState
}

type latch struct {
	kind     types.AlertState
	raised   bool
	raisedAt time.Time
}

// Arbiter turns timer expirations and yawn counts into latched alerts. A
// latch stays raised until Acknowledge, whatever the condition does.
type Arbiter struct {
	cfg         ArbiterConfig
	faceMissing ElapsedTimer
	eyesClosed  ElapsedTimer
	yawns       *SlidingWindow
	latches     []latch
	state       types.AlertState
}

func NewArbiter(cfg ArbiterConfig) *Arbiter {
	return &Arbiter{
		cfg:   cfg,
		yawns: NewSlidingWindow(cfg.YawnWindow),
		// ordered by priority, highest first
		latches: []latch{
			{kind: types.AlertFaceMissingWarning},
			{kind: types.AlertEyesClosedWarning},
			{kind: types.AlertFatigueBreakRequired},
		},
		state: types.AlertNormal,
	}
}

func (a *Arbiter) RecordYawn(at time.Time) {
	a.yawns.Record(at)
}

// Evaluate applies one frame at now.
func (a *Arbiter) Evaluate(now time.Time, in Inputs) Outcome {
	var raised []types.AlertState

	if !in.FacePresent {
		a.faceMissing.ArmIfIdle(now)
		if a.faceMissing.Elapsed(now) >= a.cfg.FaceMissingTime && a.raise(types.AlertFaceMissingWarning, now) {
			raised = append(raised, types.AlertFaceMissingWarning)
		}
	} else {
		a.faceMissing.Clear()

		// eyes are only observable with a face in view
		if in.EyesClosed {
			a.eyesClosed.ArmIfIdle(now)
			if a.eyesClosed.Elapsed(now) >= a.cfg.EyeClosedTime && a.raise(types.AlertEyesClosedWarning, now) {
				raised = append(raised, types.AlertEyesClosedWarning)
			}
		} else {
			a.eyesClosed.Clear()
		}
	}

	if a.yawns.Count(now) >= a.cfg.YawnThreshold && !a.Raised(types.AlertFatigueBreakRequired) {
		a.raise(types.AlertFatigueBreakRequired, now)
		a.yawns.Clear()
		raised = append(raised, types.AlertFatigueBreakRequired)
	}

	next := a.resolve()
	changed := next != a.state
	a.state = next

	return Outcome{State: next, Changed: changed, Raised: raised}
}

// raise sets the latch for kind; it reports false if it was already raised.
func (a *Arbiter) raise(kind types.AlertState, now time.Time) bool {
	for i := range a.latches {
		if a.latches[i].kind != kind {
			continue
		}
		if a.latches[i].raised {
			return false
		}
		a.latches[i].raised = true
		a.latches[i].raisedAt = now
		return true
	}
	return false
}

// resolve picks the highest priority raised latch, earliest raise winning
// between equal priorities.
func (a *Arbiter) resolve() types.AlertState {
	best := -1
	for i, l := range a.latches {
		if !l.raised {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := a.latches[best]
		if l.kind.Priority() > b.kind.Priority() ||
			(l.kind.Priority() == b.kind.Priority() && l.raisedAt.Before(b.raisedAt)) {
			best = i
		}
	}
	if best < 0 {
		return types.AlertNormal
	}
	return a.latches[best].kind
}

func (a *Arbiter) Raised(kind types.AlertState) bool {
	for _, l := range a.latches {
		if l.kind == kind {
			return l.raised
		}
	}
	return false
}

func (a *Arbiter) AnyRaised() bool {
	for _, l := range a.latches {
		if l.raised {
			return true
		}
	}
	return false
}

func (a *Arbiter) State() types.AlertState {
	return a.state
}

// Acknowledge clears every latch and every timer.
func (a *Arbiter) Acknowledge() {
	for i := range a.latches {
		a.latches[i].raised = false
		a.latches[i].raisedAt = time.Time{}
	}
	a.ResetTimers()
	a.state = types.AlertNormal
}

// ResetTimers idles the condition timers and empties the yawn window
// without touching latches.
func (a *Arbiter) ResetTimers() {
	a.faceMissing.Clear()
	a.eyesClosed.Clear()
	a.yawns.Clear()
}
