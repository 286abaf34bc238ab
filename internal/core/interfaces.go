package core

import (
	"context"
	"time"

	"drowsy-monitor/internal/types"
)

// PerceptionSource yields one signal per tick. It may block up to the tick
// interval and returns types.NoSignal when nothing usable arrived.
type PerceptionSource interface {
	Next(ctx context.Context) (types.Signal, error)
}

// Actuator drives the buzzer and LED pair.
type Actuator interface {
	SetBuzzer(on bool) error
	SetLED(on bool) error
}

// Display shows up to four lines; the driver truncates to its width.
type Display interface {
	Write(lines []string) error
}

// Button reports the raw line level; true is electrically high (released,
// the button pulls the line low).
type Button interface {
	Level() (bool, error)
}

// BreakReporter receives break lifecycle notifications. Implementations log
// their own failures; the returned error is only logged by the caller.
type BreakReporter interface {
	BeginBreak(ctx context.Context, at time.Time) error
	EndBreak(ctx context.Context, at time.Time) error
	ThresholdCrossed(ctx context.Context, at time.Time) error
}

// StatePublisher mirrors session and alert state to an external observer.
type StatePublisher interface {
	PublishState(ctx context.Context, session types.SessionState, alert types.AlertState) error
}
