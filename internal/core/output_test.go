package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"drowsy-monitor/internal/types"
)

func newTestSink() (*OutputSink, *mockActuator, *mockDisplay, *mockPublisher, *[]time.Duration) {
	actuator := &mockActuator{}
	display := &mockDisplay{}
	publisher := &mockPublisher{}
	slept := &[]time.Duration{}
	sink := NewOutputSink(actuator, display, publisher, testLogger())
	sink.sleep = func(d time.Duration) { *slept = append(*slept, d) }
	return sink, actuator, display, publisher, slept
}

func TestOutputSinkSkipsIdenticalText(t *testing.T) {
	sink, _, display, _, _ := newTestSink()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		sink.Apply(ctx, types.SessionActive, types.AlertNormal, nil)
	}
	require.Len(t, display.writes, 1)

	sink.Apply(ctx, types.SessionActive, types.AlertEyesClosedWarning, nil)
	sink.Apply(ctx, types.SessionActive, types.AlertEyesClosedWarning, nil)
	sink.Apply(ctx, types.SessionActive, types.AlertNormal, nil)
	require.Len(t, display.writes, 3)

	for i := 1; i < len(display.writes); i++ {
		require.NotEqual(t, display.writes[i-1], display.writes[i], "adjacent writes must differ")
	}
}

func TestOutputSinkDrivesBuzzerAndLEDTogether(t *testing.T) {
	sink, actuator, _, _, _ := newTestSink()
	ctx := context.Background()

	sink.Apply(ctx, types.SessionActive, types.AlertNormal, nil)
	sink.Apply(ctx, types.SessionActive, types.AlertNormal, nil)
	require.Equal(t, []bool{false}, actuator.buzzerCalls, "initial state written once")
	require.Equal(t, actuator.buzzerCalls, actuator.ledCalls)

	sink.Apply(ctx, types.SessionActive, types.AlertFaceMissingWarning, nil)
	sink.Apply(ctx, types.SessionActive, types.AlertEyesClosedWarning, nil)
	require.Equal(t, []bool{false, true}, actuator.buzzerCalls, "still on across alert kinds")
	require.Equal(t, actuator.buzzerCalls, actuator.ledCalls)

	sink.Apply(ctx, types.SessionActive, types.AlertNormal, nil)
	require.Equal(t, []bool{false, true, false}, actuator.ledCalls)
}

func TestOutputSinkRestCompleteHoldsIndicator(t *testing.T) {
	sink, actuator, display, _, _ := newTestSink()
	ctx := context.Background()

	sink.Apply(ctx, types.SessionPaused, types.AlertNormal, &RestDisplay{Duration: time.Minute, Now: at(60)})
	require.False(t, actuator.buzzer())

	sink.Apply(ctx, types.SessionPaused, types.AlertNormal, &RestDisplay{Duration: 20 * time.Minute, Now: at(1200), Complete: true})
	require.True(t, actuator.buzzer())
	require.Equal(t, "Rest complete!", display.last()[1])
}

func TestOutputSinkKeepsGoingWhenCollaboratorsFail(t *testing.T) {
	sink, actuator, display, _, _ := newTestSink()
	actuator.failBuzzer = true
	display.fail = true
	ctx := context.Background()

	sink.Apply(ctx, types.SessionActive, types.AlertFaceMissingWarning, nil)
	require.Equal(t, []bool{true}, actuator.ledCalls, "LED still driven after buzzer failure")

	sink.Apply(ctx, types.SessionActive, types.AlertFaceMissingWarning, nil)
	require.Len(t, display.writes, 1, "a failed write is not retried with the same text")
}

func TestOutputSinkPublishesOnChangeOnly(t *testing.T) {
	sink, _, _, publisher, _ := newTestSink()
	ctx := context.Background()

	sink.Apply(ctx, types.SessionPaused, types.AlertNormal, &RestDisplay{Now: at(0)})
	sink.Apply(ctx, types.SessionPaused, types.AlertNormal, &RestDisplay{Duration: time.Second, Now: at(1)})
	sink.Apply(ctx, types.SessionActive, types.AlertNormal, nil)
	sink.Apply(ctx, types.SessionActive, types.AlertEyesClosedWarning, nil)
	sink.Apply(ctx, types.SessionActive, types.AlertEyesClosedWarning, nil)

	require.Equal(t, []publishedState{
		{types.SessionPaused, types.AlertNormal},
		{types.SessionActive, types.AlertNormal},
		{types.SessionActive, types.AlertEyesClosedWarning},
	}, publisher.states)
}

func TestOutputSinkPulse(t *testing.T) {
	sink, actuator, _, _, slept := newTestSink()
	ctx := context.Background()

	sink.Apply(ctx, types.SessionActive, types.AlertNormal, nil)
	sink.Pulse(time.Second)
	require.Equal(t, []bool{false, true, false}, actuator.buzzerCalls)
	require.Equal(t, actuator.buzzerCalls, actuator.ledCalls)
	require.Equal(t, []time.Duration{time.Second}, *slept)

	// already on: the pulse does not switch anything
	sink.Apply(ctx, types.SessionActive, types.AlertEyesClosedWarning, nil)
	sink.Pulse(time.Second)
	require.Equal(t, []bool{false, true, false, true}, actuator.buzzerCalls)

	sink.Pulse(0)
	require.Len(t, *slept, 2)
}

func TestOutputSinkOff(t *testing.T) {
	sink, actuator, display, _, _ := newTestSink()
	ctx := context.Background()

	sink.Apply(ctx, types.SessionActive, types.AlertFaceMissingWarning, nil)
	sink.Off()
	require.False(t, actuator.buzzer())
	require.False(t, actuator.ledCalls[len(actuator.ledCalls)-1])
	require.Equal(t, "System Stopped", display.last()[0])
}

func TestComposeLines(t *testing.T) {
	tests := []struct {
		name    string
		session types.SessionState
		alert   types.AlertState
		rest    *RestDisplay
		first   string
	}{
		{"monitoring", types.SessionActive, types.AlertNormal, nil, "Monitoring"},
		{"face missing", types.SessionActive, types.AlertFaceMissingWarning, nil, "No Face Found!"},
		{"eyes closed", types.SessionActive, types.AlertEyesClosedWarning, nil, "Drowsiness!"},
		{"fatigue", types.SessionActive, types.AlertFatigueBreakRequired, nil, "Fatigue Detected"},
		{"paused without rest", types.SessionPaused, types.AlertNormal, nil, "System Paused"},
		{"resting", types.SessionPaused, types.AlertNormal, &RestDisplay{Duration: 192 * time.Second, Now: at(0)}, "Rest: 3m 12s"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lines := ComposeLines(tc.session, tc.alert, tc.rest)
			require.LessOrEqual(t, len(lines), displayRows)
			require.Equal(t, tc.first, lines[0])
		})
	}

	lines := ComposeLines(types.SessionPaused, types.AlertNormal, &RestDisplay{Duration: 61 * time.Second, Now: at(0)})
	require.Equal(t, []string{"Rest: 1m 1s", "", "Time:", "2026-03-14 08:00:00"}, lines)
}

func TestShowTransition(t *testing.T) {
	sink, _, display, _, _ := newTestSink()

	sink.ShowTransition(types.SessionPaused, at(3723))
	require.Equal(t, []string{"System Paused", "Resting", "Start Time:", "09:02:03"}, display.last())

	sink.ShowTransition(types.SessionActive, at(3724))
	require.True(t, strings.HasPrefix(display.last()[0], "System Activated"))
}
