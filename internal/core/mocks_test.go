package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"drowsy-monitor/internal/logger"
	"drowsy-monitor/internal/types"
)

// Mock Actuator
type mockActuator struct {
	buzzerCalls []bool
	ledCalls    []bool
	failBuzzer  bool
}

func (m *mockActuator) SetBuzzer(on bool) error {
	m.buzzerCalls = append(m.buzzerCalls, on)
	if m.failBuzzer {
		return errors.New("gpio gone")
	}
	return nil
}

func (m *mockActuator) SetLED(on bool) error {
	m.ledCalls = append(m.ledCalls, on)
	return nil
}

func (m *mockActuator) buzzer() bool {
	if len(m.buzzerCalls) == 0 {
		return false
	}
	return m.buzzerCalls[len(m.buzzerCalls)-1]
}

// Mock Display
type mockDisplay struct {
	writes [][]string
	fail   bool
}

func (m *mockDisplay) Write(lines []string) error {
	m.writes = append(m.writes, append([]string(nil), lines...))
	if m.fail {
		return errors.New("i2c nack")
	}
	return nil
}

func (m *mockDisplay) last() []string {
	if len(m.writes) == 0 {
		return nil
	}
	return m.writes[len(m.writes)-1]
}

// Mock BreakReporter
type reportCall struct {
	kind string
	at   time.Time
}

type mockReporter struct {
	mu    sync.Mutex
	calls []reportCall
	err   error
}

func (m *mockReporter) record(kind string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, reportCall{kind, at})
	return m.err
}

func (m *mockReporter) BeginBreak(_ context.Context, at time.Time) error {
	return m.record("begin", at)
}

func (m *mockReporter) EndBreak(_ context.Context, at time.Time) error {
	return m.record("end", at)
}

func (m *mockReporter) ThresholdCrossed(_ context.Context, at time.Time) error {
	return m.record("threshold", at)
}

func (m *mockReporter) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		kinds = append(kinds, c.kind)
	}
	return kinds
}

func (m *mockReporter) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

// Mock StatePublisher
type publishedState struct {
	session types.SessionState
	alert   types.AlertState
}

type mockPublisher struct {
	states []publishedState
}

func (m *mockPublisher) PublishState(_ context.Context, session types.SessionState, alert types.AlertState) error {
	m.states = append(m.states, publishedState{session, alert})
	return nil
}

// Mock Button
type mockButton struct {
	high bool
	err  error
}

func (m *mockButton) Level() (bool, error) {
	return m.high, m.err
}

// Mock PerceptionSource
type mockSource struct {
	signals []types.Signal
	err     error
	calls   int
}

func (m *mockSource) Next(_ context.Context) (types.Signal, error) {
	m.calls++
	if m.err != nil {
		return types.NoSignal, m.err
	}
	if len(m.signals) == 0 {
		return types.NoSignal, nil
	}
	sig := m.signals[0]
	m.signals = m.signals[1:]
	return sig, nil
}

// Test helpers

var epoch = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}

func testLogger() *logger.Logger {
	return logger.NewLogger(nil, logger.LogLevelError)
}

func testSettings() Settings {
	return Settings{
		Arbiter: ArbiterConfig{
			FaceMissingTime: 2 * time.Second,
			EyeClosedTime:   3 * time.Second,
			YawnThreshold:   3,
			YawnWindow:      60 * time.Second,
		},
		RestThreshold:   1200 * time.Second,
		ClosedFrames:    1,
		TransitionPulse: time.Second,
	}
}

type harness struct {
	monitor   *Monitor
	sink      *OutputSink
	actuator  *mockActuator
	display   *mockDisplay
	reporter  *mockReporter
	publisher *mockPublisher
	slept     []time.Duration
}

func newHarness(settings Settings) *harness {
	h := &harness{
		actuator:  &mockActuator{},
		display:   &mockDisplay{},
		reporter:  &mockReporter{},
		publisher: &mockPublisher{},
	}
	h.sink = NewOutputSink(h.actuator, h.display, h.publisher, testLogger())
	h.sink.sleep = func(d time.Duration) { h.slept = append(h.slept, d) }
	h.monitor = NewMonitor(settings, h.sink, h.reporter, testLogger())
	return h
}

func face(eyesClosed bool) types.Signal {
	return types.Signal{Valid: true, FacePresent: true, EyesClosed: eyesClosed}
}

func noFace() types.Signal {
	return types.Signal{Valid: true}
}

func mouth(open bool) types.Signal {
	return types.Signal{Valid: true, FacePresent: true, MouthOpen: open}
}
