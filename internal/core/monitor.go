package core

import (
	"context"
	"sync"
	"time"

	"drowsy-monitor/internal/logger"
	"drowsy-monitor/internal/types"
)

// Settings are the numeric knobs the monitor is built with.
type Settings struct {
	Arbiter         ArbiterConfig
	RestThreshold   time.Duration
	ClosedFrames    int
	TransitionPulse time.Duration
}

type restTracker struct {
	start       time.Time
	started     bool
	breakLogged bool
	// breakOpen is set between a reported BeginBreak and its EndBreak.
	breakOpen           bool
	firstActivationSeen bool
}

// Monitor is the monitoring session: it owns Active/Paused, rest tracking and
// the arbiter, and is the only caller of the output sink. All methods are
// safe for concurrent use; each one is applied atomically.
type Monitor struct {
	mu       sync.Mutex
	logger   *logger.Logger
	settings Settings
	session  types.SessionState
	arbiter  *Arbiter
	sink     *OutputSink
	reporter BreakReporter
	rest     restTracker

	closedFrames int
	mouthOpen    bool
	// set by Shutdown; later calls change nothing
	stopped bool
}

func NewMonitor(settings Settings, sink *OutputSink, reporter BreakReporter, l *logger.Logger) *Monitor {
	return &Monitor{
		logger:   l.WithTag("Session"),
		settings: settings,
		session:  types.SessionPaused,
		arbiter:  NewArbiter(settings.Arbiter),
		sink:     sink,
		reporter: reporter,
	}
}

func (m *Monitor) Session() types.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Monitor) Alert() types.AlertState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.arbiter.State()
}

// Press handles one debounced button press. With any alert latched the press
// is an acknowledgement and never toggles the session.
func (m *Monitor) Press(ctx context.Context, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	if m.arbiter.AnyRaised() {
		m.acknowledge(ctx, now, "button")
		return
	}

	if m.session == types.SessionActive {
		m.pause(ctx, now)
	} else {
		m.activate(ctx, now)
	}
}

// Acknowledge clears raised alerts on behalf of a remote operator. It
// reports whether anything was latched.
func (m *Monitor) Acknowledge(ctx context.Context, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || !m.arbiter.AnyRaised() {
		return false
	}
	m.acknowledge(ctx, now, "remote")
	return true
}

// SetSession switches to target on behalf of a remote command. Latched
// alerts are cleared first, since the driver is now being told to rest or
// has been cleared to drive.
func (m *Monitor) SetSession(ctx context.Context, now time.Time, target types.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		m.logger.Infof("Ignoring remote %s after shutdown", target)
		return
	}
	if target == m.session {
		m.logger.Debugf("Session already %s", target)
		return
	}

	if m.arbiter.AnyRaised() {
		m.logger.Infof("Clearing %s before remote %s", m.arbiter.State(), target)
		m.arbiter.Acknowledge()
		m.resetFrames()
	}

	if target == types.SessionPaused {
		m.pause(ctx, now)
	} else {
		m.activate(ctx, now)
	}
}

// Observe feeds one perception signal while Active. An invalid signal holds
// every timer and latch as they are.
func (m *Monitor) Observe(ctx context.Context, now time.Time, sig types.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || m.session != types.SessionActive {
		return
	}

	if !sig.Valid {
		m.sink.Apply(ctx, m.session, m.arbiter.State(), nil)
		return
	}

	if sig.FacePresent {
		if sig.EyesClosed {
			m.closedFrames++
		} else {
			m.closedFrames = 0
		}

		if sig.MouthOpen && !m.mouthOpen {
			m.logger.Debugf("Yawn at %s", now.Format(time.TimeOnly))
			m.arbiter.RecordYawn(now)
		}
		m.mouthOpen = sig.MouthOpen
	}

	out := m.arbiter.Evaluate(now, Inputs{
		FacePresent: sig.FacePresent,
		EyesClosed:  m.closedFrames >= m.settings.ClosedFrames,
	})
	for _, kind := range out.Raised {
		m.logger.Warnf("Alert raised: %s", kind)
	}
	if out.Changed {
		m.logger.Infof("Alert state: %s", out.State)
	}

	m.sink.Apply(ctx, m.session, out.State, nil)
}

// Rest advances rest tracking while Paused.
func (m *Monitor) Rest(ctx context.Context, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || m.session != types.SessionPaused {
		return
	}
	m.restTick(ctx, now)
}

// Shutdown closes an open break and forces every output off. Presses,
// signals and remote commands arriving afterwards are ignored.
func (m *Monitor) Shutdown(ctx context.Context, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.stopped = true

	if m.rest.breakOpen {
		m.logger.Infof("Closing open break on shutdown")
		m.report(ctx, "end", now, m.reporter.EndBreak)
		m.rest.breakOpen = false
	}
	m.sink.Off()
}

func (m *Monitor) acknowledge(ctx context.Context, now time.Time, source string) {
	m.logger.Infof("Alert %s acknowledged (%s)", m.arbiter.State(), source)
	m.arbiter.Acknowledge()
	m.resetFrames()

	if m.session == types.SessionActive {
		m.sink.Apply(ctx, m.session, m.arbiter.State(), nil)
	} else {
		m.restTick(ctx, now)
	}
}

func (m *Monitor) pause(ctx context.Context, now time.Time) {
	m.logger.Infof("Session %s -> %s", m.session, types.SessionPaused)
	m.session = types.SessionPaused
	m.arbiter.ResetTimers()
	m.resetFrames()

	m.rest = restTracker{
		start:               now,
		started:             true,
		breakOpen:           true,
		firstActivationSeen: m.rest.firstActivationSeen,
	}
	m.report(ctx, "begin", now, m.reporter.BeginBreak)

	m.sink.ShowTransition(types.SessionPaused, now)
	m.sink.Pulse(m.settings.TransitionPulse)
	m.restTick(ctx, now)
}

func (m *Monitor) activate(ctx context.Context, now time.Time) {
	m.logger.Infof("Session %s -> %s", m.session, types.SessionActive)
	m.session = types.SessionActive

	if !m.rest.firstActivationSeen {
		// start-up grace: the time before the first activation is not a break
		m.rest.firstActivationSeen = true
	} else {
		m.rest = restTracker{firstActivationSeen: true}
		m.report(ctx, "end", now, m.reporter.EndBreak)
	}

	m.arbiter.ResetTimers()
	m.resetFrames()

	m.sink.ShowTransition(types.SessionActive, now)
	m.sink.Pulse(m.settings.TransitionPulse)
	m.sink.Apply(ctx, m.session, m.arbiter.State(), nil)
}

func (m *Monitor) restTick(ctx context.Context, now time.Time) {
	if !m.rest.started {
		m.rest.start = now
		m.rest.started = true
	}

	d := now.Sub(m.rest.start)
	if d < 0 {
		d = 0
	}
	complete := d >= m.settings.RestThreshold

	if complete && !m.rest.breakLogged {
		m.rest.breakLogged = true
		m.logger.Infof("Rest threshold of %s reached", m.settings.RestThreshold)
		m.report(ctx, "threshold", now, m.reporter.ThresholdCrossed)
	}

	m.sink.Apply(ctx, m.session, m.arbiter.State(), &RestDisplay{
		Duration: d,
		Now:      now,
		Complete: complete,
	})
}

func (m *Monitor) resetFrames() {
	m.closedFrames = 0
	m.mouthOpen = false
}

func (m *Monitor) report(ctx context.Context, what string, at time.Time, fn func(context.Context, time.Time) error) {
	if err := fn(ctx, at); err != nil {
		m.logger.Warnf("Failed to report %s break: %v", what, err)
	}
}
