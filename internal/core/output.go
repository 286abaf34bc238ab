package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"drowsy-monitor/internal/logger"
	"drowsy-monitor/internal/types"
)

const displayRows = 4

// RestDisplay is what the paused screen needs to know about the rest.
type RestDisplay struct {
	Duration time.Duration
	Now      time.Time
	Complete bool
}

// OutputSink is the only writer to the actuator, display and state
// publisher. It remembers what it last wrote and skips identical writes.
type OutputSink struct {
	logger    *logger.Logger
	actuator  Actuator
	display   Display
	publisher StatePublisher
	sleep     func(time.Duration)

	lastText     string
	textWritten  bool
	indicator    bool
	indicatorSet bool

	lastSession types.SessionState
	lastAlert   types.AlertState
	published   bool
}

func NewOutputSink(actuator Actuator, display Display, publisher StatePublisher, l *logger.Logger) *OutputSink {
	return &OutputSink{
		logger:    l.WithTag("Output"),
		actuator:  actuator,
		display:   display,
		publisher: publisher,
		sleep:     time.Sleep,
	}
}

// Apply brings the outputs in line with the given state.
func (s *OutputSink) Apply(ctx context.Context, session types.SessionState, alert types.AlertState, rest *RestDisplay) {
	s.writeLines(ComposeLines(session, alert, rest))

	indicator := alert != types.AlertNormal ||
		(session == types.SessionPaused && rest != nil && rest.Complete)
	if !s.indicatorSet || indicator != s.indicator {
		s.setIndicator(indicator)
	}

	if s.publisher != nil && (!s.published || session != s.lastSession || alert != s.lastAlert) {
		s.lastSession = session
		s.lastAlert = alert
		s.published = true
		if err := s.publisher.PublishState(ctx, session, alert); err != nil {
			s.logger.Warnf("Failed to publish state %s/%s: %v", session, alert, err)
		}
	}
}

// ShowTransition writes the confirmation screen for entering session.
func (s *OutputSink) ShowTransition(session types.SessionState, at time.Time) {
	if session == types.SessionActive {
		s.writeLines([]string{"System Activated", "Monitoring ON", "", ""})
		return
	}
	s.writeLines([]string{"System Paused", "Resting", "Start Time:", at.Format("15:04:05")})
}

// ShowMessage writes an arbitrary screen, used at start-up.
func (s *OutputSink) ShowMessage(lines ...string) {
	s.writeLines(lines)
}

// Pulse turns buzzer and LED on for d, then restores them. If the
// indicator is already on the pulse only waits.
func (s *OutputSink) Pulse(d time.Duration) {
	if d <= 0 {
		return
	}
	if s.indicatorSet && s.indicator {
		s.sleep(d)
		return
	}
	s.setIndicator(true)
	s.sleep(d)
	s.setIndicator(false)
}

// Off forces buzzer and LED off and leaves a final screen.
func (s *OutputSink) Off() {
	s.setIndicator(false)
	s.writeLines([]string{"System Stopped", "", "", ""})
}

func (s *OutputSink) setIndicator(on bool) {
	s.indicator = on
	s.indicatorSet = true
	if err := s.actuator.SetBuzzer(on); err != nil {
		s.logger.Warnf("Failed to set buzzer=%v: %v", on, err)
	}
	if err := s.actuator.SetLED(on); err != nil {
		s.logger.Warnf("Failed to set LED=%v: %v", on, err)
	}
}

func (s *OutputSink) writeLines(lines []string) {
	padded := make([]string, displayRows)
	copy(padded, lines)

	text := strings.Join(padded, " | ")
	if s.textWritten && text == s.lastText {
		return
	}
	s.lastText = text
	s.textWritten = true

	s.logger.Debugf("LCD: %s", text)
	if err := s.display.Write(padded); err != nil {
		s.logger.Warnf("Failed to write display: %v", err)
	}
}

// ComposeLines maps a state combination to its fixed screen template.
func ComposeLines(session types.SessionState, alert types.AlertState, rest *RestDisplay) []string {
	if session == types.SessionPaused {
		if rest == nil {
			return []string{"System Paused", "Press to start", "", ""}
		}
		status := ""
		if rest.Complete {
			status = "Rest complete!"
		}
		return []string{
			formatRest(rest.Duration),
			status,
			"Time:",
			rest.Now.Format("2006-01-02 15:04:05"),
		}
	}

	switch alert {
	case types.AlertFaceMissingWarning:
		return []string{"No Face Found!", "Wake Up!", "Stop the vehicle now", "Get Rest Now!"}
	case types.AlertEyesClosedWarning:
		return []string{"Drowsiness!", "Wake Up!", "Stop the vehicle now", "Get Rest Now!"}
	case types.AlertFatigueBreakRequired:
		return []string{"Fatigue Detected", "Frequent yawning", "Take a break soon", "Press to confirm"}
	default:
		return []string{"Monitoring", "Normal", "", ""}
	}
}

func formatRest(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("Rest: %dm %ds", total/60, total%60)
}
