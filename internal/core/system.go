package core

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"drowsy-monitor/internal/config"
	"drowsy-monitor/internal/logger"
	"drowsy-monitor/internal/messaging"
	"drowsy-monitor/internal/perception"
	"drowsy-monitor/internal/types"
)

const (
	perceptionQueueSize = 8
	reportQueueSize     = 16
)

// HardwareIO is the GPIO side of the device.
type HardwareIO interface {
	Initialize() error
	Actuator
	Button
	Cleanup()
}

// DisplayDevice is a Display that holds a bus open.
type DisplayDevice interface {
	Display
	Close() error
}

// MessagingClient is the remote side: commands and perception in, breaks and
// state out.
type MessagingClient interface {
	SetCallbacks(callbacks messaging.Callbacks)
	Connect() error
	StartListening() error
	Close() error
	BreakReporter
	StatePublisher
}

// Journal is a local BreakReporter that must be closed.
type Journal interface {
	BreakReporter
	io.Closer
}

// Deps are the collaborators a System is assembled from. Messaging and
// Journal are optional.
type Deps struct {
	Hardware  HardwareIO
	Display   DisplayDevice
	Messaging MessagingClient
	Journal   Journal
}

// DrowsinessSystem wires the devices, the remote client and the monitor
// together and owns their lifecycle.
type DrowsinessSystem struct {
	logger     *logger.Logger
	cfg        *config.Config
	deps       Deps
	clock      func() time.Time
	classifier perception.Classifier
	queue      *perception.Queue

	sink      *OutputSink
	reporter  *AsyncReporter
	publisher *AsyncPublisher
	monitor   *Monitor
	runner    *Runner

	shutdownOnce sync.Once
	badFrames    int
}

func NewDrowsinessSystem(cfg *config.Config, deps Deps, l *logger.Logger) *DrowsinessSystem {
	return &DrowsinessSystem{
		logger: l.WithTag("System"),
		cfg:    cfg,
		deps:   deps,
		clock:  time.Now,
		classifier: perception.Classifier{
			EARThreshold:  cfg.EARThreshold,
			MinConfidence: cfg.MinConfidence,
		},
		// half a tick, so a missing frame never stretches the tick
		queue: perception.NewQueue(perceptionQueueSize, cfg.TickInterval/2, l),
	}
}

func (s *DrowsinessSystem) Start() error {
	s.logger.Infof("Starting drowsiness monitor")

	if err := s.deps.Hardware.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize hardware: %w", err)
	}

	if s.deps.Messaging != nil {
		if err := s.deps.Messaging.Connect(); err != nil {
			s.logger.Warnf("Continuing without Redis: %v", err)
			s.deps.Messaging.Close()
			s.deps.Messaging = nil
		}
	}

	var publisher StatePublisher
	var reporters []BreakReporter
	if s.deps.Journal != nil {
		reporters = append(reporters, s.deps.Journal)
	}
	if s.deps.Messaging != nil {
		reporters = append(reporters, s.deps.Messaging)
		s.publisher = NewAsyncPublisher(s.logger, s.deps.Messaging)
		publisher = s.publisher
	}
	s.reporter = NewAsyncReporter(s.logger, reportQueueSize, reporters...)

	s.sink = NewOutputSink(s.deps.Hardware, s.deps.Display, publisher, s.logger)
	s.sink.ShowMessage("Initializing...")

	s.monitor = NewMonitor(Settings{
		Arbiter: ArbiterConfig{
			FaceMissingTime: s.cfg.FaceMissingTime,
			EyeClosedTime:   s.cfg.EyeClosedTime,
			YawnThreshold:   s.cfg.YawnThreshold,
			YawnWindow:      s.cfg.YawnWindow,
		},
		RestThreshold:   s.cfg.RestThreshold,
		ClosedFrames:    s.cfg.ClosedFrames,
		TransitionPulse: s.cfg.TransitionPulse,
	}, s.sink, s.reporter, s.logger)

	s.runner = NewRunner(s.monitor, s.deps.Hardware, s.queue, s.cfg.Debounce, s.cfg.TickInterval, s.logger)
	s.runner.clock = s.clock

	if s.deps.Messaging != nil {
		s.deps.Messaging.SetCallbacks(messaging.Callbacks{
			SessionCallback:     s.handleSessionCommand,
			AcknowledgeCallback: s.handleAcknowledgeCommand,
			FrameCallback:       s.handleFrame,
		})
		if err := s.deps.Messaging.StartListening(); err != nil {
			return fmt.Errorf("failed to start Redis listeners: %w", err)
		}
	}

	s.logger.Infof("System started successfully")
	return nil
}

// Run drives the tick loop until ctx is cancelled.
func (s *DrowsinessSystem) Run(ctx context.Context) error {
	return s.runner.Run(ctx)
}

// Monitor exposes the session for status queries.
func (s *DrowsinessSystem) Monitor() *Monitor {
	return s.monitor
}

// Shutdown drains pending reports and releases every device. Call after Run
// has returned.
func (s *DrowsinessSystem) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.logger.Infof("Shutting down")

		if s.reporter != nil {
			s.reporter.Close()
		}
		if s.publisher != nil {
			s.publisher.Close()
		}
		if s.deps.Messaging != nil {
			if err := s.deps.Messaging.Close(); err != nil {
				s.logger.Warnf("Failed to close Redis: %v", err)
			}
		}
		if s.deps.Journal != nil {
			if err := s.deps.Journal.Close(); err != nil {
				s.logger.Warnf("Failed to close journal: %v", err)
			}
		}
		if err := s.deps.Display.Close(); err != nil {
			s.logger.Warnf("Failed to close display: %v", err)
		}
		s.deps.Hardware.Cleanup()
	})
}

func (s *DrowsinessSystem) handleSessionCommand(target types.SessionState) error {
	s.logger.Infof("Remote session command: %s", target)
	s.monitor.SetSession(context.Background(), s.clock(), target)
	return nil
}

func (s *DrowsinessSystem) handleAcknowledgeCommand() error {
	if !s.monitor.Acknowledge(context.Background(), s.clock()) {
		s.logger.Infof("Remote acknowledge with no alert raised")
	}
	return nil
}

func (s *DrowsinessSystem) handleFrame(payload string) {
	frame, err := perception.DecodeFrame([]byte(payload))
	if err != nil {
		s.badFrames++
		if s.badFrames == 1 || s.badFrames%100 == 0 {
			s.logger.Warnf("Dropping bad perception frame (%d so far): %v", s.badFrames, err)
		}
		return
	}
	s.queue.Push(s.classifier.Signal(frame, s.clock()))
}
