package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"drowsy-monitor/internal/logger"
)

var (
	ErrReporterClosed  = errors.New("break reporter closed")
	ErrReportQueueFull = errors.New("break report queue full")
)

const reportTimeout = 5 * time.Second

type breakEventKind int

const (
	breakBegin breakEventKind = iota
	breakEnd
	breakThreshold
)

func (k breakEventKind) String() string {
	switch k {
	case breakBegin:
		return "begin"
	case breakEnd:
		return "end"
	default:
		return "threshold"
	}
}

type breakEvent struct {
	kind breakEventKind
	at   time.Time
}

// AsyncReporter fans break events out to several reporters from a single
// worker, so a slow remote never stalls the tick. Events are delivered in
// the order they were queued.
type AsyncReporter struct {
	logger    *logger.Logger
	reporters []BreakReporter
	queue     chan breakEvent
	wg        sync.WaitGroup
	mu        sync.Mutex
	closed    bool
}

func NewAsyncReporter(l *logger.Logger, size int, reporters ...BreakReporter) *AsyncReporter {
	if size <= 0 {
		size = 16
	}
	r := &AsyncReporter{
		logger:    l.WithTag("Reporter"),
		reporters: reporters,
		queue:     make(chan breakEvent, size),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *AsyncReporter) BeginBreak(_ context.Context, at time.Time) error {
	return r.enqueue(breakEvent{kind: breakBegin, at: at})
}

func (r *AsyncReporter) EndBreak(_ context.Context, at time.Time) error {
	return r.enqueue(breakEvent{kind: breakEnd, at: at})
}

func (r *AsyncReporter) ThresholdCrossed(_ context.Context, at time.Time) error {
	return r.enqueue(breakEvent{kind: breakThreshold, at: at})
}

// Close stops accepting events and waits until queued ones are delivered.
func (r *AsyncReporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *AsyncReporter) enqueue(ev breakEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrReporterClosed
	}
	select {
	case r.queue <- ev:
		return nil
	default:
		return ErrReportQueueFull
	}
}

func (r *AsyncReporter) run() {
	defer r.wg.Done()

	for ev := range r.queue {
		for _, reporter := range r.reporters {
			r.deliver(reporter, ev)
		}
	}
}

func (r *AsyncReporter) deliver(reporter BreakReporter, ev breakEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	var err error
	switch ev.kind {
	case breakBegin:
		err = reporter.BeginBreak(ctx, ev.at)
	case breakEnd:
		err = reporter.EndBreak(ctx, ev.at)
	case breakThreshold:
		err = reporter.ThresholdCrossed(ctx, ev.at)
	}
	if err != nil {
		r.logger.Warnf("Failed to deliver %s break event: %v", ev.kind, err)
	}
}
