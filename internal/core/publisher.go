package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"drowsy-monitor/internal/logger"
	"drowsy-monitor/internal/types"
)

var ErrPublisherClosed = errors.New("state publisher closed")

type stateUpdate struct {
	session types.SessionState
	alert   types.AlertState
}

// AsyncPublisher hands state to a publisher from its own goroutine. Only the
// latest state is kept: while a publish is in flight, newer states replace
// each other and the last one is sent next.
type AsyncPublisher struct {
	logger    *logger.Logger
	publisher StatePublisher
	timeout   time.Duration
	notify    chan struct{}
	done      chan struct{}

	mu      sync.Mutex
	pending stateUpdate
	dirty   bool
	closed  bool
}

func NewAsyncPublisher(l *logger.Logger, publisher StatePublisher) *AsyncPublisher {
	p := &AsyncPublisher{
		logger:    l.WithTag("Publisher"),
		publisher: publisher,
		timeout:   reportTimeout,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go p.run()
	return p
}

// PublishState records the state and returns at once.
func (p *AsyncPublisher) PublishState(_ context.Context, session types.SessionState, alert types.AlertState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPublisherClosed
	}
	if p.dirty {
		p.logger.Debugf("Unpublished state %s/%s superseded", p.pending.session, p.pending.alert)
	}
	p.pending = stateUpdate{session: session, alert: alert}
	p.dirty = true

	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close stops accepting states and waits until the latest one is sent.
func (p *AsyncPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.notify)
	p.mu.Unlock()

	<-p.done
}

func (p *AsyncPublisher) run() {
	defer close(p.done)

	for range p.notify {
		p.flush()
	}
	p.flush()
}

func (p *AsyncPublisher) flush() {
	p.mu.Lock()
	if !p.dirty {
		p.mu.Unlock()
		return
	}
	update := p.pending
	p.dirty = false
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.publisher.PublishState(ctx, update.session, update.alert); err != nil {
		p.logger.Warnf("Failed to publish state %s/%s: %v", update.session, update.alert, err)
	}
}
