package perception

import (
	"context"
	"sync"
	"time"

	"drowsy-monitor/internal/logger"
	"drowsy-monitor/internal/types"
)

const skipLogEvery = 100

// Queue buffers signals between the perception feed and the tick loop. The
// vision process usually runs faster than the tick, so Next hands out the
// newest signal and discards the older ones.
type Queue struct {
	logger  *logger.Logger
	mu      sync.Mutex
	items   []types.Signal
	size    int
	notify  chan struct{}
	wait    time.Duration
	skipped int
}

// NewQueue returns a queue holding up to size signals whose Next waits at
// most wait for one to arrive.
func NewQueue(size int, wait time.Duration, l *logger.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		logger: l.WithTag("Perception"),
		size:   size,
		notify: make(chan struct{}, 1),
		wait:   wait,
	}
}

// Push appends sig, evicting the oldest entry if the queue is full.
func (q *Queue) Push(sig types.Signal) {
	q.mu.Lock()
	if len(q.items) == q.size {
		q.items = q.items[1:]
		q.skip(1)
	}
	q.items = append(q.items, sig)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Next returns the newest queued signal and drops the rest, or returns
// types.NoSignal if none arrives within the wait.
func (q *Queue) Next(ctx context.Context) (types.Signal, error) {
	if sig, ok := q.takeNewest(); ok {
		return sig, nil
	}
	if q.wait <= 0 {
		return types.NoSignal, nil
	}

	timer := time.NewTimer(q.wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return types.NoSignal, ctx.Err()
		case <-timer.C:
			sig, _ := q.takeNewest()
			return sig, nil
		case <-q.notify:
			if sig, ok := q.takeNewest(); ok {
				return sig, nil
			}
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Skipped reports how many signals were discarded unseen.
func (q *Queue) Skipped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.skipped
}

func (q *Queue) takeNewest() (types.Signal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if n == 0 {
		return types.NoSignal, false
	}
	sig := q.items[n-1]
	q.skip(n - 1)
	q.items = q.items[:0]
	return sig, true
}

// skip counts discarded signals; the caller holds mu.
func (q *Queue) skip(n int) {
	if n <= 0 {
		return
	}
	before := q.skipped
	q.skipped += n
	if before/skipLogEvery != q.skipped/skipLogEvery {
		q.logger.Debugf("%d older perception signals skipped so far", q.skipped)
	}
}
