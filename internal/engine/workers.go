package engine

import (
	"context"
	"time"
)

// Defaults applied when the corresponding Options fields are unset.
const (
	defaultWorkers    = 2
	defaultQueueDepth = 32
	defaultMaxWait    = 30 * time.Second
)

// workerPool bounds the CPU-bound tokenize/generate work. A request first
// reserves a queue slot and then one of the worker slots; either wait
// timing out surfaces as a too-busy error. This keeps generation off an
// unbounded goroutine spray without serializing unrelated requests.
type workerPool struct {
	queueCh chan struct{}
	genCh   chan struct{}
	maxWait time.Duration
}

func newWorkerPool(workers, queueDepth int, maxWait time.Duration) *workerPool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	return &workerPool{
		queueCh: make(chan struct{}, queueDepth),
		genCh:   make(chan struct{}, workers),
		maxWait: maxWait,
	}
}

// run executes fn once a worker slot is acquired. Returns tooBusyError on
// queue overflow or wait timeout, and the context error on cancellation.
func (p *workerPool) run(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := time.NewTimer(p.maxWait)
	defer timer.Stop()
	select {
	case p.queueCh <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return tooBusyError{}
	}
	defer func() { <-p.queueCh }()

	timer2 := time.NewTimer(p.maxWait)
	defer timer2.Stop()
	select {
	case p.genCh <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer2.C:
		return tooBusyError{}
	}
	defer func() { <-p.genCh }()
	return fn()
}

// queueLen reports the currently reserved queue slots.
func (p *workerPool) queueLen() int { return len(p.queueCh) }

// inflight reports the busy worker slots.
func (p *workerPool) inflight() int { return len(p.genCh) }
