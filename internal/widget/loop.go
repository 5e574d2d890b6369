package widget

import (
	"context"
	"sync"
)

// Scheduler runs functions on the widget's event loop.
type Scheduler interface {
	Post(fn func())
}

// Loop is a single-goroutine event loop. Every controller handler and every
// load completion runs on it, so session state needs no locking.
type Loop struct {
	queue chan func()
	once  sync.Once
	done  chan struct{}
}

// NewLoop returns a loop buffering up to size pending functions.
func NewLoop(size int) *Loop {
	if size <= 0 {
		size = 64
	}
	return &Loop{queue: make(chan func(), size), done: make(chan struct{})}
}

// Post enqueues fn. It blocks while the queue is full and drops fn once the
// loop has stopped.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	select {
	case <-l.done:
	case l.queue <- fn:
	}
}

// Run drains the queue until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.queue:
			fn()
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }
