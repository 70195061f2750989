package scheduler

import (
	"context"
	"sync"
	"time"
)

// dispatchTimeout bounds a single Sink.Dispatch call.
const dispatchTimeout = 10 * time.Second

// outbox delivers one module's directives to the sink in commit order on
// its own goroutine, so the module's worker never waits on the sink.
type outbox struct {
	ctx      context.Context
	moduleID string
	sink     Sink
	logger   Logger

	mu      sync.Mutex
	pending []outboxItem

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// outboxItem is a directive, or a flush marker when flushed is non-nil.
type outboxItem struct {
	d       Directive
	flushed chan struct{}
}

func newOutbox(ctx context.Context, moduleID string, sink Sink, logger Logger) *outbox {
	return &outbox{
		ctx:      ctx,
		moduleID: moduleID,
		sink:     sink,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// push queues an item without blocking.
func (o *outbox) push(item outboxItem) {
	o.mu.Lock()
	o.pending = append(o.pending, item)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// run delivers queued items until quit is closed, then drains what is
// left and returns.
func (o *outbox) run() {
	defer close(o.done)
	for {
		select {
		case <-o.wake:
			o.drain()
		case <-o.quit:
			o.drain()
			return
		}
	}
}

func (o *outbox) drain() {
	for {
		o.mu.Lock()
		batch := o.pending
		o.pending = nil
		o.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, item := range batch {
			if item.flushed != nil {
				close(item.flushed)
				continue
			}
			o.dispatch(item.d)
		}
	}
}

func (o *outbox) dispatch(d Directive) {
	if o.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(o.ctx, dispatchTimeout)
	defer cancel()

	if err := o.sink.Dispatch(ctx, d); err != nil {
		o.logger.Warn("dispatching pin output failed",
			"module_id", o.moduleID, "pin_id", d.PinID, "output", d.Output, "error", err)
	}
}

// flush waits until every item pushed before it has been delivered.
func (o *outbox) flush(ctx context.Context) error {
	marker := make(chan struct{})
	o.push(outboxItem{flushed: marker})

	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		select {
		case <-marker:
			return nil
		default:
			return ErrClosed
		}
	}
}
