package tasks

import (
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"thermo-poller/internal/model"
	"thermo-poller/internal/monitor"
)

const (
	outboxSize         = 256
	outboxCloseTimeout = 2 * time.Second
)

var errOutboxFull = errors.New("outbox full")

// outbox hands events and summaries to a sink on its own goroutine, so a
// broker outage never holds up the consumer loop. When the queue is full
// new messages are dropped.
type outbox struct {
	sink    sink
	logger  *zap.Logger
	queue   chan func(sink) error
	done    chan struct{}
	dropped atomic.Int64
}

func newOutbox(s sink, size int, logger *zap.Logger) *outbox {
	o := &outbox{
		sink:   s,
		logger: logger,
		queue:  make(chan func(sink) error, size),
		done:   make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *outbox) PublishEvent(ev model.Event) error {
	return o.enqueue(func(s sink) error { return s.PublishEvent(ev) })
}

func (o *outbox) PublishSummary(sum monitor.Summary) error {
	return o.enqueue(func(s sink) error { return s.PublishSummary(sum) })
}

// Dropped returns how many messages were discarded on a full queue.
func (o *outbox) Dropped() int64 { return o.dropped.Load() }

func (o *outbox) enqueue(job func(sink) error) error {
	select {
	case o.queue <- job:
		return nil
	default:
		if n := o.dropped.Add(1); n%100 == 1 {
			o.logger.Warn("publish queue full, dropping messages", zap.Int64("dropped", n))
		}
		return errOutboxFull
	}
}

func (o *outbox) run() {
	defer close(o.done)
	for job := range o.queue {
		if err := job(o.sink); err != nil {
			o.logger.Debug("publish failed", zap.Error(err))
		}
	}
}

// Close stops accepting messages and waits up to timeout for the queue to
// drain. It must be called from the goroutine that enqueues.
func (o *outbox) Close(timeout time.Duration) bool {
	close(o.queue)
	select {
	case <-o.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
