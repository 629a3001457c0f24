package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/kwdig/internal/keyword"
)

// DefaultBuffer is the event queue capacity used when Start is given zero.
const DefaultBuffer = 256

// Job is anything that can execute research parameters against a sink.
type Job interface {
	Run(ctx context.Context, p keyword.Params, sink Sink)
}

// Handle controls one job running on its own goroutine.
type Handle struct {
	ID        string
	Params    keyword.Params
	StartedAt time.Time

	queue   *Queue
	cancel  context.CancelFunc
	running atomic.Bool
	done    chan struct{}
}

// Start launches job with p on a dedicated goroutine. The job stops when
// Stop is called or ctx is cancelled.
func Start(ctx context.Context, job Job, p keyword.Params, buffer int) *Handle {
	if buffer == 0 {
		buffer = DefaultBuffer
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ID:        uuid.NewString(),
		Params:    p,
		StartedAt: time.Now(),
		queue:     NewQueue(buffer),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	h.running.Store(true)

	go func() {
		defer close(h.done)
		defer cancel()
		job.Run(ctx, p, handleSink{Queue: h.queue, h: h})
	}()
	return h
}

// Events returns the job's ordered event stream. It is closed after the
// finish event.
func (h *Handle) Events() <-chan Event { return h.queue.Events() }

// Stop requests cooperative cancellation. It is safe to call more than once.
func (h *Handle) Stop() { h.cancel() }

// Running reports whether the job has not yet finished. Once false it stays
// false.
func (h *Handle) Running() bool { return h.running.Load() }

// Wait blocks until the job goroutine has returned. The event stream must be
// drained concurrently or a full queue will block the job.
func (h *Handle) Wait() { <-h.done }

// Done is closed when the job goroutine has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// handleSink flips the running flag before the finish event is queued so a
// controller that sees finish never observes Running() == true.
type handleSink struct {
	*Queue
	h *Handle
}

func (s handleSink) Finish() {
	s.h.running.Store(false)
	s.Queue.Finish()
}
