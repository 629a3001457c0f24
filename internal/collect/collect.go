// Package collect is the controller side of a job: it drains the event
// stream in order, keeps the results collection and fans events out to the
// configured persistence targets.
package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/kwdig/internal/keyword"
	"github.com/FranksOps/kwdig/internal/pipeline"
	"github.com/FranksOps/kwdig/internal/status"
	"github.com/FranksOps/kwdig/internal/storage"
)

// Publisher forwards raw events, e.g. to Kafka.
type Publisher interface {
	Publish(ctx context.Context, jobID string, e pipeline.Event) error
}

// GraphWriter records the suggestion tree and estimates.
type GraphWriter interface {
	WriteEdge(ctx context.Context, jobID string, e keyword.Edge) error
	WriteResult(ctx context.Context, jobID string, r keyword.Result) error
}

// Options selects the persistence targets. Every field is optional.
type Options struct {
	Backend   storage.Backend
	Publisher Publisher
	Status    status.Store
	Graph     GraphWriter
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Collector accumulates the state of one job. It is safe for concurrent
// readers while Drain runs.
type Collector struct {
	jobID     string
	params    keyword.Params
	startedAt time.Time
	opts      Options
	logger    *slog.Logger

	mu       sync.RWMutex
	events   []pipeline.Event
	results  []keyword.Result
	logs     []string
	current  int
	total    int
	finished bool
	errs     []error
	changed  chan struct{}
}

// New creates a collector for job jobID.
func New(jobID string, params keyword.Params, opts Options) *Collector {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		jobID:     jobID,
		params:    params,
		startedAt: opts.Clock(),
		opts:      opts,
		logger:    logger.With("job_id", jobID),
		changed:   make(chan struct{}),
	}
}

// ForHandle creates a collector bound to a running job.
func ForHandle(h *pipeline.Handle, opts Options) *Collector {
	c := New(h.ID, h.Params, opts)
	c.startedAt = h.StartedAt
	return c
}

// JobID returns the job this collector belongs to.
func (c *Collector) JobID() string { return c.jobID }

// Drain consumes events until the stream is closed. Persistence failures are
// logged and returned joined once the stream ends; they never stop the drain.
func (c *Collector) Drain(ctx context.Context, events <-chan pipeline.Event) error {
	for e := range events {
		c.Handle(ctx, e)
	}
	c.mu.Lock()
	if !c.finished {
		// The producer went away without a finish event.
		c.finished = true
		c.broadcastLocked()
	}
	errs := append([]error(nil), c.errs...)
	c.mu.Unlock()
	return errors.Join(errs...)
}

// Handle applies a single event. Events must be handled in emission order.
func (c *Collector) Handle(ctx context.Context, e pipeline.Event) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.events = append(c.events, e)
	position := -1
	switch e.Kind {
	case pipeline.EventLog:
		c.logs = append(c.logs, e.Message)
	case pipeline.EventProgress:
		c.current, c.total = e.Current, e.Total
	case pipeline.EventResult:
		if e.Result != nil {
			position = len(c.results)
			c.results = append(c.results, *e.Result)
		}
	case pipeline.EventFinish:
		c.finished = true
	}
	c.broadcastLocked()
	c.mu.Unlock()

	c.persist(ctx, e, position)
}

func (c *Collector) persist(ctx context.Context, e pipeline.Event, position int) {
	if c.opts.Publisher != nil {
		if err := c.opts.Publisher.Publish(ctx, c.jobID, e); err != nil {
			c.fail("publish event", err)
		}
	}

	switch e.Kind {
	case pipeline.EventResult:
		if e.Result == nil {
			return
		}
		if c.opts.Backend != nil {
			rec := &storage.Record{
				ID:          uuid.NewString(),
				JobID:       c.jobID,
				Position:    position,
				Keyword:     e.Result.Keyword,
				Competition: e.Result.Competition,
				Region:      c.params.Region,
				Seed:        c.params.Seed,
				CreatedAt:   c.opts.Clock(),
			}
			if err := c.opts.Backend.Save(ctx, rec); err != nil {
				c.fail("save result", err)
			}
		}
		if c.opts.Graph != nil {
			if err := c.opts.Graph.WriteResult(ctx, c.jobID, *e.Result); err != nil {
				c.fail("write graph result", err)
			}
		}
	case pipeline.EventDiscovery:
		if e.Edge != nil && c.opts.Graph != nil {
			if err := c.opts.Graph.WriteEdge(ctx, c.jobID, *e.Edge); err != nil {
				c.fail("write graph edge", err)
			}
		}
		return
	}

	if c.opts.Status != nil {
		if err := c.opts.Status.SetStatus(ctx, c.Snapshot()); err != nil {
			c.fail("set status", err)
		}
	}
}

func (c *Collector) fail(op string, err error) {
	c.logger.Warn("persistence failure", "op", op, "err", err)
	c.mu.Lock()
	c.errs = append(c.errs, fmt.Errorf("%s: %w", op, err))
	c.mu.Unlock()
}

// broadcastLocked wakes every Since waiter. mu must be held for writing.
func (c *Collector) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// Results returns a copy of the ordered results collection.
func (c *Collector) Results() []keyword.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]keyword.Result(nil), c.results...)
}

// Logs returns a copy of the log lines received so far.
func (c *Collector) Logs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.logs...)
}

// Progress returns the last reported position.
func (c *Collector) Progress() (current, total int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.total
}

// Finished reports whether the finish event has been handled.
func (c *Collector) Finished() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.finished
}

// Errors returns the persistence failures recorded so far.
func (c *Collector) Errors() []error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]error(nil), c.errs...)
}

// Since returns the events from index i onwards, a channel that is closed on
// the next change, and whether the job has finished. Callers replay from 0
// and then follow the stream by advancing i.
func (c *Collector) Since(i int) ([]pipeline.Event, <-chan struct{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 {
		i = 0
	}
	var out []pipeline.Event
	if i < len(c.events) {
		out = append(out, c.events[i:]...)
	}
	return out, c.changed, c.finished
}

// Snapshot renders the collector state as a status record.
func (c *Collector) Snapshot() status.JobStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := status.JobStatus{
		JobID:     c.jobID,
		Params:    c.params,
		State:     status.StateRunning,
		Current:   c.current,
		Total:     c.total,
		Results:   len(c.results),
		StartedAt: c.startedAt,
		UpdatedAt: c.opts.Clock(),
	}
	if len(c.logs) > 0 {
		st.LastLog = c.logs[len(c.logs)-1]
	}
	if c.finished {
		st.State = status.StateFinished
	}
	return st
}
