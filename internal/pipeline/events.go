package pipeline

import (
	"sync"
	"time"

	"github.com/FranksOps/kwdig/internal/keyword"
)

// EventKind tags an Event.
type EventKind string

const (
	EventLog       EventKind = "log"
	EventProgress  EventKind = "progress"
	EventResult    EventKind = "result"
	EventDiscovery EventKind = "discovery"
	EventFinish    EventKind = "finish"
)

// Event is one message from a running job to its controller. Only the fields
// relevant to Kind are set.
type Event struct {
	Seq     int             `json:"seq"`
	Kind    EventKind       `json:"kind"`
	Time    time.Time       `json:"time"`
	Message string          `json:"message,omitempty"`
	Current int             `json:"current,omitempty"`
	Total   int             `json:"total,omitempty"`
	Result  *keyword.Result `json:"result,omitempty"`
	Edge    *keyword.Edge   `json:"edge,omitempty"`
}

// Sink receives everything a job reports. Finish is called exactly once and
// nothing is reported after it.
type Sink interface {
	Log(msg string)
	Progress(current, total int)
	Result(r keyword.Result)
	Discovered(e keyword.Edge)
	Finish()
}

// Queue is a Sink backed by a bounded FIFO channel. Emitting blocks while the
// buffer is full. The channel is closed immediately after the finish event.
type Queue struct {
	ch    chan Event
	seq   int
	once  sync.Once
	done  bool
	clock func() time.Time
}

// NewQueue creates a queue holding up to buffer undelivered events.
func NewQueue(buffer int) *Queue {
	if buffer < 0 {
		buffer = 0
	}
	return &Queue{ch: make(chan Event, buffer), clock: time.Now}
}

// Events returns the receive side of the queue.
func (q *Queue) Events() <-chan Event { return q.ch }

func (q *Queue) Log(msg string) {
	q.emit(Event{Kind: EventLog, Message: msg})
}

func (q *Queue) Progress(current, total int) {
	q.emit(Event{Kind: EventProgress, Current: current, Total: total})
}

func (q *Queue) Result(r keyword.Result) {
	q.emit(Event{Kind: EventResult, Result: &r})
}

func (q *Queue) Discovered(e keyword.Edge) {
	q.emit(Event{Kind: EventDiscovery, Edge: &e})
}

func (q *Queue) Finish() {
	q.once.Do(func() {
		q.emit(Event{Kind: EventFinish})
		q.done = true
		close(q.ch)
	})
}

// emit is only called from the producing goroutine.
func (q *Queue) emit(e Event) {
	if q.done {
		return
	}
	q.seq++
	e.Seq = q.seq
	e.Time = q.clock()
	q.ch <- e
}
