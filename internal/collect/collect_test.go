package collect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/kwdig/internal/expand"
	"github.com/FranksOps/kwdig/internal/keyword"
	"github.com/FranksOps/kwdig/internal/pipeline"
	"github.com/FranksOps/kwdig/internal/serp"
	"github.com/FranksOps/kwdig/internal/status"
	"github.com/FranksOps/kwdig/internal/storage"
)

type memBackend struct {
	mu      sync.Mutex
	records []*storage.Record
	err     error
}

func (m *memBackend) Save(_ context.Context, r *storage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, r)
	return nil
}

func (m *memBackend) Query(_ context.Context, f storage.Filter) ([]*storage.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*storage.Record
	for _, r := range m.records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return f.Page(out), nil
}

func (m *memBackend) Close() error { return nil }

type memPublisher struct {
	kinds []pipeline.EventKind
}

func (p *memPublisher) Publish(_ context.Context, _ string, e pipeline.Event) error {
	p.kinds = append(p.kinds, e.Kind)
	return nil
}

type memGraph struct {
	edges   []keyword.Edge
	results []keyword.Result
}

func (g *memGraph) WriteEdge(_ context.Context, _ string, e keyword.Edge) error {
	g.edges = append(g.edges, e)
	return nil
}

func (g *memGraph) WriteResult(_ context.Context, _ string, r keyword.Result) error {
	g.results = append(g.results, r)
	return nil
}

type memStatus struct {
	last status.JobStatus
	n    int
}

func (s *memStatus) SetStatus(_ context.Context, st status.JobStatus) error {
	s.last = st
	s.n++
	return nil
}

func (s *memStatus) GetStatus(_ context.Context, id string) (status.JobStatus, bool, error) {
	return s.last, s.last.JobID == id, nil
}

type mapSuggester map[string][]string

func (m mapSuggester) Suggest(_ context.Context, phrase string, _ keyword.Region) []string {
	return m[phrase]
}

func startJob(t *testing.T, analyze bool) *pipeline.Handle {
	t.Helper()
	exp := expand.New(mapSuggester{"shoes": {"red shoes", "blue shoes"}}, expand.Config{Delay: -1}, nil)
	est := serp.EstimatorFunc(func(_ context.Context, phrase string, _ keyword.Region) keyword.Competition {
		if phrase == "shoes" {
			return keyword.Count(100)
		}
		return keyword.Unknown()
	})
	r := pipeline.NewRunner(exp, est, pipeline.Config{SerpDelay: -1}, nil)
	p := keyword.Params{Seed: "shoes", Region: keyword.RegionGlobal, MaxDepth: 1, AnalyzeCompetition: analyze}
	return pipeline.Start(context.Background(), r, p, 2)
}

func TestCollector_DrainFansOut(t *testing.T) {
	h := startJob(t, true)

	backend := &memBackend{}
	pub := &memPublisher{}
	graph := &memGraph{}
	st := &memStatus{}
	c := ForHandle(h, Options{Backend: backend, Publisher: pub, Status: st, Graph: graph})

	var g errgroup.Group
	g.Go(func() error { return c.Drain(context.Background(), h.Events()) })
	if err := g.Wait(); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	h.Wait()

	results := c.Results()
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[2].Keyword != "shoes" || results[2].Competition != keyword.Count(100) {
		t.Errorf("unexpected last result: %+v", results[2])
	}
	if !c.Finished() {
		t.Errorf("expected collector to be finished")
	}
	if cur, total := c.Progress(); cur != 3 || total != 3 {
		t.Errorf("expected progress 3/3, got %d/%d", cur, total)
	}

	recs, _ := backend.Query(context.Background(), storage.Filter{JobID: h.ID})
	if len(recs) != 3 {
		t.Fatalf("expected 3 stored records, got %d", len(recs))
	}
	for i, r := range recs {
		if r.Position != i || r.Seed != "shoes" || r.Region != keyword.RegionGlobal {
			t.Errorf("unexpected record %d: %+v", i, r)
		}
	}

	if len(graph.edges) != 2 || len(graph.results) != 3 {
		t.Errorf("expected 2 edges and 3 graph results, got %d and %d", len(graph.edges), len(graph.results))
	}
	if last := pub.kinds[len(pub.kinds)-1]; last != pipeline.EventFinish {
		t.Errorf("expected finish to be published last, got %s", last)
	}
	if st.last.State != status.StateFinished || st.last.Results != 3 {
		t.Errorf("unexpected final status: %+v", st.last)
	}
}

func TestCollector_PersistenceFailureIsNotFatal(t *testing.T) {
	h := startJob(t, false)

	boom := errors.New("disk full")
	c := ForHandle(h, Options{Backend: &memBackend{err: boom}})

	err := c.Drain(context.Background(), h.Events())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined persistence error, got %v", err)
	}
	if len(c.Results()) != 3 {
		t.Errorf("expected results to be collected despite storage errors, got %d", len(c.Results()))
	}
	if len(c.Errors()) != 3 {
		t.Errorf("expected one error per failed save, got %d", len(c.Errors()))
	}
	for _, r := range c.Results() {
		if r.Competition.Known() {
			t.Errorf("expected unknown competition without analysis, got %v", r.Competition)
		}
	}
}

func TestCollector_Since(t *testing.T) {
	c := New("job", keyword.Params{Seed: "x"}, Options{})
	ctx := context.Background()

	events, changed, finished := c.Since(0)
	if len(events) != 0 || finished {
		t.Fatalf("expected empty unfinished collector")
	}

	c.Handle(ctx, pipeline.Event{Seq: 1, Kind: pipeline.EventLog, Message: "hello"})
	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("expected change notification")
	}

	c.Handle(ctx, pipeline.Event{Seq: 2, Kind: pipeline.EventFinish})
	events, _, finished = c.Since(1)
	if len(events) != 1 || events[0].Kind != pipeline.EventFinish || !finished {
		t.Fatalf("unexpected replay: %+v finished=%v", events, finished)
	}

	// Events after finish are ignored.
	c.Handle(ctx, pipeline.Event{Seq: 3, Kind: pipeline.EventLog, Message: "late"})
	if logs := c.Logs(); len(logs) != 1 {
		t.Errorf("expected late log to be ignored, got %v", logs)
	}
}
