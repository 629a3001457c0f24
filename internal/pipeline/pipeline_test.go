package pipeline

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/kwdig/internal/expand"
	"github.com/FranksOps/kwdig/internal/keyword"
	"github.com/FranksOps/kwdig/internal/serp"
)

type mapSuggester map[string][]string

func (m mapSuggester) Suggest(_ context.Context, phrase string, _ keyword.Region) []string {
	return m[phrase]
}

func newRunner(s expand.Suggester, est serp.Estimator) *Runner {
	return NewRunner(expand.New(s, expand.Config{Delay: -1}, nil), est, Config{SerpDelay: -1}, nil)
}

func drain(t *testing.T, h *Handle) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-h.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatalf("timed out draining events, got %d so far", len(events))
		}
	}
}

func results(events []Event) []keyword.Result {
	var out []keyword.Result
	for _, e := range events {
		if e.Kind == EventResult {
			out = append(out, *e.Result)
		}
	}
	return out
}

func countKind(events []Event, kind EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func TestRun_ShoesWithoutAnalysis(t *testing.T) {
	var estimates int32
	est := serp.EstimatorFunc(func(context.Context, string, keyword.Region) keyword.Competition {
		atomic.AddInt32(&estimates, 1)
		return keyword.Count(1)
	})
	r := newRunner(mapSuggester{"shoes": {"red shoes", "blue shoes"}}, est)

	p := keyword.Params{Seed: "shoes", Region: keyword.RegionGlobal, MaxDepth: 1}
	h := Start(context.Background(), r, p, 0)
	events := drain(t, h)
	h.Wait()

	want := []keyword.Result{
		{Keyword: "blue shoes", Competition: keyword.Unknown()},
		{Keyword: "red shoes", Competition: keyword.Unknown()},
		{Keyword: "shoes", Competition: keyword.Unknown()},
	}
	if got := results(events); !reflect.DeepEqual(got, want) {
		t.Errorf("expected results %v, got %v", want, got)
	}
	if atomic.LoadInt32(&estimates) != 0 {
		t.Errorf("expected no estimates when analysis is off")
	}
	if n := countKind(events, EventFinish); n != 1 {
		t.Fatalf("expected exactly one finish event, got %d", n)
	}
	if last := events[len(events)-1]; last.Kind != EventFinish {
		t.Errorf("expected finish to be the last event, got %s", last.Kind)
	}
	if n := countKind(events, EventDiscovery); n != 2 {
		t.Errorf("expected 2 discovery events, got %d", n)
	}
	if h.Running() {
		t.Errorf("expected job to be stopped after finish")
	}

	for i, e := range events {
		if e.Seq != i+1 {
			t.Fatalf("expected sequential event numbers, event %d has seq %d", i, e.Seq)
		}
	}
}

func TestRun_WithAnalysis(t *testing.T) {
	counts := map[string]keyword.Competition{
		"shoes":     keyword.Count(1000),
		"red shoes": keyword.Count(0),
	}
	var mu sync.Mutex
	var asked []string
	est := serp.EstimatorFunc(func(_ context.Context, phrase string, _ keyword.Region) keyword.Competition {
		mu.Lock()
		asked = append(asked, phrase)
		mu.Unlock()
		if c, ok := counts[phrase]; ok {
			return c
		}
		return keyword.Unknown()
	})
	r := newRunner(mapSuggester{"shoes": {"red shoes", "blue shoes"}}, est)

	p := keyword.Params{Seed: "shoes", Region: keyword.RegionGlobal, MaxDepth: 2, AnalyzeCompetition: true}
	h := Start(context.Background(), r, p, 1)
	events := drain(t, h)

	want := []keyword.Result{
		{Keyword: "blue shoes", Competition: keyword.Unknown()},
		{Keyword: "red shoes", Competition: keyword.Count(0)},
		{Keyword: "shoes", Competition: keyword.Count(1000)},
	}
	if got := results(events); !reflect.DeepEqual(got, want) {
		t.Errorf("expected results %v, got %v", want, got)
	}
	if wantAsked := []string{"blue shoes", "red shoes", "shoes"}; !reflect.DeepEqual(asked, wantAsked) {
		t.Errorf("expected each phrase estimated once in order, got %v", asked)
	}

	var progress []int
	for _, e := range events {
		if e.Kind == EventProgress {
			if e.Total != 3 {
				t.Errorf("expected total 3, got %d", e.Total)
			}
			progress = append(progress, e.Current)
		}
	}
	if !reflect.DeepEqual(progress, []int{1, 2, 3}) {
		t.Errorf("expected progress 1..3, got %v", progress)
	}
}

// blockingSuggester stops the job from inside the first suggestion call.
type blockingSuggester struct {
	stop  func()
	calls int32
}

func (b *blockingSuggester) Suggest(context.Context, string, keyword.Region) []string {
	if atomic.AddInt32(&b.calls, 1) == 1 {
		b.stop()
	}
	return []string{"a", "b", "c"}
}

func TestRun_StopDuringExpansion(t *testing.T) {
	var estimates int32
	est := serp.EstimatorFunc(func(context.Context, string, keyword.Region) keyword.Competition {
		atomic.AddInt32(&estimates, 1)
		return keyword.Count(1)
	})

	ready := make(chan *Handle, 1)
	s := &blockingSuggester{stop: func() { (<-ready).Stop() }}
	r := newRunner(s, est)

	p := keyword.Params{Seed: "seed", Region: keyword.RegionGlobal, MaxDepth: 3, AnalyzeCompetition: true}
	h := Start(context.Background(), r, p, 0)
	ready <- h
	events := drain(t, h)
	h.Wait()

	if n := countKind(events, EventFinish); n != 1 {
		t.Errorf("expected exactly one finish event, got %d", n)
	}
	if n := atomic.LoadInt32(&s.calls); n != 1 {
		t.Errorf("expected no suggestion calls after stop, got %d", n)
	}
	if n := atomic.LoadInt32(&estimates); n != 0 {
		t.Errorf("expected no estimates after stop during expansion, got %d", n)
	}
	if h.Running() {
		t.Errorf("expected job to report not running")
	}
}

func TestRun_StopDuringEstimation(t *testing.T) {
	ready := make(chan *Handle, 1)
	var h *Handle
	var estimates int32
	est := serp.EstimatorFunc(func(context.Context, string, keyword.Region) keyword.Competition {
		if atomic.AddInt32(&estimates, 1) == 2 {
			(<-ready).Stop()
		}
		return keyword.Count(7)
	})
	r := newRunner(mapSuggester{"shoes": {"a", "b", "c", "d"}}, est)

	p := keyword.Params{Seed: "shoes", Region: keyword.RegionGlobal, MaxDepth: 1, AnalyzeCompetition: true}
	h = Start(context.Background(), r, p, 0)
	ready <- h
	events := drain(t, h)

	if got := len(results(events)); got != 2 {
		t.Errorf("expected results produced before stop to be kept, got %d", got)
	}
	if n := atomic.LoadInt32(&estimates); n != 2 {
		t.Errorf("expected estimation to halt after stop, got %d calls", n)
	}
	if n := countKind(events, EventFinish); n != 1 {
		t.Errorf("expected exactly one finish event, got %d", n)
	}
}

func TestHandle_StopIsIdempotent(t *testing.T) {
	r := newRunner(mapSuggester{}, serp.EstimatorFunc(func(context.Context, string, keyword.Region) keyword.Competition {
		return keyword.Unknown()
	}))
	h := Start(context.Background(), r, keyword.Params{Seed: "x", Region: keyword.RegionGlobal, MaxDepth: 1}, 0)
	h.Stop()
	h.Stop()
	drain(t, h)
	h.Stop()

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
	if h.ID == "" {
		t.Errorf("expected a job id")
	}
}

func TestQueue_DropsAfterFinish(t *testing.T) {
	q := NewQueue(4)
	q.Log("one")
	q.Finish()
	q.Log("late")
	q.Finish()

	var kinds []EventKind
	for e := range q.Events() {
		kinds = append(kinds, e.Kind)
	}
	if want := []EventKind{EventLog, EventFinish}; !reflect.DeepEqual(kinds, want) {
		t.Errorf("expected %v, got %v", want, kinds)
	}
}
