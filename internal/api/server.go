// Package api exposes research jobs over HTTP: start, inspect, stream and
// stop them from any controller that speaks JSON and Server-Sent Events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/FranksOps/kwdig/internal/analyzer"
	"github.com/FranksOps/kwdig/internal/collect"
	"github.com/FranksOps/kwdig/internal/keyword"
	"github.com/FranksOps/kwdig/internal/pipeline"
	"github.com/FranksOps/kwdig/internal/report"
	"github.com/FranksOps/kwdig/internal/status"
)

// OptionsFunc builds the persistence targets for a newly started job.
// release, when non-nil, is called after the job's events are drained.
type OptionsFunc func(jobID string, p keyword.Params) (opts collect.Options, release func(), err error)

// DefaultRetain is how many finished jobs a Server keeps in memory.
const DefaultRetain = 100

// Config wires a Server.
type Config struct {
	Job     pipeline.Job
	Options OptionsFunc
	// Status answers lookups for jobs this process does not hold.
	Status    status.Store
	Buffer    int
	KeepAlive time.Duration
	// Retain caps the finished jobs kept in memory, oldest evicted first.
	Retain int
	Logger *slog.Logger
}

type entry struct {
	handle    *pipeline.Handle
	collector *collect.Collector
	drained   chan struct{}
}

// Server keeps a registry of jobs started through it.
type Server struct {
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	jobs     map[string]*entry
	finished []string
}

// NewServer creates a Server. Jobs run on a context owned by the server so
// they outlive the request that started them.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retain <= 0 {
		cfg.Retain = DefaultRetain
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*entry),
	}
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.listJobs)
		r.Post("/", s.createJob)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getJob)
			r.Delete("/", s.stopJob)
			r.Get("/results", s.getResults)
			r.Get("/report", s.getReport)
			r.Get("/events", s.streamEvents)
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// StartJob launches a job with p and begins draining its events.
func (s *Server) StartJob(p keyword.Params) (*pipeline.Handle, *collect.Collector, error) {
	if s.cfg.Job == nil {
		return nil, nil, errors.New("no job runner configured")
	}
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}

	h := pipeline.Start(s.ctx, s.cfg.Job, p, s.cfg.Buffer)
	var (
		opts    collect.Options
		release func()
		optsErr error
	)
	if s.cfg.Options != nil {
		opts, release, optsErr = s.cfg.Options(h.ID, p)
	}
	if optsErr != nil {
		// The job is already running. Stop it and drain it without
		// registering it.
		h.Stop()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for range h.Events() {
			}
		}()
		return nil, nil, fmt.Errorf("prepare job outputs: %w", optsErr)
	}
	if opts.Logger == nil {
		opts.Logger = s.logger
	}

	e := &entry{
		handle:    h,
		collector: collect.ForHandle(h, opts),
		drained:   make(chan struct{}),
	}
	s.mu.Lock()
	s.jobs[h.ID] = e
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(e.drained)
		if release != nil {
			defer release()
		}
		if err := e.collector.Drain(context.WithoutCancel(s.ctx), h.Events()); err != nil {
			s.logger.Warn("job persistence errors", "job_id", h.ID, "err", err)
		}
		s.retire(h.ID)
	}()

	s.logger.Info("job started", "job_id", h.ID, "seed", p.Seed, "region", p.Region, "depth", p.MaxDepth)
	return h, e.collector, nil
}

// retire marks id finished and evicts the oldest finished jobs beyond
// Config.Retain.
func (s *Server) retire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, id)
	for len(s.finished) > s.cfg.Retain {
		delete(s.jobs, s.finished[0])
		s.logger.Debug("evicted finished job", "job_id", s.finished[0])
		s.finished = s.finished[1:]
	}
}

func (s *Server) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	return e, ok
}

// Shutdown stops every job and waits for their events to be drained or for
// ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type jobRequest struct {
	Seed               string `json:"seed"`
	Region             string `json:"region"`
	MaxDepth           int    `json:"max_depth"`
	AnalyzeCompetition bool   `json:"analyze_competition"`
}

func (req jobRequest) params() (keyword.Params, error) {
	p := keyword.Params{
		Seed:               req.Seed,
		MaxDepth:           req.MaxDepth,
		AnalyzeCompetition: req.AnalyzeCompetition,
	}
	if p.MaxDepth == 0 {
		p.MaxDepth = keyword.DefaultDepth
	}
	if strings.TrimSpace(req.Region) != "" {
		region, err := keyword.ParseRegion(req.Region)
		if err != nil {
			return p, err
		}
		p.Region = region
	}
	return p, nil
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be a JSON object")
		return
	}
	p, err := req.params()
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMS", err.Error())
		return
	}
	if err := p.Normalize().Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMS", err.Error())
		return
	}

	_, c, err := s.StartJob(p)
	if err != nil {
		s.logger.Error("start job", "err", err)
		writeError(w, http.StatusInternalServerError, "START_FAILED", err.Error())
		return
	}
	writeSuccess(w, http.StatusAccepted, c.Snapshot())
}

func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	out := make([]status.JobStatus, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.collector.Snapshot())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	writeSuccess(w, http.StatusOK, out)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if e, ok := s.lookup(id); ok {
		writeSuccess(w, http.StatusOK, e.collector.Snapshot())
		return
	}
	if s.cfg.Status != nil {
		st, found, err := s.cfg.Status.GetStatus(r.Context(), id)
		if err != nil {
			s.logger.Error("get job status", "job_id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "STATUS_UNAVAILABLE", "job status store unavailable")
			return
		}
		if found {
			writeSuccess(w, http.StatusOK, st)
			return
		}
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "job not found")
}

func (s *Server) stopJob(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "job not found")
		return
	}
	e.handle.Stop()
	writeMessage(w, http.StatusAccepted, "stop requested")
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, ok := s.lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "job not found")
		return
	}
	results := analyzer.Filter(e.collector.Results(), r.URL.Query().Get("q"))
	if r.URL.Query().Get("sort") == "competition" {
		results = analyzer.RankByCompetition(results)
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"job_id":   id,
		"finished": e.collector.Finished(),
		"results":  results,
	})
}

var reportContentTypes = map[string]string{
	"text": "text/plain; charset=utf-8",
	"json": "application/json",
	"yaml": "application/yaml",
	"html": "text/html; charset=utf-8",
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "job not found")
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "json"
	}
	contentType, ok := reportContentTypes[format]
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_FORMAT",
			fmt.Sprintf("format must be one of %s", strings.Join(report.Formats, ", ")))
		return
	}

	p := e.handle.Params
	summary := report.GenerateSummary(e.collector.Results(), report.Options{Seed: p.Seed, Region: p.Region})
	w.Header().Set("Content-Type", contentType)
	if err := report.Write(w, format, summary); err != nil {
		s.logger.Error("write report", "job_id", e.handle.ID, "err", err)
	}
}

// streamEvents replays the job's events from the start, or from just after
// Last-Event-ID, and follows the stream until the finish event.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "job not found")
		return
	}
	from := 0
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			from = n + 1
		}
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)

	var keepAlive <-chan time.Time
	if s.cfg.KeepAlive > 0 {
		t := time.NewTicker(s.cfg.KeepAlive)
		defer t.Stop()
		keepAlive = t.C
	}

	for {
		events, changed, finished := e.collector.Since(from)
		for _, ev := range events {
			if err := sse.WriteEvent(from, string(ev.Kind), ev); err != nil {
				return
			}
			from++
		}
		if finished {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-changed:
		case <-keepAlive:
			if err := sse.WriteComment("keep-alive"); err != nil {
				return
			}
		}
	}
}
