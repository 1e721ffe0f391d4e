// Package daemon serves the cached session data over HTTP and keeps it
// fresh in the background.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/theirongolddev/ccdash/internal/logger"
	"github.com/theirongolddev/ccdash/internal/model"
	"github.com/theirongolddev/ccdash/internal/pipeline"
	"github.com/theirongolddev/ccdash/internal/store"
)

// Config controls the daemon runtime behavior.
type Config struct {
	Addr         string
	PollInterval time.Duration
	EventsBuffer int

	// Watch enables an fsnotify watch of WatchDir.
	Watch    bool
	WatchDir string
	Debounce time.Duration
}

// Store is the read side of the cache.
type Store interface {
	Summaries(ctx context.Context, project string) ([]model.SessionSummary, error)
	SessionDetail(ctx context.Context, sessionID string) (*model.SessionRecord, error)
	Aggregate(ctx context.Context) (*model.GlobalAggregate, error)
	Projects(ctx context.Context) ([]string, error)
}

// Coordinator starts rebuilds. *pipeline.Coordinator implements it.
type Coordinator interface {
	TriggerIfStale() bool
	Trigger() bool
	RunNow(ctx context.Context) (pipeline.RebuildStats, error)
	Status() pipeline.State
	OnRebuild(fn func(pipeline.Result))
	Close()
}

// Event is emitted after every completed rebuild attempt.
type Event struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Result    pipeline.Result `json:"result"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time      `json:"started_at"`
	PollIntervalSec int            `json:"poll_interval_sec"`
	Watching        bool           `json:"watching"`
	Rebuild         pipeline.State `json:"rebuild"`
	EventCount      int            `json:"event_count"`
	SubscriberCount int            `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg   Config
	store Store
	coord Coordinator
	log   *slog.Logger

	mu          sync.RWMutex
	startedAt   time.Time
	watching    bool
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a daemon service reading st and refreshing through coord.
func New(cfg Config, st Store, coord Coordinator, log *slog.Logger) *Service {
	if cfg.PollInterval < 2*time.Second {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8788"
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}

	s := &Service{
		cfg:       cfg,
		store:     st,
		coord:     coord,
		log:       logger.OrNop(log),
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
	coord.OnRebuild(s.onRebuild)
	return s
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/overview", s.handleOverview)
	mux.HandleFunc("GET /v1/sessions", s.handleSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleSession)
	mux.HandleFunc("GET /v1/projects", s.handleProjects)
	mux.HandleFunc("POST /v1/refresh", s.handleRefresh)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	return mux
}

// Run serves HTTP, polls for staleness and optionally watches the log tree
// until ctx is canceled. It waits for an in-flight rebuild before returning.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.log.Info("daemon listening", "addr", s.cfg.Addr)

	if s.cfg.Watch {
		w, err := NewWatcher(s.cfg.WatchDir, s.cfg.Debounce, func() { s.coord.Trigger() }, s.log)
		if err != nil {
			s.log.Warn("file watching disabled", "err", err)
		} else {
			s.mu.Lock()
			s.watching = true
			s.mu.Unlock()
			go w.Run(ctx)
		}
	}

	// Seed the cache so reads are useful immediately.
	s.coord.TriggerIfStale()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := server.Shutdown(shutdownCtx)
			s.coord.Close()
			return err
		case <-ticker.C:
			s.coord.TriggerIfStale()
		case err := <-errCh:
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

func (s *Service) onRebuild(res pipeline.Result) {
	var typ string
	switch res.Status {
	case pipeline.StatusOK:
		typ = "rebuild"
	case pipeline.StatusFailed:
		typ = "rebuild_failed"
	default:
		return
	}

	s.mu.Lock()
	s.nextEventID++
	ev := Event{ID: s.nextEventID, Type: typ, Timestamp: res.FinishedAt, Result: res}
	s.mu.Unlock()

	s.publishEvent(ev)
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	rebuild := s.coord.Status()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		PollIntervalSec: int(s.cfg.PollInterval.Seconds()),
		Watching:        s.watching,
		Rebuild:         rebuild,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

// building reports whether no rebuild has succeeded yet.
func (s *Service) building() bool {
	return s.coord.Status().LastSuccess.IsZero()
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus())
}

func (s *Service) handleOverview(w http.ResponseWriter, r *http.Request) {
	s.coord.TriggerIfStale()

	agg, err := s.store.Aggregate(r.Context())
	switch {
	case errors.Is(err, store.ErrNotBuilt):
		writeBuilding(w)
	case err != nil:
		s.serverError(w, "reading aggregate", err)
	default:
		writeJSON(w, http.StatusOK, agg)
	}
}

func (s *Service) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.coord.TriggerIfStale()

	sessions, err := s.store.Summaries(r.Context(), r.URL.Query().Get("project"))
	if err != nil {
		s.serverError(w, "listing sessions", err)
		return
	}
	if len(sessions) == 0 && s.building() {
		writeBuilding(w)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Service) handleSession(w http.ResponseWriter, r *http.Request) {
	s.coord.TriggerIfStale()

	rec, err := s.store.SessionDetail(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
	case err != nil:
		s.serverError(w, "reading session", err)
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Service) handleProjects(w http.ResponseWriter, r *http.Request) {
	s.coord.TriggerIfStale()

	projects, err := s.store.Projects(r.Context())
	if err != nil {
		s.serverError(w, "listing projects", err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Service) handleRefresh(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coord.RunNow(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrSkipped):
		writeJSON(w, http.StatusConflict, map[string]string{"status": string(pipeline.StatusSkipped)})
	case err != nil:
		s.serverError(w, "rebuilding", err)
	default:
		writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current state immediately.
	st := s.coord.Status()
	writeSSE(w, Event{
		Type:      "status",
		Timestamp: time.Now(),
		Result:    pipeline.Result{Status: pipeline.StatusOK, Stats: st.LastStats, FinishedAt: st.LastSuccess},
	})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func (s *Service) serverError(w http.ResponseWriter, what string, err error) {
	s.log.Error(what, "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeBuilding(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "building"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
