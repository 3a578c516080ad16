package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
)

// StreamManager fans lifecycle events out to SSE subscribers by run ID.
// Subscribers of the empty run ID receive every event.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan string]struct{}
	logger      *slog.Logger
}

// NewStreamManager creates an empty manager.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan string]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a buffered channel for runID. The returned func
// unregisters and closes it.
func (sm *StreamManager) Subscribe(runID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 16)
	if _, ok := sm.subscribers[runID]; !ok {
		sm.subscribers[runID] = make(map[chan string]struct{})
	}
	sm.subscribers[runID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[runID]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, runID)
			}
		}
	}
}

// Broadcast sends msg to the subscribers of runID and to global subscribers.
// Slow subscribers lose messages instead of blocking the workflow.
func (sm *StreamManager) Broadcast(runID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	targets := []string{""}
	if runID != "" {
		targets = append(targets, runID)
	}
	for _, id := range targets {
		for ch := range sm.subscribers[id] {
			select {
			case ch <- msg:
			default:
				sm.logger.Warn("SSE: client buffer full, dropping message", "run_id", runID)
			}
		}
	}
}

// Hooks returns lifecycle hooks that broadcast events as JSON.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	send := func(runID string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			sm.logger.Error("SSE: event encode failed", "err", err)
			return
		}
		sm.Broadcast(runID, string(data))
	}
	return domain.LifecycleHooks{
		OnStateEnter: func(_ context.Context, e *domain.StateEvent) { send(e.RunID, e) },
		OnStepClosed: func(_ context.Context, e *domain.StepEvent) { send(e.RunID, e) },
		OnRunEnd:     func(_ context.Context, e *domain.RunEvent) { send(e.RunID, e) },
	}
}

// SubscribeEvents handles GET /events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request, params SubscribeEventsParams) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var runID string
	if params.RunId != nil {
		runID = *params.RunId
	}
	ch, cancel := s.streams.Subscribe(runID)
	defer cancel()

	s.logger.Info("SSE: client subscribed", "run_id", runID)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: client disconnected", "run_id", runID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
