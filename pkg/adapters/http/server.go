package http

//go:generate go tool oapi-codegen -package http -generate types,chi-server,spec -o api.gen.go ../../../api/openapi.yaml

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/internal/presentation/graph"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/hsm"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/aretw0/canopy/pkg/registry"
	"github.com/aretw0/canopy/pkg/router"
	"github.com/aretw0/canopy/pkg/tot"
)

// TaskHandler routes and runs one task.
type TaskHandler interface {
	Handle(ctx context.Context, task string) (*router.Outcome, error)
}

// Job statuses reported before a checkpoint exists.
const (
	StatusAccepted = "accepted"
	StatusFailed   = "failed"
)

// Server serves the HTTP API described by api/openapi.yaml.
type Server struct {
	handler  TaskHandler
	store    ports.CheckpointStore
	registry *registry.Registry
	graphs   map[string]hsm.Definition
	gatherer prometheus.Gatherer
	streams  *StreamManager
	baseCtx  context.Context
	logger   *slog.Logger

	wg   sync.WaitGroup
	mu   sync.Mutex
	jobs map[string]*Job
}

var _ ServerInterface = (*Server)(nil)

// Option configures a Server.
type Option func(*Server)

// WithCheckpointStore enables GET /tasks/{id} lookups.
func WithCheckpointStore(store ports.CheckpointStore) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithRegistry enables GET /workers.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithGraph adds a machine served by GET /graph?name=name.
func WithGraph(name string, def hsm.Definition) Option {
	return func(s *Server) {
		s.graphs[name] = def
	}
}

// WithGatherer sets the metrics source for /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithStreams shares a stream manager whose hooks were wired before the
// server existed.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.streams = sm
	}
}

// WithBaseContext sets the parent context of background runs.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) {
		s.baseCtx = ctx
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a server that routes tasks through handler.
func NewServer(handler TaskHandler, opts ...Option) *Server {
	s := &Server{
		handler: handler,
		graphs: map[string]hsm.Definition{
			"tot":    tot.Definition(),
			"router": router.Definition(),
		},
		gatherer: prometheus.DefaultGatherer,
		streams:  NewStreamManager(),
		baseCtx:  context.Background(),
		logger:   logging.NewNop(),
		jobs:     make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streams.logger = s.logger
	return s
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		spec, err := rawSpec()
		if err != nil {
			http.Error(w, "spec unavailable", http.StatusInternalServerError)
			s.logger.Error("openapi: decode failed", "err", err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(spec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(swaggerHTML))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return enableCORS(HandlerFromMux(s, r))
}

const swaggerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Canopy API Documentation</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
  window.onload = () => {
    window.ui = SwaggerUIBundle({
      url: '/openapi.yaml',
      dom_id: '#swagger-ui',
    });
  };
</script>
</body>
</html>`

// Hooks returns lifecycle hooks that feed GET /events.
func (s *Server) Hooks() domain.LifecycleHooks {
	return s.streams.Hooks()
}

// Wait blocks until every background run has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SubmitTask handles POST /tasks.
func (s *Server) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var body SubmitTaskJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("SubmitTask: invalid request body", "err", err)
		return
	}
	task := strings.TrimSpace(body.Task)
	if task == "" {
		http.Error(w, "task is required", http.StatusBadRequest)
		return
	}

	job := Job{RunId: uuid.NewString(), Task: task, Status: StatusAccepted}
	s.mu.Lock()
	s.jobs[job.RunId] = &job
	accepted := job
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(job.RunId, task)

	w.Header().Set("Location", "/tasks/"+job.RunId)
	writeJSON(w, http.StatusAccepted, accepted, s.logger)
}

func (s *Server) run(runID, task string) {
	defer s.wg.Done()

	ctx := domain.ContextWithRunID(s.baseCtx, runID)
	out, err := s.handler.Handle(ctx, task)

	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[runID]
	if out != nil {
		if out.Worker != "" {
			worker := out.Worker
			job.Worker = &worker
		}
		if out.Result != nil {
			job.Status = string(out.Result.Status)
		}
	}
	if err != nil {
		job.Status = StatusFailed
		msg := err.Error()
		job.Error = &msg
		s.logger.Error("task failed", "run_id", runID, "err", err)
	}
}

func (s *Server) snapshot(runID string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[runID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// GetTask handles GET /tasks/{id}. It prefers the worker's checkpoint and
// falls back to the submission record while the task is still being routed.
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request, id string) {
	if s.store != nil {
		cp, err := s.store.Load(r.Context(), id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, cp, s.logger)
			return
		case !errors.Is(err, domain.ErrRunNotFound):
			http.Error(w, "checkpoint lookup failed", http.StatusInternalServerError)
			s.logger.Error("GetTask: load failed", "run_id", id, "err", err)
			return
		}
	}

	job, ok := s.snapshot(id)
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job, s.logger)
}

// ListWorkers handles GET /workers.
func (s *Server) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers := []WorkerInfo{}
	if s.registry != nil {
		for _, info := range s.registry.List() {
			tasks := info.Tasks
			if tasks == nil {
				tasks = []string{}
			}
			workers = append(workers, WorkerInfo{Name: info.Name, Description: info.Description, Tasks: tasks})
		}
	}
	writeJSON(w, http.StatusOK, workers, s.logger)
}

// GetGraph handles GET /graph.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request, params GetGraphParams) {
	name := "tot"
	if params.Name != nil && *params.Name != "" {
		name = *params.Name
	}
	def, ok := s.graphs[name]
	if !ok {
		names := make([]string, 0, len(s.graphs))
		for n := range s.graphs {
			names = append(names, n)
		}
		sort.Strings(names)
		http.Error(w, "unknown graph; available: "+strings.Join(names, ", "), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(graph.GenerateMermaid(def, nil)))
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Health{Status: "ok"}, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "err", err)
	}
}
