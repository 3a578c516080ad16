package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/aretw0/canopy/pkg/adapters/http"
	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/registry"
	"github.com/aretw0/canopy/pkg/router"
	"github.com/aretw0/canopy/pkg/tot"
)

type handlerFunc func(ctx context.Context, task string) (*router.Outcome, error)

func (f handlerFunc) Handle(ctx context.Context, task string) (*router.Outcome, error) {
	return f(ctx, task)
}

type fakeWorker struct{ name string }

func (f *fakeWorker) Name() string        { return f.name }
func (f *fakeWorker) Description() string { return "fake " + f.name }
func (f *fakeWorker) Info() domain.WorkerInfo {
	return domain.WorkerInfo{Name: f.name, Description: f.Description()}
}
func (f *fakeWorker) Run(context.Context, string) (*tot.Result, error) { return &tot.Result{}, nil }
func (f *fakeWorker) Close() error                                    { return nil }

// checkpointing saves a finished checkpoint under the run ID carried by ctx.
func checkpointing(store *memory.Store) handlerFunc {
	return func(ctx context.Context, task string) (*router.Outcome, error) {
		runID, _ := domain.RunIDFromContext(ctx)
		cp := domain.NewCheckpoint(runID, "coder", task)
		cp.Status = domain.RunSucceeded
		if err := store.Save(ctx, cp); err != nil {
			return nil, err
		}
		return &router.Outcome{Worker: "coder", Result: &tot.Result{RunID: runID, Status: domain.RunSucceeded}}, nil
	}
}

func submit(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, httpadapter.Job) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var job httpadapter.Job
	if w.Code == http.StatusAccepted {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&job))
	}
	return w, job
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestServer_SubmitAndFetchCheckpoint(t *testing.T) {
	store := memory.NewStore()
	srv := httpadapter.NewServer(checkpointing(store), httpadapter.WithCheckpointStore(store))
	h := srv.Handler()

	w, job := submit(t, h, `{"task":"print hello"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.NotEmpty(t, job.RunId)
	assert.Equal(t, httpadapter.StatusAccepted, job.Status)
	assert.Nil(t, job.Worker)
	assert.Equal(t, "/tasks/"+job.RunId, w.Header().Get("Location"))

	srv.Wait()

	res := get(h, "/tasks/"+job.RunId)
	require.Equal(t, http.StatusOK, res.Code)
	var cp httpadapter.Checkpoint
	require.NoError(t, json.NewDecoder(res.Body).Decode(&cp))
	assert.Equal(t, job.RunId, cp.RunId)
	assert.Equal(t, "print hello", cp.Task)
	assert.Equal(t, "coder", cp.Worker)
	assert.Equal(t, httpadapter.Succeeded, cp.Status)
}

func TestServer_FailedRoutingIsReported(t *testing.T) {
	srv := httpadapter.NewServer(handlerFunc(func(context.Context, string) (*router.Outcome, error) {
		return nil, errors.New("no worker fits")
	}), httpadapter.WithCheckpointStore(memory.NewStore()))
	h := srv.Handler()

	_, job := submit(t, h, `{"task":"x"}`)
	srv.Wait()

	res := get(h, "/tasks/"+job.RunId)
	require.Equal(t, http.StatusOK, res.Code)
	var got httpadapter.Job
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	assert.Equal(t, httpadapter.StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "no worker fits", *got.Error)
}

func TestServer_SubmitValidation(t *testing.T) {
	h := httpadapter.NewServer(handlerFunc(func(context.Context, string) (*router.Outcome, error) {
		t.Error("handler must not run")
		return nil, nil
	})).Handler()

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"task":`},
		{"empty task", `{"task":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := submit(t, h, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestServer_UnknownTask(t *testing.T) {
	h := httpadapter.NewServer(nil, httpadapter.WithCheckpointStore(memory.NewStore())).Handler()
	assert.Equal(t, http.StatusNotFound, get(h, "/tasks/nope").Code)
}

func TestServer_ListWorkers(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(&fakeWorker{name: "coder"}))
	h := httpadapter.NewServer(nil, httpadapter.WithRegistry(reg)).Handler()

	w := get(h, "/workers")
	require.Equal(t, http.StatusOK, w.Code)
	var workers []httpadapter.WorkerInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&workers))
	require.Len(t, workers, 1)
	assert.Equal(t, "coder", workers[0].Name)
	assert.Equal(t, "fake coder", workers[0].Description)
	assert.NotNil(t, workers[0].Tasks)
}

func TestServer_Graph(t *testing.T) {
	h := httpadapter.NewServer(nil).Handler()

	w := get(h, "/graph")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Plan((\"Plan\"))")

	w = get(h, "/graph?name=router")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "AwaitTask((\"AwaitTask\"))")

	w = get(h, "/graph?name=nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "router, tot")
}

func TestServer_HealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "canopy_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h := httpadapter.NewServer(nil, httpadapter.WithGatherer(reg)).Handler()

	assert.JSONEq(t, `{"status":"ok"}`, get(h, "/health").Body.String())
	assert.Contains(t, get(h, "/metrics").Body.String(), "canopy_test_total 1")
}

func TestServer_OpenAPISpec(t *testing.T) {
	swagger, err := httpadapter.GetSwagger()
	require.NoError(t, err)
	require.NoError(t, swagger.Validate(context.Background()))
	assert.Equal(t, "Canopy API", swagger.Info.Title)

	h := httpadapter.NewServer(nil).Handler()

	w := get(h, "/openapi.yaml")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"/tasks/{id}"`)

	w = get(h, "/swagger")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "url: '/openapi.yaml'")
}

func TestServer_RoutesEveryDocumentedOperation(t *testing.T) {
	swagger, err := httpadapter.GetSwagger()
	require.NoError(t, err)

	h := httpadapter.NewServer(nil, httpadapter.WithCheckpointStore(memory.NewStore())).Handler()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for path, item := range swagger.Paths.Map() {
		for method := range item.Operations() {
			t.Run(method+" "+path, func(t *testing.T) {
				target := strings.ReplaceAll(path, "{id}", "missing")
				req := httptest.NewRequest(method, target, strings.NewReader("{")).WithContext(ctx)
				w := httptest.NewRecorder()
				h.ServeHTTP(w, req)

				assert.NotEqual(t, http.StatusMethodNotAllowed, w.Code)
				assert.NotEqual(t, "404 page not found\n", w.Body.String())
			})
		}
	}
}

func TestServer_SubscribeEvents(t *testing.T) {
	srv := httpadapter.NewServer(nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events?run_id=r1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ping\n", line)

	hooks := srv.Hooks()
	hooks.OnStepClosed(ctx, &domain.StepEvent{
		EventBase: domain.EventBase{Type: domain.EventStepClosed, RunID: "other"},
		Step:      &domain.Step{Number: 9},
	})
	hooks.OnStepClosed(ctx, &domain.StepEvent{
		EventBase: domain.EventBase{Type: domain.EventStepClosed, RunID: "r1"},
		Step:      &domain.Step{Number: 1},
	})

	for {
		line, err = reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			t.Fatal("stream ended before the event")
		}
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: {") {
			break
		}
	}
	assert.Contains(t, line, `"run_id":"r1"`)
	assert.Contains(t, line, `"type":"step_closed"`)
}

func TestStreamManager_GlobalSubscriber(t *testing.T) {
	sm := httpadapter.NewStreamManager()
	all, cancelAll := sm.Subscribe("")
	defer cancelAll()
	one, cancelOne := sm.Subscribe("r1")

	sm.Broadcast("r2", "m1")
	sm.Broadcast("r1", "m2")

	assert.Equal(t, "m1", <-all)
	assert.Equal(t, "m2", <-all)
	assert.Equal(t, "m2", <-one)

	cancelOne()
	cancelOne()
	_, ok := <-one
	assert.False(t, ok)
}
