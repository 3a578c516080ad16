package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	return domain.WorkerInfo{Name: f.name, Description: f.Description(), Tasks: []string{"t1"}}
}
func (f *fakeWorker) Run(context.Context, string) (*tot.Result, error) { return &tot.Result{}, nil }
func (f *fakeWorker) Close() error                                    { return nil }

func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSubmitTask(t *testing.T) {
	var got string
	s := NewServer(handlerFunc(func(_ context.Context, task string) (*router.Outcome, error) {
		got = task
		return &router.Outcome{
			Worker:  "coder",
			Created: true,
			Result: &tot.Result{
				RunID:    "r1",
				Status:   domain.RunSucceeded,
				Steps:    []domain.Step{{Number: 1}, {Number: 2}},
				Artifact: "print(1)\n",
			},
		}, nil
	}), "test")

	resp, err := s.handleSubmitTask(context.Background(), mcp.CallToolRequest{}, map[string]any{"task": " print 1 "})
	require.NoError(t, err)

	assert.Equal(t, "print 1", got)
	assert.Equal(t, TaskResponse{
		Worker: "coder", Created: true, RunID: "r1",
		Status: domain.RunSucceeded, Steps: 2, Artifact: "print(1)\n",
	}, resp)
}

func TestSubmitTask_Errors(t *testing.T) {
	s := NewServer(handlerFunc(func(context.Context, string) (*router.Outcome, error) {
		return nil, errors.New("boom")
	}), "test")

	_, err := s.handleSubmitTask(context.Background(), mcp.CallToolRequest{}, map[string]any{})
	assert.ErrorContains(t, err, "task is required")

	_, err = s.handleSubmitTask(context.Background(), mcp.CallToolRequest{}, map[string]any{"task": "x"})
	assert.ErrorContains(t, err, "boom")
}

func TestListWorkers(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(&fakeWorker{name: "coder"}))
	s := NewServer(nil, "test", WithRegistry(reg))

	res, err := s.handleListWorkers(context.Background(), makeReq(nil))
	require.NoError(t, err)

	var workers []domain.WorkerInfo
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &workers))
	require.Len(t, workers, 1)
	assert.Equal(t, []string{"t1"}, workers[0].Tasks)
}

func TestGetGraph(t *testing.T) {
	s := NewServer(nil, "test")

	res, err := s.handleGetGraph(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(res), "Plan((\"Plan\"))")

	res, err = s.handleGetGraph(context.Background(), makeReq(map[string]any{"name": "router"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(res), "AwaitTask")

	res, err = s.handleGetGraph(context.Background(), makeReq(map[string]any{"name": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
