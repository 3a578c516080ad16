// Package mcp exposes the router as Model Context Protocol tools served over
// stdio or SSE.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/internal/presentation/graph"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/hsm"
	"github.com/aretw0/canopy/pkg/registry"
	"github.com/aretw0/canopy/pkg/router"
	"github.com/aretw0/canopy/pkg/tot"
)

// TaskHandler routes and runs one task.
type TaskHandler interface {
	Handle(ctx context.Context, task string) (*router.Outcome, error)
}

// TaskResponse is the structured result of submit_task.
type TaskResponse struct {
	Worker   string           `json:"worker" jsonschema_description:"Worker that ran the task"`
	Created  bool             `json:"created" jsonschema_description:"Whether the worker was created for this task"`
	RunID    string           `json:"run_id,omitempty" jsonschema_description:"Run identifier"`
	Status   domain.RunStatus `json:"status,omitempty" jsonschema_description:"Final run status"`
	Steps    int              `json:"steps" jsonschema_description:"Number of closed steps"`
	Artifact string           `json:"artifact,omitempty" jsonschema_description:"Condensed code of the run"`
}

// Server exposes a router as an MCP server.
type Server struct {
	handler   TaskHandler
	registry  *registry.Registry
	graphs    map[string]hsm.Definition
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry enables list_workers and the workers resource.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(handler TaskHandler, version string, opts ...Option) *Server {
	s := &Server{
		handler: handler,
		graphs: map[string]hsm.Definition{
			"tot":    tot.Definition(),
			"router": router.Definition(),
		},
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("canopy-mcp", strings.TrimSpace(version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP server over Server-Sent Events on addr until ctx
// is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	submit := mcp.NewTool("submit_task",
		mcp.WithDescription("Route a programming task to a worker and run it to completion."),
		mcp.WithString("task", mcp.Required(), mcp.Description("The task to solve")),
		mcp.WithOutputSchema[TaskResponse](),
	)
	s.mcpServer.AddTool(submit, mcp.NewStructuredToolHandler(s.handleSubmitTask))

	s.mcpServer.AddTool(mcp.NewTool("list_workers",
		mcp.WithDescription("List the registered workers with their descriptions and past tasks."),
	), s.handleListWorkers)

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get a Mermaid diagram of a state machine."),
		mcp.WithString("name", mcp.Description("tot (default) or router")),
	), s.handleGetGraph)
}

func (s *Server) handleSubmitTask(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (TaskResponse, error) {
	task, _ := args["task"].(string)
	task = strings.TrimSpace(task)
	if task == "" {
		return TaskResponse{}, fmt.Errorf("task is required")
	}

	out, err := s.handler.Handle(ctx, task)
	if err != nil {
		s.logger.Error("submit_task failed", "err", err)
		return TaskResponse{}, fmt.Errorf("task failed: %w", err)
	}

	resp := TaskResponse{Worker: out.Worker, Created: out.Created}
	if res := out.Result; res != nil {
		resp.RunID = res.RunID
		resp.Status = res.Status
		resp.Steps = len(res.Steps)
		resp.Artifact = res.Artifact
	}
	return resp, nil
}

func (s *Server) workers() []domain.WorkerInfo {
	workers := []domain.WorkerInfo{}
	if s.registry != nil {
		workers = append(workers, s.registry.List()...)
	}
	return workers
}

func (s *Server) handleListWorkers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(s.workers())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := request.GetString("name", "tot")
	def, ok := s.graphs[name]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown graph %q", name)), nil
	}
	return mcp.NewToolResultText(graph.GenerateMermaid(def, nil)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("canopy://workers", "Registered Workers",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.workers())
		if err != nil {
			return nil, fmt.Errorf("failed to encode workers: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "canopy://workers",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
