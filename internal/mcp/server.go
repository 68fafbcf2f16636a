// Package mcp exposes workflow execution as MCP tools.
//
// The server registers execute_workflow, which stages a workflow on an
// ephemeral branch and reports the resulting run, and validate_workflow,
// which performs the local checks only. stdout carries the protocol, so
// nothing else may write to it while the server runs.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dangazineu/ghaexec/internal/engine"
	"github.com/dangazineu/ghaexec/internal/interfaces"
)

// Executor is the part of engine.Orchestrator the tools use.
type Executor interface {
	Execute(ctx context.Context, req engine.ExecutionRequest) (*interfaces.ExecutionResult, error)
	Prepare(ctx context.Context, req engine.ExecutionRequest) (*engine.Preparation, error)
}

var errShuttingDown = errors.New("server is shutting down")

// Server is an MCP server backed by an Executor.
type Server struct {
	mcp      *mcp.Server
	executor Executor
	logger   *zap.Logger

	// Tool calls run under base, which is cancelled on shutdown so that
	// executions stop polling and delete their branches before Run returns.
	base       context.Context
	cancelBase context.CancelFunc
	mu         sync.Mutex
	draining   bool
	inflight   sync.WaitGroup
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "ghaexec")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ghaexec",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server and registers its tools.
func NewServer(cfg *Config, executor Executor) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		executor: executor,
		logger:   logger,
	}
	s.base, s.cancelBase = context.WithCancel(context.Background())
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until the client disconnects or ctx is
// done. In-flight tool calls are cancelled and waited for before it returns.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	return s.serve(ctx, &mcp.StdioTransport{})
}

func (s *Server) serve(ctx context.Context, t mcp.Transport) error {
	// The session close below waits for in-flight calls, so they must be
	// cancelled as soon as ctx is done rather than after Run returns.
	stop := context.AfterFunc(ctx, s.drain)
	defer stop()

	err := s.mcp.Run(ctx, t)
	s.drain()
	s.inflight.Wait()
	s.logger.Info("MCP server stopped")

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// drain rejects new tool calls and cancels the running ones.
func (s *Server) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.draining {
		s.draining = true
		s.logger.Info("cancelling in-flight tool calls")
	}
	s.cancelBase()
}

// begin registers a tool call. The returned context is also cancelled on
// shutdown; end must be called when the call returns.
func (s *Server) begin(ctx context.Context) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return nil, nil, errShuttingDown
	}
	s.inflight.Add(1)
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.base, cancel)
	return ctx, func() {
		stop()
		cancel()
		s.inflight.Done()
	}, nil
}
