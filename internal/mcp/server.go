// ABOUTME: MCP server exposing the gym log to AI agents over stdio.
// ABOUTME: Wires tools and resources to the repository and, when configured, the sync outbox.
package mcp

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/harperreed/gym/internal/clock"
	"github.com/harperreed/gym/internal/storage"
	gymsync "github.com/harperreed/gym/internal/sync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server with gym storage.
type Server struct {
	mcpServer *mcp.Server
	repo      storage.Repository
	proc      *gymsync.Processor
	clock     clock.Clock
	logger    *log.Logger
}

// NewServer creates a new MCP server. proc may be nil when sync is not set up.
func NewServer(repo storage.Repository, proc *gymsync.Processor) (*Server, error) {
	s := &Server{
		repo:   repo,
		proc:   proc,
		clock:  clock.New(),
		logger: log.Default().WithPrefix("mcp"),
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "gym",
		Version: "1.0.0",
	}, nil)

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Serve runs the MCP server over stdio.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// flush pushes queued changes after a write. Failures stay in the outbox.
func (s *Server) flush(ctx context.Context) {
	if s.proc == nil || !s.proc.Enabled() {
		return
	}
	report, err := s.proc.Drain(ctx)
	if err != nil {
		s.logger.Warn("drain failed", "err", err)
		return
	}
	if report.Stopped != "" {
		s.logger.Debug("drain stopped", "reason", report.Stopped)
	}
}
