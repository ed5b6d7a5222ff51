// Package mcp provides an MCP (Model Context Protocol) server for sernet.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/sernet/internal/logging"
	"github.com/nvandessel/sernet/internal/ratelimit"
	"github.com/nvandessel/sernet/internal/runner"
	"github.com/nvandessel/sernet/internal/store"
)

// Server wraps the MCP SDK server and exposes simulation tools.
type Server struct {
	server       *sdk.Server
	store        store.RunStore
	runner       *runner.Runner
	root         string
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "sernet")
	Version string // Server version
	Root    string // Project root; relative paths in tool calls resolve against it

	// Logger receives operational logs. It must not write to stdout, which
	// carries the protocol.
	Logger *slog.Logger
}

// NewServer creates a new MCP server backed by the run registry under
// cfg.Root.
func NewServer(cfg *Config) (*Server, error) {
	runStore, err := store.NewSQLiteRunStore(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open run registry: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		store:        runStore,
		runner:       runner.New(runStore, nil, logger),
		root:         cfg.Root,
		toolLimiters: ratelimit.NewToolLimiters(),
		auditLogger:  NewAuditLogger(cfg.Root),
		logger:       logger,
	}

	s.registerTools()
	logger.Debug("mcp server ready", "root", cfg.Root, "registry", runStore.Path())

	return s, nil
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
// The registry and audit log are closed on return.
func (s *Server) Run(ctx context.Context) error {
	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if closeErr := s.Close(); closeErr != nil {
		s.logger.Warn("failed to close MCP server resources", "error", closeErr)
	}

	return err
}

// Close releases the registry and audit log.
func (s *Server) Close() error {
	auditErr := s.auditLogger.Close()
	if err := s.store.Close(); err != nil {
		return err
	}
	return auditErr
}
