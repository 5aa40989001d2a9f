// Package mcpserver exposes orchestrator operations as MCP tools, so an
// LLM client can start/stop/inspect modes and query captures and
// temporal patterns the same way a human operator would through the
// HTTP surface. Grounded on mcp_server.go's AddTool/WithDescription
// registration pattern.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mitchross/intercept-sub000/internal/pattern"
)

// Orchestrator is the subset of the Mode & Device Orchestrator that the
// MCP tool surface calls into. Kept as a narrow interface so this
// package never imports internal/modes directly.
type Orchestrator interface {
	StartMode(mode string, params map[string]any) (map[string]any, error)
	StopMode(mode string) (map[string]any, error)
	ModeStatus(mode string) (map[string]any, error)
	ListModes() []string
	ListCaptures(mode string, limit int) ([]map[string]any, error)
	AllPatterns() []pattern.Pattern
}

// Server wraps an mcp-go MCPServer configured with the orchestrator's
// tool surface, plus the StreamableHTTP transport it is served over.
type Server struct {
	orch       Orchestrator
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// New builds a Server bound to orch and registers every tool.
func New(orch Orchestrator) *Server {
	s := &Server{orch: orch}

	s.mcpServer = server.NewMCPServer(
		"intercept-orchestrator",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)
	return s
}

// HTTPServer returns the StreamableHTTP transport for mounting under
// cmd/interceptd's HTTP mux.
func (s *Server) HTTPServer() *server.StreamableHTTPServer {
	return s.httpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("start_mode",
			mcp.WithDescription("Start a mode controller (e.g. 'pocsag', 'acars', 'vdl2', 'ais', 'dsc', 'rtlamr', 'dmr', 'meshtastic', 'weather_sat', 'subghz'). Fails with DEVICE_BUSY if the requested SDR device is already claimed by another running mode."),
			mcp.WithString("mode", mcp.Required(), mcp.Description("Mode name to start")),
			mcp.WithString("params_json", mcp.Description("JSON object of mode-specific start parameters (device, gain, ppm, frequency, ...)")),
		),
		s.handleStartMode,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("stop_mode",
			mcp.WithDescription("Stop a running mode controller, releasing its SDR device claim."),
			mcp.WithString("mode", mcp.Required(), mcp.Description("Mode name to stop")),
		),
		s.handleStopMode,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("mode_status",
			mcp.WithDescription("Get the running state, counters, and last-message time for one mode."),
			mcp.WithString("mode", mcp.Required(), mcp.Description("Mode name to query")),
		),
		s.handleModeStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_modes",
			mcp.WithDescription("List every mode controller name the orchestrator knows about."),
		),
		s.handleListModes,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_captures",
			mcp.WithDescription("List recorded SubGHz captures (or NDJSON recordings for a digital mode), most recent first."),
			mcp.WithString("mode", mcp.Description("Mode to list captures for; empty lists SubGHz RF captures")),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return"), mcp.DefaultNumber(50)),
		),
		s.handleListCaptures,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_all_patterns",
			mcp.WithDescription("Get the temporal periodicity pattern (last seen, confidence, sighting count) for every device identifier observed across all modes."),
		),
		s.handleGetAllPatterns,
	)
}

func (s *Server) handleStartMode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode := req.GetString("mode", "")
	if mode == "" {
		return mcp.NewToolResultError("mode is required"), nil
	}
	params := map[string]any{}
	if raw := req.GetString("params_json", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid params_json: %v", err)), nil
		}
	}

	result, err := s.orch.StartMode(mode, params)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *Server) handleStopMode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode := req.GetString("mode", "")
	if mode == "" {
		return mcp.NewToolResultError("mode is required"), nil
	}
	result, err := s.orch.StopMode(mode)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *Server) handleModeStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode := req.GetString("mode", "")
	if mode == "" {
		return mcp.NewToolResultError("mode is required"), nil
	}
	result, err := s.orch.ModeStatus(mode)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *Server) handleListModes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.orch.ListModes())
}

func (s *Server) handleListCaptures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode := req.GetString("mode", "")
	limit := int(req.GetFloat("limit", 50))
	captures, err := s.orch.ListCaptures(mode, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(captures)
}

func (s *Server) handleGetAllPatterns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.orch.AllPatterns())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
