package mcpserver

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mitchross/intercept-sub000/internal/pattern"
)

type fakeOrchestrator struct {
	startCalledWith map[string]any
	listLimit       int
}

func (f *fakeOrchestrator) StartMode(mode string, params map[string]any) (map[string]any, error) {
	f.startCalledWith = params
	return map[string]any{"status": "started", "mode": mode}, nil
}

func (f *fakeOrchestrator) StopMode(mode string) (map[string]any, error) {
	return map[string]any{"status": "stopped"}, nil
}

func (f *fakeOrchestrator) ModeStatus(mode string) (map[string]any, error) {
	return map[string]any{"running": false}, nil
}

func (f *fakeOrchestrator) ListModes() []string {
	return []string{"pocsag", "acars"}
}

func (f *fakeOrchestrator) ListCaptures(mode string, limit int) ([]map[string]any, error) {
	f.listLimit = limit
	return []map[string]any{{"id": "cap1"}}, nil
}

func (f *fakeOrchestrator) AllPatterns() []pattern.Pattern {
	return []pattern.Pattern{{DeviceID: "A1", Mode: "acars", Confidence: 0.8}}
}

func newRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestHandleStartModeParsesParamsJSON(t *testing.T) {
	f := &fakeOrchestrator{}
	s := New(f)

	res, err := s.handleStartMode(context.Background(), newRequest(map[string]any{
		"mode":        "pocsag",
		"params_json": `{"device": 0, "gain": 40}`,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("expected success, got error result")
	}
	if f.startCalledWith["device"] != float64(0) {
		t.Fatalf("expected device param to be parsed, got %v", f.startCalledWith)
	}
}

func TestHandleStartModeRequiresMode(t *testing.T) {
	s := New(&fakeOrchestrator{})
	res, err := s.handleStartMode(context.Background(), newRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected error result for missing mode")
	}
}

func TestHandleGetAllPatterns(t *testing.T) {
	s := New(&fakeOrchestrator{})
	res, err := s.handleGetAllPatterns(context.Background(), newRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("expected success result")
	}
}

func TestHandleListCapturesDefaultLimit(t *testing.T) {
	f := &fakeOrchestrator{}
	s := New(f)
	res, err := s.handleListCaptures(context.Background(), newRequest(map[string]any{"mode": "subghz"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("expected success result")
	}
	if f.listLimit != 50 {
		t.Fatalf("expected default limit 50, got %d", f.listLimit)
	}
}
