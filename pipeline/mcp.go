package pipeline

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/glane/extract"
	"github.com/hazyhaar/glane/kit"
)

// RegisterMCP registers all pipeline tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerDetect(srv)
	s.registerExtract(srv)
	s.registerFilter(srv)
	s.registerRun(srv)
	s.registerRuns(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func mcpDecode[T any](r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var p T
	if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{
		Request:   &p,
		EnrichCtx: func(ctx context.Context) context.Context { return kit.WithTransport(ctx, "mcp") },
	}, nil
}

func (s *Service) registerDetect(srv *mcp.Server) {
	type req struct {
		URL         string `json:"url"`
		Instruction string `json:"instruction"`
	}

	tool := &mcp.Tool{
		Name:        "glane_detect",
		Description: "Detect the repeating item container on a web page",
		InputSchema: inputSchema(map[string]any{
			"url":         map[string]any{"type": "string", "description": "Page URL to analyze"},
			"instruction": map[string]any{"type": "string", "description": "Optional extraction intent, used by the semantic oracle"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		snap, closeSnap, err := s.snapshotFor(ctx, p.URL)
		if err != nil {
			return nil, err
		}
		defer closeSnap()
		return s.Detect(ctx, snap, p.Instruction)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, mcpDecode[req])
}

func (s *Service) registerExtract(srv *mcp.Server) {
	type req struct {
		URL      string `json:"url"`
		Selector string `json:"selector"`
		MaxItems int    `json:"max_items"`
	}

	tool := &mcp.Tool{
		Name:        "glane_extract",
		Description: "Extract structured entities from every container match on a page",
		InputSchema: inputSchema(map[string]any{
			"url":       map[string]any{"type": "string", "description": "Page URL"},
			"selector":  map[string]any{"type": "string", "description": "Container selector; empty runs detection first"},
			"max_items": map[string]any{"type": "integer", "description": "Item cap, default 50"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		snap, closeSnap, err := s.snapshotFor(ctx, p.URL)
		if err != nil {
			return nil, err
		}
		defer closeSnap()

		selector := p.Selector
		if selector == "" {
			det, err := s.Detect(ctx, snap, "")
			if err != nil {
				return nil, err
			}
			if !det.Found() {
				return det, nil
			}
			selector = det.Selector
		}
		ents, completeness, err := s.Extract(ctx, snap, selector, p.MaxItems)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"selector":     selector,
			"completeness": completeness,
			"entities":     ents,
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, mcpDecode[req])
}

func (s *Service) registerFilter(srv *mcp.Server) {
	type req struct {
		Entities    []extract.Entity `json:"entities"`
		Instruction string           `json:"instruction"`
	}

	tool := &mcp.Tool{
		Name:        "glane_filter",
		Description: "Filter previously extracted entities against a natural-language instruction",
		InputSchema: inputSchema(map[string]any{
			"entities":    map[string]any{"type": "array", "description": "Entities from glane_extract"},
			"instruction": map[string]any{"type": "string", "description": "Criteria, e.g. 'gluten-free under 30 zł'"},
		}, []string{"entities", "instruction"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.Filter(ctx, p.Entities, p.Instruction)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, mcpDecode[req])
}

func (s *Service) registerRun(srv *mcp.Server) {
	type req struct {
		URL         string `json:"url"`
		Instruction string `json:"instruction"`
	}

	tool := &mcp.Tool{
		Name:        "glane_run",
		Description: "Run the full pipeline on a page: detect, extract, filter, persist",
		InputSchema: inputSchema(map[string]any{
			"url":         map[string]any{"type": "string", "description": "Page URL"},
			"instruction": map[string]any{"type": "string", "description": "Filter criteria"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.Run(ctx, p.URL, p.Instruction)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, mcpDecode[req])
}

func (s *Service) registerRuns(srv *mcp.Server) {
	type req struct {
		Limit int `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "glane_runs",
		Description: "List recent pipeline runs with their stage reports",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max rows, default 50"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.Runs(ctx, p.Limit)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, mcpDecode[req])
}
