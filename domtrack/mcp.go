// CLAUDE:SUMMARY Registers the domtrack MCP tools: scan a page, list tracked matches, list entities and watchers, detection stats.
package domtrack

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domsense/kit"
)

// RegisterMCP registers the domtrack tools on an MCP server.
func (t *Tracker) RegisterMCP(srv *mcp.Server) {
	t.registerScanTool(srv)
	t.registerMatchesTool(srv)
	t.registerEntitiesTool(srv)
	t.registerStatsTool(srv)
}

func (t *Tracker) endpoint(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Recover(), kit.Logging(t.logger, name))(ep)
}

// --- scan ---

type scanRequest struct {
	HTML     string   `json:"html"`
	Entities []string `json:"entities,omitempty"`
}

func (t *Tracker) registerScanTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domtrack_scan",
		Description: "Run structural detection once over an HTML page. Returns every detected entity with its score, probe failures and attributes.",
		InputSchema: kit.InputSchema(map[string]any{
			"html":     map[string]any{"type": "string", "description": "HTML document to scan"},
			"entities": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Entity names (default: all registered)"},
		}, []string{"html"}),
	}
	ep := t.endpoint("domtrack_scan", func(ctx context.Context, req any) (any, error) {
		r := req.(*scanRequest)
		if strings.TrimSpace(r.HTML) == "" {
			return nil, errors.New("html is required")
		}
		ms, err := Scan(t.reg, strings.NewReader(r.HTML), r.Entities...)
		if err != nil {
			return nil, err
		}
		return map[string]any{"matches": nonNil(ms), "count": len(ms)}, nil
	})
	kit.RegisterMCPTool(srv, tool, ep, kit.DecodeJSON[scanRequest]())
}

// --- matches ---

type matchesRequest struct {
	Entity string `json:"entity,omitempty"`
}

func (t *Tracker) registerMatchesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domtrack_matches",
		Description: "List the matches currently tracked on the live page, optionally for one entity.",
		InputSchema: kit.InputSchema(map[string]any{
			"entity": map[string]any{"type": "string", "description": "Entity name (default: all watchers)"},
		}, nil),
	}
	ep := t.endpoint("domtrack_matches", func(ctx context.Context, req any) (any, error) {
		r := req.(*matchesRequest)
		ms, err := t.Matches(ctx, r.Entity)
		if err != nil {
			return nil, err
		}
		return map[string]any{"matches": nonNil(ms), "count": len(ms)}, nil
	})
	kit.RegisterMCPTool(srv, tool, ep, kit.DecodeJSON[matchesRequest]())
}

// --- entities ---

type entitiesRequest struct{}

func (t *Tracker) registerEntitiesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domtrack_entities",
		Description: "List the registered entities and the running watchers.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}
	ep := t.endpoint("domtrack_entities", func(ctx context.Context, _ any) (any, error) {
		return map[string]any{
			"entities": t.reg.Names(),
			"watchers": t.Watchers(),
		}, nil
	})
	kit.RegisterMCPTool(srv, tool, ep, kit.DecodeJSON[entitiesRequest]())
}

// --- stats ---

type statsRequest struct{}

func (t *Tracker) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domtrack_stats",
		Description: "Detection log statistics per entity: added and removed counts, mean and min score, probe failure counts.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}
	ep := t.endpoint("domtrack_stats", func(ctx context.Context, _ any) (any, error) {
		if t.store == nil {
			return nil, errors.New("no sqlite sink configured")
		}
		return t.Stats(ctx)
	})
	kit.RegisterMCPTool(srv, tool, ep, kit.DecodeJSON[statsRequest]())
}

func nonNil(ms []MatchSummary) []MatchSummary {
	if ms == nil {
		return []MatchSummary{}
	}
	return ms
}
