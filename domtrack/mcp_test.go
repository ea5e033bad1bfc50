package domtrack

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "domtrack-test", Version: "0.1.0"}

func mcpSession(t *testing.T, tr *Tracker) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	tr.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text, result.IsError
}

func TestMCP_Scan(t *testing.T) {
	session := mcpSession(t, startedTracker(t))

	text, isErr := callTool(t, session, "domtrack_scan", map[string]any{
		"html":     overlayPage,
		"entities": []string{"overlay"},
	})
	if isErr {
		t.Fatalf("domtrack_scan: tool error %s", text)
	}
	var resp struct {
		Matches []MatchSummary `json:"matches"`
		Count   int            `json:"count"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 || resp.Matches[0].Attributes["filename"] != "report.pdf" {
		t.Fatalf("domtrack_scan: got %s", text)
	}

	if _, isErr := callTool(t, session, "domtrack_scan", map[string]any{"html": ""}); !isErr {
		t.Error("domtrack_scan without html should be a tool error")
	}
}

func TestMCP_MatchesAndEntities(t *testing.T) {
	session := mcpSession(t, startedTracker(t))

	text, isErr := callTool(t, session, "domtrack_matches", map[string]any{"entity": "overlay"})
	if isErr {
		t.Fatalf("domtrack_matches: tool error %s", text)
	}
	var matches struct {
		Count int `json:"count"`
	}
	json.Unmarshal([]byte(text), &matches)
	if matches.Count != 1 {
		t.Errorf("domtrack_matches: got %s", text)
	}

	text, isErr = callTool(t, session, "domtrack_entities", map[string]any{})
	if isErr {
		t.Fatalf("domtrack_entities: tool error %s", text)
	}
	var ents struct {
		Entities []string      `json:"entities"`
		Watchers []WatcherInfo `json:"watchers"`
	}
	json.Unmarshal([]byte(text), &ents)
	if len(ents.Entities) != 4 || len(ents.Watchers) != 1 {
		t.Errorf("domtrack_entities: got %s", text)
	}

	if _, isErr := callTool(t, session, "domtrack_stats", map[string]any{}); !isErr {
		t.Error("domtrack_stats without a store should be a tool error")
	}
}
