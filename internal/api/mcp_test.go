package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/revcheck/revd/internal/feedback"
	"github.com/revcheck/revd/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := feedback.NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return MCPDeps{Store: store, Feedback: svc}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_ScoreReviews(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpScoreReviews(deps)

	req := makeCallToolRequest("score_reviews", map[string]interface{}{
		"reviews": []string{"재질이 좋아요", "배송 빨라요"},
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var resp map[string]string
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if resp["status"] != "queued" || resp["id"] == "" {
		t.Fatalf("response = %v", resp)
	}

	reviews, err := store.GetBatchReviews(resp["id"])
	if err != nil {
		t.Fatalf("GetBatchReviews: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("saved %d reviews, want 2", len(reviews))
	}

	job, err := store.ClaimNextJob([]string{storage.JobAnalyzeBatch})
	if err != nil || job == nil {
		t.Fatalf("expected enqueued analyze job, got %v / %v", job, err)
	}
	if job.MaxAttempts != 1 {
		t.Errorf("job max attempts = %d, want 1", job.MaxAttempts)
	}
}

func TestMCPTool_ScoreReviews_Empty(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpScoreReviews(deps)

	result, err := handler(context.Background(), makeCallToolRequest("score_reviews", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing reviews")
	}
}

func TestMCPTool_GetAnalysis(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedCompletedBatch(t, store, "batch-1", 90, 10)
	handler := mcpGetAnalysis(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_analysis", map[string]interface{}{
		"batch_id": "batch-1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var resp struct {
		Status  string `json:"status"`
		Verdict string `json:"verdict"`
		Reviews []struct {
			Score float64 `json:"reliability_score"`
		} `json:"reviews"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if resp.Status != storage.BatchCompleted || resp.Verdict != "suspicious" {
		t.Errorf("status/verdict = %q/%q", resp.Status, resp.Verdict)
	}
	if len(resp.Reviews) != 2 || resp.Reviews[0].Score != 90 {
		t.Errorf("reviews = %+v", resp.Reviews)
	}
}

func TestMCPTool_GetAnalysis_Missing(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpGetAnalysis(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_analysis", map[string]interface{}{
		"batch_id": "nope",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for unknown batch")
	}
}

func TestMCPTool_SubmitFeedback(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedCompletedBatch(t, store, "batch-1", 90, 10)
	handler := mcpSubmitFeedback(deps)

	result, err := handler(context.Background(), makeCallToolRequest("submit_feedback", map[string]interface{}{
		"batch_id":  "batch-1",
		"satisfied": true,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if text := toolText(t, result); !strings.Contains(text, "Stored 2 labels") {
		t.Errorf("result text = %q", text)
	}

	records, err := store.AllFeedback()
	if err != nil {
		t.Fatalf("AllFeedback: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("stored %d feedback rows, want 2", len(records))
	}
}

func TestMCPResource_ActiveModel(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	if _, err := store.EnsureInitialModelVersion("review-rf", "/models/base"); err != nil {
		t.Fatalf("EnsureInitialModelVersion: %v", err)
	}
	handler := mcpResourceActiveModel(deps)

	contents, err := handler(context.Background(), makeReadResourceRequest("model://active"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	text := contents[0].(mcp.TextResourceContents).Text

	var resp map[string]any
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("parsing resource: %v", err)
	}
	if resp["version"] != "v1.0" || resp["name"] != "review-rf" {
		t.Errorf("resource = %v", resp)
	}
}
