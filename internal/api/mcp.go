package api

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/revcheck/revd/internal/feedback"
	"github.com/revcheck/revd/internal/storage"
	"github.com/revcheck/revd/internal/training"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Feedback *feedback.Service
}

// NewMCPServer creates an MCP server with the revd tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"revd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("revd — reliability scoring for Korean product reviews, with feedback-driven retraining."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("score_reviews",
			mcp.WithDescription("Submit a batch of review texts for reliability scoring. Returns a batch id to poll with get_analysis."),
			mcp.WithArray("reviews", mcp.Description("Review texts to score"), mcp.Required()),
		),
		mcpScoreReviews(deps),
	)

	s.AddTool(
		mcp.NewTool("get_analysis",
			mcp.WithDescription("Fetch the status and per-review scores of a previously submitted batch."),
			mcp.WithString("batch_id", mcp.Description("Batch id returned by score_reviews"), mcp.Required()),
		),
		mcpGetAnalysis(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_feedback",
			mcp.WithDescription("Record whether a completed analysis was helpful; the verdict is turned into per-review training labels."),
			mcp.WithString("batch_id", mcp.Description("Batch id of a completed analysis"), mcp.Required()),
			mcp.WithBoolean("satisfied", mcp.Description("Whether the analysis matched your expectation"), mcp.Required()),
			mcp.WithString("strategy", mcp.Description("Labeling strategy: weak, hybrid, extreme or relative (default hybrid)")),
		),
		mcpSubmitFeedback(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"model://active",
			"Active Model",
			mcp.WithResourceDescription("Currently active classifier version and its training metadata"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceActiveModel(deps),
	)

	return s
}

func mcpScoreReviews(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		texts := req.GetStringSlice("reviews", nil)
		if len(texts) == 0 {
			return mcpError("reviews is required and must not be empty"), nil
		}
		if len(texts) > maxReviewsPerBatch {
			return mcpError(fmt.Sprintf("too many reviews: %d (max %d)", len(texts), maxReviewsPerBatch)), nil
		}

		batchID := uuid.New().String()
		batch := storage.Batch{
			ID:          batchID,
			Status:      storage.BatchQueued,
			ReviewCount: len(texts),
			CreatedAt:   time.Now().UTC(),
		}
		if err := deps.Store.SaveBatch(batch); err != nil {
			return mcpError(fmt.Sprintf("failed to save batch: %v", err)), nil
		}

		reviews := make([]storage.Review, len(texts))
		for i, text := range texts {
			reviews[i] = storage.Review{
				ID:       uuid.New().String(),
				BatchID:  batchID,
				Position: i,
				Content:  text,
			}
		}
		if err := deps.Store.SaveReviews(reviews); err != nil {
			return mcpError(fmt.Sprintf("failed to save reviews: %v", err)), nil
		}

		payload, err := json.Marshal(map[string]string{"batch_id": batchID})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal job payload: %v", err)), nil
		}
		// A failed analysis marks the batch terminally failed, so the
		// job must not be retried against it.
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        storage.JobAnalyzeBatch,
			PayloadJSON: string(payload),
			MaxAttempts: 1,
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			return mcpError(fmt.Sprintf("saved batch but failed to queue analysis: %v", err)), nil
		}

		b, err := json.Marshal(map[string]string{"id": batchID, "status": storage.BatchQueued})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetAnalysis(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		batchID, err := req.RequireString("batch_id")
		if err != nil {
			return mcpError("batch_id is required"), nil
		}

		batch, err := deps.Store.GetBatch(batchID)
		if err != nil {
			return mcpError(fmt.Sprintf("analysis not found: %v", err)), nil
		}
		reviews, err := deps.Store.GetBatchReviews(batchID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load reviews: %v", err)), nil
		}

		type reviewResult struct {
			Position int     `json:"position"`
			Content  string  `json:"content"`
			Score    float64 `json:"reliability_score"`
			Label    string  `json:"label,omitempty"`
		}
		result := struct {
			ID           string         `json:"id"`
			Status       string         `json:"status"`
			Verdict      string         `json:"verdict,omitempty"`
			Confidence   float64        `json:"confidence"`
			AverageScore float64        `json:"average_score"`
			Reviews      []reviewResult `json:"reviews"`
		}{
			ID:           batch.ID,
			Status:       batch.Status,
			Verdict:      batch.Verdict,
			Confidence:   batch.Confidence,
			AverageScore: batch.AverageScore,
			Reviews:      make([]reviewResult, len(reviews)),
		}
		for i, rev := range reviews {
			result.Reviews[i] = reviewResult{
				Position: rev.Position,
				Content:  rev.Content,
				Score:    rev.ReliabilityScore,
				Label:    rev.AnalysisLabel,
			}
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSubmitFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		batchID, err := req.RequireString("batch_id")
		if err != nil {
			return mcpError("batch_id is required"), nil
		}
		satisfied, err := req.RequireBool("satisfied")
		if err != nil {
			return mcpError("satisfied is required"), nil
		}
		strategy := req.GetString("strategy", "")

		res, err := deps.Feedback.Submit(batchID, satisfied, strategy)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to store feedback: %v", err)), nil
		}

		return mcpText(fmt.Sprintf(
			"Stored %d labels for batch %s (%d helpful, %d unfit, %d excluded, strategy %s)",
			res.Saved, res.BatchID, res.Helpful, res.Unfit, res.Excluded, res.Strategy)), nil
	}
}

func mcpResourceActiveModel(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		active, err := deps.Store.ActiveModelVersion()
		if err != nil {
			return nil, fmt.Errorf("failed to get active model: %w", err)
		}

		result := map[string]any{
			"name":          active.Name,
			"version":       active.Version,
			"artifact_path": active.ArtifactPath,
			"accuracy":      active.Accuracy,
			"created_at":    active.CreatedAt.Format(time.RFC3339),
		}
		if data, err := os.ReadFile(filepath.Join(active.ArtifactPath, training.MetadataFile)); err == nil && json.Valid(data) {
			result["metadata"] = json.RawMessage(data)
		}

		b, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal model info: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
