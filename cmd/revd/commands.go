package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/revcheck/revd/internal/config"
)

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze [review ...]",
	Short: "Submit reviews for reliability analysis",
	Long: `Submit product reviews for reliability analysis.

Reviews are passed as arguments or read from a file (one review per line).

Examples:
  revd analyze "재질이 좋고 배송도 빨라요" "그냥 그래요"
  revd analyze --file ./reviews.txt
  revd analyze --file ./reviews.txt --wait`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		wait, _ := cmd.Flags().GetBool("wait")

		var texts []string
		texts = append(texts, args...)
		if file != "" {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			defer f.Close()
			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				if line := strings.TrimSpace(scanner.Text()); line != "" {
					texts = append(texts, line)
				}
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
		}
		if len(texts) == 0 {
			return fmt.Errorf("at least one review is required (arguments or --file)")
		}

		reviews := make([]map[string]any, len(texts))
		for i, t := range texts {
			reviews[i] = map[string]any{"content": t}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/analyses", map[string]any{"reviews": reviews})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued batch %s (%d reviews)", result["id"], len(texts))
		if !wait {
			printStep("Run `revd result %s` to see the scores", result["id"])
			return nil
		}
		return waitForBatch(cmd.Context(), client, result["id"])
	},
}

func waitForBatch(ctx context.Context, client *apiClient, batchID string) error {
	printStep("Waiting for analysis...")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		resp, err := client.get(ctx, "/analyses/"+batchID)
		if err != nil {
			return err
		}
		var batch struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := decodeJSON(resp, &batch); err != nil {
			return err
		}

		switch batch.Status {
		case "completed":
			return showResult(ctx, client, batchID)
		case "failed":
			return fmt.Errorf("analysis failed: %s", batch.Error)
		}
	}
}

func init() {
	analyzeCmd.Flags().String("file", "", "file with one review per line")
	analyzeCmd.Flags().Bool("wait", false, "wait for analysis to complete and print scores")
}

// --- result ---

var resultCmd = &cobra.Command{
	Use:   "result <batch-id>",
	Short: "Show analysis results for a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return showResult(cmd.Context(), client, args[0])
	},
}

func showResult(ctx context.Context, client *apiClient, batchID string) error {
	resp, err := client.get(ctx, "/analyses/"+batchID)
	if err != nil {
		return err
	}

	var batch struct {
		ID           string  `json:"id"`
		Status       string  `json:"status"`
		Verdict      string  `json:"verdict"`
		Confidence   float64 `json:"confidence"`
		AverageScore float64 `json:"average_score"`
		Error        string  `json:"error"`
		Reviews      []struct {
			Content  string  `json:"content"`
			Score    float64 `json:"reliability_score"`
			Label    string  `json:"label"`
			Category string  `json:"display_category"`
			Warning  string  `json:"warning"`
		} `json:"reviews"`
	}
	if err := decodeJSON(resp, &batch); err != nil {
		return err
	}

	printStatus("Batch", "%s", batch.ID)
	printStatus("Status", "%s", batch.Status)
	if batch.Status == "failed" {
		printStatus("Error", "%s", batch.Error)
		return nil
	}
	if batch.Status != "completed" {
		return nil
	}

	printStatus("Verdict", "%s (confidence %.2f)", batch.Verdict, batch.Confidence)
	printStatus("Average score", "%.1f", batch.AverageScore)
	for i, r := range batch.Reviews {
		text := r.Content
		if len(text) > 80 {
			text = text[:80] + "..."
		}
		fmt.Printf("\n%s  %s\n", colorize(colorBold, fmt.Sprintf("Review %d", i+1)),
			colorize(scoreColor(r.Category), fmt.Sprintf("%.1f — %s", r.Score, r.Label)))
		fmt.Printf("  %s\n", text)
		if r.Warning != "" {
			printWarning("%s", r.Warning)
		}
	}
	return nil
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent analysis batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		status, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/analyses?limit=%d", limit)
		if status != "" {
			path += "&status=" + status
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var batches []struct {
			ID          string  `json:"id"`
			Status      string  `json:"status"`
			Verdict     string  `json:"verdict"`
			ReviewCount int     `json:"review_count"`
			Confidence  float64 `json:"confidence"`
			CreatedAt   string  `json:"created_at"`
		}
		if err := decodeJSON(resp, &batches); err != nil {
			return err
		}

		if len(batches) == 0 {
			fmt.Println("No batches found.")
			return nil
		}

		for _, b := range batches {
			verdict := b.Verdict
			if verdict == "" {
				verdict = "-"
			}
			fmt.Printf("%s  %-10s  %-10s  %3d reviews  %s\n",
				colorize(colorCyan, b.ID[:8]),
				b.Status,
				verdict,
				b.ReviewCount,
				b.CreatedAt,
			)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().Int("limit", 20, "maximum number of batches to list")
	listCmd.Flags().String("status", "", "filter by status (queued, processing, completed, failed)")
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback <batch-id>",
	Short: "Submit satisfaction feedback for an analyzed batch",
	Long: `Submit satisfaction feedback for an analyzed batch.

The batch-level verdict is expanded into per-review training labels
according to the chosen labeling strategy.

Examples:
  revd feedback 4f1c2a9e --satisfied
  revd feedback 4f1c2a9e --unsatisfied --strategy extreme`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		satisfied, _ := cmd.Flags().GetBool("satisfied")
		unsatisfied, _ := cmd.Flags().GetBool("unsatisfied")
		strategy, _ := cmd.Flags().GetString("strategy")

		if satisfied == unsatisfied {
			return fmt.Errorf("exactly one of --satisfied or --unsatisfied is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"batch_id":  args[0],
			"satisfied": satisfied,
		}
		if strategy != "" {
			req["strategy"] = strategy
		}

		resp, err := client.post(cmd.Context(), "/feedback", req)
		if err != nil {
			return err
		}

		var result struct {
			Strategy string `json:"strategy"`
			Saved    int    `json:"saved"`
			Excluded int    `json:"excluded"`
			Helpful  int    `json:"helpful"`
			Unfit    int    `json:"unfit"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Stored %d labels (%d helpful, %d unfit, %d excluded) using %s strategy",
			result.Saved, result.Helpful, result.Unfit, result.Excluded, result.Strategy)
		return nil
	},
}

func init() {
	feedbackCmd.Flags().Bool("satisfied", false, "the analysis matched your judgement")
	feedbackCmd.Flags().Bool("unsatisfied", false, "the analysis did not match your judgement")
	feedbackCmd.Flags().String("strategy", "", "labeling strategy (weak, hybrid, extreme, relative)")
}

// --- retrain ---

var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Retrain the scoring model on accumulated feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/retrain", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued retraining job %s", result["job_id"])
		if !follow {
			printStep("Run `revd retrain status %s` to follow progress", result["job_id"])
			return nil
		}
		return followRetrainJob(cmd.Context(), client, result["job_id"])
	},
}

var retrainStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show retraining job status and logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		job, err := fetchRetrainJob(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}

		printStatus("Job", "%s", job.ID)
		printStatus("Status", "%s", job.Status)
		if job.LastError != "" {
			printStatus("Error", "%s", job.LastError)
		}
		for _, line := range job.Logs {
			fmt.Printf("  %s\n", line)
		}
		return nil
	},
}

type retrainJob struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	LastError string   `json:"last_error"`
	Logs      []string `json:"logs"`
}

func fetchRetrainJob(ctx context.Context, client *apiClient, jobID string) (*retrainJob, error) {
	resp, err := client.get(ctx, "/retrain/"+jobID)
	if err != nil {
		return nil, err
	}
	var job retrainJob
	if err := decodeJSON(resp, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func followRetrainJob(ctx context.Context, client *apiClient, jobID string) error {
	printStep("Training...")
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	printed := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		job, err := fetchRetrainJob(ctx, client, jobID)
		if err != nil {
			return err
		}
		for ; printed < len(job.Logs); printed++ {
			fmt.Printf("  %s\n", job.Logs[printed])
		}

		switch job.Status {
		case "completed":
			printSuccess("Retraining complete")
			return nil
		case "failed":
			return fmt.Errorf("retraining failed: %s", job.LastError)
		}
	}
}

func init() {
	retrainCmd.Flags().Bool("follow", false, "wait for training to finish, streaming logs")
	retrainCmd.AddCommand(retrainStatusCmd)
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List registered model versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/models")
		if err != nil {
			return err
		}

		var versions []struct {
			Version   string  `json:"version"`
			Name      string  `json:"name"`
			Accuracy  float64 `json:"accuracy"`
			Active    bool    `json:"active"`
			CreatedAt string  `json:"created_at"`
		}
		if err := decodeJSON(resp, &versions); err != nil {
			return err
		}

		if len(versions) == 0 {
			fmt.Println("No model versions registered.")
			return nil
		}

		for _, v := range versions {
			marker := " "
			if v.Active {
				marker = colorize(colorGreen, "*")
			}
			fmt.Printf("%s %s  %s  accuracy %.3f  %s\n",
				marker, colorize(colorBold, v.Version), v.Name, v.Accuracy, v.CreatedAt)
		}
		return nil
	},
}

var modelsActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the active model version with training metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/models/active")
		if err != nil {
			return err
		}

		var model any
		if err := decodeJSON(resp, &model); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(model)
	},
}

func init() {
	modelsCmd.AddCommand(modelsActiveCmd)
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show service statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/admin/stats")
		if err != nil {
			return err
		}

		var stats struct {
			TotalBatches  int `json:"total_batches"`
			RecentBatches int `json:"recent_batches"`
			Feedback      struct {
				Total   int `json:"total"`
				Helpful int `json:"helpful"`
				Unfit   int `json:"unfit"`
			} `json:"feedback"`
			ActiveModel struct {
				Version  string  `json:"version"`
				Accuracy float64 `json:"accuracy"`
			} `json:"active_model"`
		}
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printStatus("Batches", "%d total, %d in the last 7 days", stats.TotalBatches, stats.RecentBatches)
		printStatus("Feedback labels", "%d (%d helpful, %d unfit)",
			stats.Feedback.Total, stats.Feedback.Helpful, stats.Feedback.Unfit)
		if stats.ActiveModel.Version != "" {
			printStatus("Active model", "%s (accuracy %.3f)", stats.ActiveModel.Version, stats.ActiveModel.Accuracy)
		}
		return nil
	},
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the feedback dataset (or analysis history) as CSV",
	Long: `Export stored data as CSV.

By default the feedback training dataset is exported. With --analyses the
analysis batch history is exported instead, optionally bounded by
--start/--end dates (YYYY-MM-DD, end inclusive).

Examples:
  revd export --output feedback.csv
  revd export --analyses --start 2025-06-01 --end 2025-06-30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		analyses, _ := cmd.Flags().GetBool("analyses")
		start, _ := cmd.Flags().GetString("start")
		end, _ := cmd.Flags().GetString("end")

		path := "/admin/export"
		if analyses {
			params := url.Values{}
			if start != "" {
				params.Set("start", start)
			}
			if end != "" {
				params.Set("end", end)
			}
			path = "/admin/export/analyses"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
		}

		var writer *os.File
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		} else {
			writer = os.Stdout
		}

		if _, err := io.Copy(writer, resp.Body); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}

		if output != "" {
			printSuccess("Feedback exported to %s", output)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("output", "", "output file path (default: stdout)")
	exportCmd.Flags().Bool("analyses", false, "export analysis history instead of the feedback dataset")
	exportCmd.Flags().String("start", "", "start date for --analyses (YYYY-MM-DD)")
	exportCmd.Flags().String("end", "", "end date for --analyses (YYYY-MM-DD, inclusive)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
