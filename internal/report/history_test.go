package report

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/R2-Decide/esci-evaluator/internal/evaluation"
)

func testReport(backend string, started time.Time) *evaluation.Report {
	return &evaluation.Report{
		RunID:       "run-1",
		Backend:     backend,
		Status:      evaluation.StateCompleted,
		StartedAt:   started,
		CompletedAt: started.Add(time.Minute),
		QueryCount:  2,
		Processed:   2,
		Metrics: map[string]evaluation.MetricStats{
			"ndcg@5": {Mean: 0.75, Count: 2},
			"mrr":    {Mean: 0.5, Count: 1, SkippedCount: 1},
		},
	}
}

func TestNewHistory_InvalidURL(t *testing.T) {
	_, err := NewHistory("invalid://url", 30)
	if err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestNewHistory_ConnectionFailure(t *testing.T) {
	// Try to connect to non-existent Redis
	_, err := NewHistory("redis://localhost:9999", 30)
	if err == nil {
		t.Fatal("expected error for connection failure")
	}
}

func TestHistory_SaveAndList(t *testing.T) {
	// Skip if Redis not available
	history, err := NewHistory("redis://localhost:6379/15", 30)
	if err != nil {
		t.Skip("Redis not available:", err)
	}
	defer history.Close()

	ctx := context.Background()
	defer history.Delete(ctx, "test-backend")

	now := time.Now().UTC().Truncate(time.Second)
	if err := history.Save(ctx, testReport("test-backend", now)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	runs, err := history.List(ctx, "test-backend", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("List() returned %d runs, want 1", len(runs))
	}
	if runs[0].RunID != "run-1" || runs[0].Backend != "test-backend" {
		t.Errorf("loaded run = %s/%s, want run-1/test-backend", runs[0].RunID, runs[0].Backend)
	}

	// A window after the run excludes it.
	runs, err = history.List(ctx, "test-backend", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("List() with future window returned %d runs, want 0", len(runs))
	}

	backends, err := history.Backends(ctx)
	if err != nil {
		t.Fatalf("Backends() error = %v", err)
	}
	var found bool
	for _, b := range backends {
		if b == "test-backend" {
			found = true
		}
	}
	if !found {
		t.Errorf("Backends() = %v, missing test-backend", backends)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	rep := testReport("static", time.Now().UTC())

	if err := WriteFile(path, rep); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}

	var loaded evaluation.Report
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if loaded.RunID != rep.RunID {
		t.Errorf("RunID = %s, want %s", loaded.RunID, rep.RunID)
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	rep := testReport("static", time.Now().UTC())

	if err := WriteSummary(&buf, rep); err != nil {
		t.Fatalf("WriteSummary() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "backend=static") {
		t.Errorf("summary missing backend: %q", out)
	}
	if !strings.Contains(out, "ndcg@5") || !strings.Contains(out, "0.7500") {
		t.Errorf("summary missing metric line: %q", out)
	}
	if !strings.Contains(out, "skipped=1") {
		t.Errorf("summary missing skipped count: %q", out)
	}
}
