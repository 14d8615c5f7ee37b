package evaluation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/R2-Decide/esci-evaluator/internal/backend"
	"github.com/R2-Decide/esci-evaluator/internal/bus"
	"github.com/R2-Decide/esci-evaluator/internal/dataset"
	"github.com/R2-Decide/esci-evaluator/internal/label"
	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
)

// failingAdapter fails selected queries with a configurable error.
type failingAdapter struct {
	name    string
	results map[string]backend.RankedResult
	fail    map[string]error

	mu    sync.Mutex
	calls int
}

func (f *failingAdapter) Name() string { return f.name }

func (f *failingAdapter) Search(ctx context.Context, q backend.Query) (backend.RankedResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err, ok := f.fail[q.ID]; ok {
		return nil, err
	}
	return f.results[q.ID], nil
}

func testDataset(t *testing.T, ids ...string) *dataset.Dataset {
	t.Helper()

	var raw []dataset.Judgment
	for _, id := range ids {
		raw = append(raw, dataset.Judgment{
			QueryID:   id,
			Query:     "query " + id,
			Category:  "electronics",
			ProductID: "P-" + id,
			Label:     "E",
		})
	}

	ds, err := dataset.Normalize(raw, nil)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	return ds
}

func testScorer(t *testing.T) *Scorer {
	t.Helper()

	s, err := NewScorer(label.DefaultWeights(), []int{5}, 0.1)
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}
	return s
}

func TestDriverRun(t *testing.T) {
	ds := testDataset(t, "q1", "q2", "q3")
	adapter := &failingAdapter{
		name: "static",
		results: map[string]backend.RankedResult{
			"q1": {"P-q1"},
			"q2": {"other", "P-q2"},
			"q3": {"nothing"},
		},
	}

	driver, err := NewDriver(DefaultDriverConfig(), testScorer(t), adapter, nil, nil)
	if err != nil {
		t.Fatalf("NewDriver() error = %v", err)
	}

	report, err := driver.Run(context.Background(), ds)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Status != StateCompleted {
		t.Errorf("Status = %s, want %s", report.Status, StateCompleted)
	}
	if driver.State() != StateCompleted {
		t.Errorf("State() = %s, want %s", driver.State(), StateCompleted)
	}
	if report.RunID == "" {
		t.Error("RunID is empty")
	}
	if report.Backend != "static" {
		t.Errorf("Backend = %s, want static", report.Backend)
	}
	if report.QueryCount != 3 || report.Processed != 3 {
		t.Errorf("QueryCount/Processed = %d/%d, want 3/3", report.QueryCount, report.Processed)
	}
	if len(report.Scores) != 3 {
		t.Fatalf("len(Scores) = %d, want 3", len(report.Scores))
	}
	if len(report.Failures) != 0 {
		t.Errorf("Failures = %v, want none", report.Failures)
	}

	// Scores come back sorted by query ID.
	if report.Scores[0].QueryID != "q1" || report.Scores[2].QueryID != "q3" {
		t.Errorf("scores out of order: %v", report.Scores)
	}

	// q1 perfect, q2 at position 2, q3 miss.
	if got := report.Scores[0].Metrics["ndcg@5"]; !almostEqual(got, 1.0) {
		t.Errorf("q1 ndcg@5 = %v, want 1", got)
	}
	if got := report.Scores[2].Metrics["ndcg@5"]; got != 0 {
		t.Errorf("q3 ndcg@5 = %v, want 0", got)
	}

	if got := report.Metrics["mrr"]; got.Count != 3 {
		t.Errorf("mrr count = %d, want 3", got.Count)
	}
	if _, ok := report.ByCategory["electronics"]; !ok {
		t.Error("ByCategory missing electronics group")
	}
}

func TestDriverEscalatesConsecutiveUnavailable(t *testing.T) {
	ds := testDataset(t, "q1", "q2", "q3", "q4", "q5")

	unavailable := errors.BackendUnavailableError("flaky", nil)
	adapter := &failingAdapter{
		name: "flaky",
		fail: map[string]error{
			"q1": unavailable, "q2": unavailable, "q3": unavailable,
			"q4": unavailable, "q5": unavailable,
		},
	}

	cfg := DriverConfig{Workers: 1, FailureThreshold: 3}
	driver, err := NewDriver(cfg, testScorer(t), adapter, nil, nil)
	if err != nil {
		t.Fatalf("NewDriver() error = %v", err)
	}

	report, err := driver.Run(context.Background(), ds)
	if !errors.IsBackendUnavailable(err) {
		t.Fatalf("Run() error = %v, want backend unavailable", err)
	}

	if report.Status != StateFailed {
		t.Errorf("Status = %s, want %s", report.Status, StateFailed)
	}
	if driver.State() != StateFailed {
		t.Errorf("State() = %s, want %s", driver.State(), StateFailed)
	}
	if len(report.Failures) != 3 {
		t.Errorf("len(Failures) = %d, want 3 (run aborted at threshold)", len(report.Failures))
	}
	if report.Processed >= report.QueryCount {
		t.Errorf("Processed = %d, want fewer than %d", report.Processed, report.QueryCount)
	}
}

func TestDriverSuccessResetsStreak(t *testing.T) {
	ds := testDataset(t, "q1", "q2", "q3", "q4", "q5")

	unavailable := errors.BackendUnavailableError("flaky", nil)
	adapter := &failingAdapter{
		name: "flaky",
		results: map[string]backend.RankedResult{
			"q2": {"P-q2"},
			"q4": {"P-q4"},
		},
		fail: map[string]error{
			"q1": unavailable, "q3": unavailable, "q5": unavailable,
		},
	}

	cfg := DriverConfig{Workers: 1, FailureThreshold: 3}
	driver, err := NewDriver(cfg, testScorer(t), adapter, nil, nil)
	if err != nil {
		t.Fatalf("NewDriver() error = %v", err)
	}

	report, err := driver.Run(context.Background(), ds)
	if err != nil {
		t.Fatalf("Run() error = %v, interleaved failures must not escalate", err)
	}

	if report.Status != StateCompleted {
		t.Errorf("Status = %s, want %s", report.Status, StateCompleted)
	}
	if len(report.Scores) != 2 || len(report.Failures) != 3 {
		t.Errorf("scored/failed = %d/%d, want 2/3", len(report.Scores), len(report.Failures))
	}
}

func TestDriverProtocolErrorsDoNotEscalate(t *testing.T) {
	ds := testDataset(t, "q1", "q2", "q3", "q4", "q5")

	protocol := errors.BackendProtocolError("broken", nil)
	adapter := &failingAdapter{
		name: "broken",
		fail: map[string]error{
			"q1": protocol, "q2": protocol, "q3": protocol,
			"q4": protocol, "q5": protocol,
		},
	}

	cfg := DriverConfig{Workers: 1, FailureThreshold: 3}
	driver, err := NewDriver(cfg, testScorer(t), adapter, nil, nil)
	if err != nil {
		t.Fatalf("NewDriver() error = %v", err)
	}

	report, err := driver.Run(context.Background(), ds)
	if err != nil {
		t.Fatalf("Run() error = %v, protocol failures must not abort", err)
	}

	if report.Status != StateCompleted {
		t.Errorf("Status = %s, want %s", report.Status, StateCompleted)
	}
	if len(report.Failures) != 5 {
		t.Errorf("len(Failures) = %d, want 5", len(report.Failures))
	}
	for _, f := range report.Failures {
		if f.Code != errors.CodeBackendProtocol {
			t.Errorf("failure code = %s, want %s", f.Code, errors.CodeBackendProtocol)
		}
	}
}

func TestDriverCancellationReturnsPartialReport(t *testing.T) {
	ds := testDataset(t, "q1", "q2", "q3")
	adapter := backend.NewStatic("static", map[string]backend.RankedResult{
		"q1": {"P-q1"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	driver, err := NewDriver(DefaultDriverConfig(), testScorer(t), adapter, nil, nil)
	if err != nil {
		t.Fatalf("NewDriver() error = %v", err)
	}

	report, err := driver.Run(ctx, ds)
	if err != nil {
		t.Fatalf("Run() on cancelled context error = %v, want nil", err)
	}
	if report.Status != StateCompleted {
		t.Errorf("Status = %s, want %s", report.Status, StateCompleted)
	}
	if len(report.Scores) != 0 {
		t.Errorf("len(Scores) = %d, want 0 after pre-run cancellation", len(report.Scores))
	}
}

func TestDriverPublishesProgressEvents(t *testing.T) {
	ds := testDataset(t, "q1", "q2")
	adapter := backend.NewStatic("static", map[string]backend.RankedResult{
		"q1": {"P-q1"},
		"q2": {"P-q2"},
	})

	eventBus := bus.NewMemoryBus()
	defer eventBus.Close()

	var scored, completed atomic.Int32
	eventBus.Subscribe(context.Background(), bus.TopicQueryScored, func(ctx context.Context, event bus.Event) error {
		scored.Add(1)
		return nil
	})
	eventBus.Subscribe(context.Background(), bus.TopicRunCompleted, func(ctx context.Context, event bus.Event) error {
		completed.Add(1)
		return nil
	})

	driver, err := NewDriver(DefaultDriverConfig(), testScorer(t), adapter, eventBus, nil)
	if err != nil {
		t.Fatalf("NewDriver() error = %v", err)
	}

	report, err := driver.Run(context.Background(), ds)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !eventBus.DrainTimeout(time.Second) {
		t.Fatal("Timeout draining events")
	}

	if scored.Load() != 2 {
		t.Errorf("query scored events = %d, want 2", scored.Load())
	}
	if completed.Load() != 1 {
		t.Errorf("run completed events = %d, want 1", completed.Load())
	}
	if report.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestNewDriverValidation(t *testing.T) {
	adapter := backend.NewStatic("static", nil)
	scorer := testScorer(t)

	if _, err := NewDriver(DefaultDriverConfig(), nil, adapter, nil, nil); !errors.IsConfiguration(err) {
		t.Errorf("NewDriver(nil scorer) error = %v, want configuration error", err)
	}
	if _, err := NewDriver(DefaultDriverConfig(), scorer, nil, nil, nil); !errors.IsConfiguration(err) {
		t.Errorf("NewDriver(nil adapter) error = %v, want configuration error", err)
	}
	if _, err := NewDriver(DriverConfig{Workers: 0, FailureThreshold: 3}, scorer, adapter, nil, nil); !errors.IsConfiguration(err) {
		t.Errorf("NewDriver(zero workers) error = %v, want configuration error", err)
	}
	if _, err := NewDriver(DriverConfig{Workers: 1, FailureThreshold: 0}, scorer, adapter, nil, nil); !errors.IsConfiguration(err) {
		t.Errorf("NewDriver(zero threshold) error = %v, want configuration error", err)
	}
}
