package evaluation

import (
	"math"
	"testing"

	"github.com/R2-Decide/esci-evaluator/internal/backend"
	"github.com/R2-Decide/esci-evaluator/internal/dataset"
	"github.com/R2-Decide/esci-evaluator/internal/label"
	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
)

func testCase(t *testing.T, judgments []dataset.Judgment) *dataset.QueryCase {
	t.Helper()

	ds, err := dataset.Normalize(judgments, nil)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	cases := ds.Cases()
	if len(cases) != 1 {
		t.Fatalf("expected one query case, got %d", len(cases))
	}
	return &cases[0]
}

func TestNewScorerValidation(t *testing.T) {
	w := label.DefaultWeights()

	if _, err := NewScorer(w, []int{5}, 0.1); err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}

	if _, err := NewScorer(w, []int{5, 0}, 0.1); !errors.IsConfiguration(err) {
		t.Errorf("NewScorer(k=0) error = %v, want configuration error", err)
	}

	if _, err := NewScorer(w, []int{5}, 0); !errors.IsConfiguration(err) {
		t.Errorf("NewScorer(threshold=0) error = %v, want configuration error", err)
	}

	if _, err := NewScorer(w, []int{5}, 1.5); !errors.IsConfiguration(err) {
		t.Errorf("NewScorer(threshold=1.5) error = %v, want configuration error", err)
	}

	bad := label.Weights{Exact: 0.5, Substitute: 0.9, Complement: 0.01, Irrelevant: 0}
	if _, err := NewScorer(bad, []int{5}, 0.1); !errors.IsConfiguration(err) {
		t.Errorf("NewScorer(non-monotonic weights) error = %v, want configuration error", err)
	}
}

func TestScorerDefaultKs(t *testing.T) {
	s, err := NewScorer(label.DefaultWeights(), nil, 0.1)
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}
	if got := s.Ks(); len(got) != len(DefaultKs) {
		t.Errorf("Ks() = %v, want %v", got, DefaultKs)
	}
}

func TestScore(t *testing.T) {
	qc := testCase(t, []dataset.Judgment{
		{QueryID: "q1", Query: "usb cable", Category: "electronics", ProductID: "A", Label: "E"},
		{QueryID: "q1", Query: "usb cable", Category: "electronics", ProductID: "B", Label: "S"},
		{QueryID: "q1", Query: "usb cable", Category: "electronics", ProductID: "C", Label: "I"},
	})

	s, err := NewScorer(label.DefaultWeights(), []int{3}, 0.1)
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}

	score, err := s.Score(qc, backend.RankedResult{"C", "A", "B"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	if score.QueryID != "q1" || score.Category != "electronics" {
		t.Errorf("score identity = %s/%s, want q1/electronics", score.QueryID, score.Category)
	}
	if score.Degenerate {
		t.Error("Degenerate = true, want false")
	}
	if score.ResultCount != 3 {
		t.Errorf("ResultCount = %d, want 3", score.ResultCount)
	}
	if score.LabelSet != "ESI" {
		t.Errorf("LabelSet = %q, want ESI", score.LabelSet)
	}

	wantNDCG := (1.0/math.Log2(3) + 0.1/math.Log2(4)) / (1.0 + 0.1/math.Log2(3))
	if got := score.Metrics["ndcg@3"]; !almostEqual(got, wantNDCG) {
		t.Errorf("ndcg@3 = %v, want %v", got, wantNDCG)
	}
	if got := score.Metrics["precision@3"]; !almostEqual(got, 2.0/3.0) {
		t.Errorf("precision@3 = %v, want %v", got, 2.0/3.0)
	}
	if got := score.Metrics["recall@3"]; !almostEqual(got, 1.0) {
		t.Errorf("recall@3 = %v, want 1", got)
	}
	if got := score.Metrics["mrr"]; !almostEqual(got, 0.5) {
		t.Errorf("mrr = %v, want 0.5", got)
	}
	if got := score.Metrics["ap"]; !almostEqual(got, (0.5+2.0/3.0)/2.0) {
		t.Errorf("ap = %v, want %v", got, (0.5+2.0/3.0)/2.0)
	}
}

func TestScoreUnknownProductIsIrrelevant(t *testing.T) {
	qc := testCase(t, []dataset.Judgment{
		{QueryID: "q1", Query: "usb cable", ProductID: "A", Label: "E"},
	})

	s, err := NewScorer(label.DefaultWeights(), []int{2}, 0.1)
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}

	score, err := s.Score(qc, backend.RankedResult{"unknown", "A"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	// A at position 2 against an ideal of A at position 1.
	want := (1.0 / math.Log2(3)) / 1.0
	if got := score.Metrics["ndcg@2"]; !almostEqual(got, want) {
		t.Errorf("ndcg@2 = %v, want %v", got, want)
	}
	if got := score.Metrics["precision@2"]; !almostEqual(got, 0.5) {
		t.Errorf("precision@2 = %v, want 0.5", got)
	}
}

func TestScoreEmptyResult(t *testing.T) {
	qc := testCase(t, []dataset.Judgment{
		{QueryID: "q1", Query: "usb cable", ProductID: "A", Label: "E"},
	})

	s, err := NewScorer(label.DefaultWeights(), []int{5}, 0.1)
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}

	score, err := s.Score(qc, nil)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	for name, value := range score.Metrics {
		if value != 0 {
			t.Errorf("%s = %v on empty result, want 0", name, value)
		}
	}
}

func TestScoreDegenerateQuery(t *testing.T) {
	qc := testCase(t, []dataset.Judgment{
		{QueryID: "q1", Query: "usb cable", ProductID: "A", Label: "I"},
	})

	s, err := NewScorer(label.DefaultWeights(), []int{5}, 0.1)
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}

	score, err := s.Score(qc, backend.RankedResult{"A"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	if !score.Degenerate {
		t.Error("Degenerate = false, want true")
	}
	if got := score.Metrics["ndcg@5"]; got != 0 {
		t.Errorf("ndcg@5 = %v on degenerate query, want 0", got)
	}
}
