package evaluation

import (
	"sync"
	"testing"
)

func TestAggregatorSummarize(t *testing.T) {
	agg := NewAggregator()

	agg.Accumulate(QueryScore{
		QueryID:  "q1",
		Category: "electronics",
		LabelSet: "ES",
		Metrics:  map[string]float64{"ndcg@5": 0.8, "mrr": 1.0},
	})
	agg.Accumulate(QueryScore{
		QueryID:  "q2",
		Category: "kitchen",
		LabelSet: "ES",
		Metrics:  map[string]float64{"ndcg@5": 0.4, "mrr": 0.5},
	})

	metrics, byCategory, byLabelSet := agg.Summarize()

	if got := metrics["ndcg@5"]; !almostEqual(got.Mean, 0.6) || got.Count != 2 {
		t.Errorf("ndcg@5 stats = %+v, want mean 0.6 count 2", got)
	}
	if got := metrics["mrr"]; !almostEqual(got.Mean, 0.75) {
		t.Errorf("mrr mean = %v, want 0.75", got.Mean)
	}

	if got := byCategory["electronics"]["ndcg@5"]; !almostEqual(got.Mean, 0.8) || got.Count != 1 {
		t.Errorf("electronics ndcg@5 = %+v, want mean 0.8 count 1", got)
	}
	if got := byLabelSet["ES"]["ndcg@5"]; got.Count != 2 {
		t.Errorf("label set ES ndcg@5 count = %d, want 2", got.Count)
	}
}

func TestAggregatorSkipsDegenerateNDCG(t *testing.T) {
	agg := NewAggregator()

	agg.Accumulate(QueryScore{
		QueryID: "q1",
		Metrics: map[string]float64{"ndcg@5": 0.8, "precision@5": 0.6},
	})
	agg.Accumulate(QueryScore{
		QueryID:    "q2",
		Degenerate: true,
		Metrics:    map[string]float64{"ndcg@5": 0.0, "precision@5": 0.0},
	})

	metrics, _, _ := agg.Summarize()

	ndcg := metrics["ndcg@5"]
	if !almostEqual(ndcg.Mean, 0.8) {
		t.Errorf("ndcg@5 mean = %v, want 0.8 (degenerate excluded)", ndcg.Mean)
	}
	if ndcg.Count != 1 || ndcg.SkippedCount != 1 {
		t.Errorf("ndcg@5 count/skipped = %d/%d, want 1/1", ndcg.Count, ndcg.SkippedCount)
	}

	// Non-NDCG metrics keep the degenerate query in the denominator.
	precision := metrics["precision@5"]
	if !almostEqual(precision.Mean, 0.3) || precision.Count != 2 {
		t.Errorf("precision@5 stats = %+v, want mean 0.3 count 2", precision)
	}
	if precision.SkippedCount != 0 {
		t.Errorf("precision@5 skipped = %d, want 0", precision.SkippedCount)
	}
}

func TestAggregatorScoresSorted(t *testing.T) {
	agg := NewAggregator()
	for _, id := range []string{"q3", "q1", "q2"} {
		agg.Accumulate(QueryScore{QueryID: id})
	}

	scores := agg.Scores()
	for i, want := range []string{"q1", "q2", "q3"} {
		if scores[i].QueryID != want {
			t.Errorf("Scores()[%d].QueryID = %s, want %s", i, scores[i].QueryID, want)
		}
	}
}

func TestAggregatorDropsEmptyGroupKeys(t *testing.T) {
	agg := NewAggregator()
	agg.Accumulate(QueryScore{QueryID: "q1", Metrics: map[string]float64{"mrr": 1.0}})

	_, byCategory, byLabelSet := agg.Summarize()
	if len(byCategory) != 0 {
		t.Errorf("byCategory = %v, want empty for uncategorized scores", byCategory)
	}
	if len(byLabelSet) != 0 {
		t.Errorf("byLabelSet = %v, want empty for scores without label sets", byLabelSet)
	}
}

func TestAggregatorConcurrentAccumulate(t *testing.T) {
	agg := NewAggregator()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.Accumulate(QueryScore{QueryID: "q", Metrics: map[string]float64{"mrr": 1.0}})
		}()
	}
	wg.Wait()

	if agg.Len() != 50 {
		t.Errorf("Len() = %d, want 50", agg.Len())
	}
	metrics, _, _ := agg.Summarize()
	if got := metrics["mrr"]; got.Count != 50 || !almostEqual(got.Mean, 1.0) {
		t.Errorf("mrr stats = %+v, want count 50 mean 1.0", got)
	}
}
