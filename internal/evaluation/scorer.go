package evaluation

import (
	"fmt"
	"sort"

	"github.com/R2-Decide/esci-evaluator/internal/backend"
	"github.com/R2-Decide/esci-evaluator/internal/dataset"
	"github.com/R2-Decide/esci-evaluator/internal/label"
	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
)

// Scorer computes all configured metrics for one query in a single pass
// over the ranked result, without re-invoking the backend per k.
type Scorer struct {
	weights   label.Weights
	ks        []int
	threshold float64
}

// DefaultKs are the cutoffs scored when none are configured.
var DefaultKs = []int{5, 10, 20}

// NewScorer validates the metric configuration up front so that weight or
// threshold mistakes abort before any query runs.
func NewScorer(w label.Weights, ks []int, threshold float64) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if len(ks) == 0 {
		ks = DefaultKs
	}
	for _, k := range ks {
		if k <= 0 {
			return nil, errors.ConfigurationError(fmt.Sprintf("metric cutoff k must be positive, got %d", k))
		}
	}
	if threshold <= 0 || threshold > 1 {
		return nil, errors.ConfigurationError(
			fmt.Sprintf("relevance threshold must be in (0,1], got %v", threshold))
	}

	sorted := make([]int, len(ks))
	copy(sorted, ks)
	sort.Ints(sorted)

	return &Scorer{weights: w, ks: sorted, threshold: threshold}, nil
}

// Ks returns the configured cutoffs in ascending order.
func (s *Scorer) Ks() []int {
	return s.ks
}

// Threshold returns the configured relevance threshold.
func (s *Scorer) Threshold() float64 {
	return s.threshold
}

// Weights returns the configured gain mapping.
func (s *Scorer) Weights() label.Weights {
	return s.weights
}

// Score evaluates one ranked result against the ground truth of a query
// case. Duplicate identifiers are scored independently at each position;
// identifiers absent from the ground truth have gain zero.
func (s *Scorer) Score(qc *dataset.QueryCase, ranked backend.RankedResult) (QueryScore, error) {
	retrieved := make([]float64, len(ranked))
	for i, id := range ranked {
		retrieved[i] = s.weights.Gain(qc.Grade(id))
	}
	groundTruth := qc.Gains(s.weights)

	metrics := make(map[string]float64, len(s.ks)*4+2)
	for _, k := range s.ks {
		ndcg, err := NDCG(retrieved, groundTruth, k)
		if err != nil {
			return QueryScore{}, err
		}
		precision, err := Precision(retrieved, k, s.threshold)
		if err != nil {
			return QueryScore{}, err
		}
		recall, err := Recall(retrieved, groundTruth, k, s.threshold)
		if err != nil {
			return QueryScore{}, err
		}
		f1, err := F1(retrieved, groundTruth, k, s.threshold)
		if err != nil {
			return QueryScore{}, err
		}

		metrics[MetricAt(MetricNDCG, k)] = ndcg
		metrics[MetricAt(MetricPrecision, k)] = precision
		metrics[MetricAt(MetricRecall, k)] = recall
		metrics[MetricAt(MetricF1, k)] = f1
	}
	metrics[MetricMRR] = ReciprocalRank(retrieved, s.threshold)
	metrics[MetricAP] = AveragePrecision(retrieved, groundTruth, s.threshold)

	return QueryScore{
		QueryID:     qc.ID,
		Query:       qc.Query,
		Locale:      qc.Locale,
		Category:    qc.Category,
		LabelSet:    qc.LabelSet,
		Degenerate:  qc.Degenerate(s.weights),
		ResultCount: len(ranked),
		Metrics:     metrics,
	}, nil
}
