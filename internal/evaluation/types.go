package evaluation

import (
	"fmt"
	"time"
)

// Metric names. The @k metrics append the cutoff, e.g. "ndcg@10".
const (
	MetricNDCG      = "ndcg"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
	MetricF1        = "f1"
	MetricMRR       = "mrr"
	MetricAP        = "ap"
)

// MetricAt renders an @k metric name.
func MetricAt(name string, k int) string {
	return fmt.Sprintf("%s@%d", name, k)
}

// QueryScore contains the metric values for a single scored query, plus
// the grouping keys needed for post-hoc breakdowns.
type QueryScore struct {
	QueryID  string `json:"query_id"`
	Query    string `json:"query"`
	Locale   string `json:"locale,omitempty"`
	Category string `json:"category,omitempty"`
	LabelSet string `json:"label_set,omitempty"`

	// Degenerate marks a query with no positively-graded ground truth.
	// Its NDCG is zero by the zero-IDCG policy and it is excluded from
	// mean NDCG denominators.
	Degenerate bool `json:"degenerate,omitempty"`

	ResultCount int `json:"result_count"`

	// Metrics maps metric name to score, e.g. "ndcg@10" -> 0.73.
	Metrics map[string]float64 `json:"metrics"`
}

// QueryFailure records a per-query adapter failure surfaced in the final
// report.
type QueryFailure struct {
	QueryID string `json:"query_id"`
	Query   string `json:"query"`
	Backend string `json:"backend"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MetricStats are the aggregate statistics for one metric.
type MetricStats struct {
	Mean         float64 `json:"mean"`
	Count        int     `json:"count"`
	SkippedCount int     `json:"skipped_count"`
}

// Report is the final output of an evaluation run. It is immutable once
// finalized and serializable for storage and cross-run comparison.
type Report struct {
	RunID   string `json:"run_id"`
	Backend string `json:"backend"`
	Status  string `json:"status"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	// QueryCount is the number of queries in the dataset; Processed is
	// how many were scored or recorded as failed before the run ended.
	QueryCount int `json:"query_count"`
	Processed  int `json:"processed"`

	Metrics    map[string]MetricStats            `json:"metrics"`
	ByCategory map[string]map[string]MetricStats `json:"by_category,omitempty"`
	ByLabelSet map[string]map[string]MetricStats `json:"by_label_set,omitempty"`

	Scores   []QueryScore   `json:"scores,omitempty"`
	Failures []QueryFailure `json:"failures,omitempty"`
}
