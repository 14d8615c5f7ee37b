package evaluation

import (
	"sort"
	"strings"
	"sync"
)

// Aggregator accumulates per-query scores and computes summary
// statistics. It retains the raw QueryScore records rather than running
// sums so that arbitrary post-hoc groupings stay a pure query over
// immutable records. Accumulate is safe under concurrent callers.
type Aggregator struct {
	mu     sync.Mutex
	scores []QueryScore
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Accumulate records one query score.
func (a *Aggregator) Accumulate(qs QueryScore) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scores = append(a.scores, qs)
}

// Len returns the number of accumulated scores.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.scores)
}

// Scores returns a copy of the accumulated records, sorted by query ID
// for reproducible output under concurrent accumulation.
func (a *Aggregator) Scores() []QueryScore {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]QueryScore, len(a.scores))
	copy(out, a.scores)
	sort.Slice(out, func(i, j int) bool { return out[i].QueryID < out[j].QueryID })
	return out
}

// Summarize computes per-metric statistics over the accumulated scores
// plus breakdowns by category and by label subset.
func (a *Aggregator) Summarize() (metrics map[string]MetricStats, byCategory, byLabelSet map[string]map[string]MetricStats) {
	scores := a.Scores()

	metrics = summarize(scores)

	byCategory = make(map[string]map[string]MetricStats)
	for key, group := range groupBy(scores, func(qs *QueryScore) string { return qs.Category }) {
		byCategory[key] = summarize(group)
	}

	byLabelSet = make(map[string]map[string]MetricStats)
	for key, group := range groupBy(scores, func(qs *QueryScore) string { return qs.LabelSet }) {
		byLabelSet[key] = summarize(group)
	}

	return metrics, byCategory, byLabelSet
}

// summarize computes mean/count/skipped per metric name. Degenerate
// queries are excluded from the denominator of NDCG means but counted as
// skipped exactly once per metric, so the report is never silently
// missing data.
func summarize(scores []QueryScore) map[string]MetricStats {
	sums := make(map[string]float64)
	stats := make(map[string]MetricStats)

	for _, qs := range scores {
		for name, value := range qs.Metrics {
			st := stats[name]
			if qs.Degenerate && isNDCGMetric(name) {
				st.SkippedCount++
				stats[name] = st
				continue
			}
			sums[name] += value
			st.Count++
			stats[name] = st
		}
	}

	for name, st := range stats {
		if st.Count > 0 {
			st.Mean = sums[name] / float64(st.Count)
		}
		stats[name] = st
	}
	return stats
}

// groupBy partitions scores by a key function, dropping the empty key.
func groupBy(scores []QueryScore, key func(*QueryScore) string) map[string][]QueryScore {
	groups := make(map[string][]QueryScore)
	for i := range scores {
		k := key(&scores[i])
		if k == "" {
			continue
		}
		groups[k] = append(groups[k], scores[i])
	}
	return groups
}

func isNDCGMetric(name string) bool {
	return name == MetricNDCG || strings.HasPrefix(name, MetricNDCG+"@")
}
