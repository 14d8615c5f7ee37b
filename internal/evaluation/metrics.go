package evaluation

import (
	"math"
	"sort"

	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
)

// The metric functions are pure and stateless: the same inputs always
// produce the same outputs, and they are safe to call concurrently.
//
// retrieved holds the gain of each returned identifier at its position
// (gain 0 for identifiers absent from the ground truth, duplicates
// evaluated independently per position). groundTruth holds the gains of
// every labeled product for the query, in no particular order.

// DCG computes Discounted Cumulative Gain over the first k positions:
// sum of gains[i]/log2(i+1) with 1-indexed i. Shorter lists are scored
// over their full length without zero padding.
func DCG(gains []float64, k int) float64 {
	n := min(k, len(gains))
	var dcg float64
	for i := 0; i < n; i++ {
		dcg += gains[i] / math.Log2(float64(i+2))
	}
	return dcg
}

// NDCG computes Normalized DCG at k. The ideal DCG is always computed
// against the full ground truth irrespective of result length, which
// penalizes short result lists relative to the best possible ranking.
// When the ideal DCG is zero (no positively-graded products) NDCG is 0
// by policy, never NaN.
func NDCG(retrieved, groundTruth []float64, k int) (float64, error) {
	if k <= 0 {
		return 0, errors.InvalidArgumentError("ndcg: k must be a positive integer")
	}

	ideal := make([]float64, len(groundTruth))
	copy(ideal, groundTruth)
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))

	idcg := DCG(ideal, k)
	if idcg == 0 {
		return 0, nil
	}

	// Duplicate identifiers can push the achieved DCG past the ideal,
	// which holds each product once. Clamp to keep NDCG in [0,1].
	return min(DCG(retrieved, k)/idcg, 1), nil
}

// Precision computes Precision at k: the count of the first k positions
// with gain at or above the threshold, divided by min(k, len(retrieved)).
// An empty result scores 0. Positions beyond k are ignored.
func Precision(retrieved []float64, k int, threshold float64) (float64, error) {
	if k <= 0 {
		return 0, errors.InvalidArgumentError("precision: k must be a positive integer")
	}
	n := min(k, len(retrieved))
	if n == 0 {
		return 0, nil
	}

	var relevant int
	for i := 0; i < n; i++ {
		if retrieved[i] >= threshold {
			relevant++
		}
	}
	return float64(relevant) / float64(n), nil
}

// Recall computes Recall at k: relevant results in the first k positions
// over the total number of relevant products in the ground truth. Zero
// when the ground truth has no relevant products.
func Recall(retrieved, groundTruth []float64, k int, threshold float64) (float64, error) {
	if k <= 0 {
		return 0, errors.InvalidArgumentError("recall: k must be a positive integer")
	}

	totalRelevant := countRelevant(groundTruth, threshold)
	if totalRelevant == 0 {
		return 0, nil
	}

	n := min(k, len(retrieved))
	var found int
	for i := 0; i < n; i++ {
		if retrieved[i] >= threshold {
			found++
		}
	}
	return float64(found) / float64(totalRelevant), nil
}

// F1 computes the harmonic mean of Precision and Recall at k.
func F1(retrieved, groundTruth []float64, k int, threshold float64) (float64, error) {
	p, err := Precision(retrieved, k, threshold)
	if err != nil {
		return 0, err
	}
	r, err := Recall(retrieved, groundTruth, k, threshold)
	if err != nil {
		return 0, err
	}
	if p+r == 0 {
		return 0, nil
	}
	return 2 * p * r / (p + r), nil
}

// ReciprocalRank returns 1/position (1-indexed) of the first result with
// gain at or above the threshold, 0 if no such result appears anywhere.
func ReciprocalRank(retrieved []float64, threshold float64) float64 {
	for i, g := range retrieved {
		if g >= threshold {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecision computes the mean of precision values at each relevant
// rank position, over the total relevant count in the ground truth.
func AveragePrecision(retrieved, groundTruth []float64, threshold float64) float64 {
	totalRelevant := countRelevant(groundTruth, threshold)
	if totalRelevant == 0 {
		return 0
	}

	var relevantSeen int
	var sumPrecision float64
	for i, g := range retrieved {
		if g >= threshold {
			relevantSeen++
			sumPrecision += float64(relevantSeen) / float64(i+1)
		}
	}
	return sumPrecision / float64(totalRelevant)
}

func countRelevant(gains []float64, threshold float64) int {
	var count int
	for _, g := range gains {
		if g >= threshold {
			count++
		}
	}
	return count
}
