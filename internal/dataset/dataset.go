// Package dataset normalizes raw ESCI label assertions into immutable
// query cases ready for evaluation.
package dataset

import (
	"strings"

	"github.com/R2-Decide/esci-evaluator/internal/label"
	"github.com/R2-Decide/esci-evaluator/internal/pkg/logger"
)

// Judgment is a raw label assertion for one (query, product) pair.
type Judgment struct {
	QueryID   string `json:"query_id"`
	Query     string `json:"query"`
	Locale    string `json:"locale,omitempty"`
	Category  string `json:"category,omitempty"`
	ProductID string `json:"product_id"`
	Label     string `json:"label"`
}

// QueryCase is one normalized query with its ground-truth grade mapping.
// A product identifier absent from Grades is Irrelevant by policy, never
// "unknown".
type QueryCase struct {
	ID       string
	Query    string
	Locale   string
	Category string

	// Grades maps product identifier to relevance grade. Keys are unique
	// within the case.
	Grades map[string]label.Grade

	// LabelSet is the sorted set of label codes present in the ground
	// truth, e.g. "ESI". Used for label-subset breakdowns.
	LabelSet string
}

// Grade returns the grade for a product, Irrelevant when unlabeled.
func (qc *QueryCase) Grade(productID string) label.Grade {
	if g, ok := qc.Grades[productID]; ok {
		return g
	}
	return label.Irrelevant
}

// Gains returns the ground-truth gains for this case under the given
// weights, in no particular order.
func (qc *QueryCase) Gains(w label.Weights) []float64 {
	gains := make([]float64, 0, len(qc.Grades))
	for _, g := range qc.Grades {
		gains = append(gains, w.Gain(g))
	}
	return gains
}

// Degenerate reports whether the case has no positively-graded product
// under the given weights. Degenerate cases score zero NDCG by the
// zero-IDCG policy and are excluded from mean NDCG denominators.
func (qc *QueryCase) Degenerate(w label.Weights) bool {
	for _, g := range qc.Grades {
		if w.Gain(g) > 0 {
			return false
		}
	}
	return true
}

// Dataset is an ordered, immutable collection of query cases.
type Dataset struct {
	cases []QueryCase
}

// Len returns the number of query cases.
func (d *Dataset) Len() int {
	return len(d.cases)
}

// Cases returns the query cases in insertion order.
func (d *Dataset) Cases() []QueryCase {
	return d.cases
}

// Filter returns a new Dataset containing only cases the predicate keeps,
// preserving order.
func (d *Dataset) Filter(keep func(*QueryCase) bool) *Dataset {
	out := make([]QueryCase, 0, len(d.cases))
	for i := range d.cases {
		if keep(&d.cases[i]) {
			out = append(out, d.cases[i])
		}
	}
	return &Dataset{cases: out}
}

// Normalize converts raw judgments into a Dataset. Repeated
// (query, product) pairs keep the most recently seen grade; a conflicting
// duplicate is a warning, not an error. Unknown label codes abort
// normalization. Queries with zero labeled products are retained; the
// aggregator treats them as degenerate.
func Normalize(raw []Judgment, log *logger.Logger) (*Dataset, error) {
	if log == nil {
		log = logger.Default()
	}

	var order []string
	cases := make(map[string]*QueryCase)

	for _, j := range raw {
		id := j.QueryID
		if id == "" {
			id = j.Query
		}

		qc, ok := cases[id]
		if !ok {
			qc = &QueryCase{
				ID:       id,
				Query:    j.Query,
				Locale:   j.Locale,
				Category: j.Category,
				Grades:   make(map[string]label.Grade),
			}
			cases[id] = qc
			order = append(order, id)
		}

		if j.ProductID == "" {
			// A query row without a product carries only query metadata.
			continue
		}

		grade, err := label.Parse(j.Label)
		if err != nil {
			return nil, err
		}

		if prev, dup := qc.Grades[j.ProductID]; dup && prev != grade {
			log.Warn("conflicting duplicate grade, keeping most recent",
				"query_id", id,
				"product_id", j.ProductID,
				"previous", string(prev),
				"replacement", string(grade),
			)
		}
		qc.Grades[j.ProductID] = grade
	}

	out := make([]QueryCase, 0, len(order))
	for _, id := range order {
		qc := cases[id]
		qc.LabelSet = labelSet(qc.Grades)
		out = append(out, *qc)
	}

	return &Dataset{cases: out}, nil
}

// labelSet renders the set of label codes present, in E,S,C,I order.
func labelSet(grades map[string]label.Grade) string {
	present := make(map[label.Grade]bool, len(grades))
	for _, g := range grades {
		present[g] = true
	}

	var sb strings.Builder
	for _, g := range label.Grades {
		if present[g] {
			sb.WriteString(string(g))
		}
	}
	return sb.String()
}

// MinLabelFilter keeps cases with at least n labeled products. The
// original benchmark filtered ground truth the same way before scoring.
func MinLabelFilter(n int) func(*QueryCase) bool {
	return func(qc *QueryCase) bool {
		return len(qc.Grades) >= n
	}
}

// LocaleFilter keeps cases matching the given locale. An empty locale
// keeps everything.
func LocaleFilter(locale string) func(*QueryCase) bool {
	return func(qc *QueryCase) bool {
		return locale == "" || qc.Locale == locale
	}
}

// CategoryFilter keeps cases matching the given category. An empty
// category keeps everything.
func CategoryFilter(category string) func(*QueryCase) bool {
	return func(qc *QueryCase) bool {
		return category == "" || qc.Category == category
	}
}
