// Package label defines the ESCI relevance taxonomy and its gain mapping.
package label

import (
	"fmt"

	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
)

// Grade is one of the four ESCI relevance grades.
type Grade string

// ESCI grades, ordered from most to least relevant.
const (
	Exact      Grade = "E"
	Substitute Grade = "S"
	Complement Grade = "C"
	Irrelevant Grade = "I"
)

// Grades lists all grades in ordinal order, most relevant first.
var Grades = []Grade{Exact, Substitute, Complement, Irrelevant}

// String returns the long name of the grade.
func (g Grade) String() string {
	switch g {
	case Exact:
		return "Exact"
	case Substitute:
		return "Substitute"
	case Complement:
		return "Complement"
	case Irrelevant:
		return "Irrelevant"
	default:
		return string(g)
	}
}

// Parse converts a label code into a Grade. Unknown codes are fatal: they
// indicate dataset corruption or a schema mismatch.
func Parse(code string) (Grade, error) {
	switch Grade(code) {
	case Exact, Substitute, Complement, Irrelevant:
		return Grade(code), nil
	default:
		return "", errors.UnknownLabelError(code)
	}
}

// Weights maps each grade to a relevance gain in [0,1].
type Weights struct {
	Exact      float64
	Substitute float64
	Complement float64
	Irrelevant float64
}

// DefaultWeights returns the default gain mapping.
func DefaultWeights() Weights {
	return Weights{
		Exact:      1.0,
		Substitute: 0.1,
		Complement: 0.01,
		Irrelevant: 0.0,
	}
}

// WeightsFromMap builds Weights from a {code: gain} mapping. The mapping
// must contain all four grades; partial mappings are rejected rather than
// silently defaulted.
func WeightsFromMap(m map[string]float64) (Weights, error) {
	var w Weights
	for _, g := range Grades {
		v, ok := m[string(g)]
		if !ok {
			return Weights{}, errors.ConfigurationError(
				fmt.Sprintf("weight mapping omits grade %s (%s)", g, g.String()))
		}
		switch g {
		case Exact:
			w.Exact = v
		case Substitute:
			w.Substitute = v
		case Complement:
			w.Complement = v
		case Irrelevant:
			w.Irrelevant = v
		}
	}
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}

// Validate enforces the ordinal invariant: every gain is in [0,1] and
// gains are monotonically non-increasing from Exact to Irrelevant.
func (w Weights) Validate() error {
	gains := []struct {
		grade Grade
		value float64
	}{
		{Exact, w.Exact},
		{Substitute, w.Substitute},
		{Complement, w.Complement},
		{Irrelevant, w.Irrelevant},
	}

	for _, g := range gains {
		if g.value < 0 || g.value > 1 {
			return errors.ConfigurationError(
				fmt.Sprintf("gain for %s must be in [0,1], got %v", g.grade.String(), g.value))
		}
	}
	for i := 1; i < len(gains); i++ {
		if gains[i].value > gains[i-1].value {
			return errors.ConfigurationError(fmt.Sprintf(
				"gain for %s (%v) exceeds gain for %s (%v), grades must be monotonically non-increasing",
				gains[i].grade.String(), gains[i].value, gains[i-1].grade.String(), gains[i-1].value))
		}
	}
	return nil
}

// Gain returns the gain for a grade under this weight mapping. Grades
// outside the taxonomy score zero, matching the absent-product policy.
func (w Weights) Gain(g Grade) float64 {
	switch g {
	case Exact:
		return w.Exact
	case Substitute:
		return w.Substitute
	case Complement:
		return w.Complement
	default:
		return w.Irrelevant
	}
}
