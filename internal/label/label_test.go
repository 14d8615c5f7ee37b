package label

import (
	"testing"

	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		code    string
		want    Grade
		wantErr bool
	}{
		{"E", Exact, false},
		{"S", Substitute, false},
		{"C", Complement, false},
		{"I", Irrelevant, false},
		{"X", "", true},
		{"e", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.code)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q) expected error", tt.code)
			} else if !errors.IsUnknownLabel(err) {
				t.Errorf("Parse(%q) error code = %s, want UNKNOWN_LABEL", tt.code, errors.CodeOf(err))
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) error = %v", tt.code, err)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestDefaultWeightsSatisfyInvariant(t *testing.T) {
	w := DefaultWeights()
	if err := w.Validate(); err != nil {
		t.Fatalf("DefaultWeights().Validate() = %v", err)
	}

	// Monotonic non-increasing from Exact to Irrelevant.
	prev := w.Gain(Grades[0])
	for _, g := range Grades[1:] {
		if w.Gain(g) > prev {
			t.Errorf("gain(%s) = %v exceeds gain of the previous grade %v", g, w.Gain(g), prev)
		}
		prev = w.Gain(g)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		w       Weights
		wantErr bool
	}{
		{"defaults", DefaultWeights(), false},
		{"all equal", Weights{Exact: 0.5, Substitute: 0.5, Complement: 0.5, Irrelevant: 0.5}, false},
		{"substitute above exact", Weights{Exact: 0.5, Substitute: 0.9, Complement: 0.01, Irrelevant: 0}, true},
		{"irrelevant above complement", Weights{Exact: 1, Substitute: 0.5, Complement: 0.1, Irrelevant: 0.2}, true},
		{"negative gain", Weights{Exact: 1, Substitute: 0.1, Complement: 0, Irrelevant: -0.1}, true},
		{"gain above one", Weights{Exact: 1.5, Substitute: 0.1, Complement: 0.01, Irrelevant: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() expected error")
			}
			if tt.wantErr && err != nil && !errors.IsConfiguration(err) {
				t.Errorf("Validate() error code = %s, want CONFIGURATION_ERROR", errors.CodeOf(err))
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestWeightsFromMap(t *testing.T) {
	w, err := WeightsFromMap(map[string]float64{"E": 1, "S": 0.2, "C": 0.05, "I": 0})
	if err != nil {
		t.Fatalf("WeightsFromMap() error = %v", err)
	}
	if w.Substitute != 0.2 {
		t.Errorf("Substitute = %v, want 0.2", w.Substitute)
	}

	// Omitting a grade is a configuration error, not a silent default.
	_, err = WeightsFromMap(map[string]float64{"E": 1, "S": 0.2, "C": 0.05})
	if err == nil {
		t.Fatal("WeightsFromMap() with missing grade expected error")
	}
	if !errors.IsConfiguration(err) {
		t.Errorf("error code = %s, want CONFIGURATION_ERROR", errors.CodeOf(err))
	}

	_, err = WeightsFromMap(map[string]float64{"E": 0.1, "S": 0.2, "C": 0.05, "I": 0})
	if err == nil {
		t.Fatal("WeightsFromMap() with broken monotonicity expected error")
	}
}

func TestGainUnknownGradeScoresIrrelevant(t *testing.T) {
	w := DefaultWeights()
	if got := w.Gain(Grade("Z")); got != w.Irrelevant {
		t.Errorf("Gain(unknown) = %v, want %v", got, w.Irrelevant)
	}
}
