package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
)

// Static is an in-memory adapter serving fixed result lists, keyed by
// query ID with a fallback on query text. Used for offline scoring of
// pre-collected result files and as a test double.
type Static struct {
	name string

	mu      sync.RWMutex
	results map[string]RankedResult
}

// NewStatic creates a static adapter.
func NewStatic(name string, results map[string]RankedResult) *Static {
	if results == nil {
		results = make(map[string]RankedResult)
	}
	return &Static{name: name, results: results}
}

// Name implements Adapter.
func (s *Static) Name() string {
	return s.name
}

// Set stores the result list for a query.
func (s *Static) Set(key string, result RankedResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = result
}

// Search implements Adapter. Unknown queries return an empty result,
// which scores zero on all metrics.
func (s *Static) Search(ctx context.Context, q Query) (RankedResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.results[q.ID]; ok {
		return append(RankedResult(nil), r...), nil
	}
	if r, ok := s.results[q.Text]; ok {
		return append(RankedResult(nil), r...), nil
	}
	return RankedResult{}, nil
}

type capturedResult struct {
	QueryID  json.Number `json:"query_id"`
	Query    string      `json:"query"`
	Response []string    `json:"response"`
}

// LoadResultsFile builds a static adapter from a pre-captured results
// file: a JSON array of {query_id, query, response} records, where
// response is the ranked identifier list. Results are keyed by query ID
// with a fallback on query text.
func LoadResultsFile(name, path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeNotFound, fmt.Sprintf("reading results file %s", path), err)
	}

	var records []capturedResult
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "parsing results file", err)
	}

	results := make(map[string]RankedResult, len(records))
	for _, rec := range records {
		ranked := append(RankedResult(nil), rec.Response...)
		if id := rec.QueryID.String(); id != "" {
			results[id] = ranked
		} else if rec.Query != "" {
			results[rec.Query] = ranked
		}
	}

	return NewStatic(name, results), nil
}
