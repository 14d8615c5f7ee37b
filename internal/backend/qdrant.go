package backend

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
	"github.com/R2-Decide/esci-evaluator/internal/qdrant"
)

// QdrantConfig configures the adapter for the in-house engine, whose
// product catalog is indexed into a Qdrant collection with term-hash
// sparse vectors.
type QdrantConfig struct {
	// Collection is the product collection name (without prefix).
	Collection string `envconfig:"ESCI_R2DECIDE_COLLECTION" yaml:"collection"`

	// Count is the number of results requested per query.
	Count int `envconfig:"ESCI_R2DECIDE_COUNT" yaml:"count"`
}

// Qdrant searches a Qdrant product collection using a lexical term-hash
// sparse query. Query terms are hashed into the same sparse dimension
// space the catalog was indexed with.
type Qdrant struct {
	cfg    QdrantConfig
	client *qdrant.Client
}

// NewQdrant creates a Qdrant-backed adapter.
func NewQdrant(cfg QdrantConfig, client *qdrant.Client) (*Qdrant, error) {
	if cfg.Collection == "" {
		return nil, errors.ConfigurationError("qdrant adapter requires a collection name")
	}
	if client == nil {
		return nil, errors.ConfigurationError("qdrant adapter requires a connected client")
	}
	if cfg.Count <= 0 {
		cfg.Count = 25
	}
	return &Qdrant{cfg: cfg, client: client}, nil
}

// Name implements Adapter.
func (q *Qdrant) Name() string {
	return "r2decide"
}

// Search implements Adapter.
func (q *Qdrant) Search(ctx context.Context, query Query) (RankedResult, error) {
	indices, values := sparseQuery(query.Text)
	if len(indices) == 0 {
		return RankedResult{}, nil
	}

	results, err := q.client.SparseSearch(ctx, q.cfg.Collection, qdrant.SearchRequest{
		SparseIndices: indices,
		SparseValues:  values,
		Limit:         uint64(q.cfg.Count),
	})
	if err != nil {
		return nil, errors.BackendUnavailableError(q.Name(), err)
	}

	ids := make(RankedResult, 0, len(results))
	for _, r := range results {
		if r.ProductID != "" {
			ids = append(ids, r.ProductID)
		} else {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

// sparseQuery tokenizes a query and hashes terms into sparse vector
// indices with term-frequency values.
func sparseQuery(text string) ([]uint32, []float32) {
	terms := tokenize(text)
	if len(terms) == 0 {
		return nil, nil
	}

	counts := make(map[uint32]float32, len(terms))
	for _, term := range terms {
		h := fnv.New32a()
		h.Write([]byte(term))
		counts[h.Sum32()]++
	}

	indices := make([]uint32, 0, len(counts))
	values := make([]float32, 0, len(counts))
	for idx, tf := range counts {
		indices = append(indices, idx)
		values = append(values, tf)
	}
	return indices, values
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
