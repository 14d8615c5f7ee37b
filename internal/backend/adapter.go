// Package backend defines the search backend adapter contract and the
// adapter implementations for the benchmarked platforms.
package backend

import (
	"context"
)

// Query is one search invocation against a backend.
type Query struct {
	// ID identifies the query case for bookkeeping.
	ID string

	// Text is the search query text.
	Text string

	// Locale is the query locale, e.g. "us".
	Locale string
}

// RankedResult is an ordered sequence of product identifiers as returned
// by a backend. It may contain duplicates or identifiers absent from the
// ground truth; length is backend-determined.
type RankedResult []string

// Adapter is a search backend. Each invocation is independent; the engine
// never assumes ordering stability across calls. Search fails with
// errors.BackendUnavailableError for transient faults and
// errors.BackendProtocolError when the response cannot be parsed into
// identifiers. An empty RankedResult is valid and scores zero on all
// metrics.
type Adapter interface {
	// Name identifies the backend in reports and logs.
	Name() string

	// Search returns ranked product identifiers for a query.
	Search(ctx context.Context, q Query) (RankedResult, error)
}
