package dataset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
	"github.com/R2-Decide/esci-evaluator/internal/pkg/logger"
)

// groupedCase is the upstream ground-truth format: one record per query
// with parallel product/label arrays.
type groupedCase struct {
	QueryID      json.Number `json:"query_id"`
	Query        string      `json:"query"`
	Locale       string      `json:"locale"`
	Category     string      `json:"category"`
	ProductASINs []string    `json:"product_asins"`
	ESCILabels   []string    `json:"esci_labels"`
}

// LoadGrouped parses ground truth in the grouped query format and returns
// flat judgments in file order.
func LoadGrouped(data []byte) ([]Judgment, error) {
	var cases []groupedCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "parsing grouped ground truth", err)
	}

	var out []Judgment
	for i, c := range cases {
		if len(c.ProductASINs) != len(c.ESCILabels) {
			return nil, errors.ValidationError(fmt.Sprintf(
				"record %d (query_id %s): %d products but %d labels",
				i, c.QueryID.String(), len(c.ProductASINs), len(c.ESCILabels)))
		}

		if len(c.ProductASINs) == 0 {
			// Keep the query so it surfaces as degenerate downstream.
			out = append(out, Judgment{
				QueryID:  c.QueryID.String(),
				Query:    c.Query,
				Locale:   c.Locale,
				Category: c.Category,
			})
			continue
		}

		for j := range c.ProductASINs {
			out = append(out, Judgment{
				QueryID:   c.QueryID.String(),
				Query:     c.Query,
				Locale:    c.Locale,
				Category:  c.Category,
				ProductID: c.ProductASINs[j],
				Label:     c.ESCILabels[j],
			})
		}
	}
	return out, nil
}

// LoadJudgments parses ground truth as a flat array of
// (query, product, label) records.
func LoadJudgments(data []byte) ([]Judgment, error) {
	var out []Judgment
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "parsing judgment records", err)
	}
	return out, nil
}

// LoadFile reads a ground-truth JSON file and normalizes it.
func LoadFile(path string, log *logger.Logger) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeNotFound, fmt.Sprintf("reading ground truth %s", path), err)
	}

	return Load(data, log)
}

// Load parses ground-truth JSON and normalizes it. Both the grouped and
// the flat record formats are accepted; the grouped format is detected by
// the presence of product_asins arrays.
func Load(data []byte, log *logger.Logger) (*Dataset, error) {
	var probe []map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "ground truth is not a JSON array", err)
	}

	var raw []Judgment
	if len(probe) > 0 {
		var err error
		if _, grouped := probe[0]["product_asins"]; grouped {
			raw, err = LoadGrouped(data)
		} else {
			raw, err = LoadJudgments(data)
		}
		if err != nil {
			return nil, err
		}
	}

	return Normalize(raw, log)
}
