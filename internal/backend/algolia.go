package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
)

// AlgoliaConfig configures the Algolia adapter.
type AlgoliaConfig struct {
	AppID     string `envconfig:"ESCI_ALGOLIA_APP_ID" yaml:"app_id"`
	APIKey    string `envconfig:"ESCI_ALGOLIA_API_KEY" yaml:"api_key"`
	IndexName string `envconfig:"ESCI_ALGOLIA_INDEX_NAME" yaml:"index_name"`

	// Count is the number of hits requested per query.
	Count int `envconfig:"ESCI_ALGOLIA_COUNT" yaml:"count"`

	HTTP HTTPConfig `yaml:"http"`
}

// Algolia queries an Algolia index through the multi-query REST endpoint.
type Algolia struct {
	cfg  AlgoliaConfig
	doer *httpDoer
}

// NewAlgolia creates an Algolia adapter.
func NewAlgolia(cfg AlgoliaConfig) (*Algolia, error) {
	if cfg.AppID == "" || cfg.APIKey == "" || cfg.IndexName == "" {
		return nil, errors.ConfigurationError("algolia adapter requires app_id, api_key and index_name")
	}
	if cfg.Count <= 0 {
		cfg.Count = 25
	}
	return &Algolia{
		cfg:  cfg,
		doer: newHTTPDoer("algolia", cfg.HTTP),
	}, nil
}

// Name implements Adapter.
func (a *Algolia) Name() string {
	return "algolia"
}

type algoliaRequest struct {
	Requests []algoliaQuery `json:"requests"`
}

type algoliaQuery struct {
	IndexName   string `json:"indexName"`
	Query       string `json:"query"`
	HitsPerPage int    `json:"hitsPerPage"`
}

type algoliaResponse struct {
	Results []struct {
		Hits []struct {
			ID       string `json:"id"`
			ObjectID string `json:"objectID"`
		} `json:"hits"`
	} `json:"results"`
}

// Search implements Adapter.
func (a *Algolia) Search(ctx context.Context, q Query) (RankedResult, error) {
	payload, err := json.Marshal(algoliaRequest{
		Requests: []algoliaQuery{{
			IndexName:   a.cfg.IndexName,
			Query:       q.Text,
			HitsPerPage: a.cfg.Count,
		}},
	})
	if err != nil {
		return nil, errors.InternalError("encoding algolia request", err)
	}

	url := fmt.Sprintf("https://%s-dsn.algolia.net/1/indexes/*/queries", a.cfg.AppID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.InternalError("building algolia request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Algolia-Application-Id", a.cfg.AppID)
	req.Header.Set("X-Algolia-API-Key", a.cfg.APIKey)

	body, err := a.doer.do(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp algoliaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.BackendProtocolError(a.Name(), err)
	}
	if len(resp.Results) == 0 {
		return nil, errors.BackendProtocolError(a.Name(), fmt.Errorf("response has no results element"))
	}

	hits := resp.Results[0].Hits
	ids := make(RankedResult, 0, len(hits))
	for _, h := range hits {
		switch {
		case h.ID != "":
			ids = append(ids, h.ID)
		case h.ObjectID != "":
			ids = append(ids, h.ObjectID)
		}
	}
	return ids, nil
}
