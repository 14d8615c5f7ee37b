package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
)

// DoofinderConfig configures the Doofinder adapter.
type DoofinderConfig struct {
	// BaseURL is the regional search endpoint, e.g.
	// "https://eu1-search.doofinder.com".
	BaseURL string `envconfig:"ESCI_DOOFINDER_BASE_URL" yaml:"base_url"`
	Token   string `envconfig:"ESCI_DOOFINDER_TOKEN" yaml:"token"`
	HashID  string `envconfig:"ESCI_DOOFINDER_HASH_ID" yaml:"hash_id"`

	// Count is the results-per-page requested per query.
	Count int `envconfig:"ESCI_DOOFINDER_COUNT" yaml:"count"`

	HTTP HTTPConfig `yaml:"http"`
}

// Doofinder queries the Doofinder search API.
type Doofinder struct {
	cfg  DoofinderConfig
	doer *httpDoer
}

// NewDoofinder creates a Doofinder adapter.
func NewDoofinder(cfg DoofinderConfig) (*Doofinder, error) {
	if cfg.BaseURL == "" || cfg.Token == "" || cfg.HashID == "" {
		return nil, errors.ConfigurationError("doofinder adapter requires base_url, token and hash_id")
	}
	if cfg.Count <= 0 {
		cfg.Count = 25
	}
	return &Doofinder{
		cfg:  cfg,
		doer: newHTTPDoer("doofinder", cfg.HTTP),
	}, nil
}

// Name implements Adapter.
func (d *Doofinder) Name() string {
	return "doofinder"
}

type doofinderResponse struct {
	Results []struct {
		ID string `json:"id"`
	} `json:"results"`
}

// Search implements Adapter.
func (d *Doofinder) Search(ctx context.Context, q Query) (RankedResult, error) {
	params := url.Values{}
	params.Set("hashid", d.cfg.HashID)
	params.Set("query", q.Text)
	params.Set("rpp", fmt.Sprintf("%d", d.cfg.Count))

	endpoint := fmt.Sprintf("%s/6/%s/_search?%s", d.cfg.BaseURL, d.cfg.HashID, params.Encode())
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.InternalError("building doofinder request", err)
	}
	req.Header.Set("Authorization", "Token "+d.cfg.Token)

	body, err := d.doer.do(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp doofinderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.BackendProtocolError(d.Name(), err)
	}
	if resp.Results == nil {
		return nil, errors.BackendProtocolError(d.Name(), fmt.Errorf("response has no results element"))
	}

	ids := make(RankedResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}
