package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
)

// ShopifyConfig configures the Shopify adapter.
type ShopifyConfig struct {
	// ShopURL is the shop host, e.g. "my-store.myshopify.com".
	ShopURL     string `envconfig:"ESCI_SHOPIFY_SHOP_URL" yaml:"shop_url"`
	AccessToken string `envconfig:"ESCI_SHOPIFY_ACCESS_TOKEN" yaml:"access_token"`

	// APIVersion selects the Admin API version, e.g. "2024-10".
	APIVersion string `envconfig:"ESCI_SHOPIFY_API_VERSION" yaml:"api_version"`

	// Count is the number of products requested per query.
	Count int `envconfig:"ESCI_SHOPIFY_COUNT" yaml:"count"`

	HTTP HTTPConfig `yaml:"http"`
}

// Shopify queries the Shopify Admin GraphQL product search.
type Shopify struct {
	cfg  ShopifyConfig
	doer *httpDoer
}

// NewShopify creates a Shopify adapter.
func NewShopify(cfg ShopifyConfig) (*Shopify, error) {
	if cfg.ShopURL == "" || cfg.AccessToken == "" {
		return nil, errors.ConfigurationError("shopify adapter requires shop_url and access_token")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-10"
	}
	if cfg.Count <= 0 {
		cfg.Count = 25
	}
	return &Shopify{
		cfg:  cfg,
		doer: newHTTPDoer("shopify", cfg.HTTP),
	}, nil
}

// Name implements Adapter.
func (s *Shopify) Name() string {
	return "shopify"
}

type shopifyResponse struct {
	Data struct {
		Products struct {
			Edges []struct {
				Node struct {
					SKU string `json:"sku"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"products"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Search implements Adapter.
func (s *Shopify) Search(ctx context.Context, q Query) (RankedResult, error) {
	// Title search mirrors the benchmark's storefront behavior. Quotes in
	// the query text would break the GraphQL string, strip them.
	title := strings.ReplaceAll(q.Text, `"`, "")
	gql := fmt.Sprintf(`query SearchProducts {
  products(first: %d, query: "title:%s") {
    edges { node { id title sku } }
  }
}`, s.cfg.Count, title)

	payload, err := json.Marshal(map[string]string{"query": gql})
	if err != nil {
		return nil, errors.InternalError("encoding shopify request", err)
	}

	endpoint := fmt.Sprintf("https://%s/admin/api/%s/graphql.json", s.cfg.ShopURL, s.cfg.APIVersion)
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.InternalError("building shopify request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", s.cfg.AccessToken)

	body, err := s.doer.do(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp shopifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.BackendProtocolError(s.Name(), err)
	}
	if len(resp.Errors) > 0 {
		return nil, errors.BackendProtocolError(s.Name(), fmt.Errorf("graphql: %s", resp.Errors[0].Message))
	}

	edges := resp.Data.Products.Edges
	ids := make(RankedResult, 0, len(edges))
	for _, e := range edges {
		if e.Node.SKU != "" {
			ids = append(ids, e.Node.SKU)
		}
	}
	return ids, nil
}
