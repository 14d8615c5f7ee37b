package backend

import (
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
)

// HTTPConfig configures the shared HTTP plumbing for platform adapters.
type HTTPConfig struct {
	// Timeout is the per-request timeout. A timeout surfaces as
	// BACKEND_UNAVAILABLE so the driver can apply its streak policy.
	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerSecond rate limits outbound calls to the platform.
	// Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the rate limiter burst size.
	Burst int `yaml:"burst"`

	// MaxIdleConns controls keep-alive connection reuse.
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// DefaultHTTPConfig returns sensible defaults for benchmark traffic.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:           15 * time.Second,
		RequestsPerSecond: 10,
		Burst:             20,
		MaxIdleConns:      10,
	}
}

// httpDoer wraps http.Client with a rate limiter and the adapter error
// taxonomy. All platform adapters share it.
type httpDoer struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPDoer(name string, cfg HTTPConfig) *httpDoer {
	if cfg.Timeout == 0 {
		cfg = DefaultHTTPConfig()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &httpDoer{
		name: name,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    cfg.MaxIdleConns,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		limiter: limiter,
	}
}

// do executes a request and returns the response body. Transport faults,
// timeouts, 429 and 5xx responses map to BACKEND_UNAVAILABLE; any other
// non-2xx status maps to BACKEND_PROTOCOL_ERROR.
func (d *httpDoer) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, errors.BackendUnavailableError(d.name, err)
		}
	}

	resp, err := d.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, errors.BackendUnavailableError(d.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.BackendUnavailableError(d.name, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errors.BackendUnavailableError(d.name, nil).
			WithDetail("status", resp.Status)
	default:
		return nil, errors.BackendProtocolError(d.name, nil).
			WithDetail("status", resp.Status)
	}
}
