// Package external holds thin clients for the external services the core
// consumes: publication databases, the VRS mapper, the ClinGen allele
// registry, the ClinVar archive, and the gnomAD data lake. Every client is
// rate limited and wrapped in a circuit breaker.
package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// ErrNotFound is returned by clients when the remote service has no record
// for the requested identifier.
var ErrNotFound = errors.New("external record not found")

// ClientConfig is the shared configuration shape for HTTP-backed clients.
type ClientConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
}

// httpDoer executes one HTTP request under a rate limiter and a circuit
// breaker, classifying transport failures and 5xx responses as transient.
type httpDoer struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newHTTPDoer(name string, cfg ClientConfig) *httpDoer {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &httpDoer{
		name:    name,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 5,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		}),
	}
}

// do executes the request and returns the response body. A nil error with a
// nil body indicates a 404.
func (d *httpDoer) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := d.breaker.Execute(func() (interface{}, error) {
		resp, err := d.client.Do(req)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, &domain.TransientExternalError{Service: d.name, Err: err}
			}
			return nil, &domain.TransientExternalError{Service: d.name, Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return []byte(nil), nil
		case resp.StatusCode >= 500:
			return nil, &domain.TransientExternalError{
				Service: d.name,
				Err:     fmt.Errorf("status %d", resp.StatusCode),
			}
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("%s returned status %d", d.name, resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading %s response: %w", d.name, err)
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.TransientExternalError{Service: d.name, Err: err}
		}
		return nil, err
	}

	body, _ := result.([]byte)
	return body, nil
}

// getJSON issues a GET and decodes the JSON body into out. ErrNotFound is
// returned for 404s.
func (d *httpDoer) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", d.name, err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := d.do(ctx, req)
	if err != nil {
		return err
	}
	if body == nil {
		return ErrNotFound
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", d.name, err)
	}
	return nil
}
