package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// Generator produces a structured document for a prompt. Implementations must
// honor ctx cancellation; the coordinator races the call against a deadline.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// HTTPGenerator calls the external AI-generation collaborator. Transient
// failures are retried with exponential backoff; a circuit breaker keeps a
// down upstream from eating the full deadline on every request.
type HTTPGenerator struct {
	url     string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewHTTPGenerator(url, apiKey string) *HTTPGenerator {
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    16,
		IdleConnTimeout: 90 * time.Second,
	}
	return &HTTPGenerator{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Transport: tr},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "ai-generation",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.generate(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (g *HTTPGenerator) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}

	var result string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if g.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.apiKey)
		}
		resp, err := g.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("ai upstream returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			io.Copy(io.Discard, resp.Body)
			return backoff.Permanent(fmt.Errorf("ai upstream rejected request: %d", resp.StatusCode))
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		result = string(b)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // the caller's deadline bounds the whole attempt
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return result, nil
}
