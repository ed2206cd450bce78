// Package graphql is a minimal GraphQL-over-HTTP client for the CMS content API.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://graphql.contentful.com"
	DefaultTimeout = 30 * time.Second

	// DefaultRate stays under the content API's per-second limit.
	DefaultRate = 7.0
)

// Config holds configuration for a Client.
type Config struct {
	// Endpoint is the full GraphQL URL. If empty it is derived from BaseURL,
	// SpaceID and Environment.
	Endpoint string

	BaseURL     string
	SpaceID     string
	Environment string

	// AccessToken is sent as a bearer token.
	AccessToken string

	// RequestsPerSecond throttles outgoing requests. Zero uses DefaultRate.
	RequestsPerSecond float64

	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client sends GraphQL requests.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	limiter  *rate.Limiter
}

// Error is the single failure type returned by Request. Op names the stage that failed.
type Error struct {
	Op         string
	StatusCode int
	Messages   []string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("graphql: ")
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if len(e.Messages) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Messages, "; "))
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NewClient creates a client. SpaceID or Endpoint is required.
func NewClient(cfg Config) (*Client, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.SpaceID == "" {
			return nil, fmt.Errorf("graphql: space id is required")
		}
		base := cfg.BaseURL
		if base == "" {
			base = DefaultBaseURL
		}
		endpoint = strings.TrimSuffix(base, "/") + "/content/v1/spaces/" + cfg.SpaceID
		if cfg.Environment != "" && cfg.Environment != "master" {
			endpoint += "/environments/" + cfg.Environment
		}
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRate
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		endpoint: endpoint,
		token:    cfg.AccessToken,
		http:     hc,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Endpoint returns the resolved GraphQL URL.
func (c *Client) Endpoint() string { return c.endpoint }

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Request runs query with variables and decodes the data member into out.
// Any GraphQL error in the response fails the whole request.
func (c *Client) Request(ctx context.Context, query string, variables map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &Error{Op: "rate limit wait", Err: err}
	}

	body, err := json.Marshal(request{Query: query, Variables: variables})
	if err != nil {
		return &Error{Op: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return &Error{Op: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: "send request", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: "read response", StatusCode: resp.StatusCode, Err: err}
	}

	var decoded response
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := &Error{Op: "request rejected", StatusCode: resp.StatusCode}
		if decodeErr == nil {
			e.Messages = messages(decoded)
		}
		if len(e.Messages) == 0 {
			e.Err = fmt.Errorf("%s", truncate(string(raw), 200))
		}
		return e
	}
	if decodeErr != nil {
		return &Error{Op: "decode response", StatusCode: resp.StatusCode, Err: decodeErr}
	}
	if len(decoded.Errors) > 0 {
		return &Error{Op: "query failed", StatusCode: resp.StatusCode, Messages: messages(decoded)}
	}

	if out == nil {
		return nil
	}
	if len(decoded.Data) == 0 || string(decoded.Data) == "null" {
		return &Error{Op: "decode data", StatusCode: resp.StatusCode, Err: fmt.Errorf("response has no data")}
	}
	if err := json.Unmarshal(decoded.Data, out); err != nil {
		return &Error{Op: "decode data", StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func messages(r response) []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Message)
	}
	return out
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
