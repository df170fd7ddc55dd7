// Package registry looks up companies in the public company register so new
// offenders can be enriched with a registration number.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Company is one register search hit.
type Company struct {
	Number   string `json:"company_number"`
	Name     string `json:"title"`
	Status   string `json:"company_status,omitempty"`
	Type     string `json:"company_type,omitempty"`
	Address  string `json:"address_snippet,omitempty"`
	Postcode string `json:"postcode,omitempty"`
}

// Client searches the register by company name.
type Client interface {
	Search(ctx context.Context, name string) ([]Company, error)
}

// StatusError is a non-2xx register response.
type StatusError struct {
	Code       int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("company registry returned %d: %s", e.Code, e.Body)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// HTTPClient talks to a Companies House style search API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limit   int
}

type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.http = c
		}
	}
}

// WithResultLimit caps the number of hits requested per search.
func WithResultLimit(n int) HTTPOption {
	return func(h *HTTPClient) {
		if n > 0 {
			h.limit = n
		}
	}
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, opts ...HTTPOption) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		limit:   5,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	Items []struct {
		Company
		RegisteredAddress struct {
			PostalCode string `json:"postal_code"`
		} `json:"address"`
	} `json:"items"`
}

func (c *HTTPClient) Search(ctx context.Context, name string) ([]Company, error) {
	q := url.Values{}
	q.Set("q", name)
	q.Set("items_per_page", strconv.Itoa(c.limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/companies?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.SetBasicAuth(c.apiKey, "")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("company registry search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			statusErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return nil, statusErr
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode registry response: %w", err)
	}
	out := make([]Company, 0, len(payload.Items))
	for _, item := range payload.Items {
		company := item.Company
		if company.Postcode == "" {
			company.Postcode = item.RegisteredAddress.PostalCode
		}
		out = append(out, company)
	}
	return out, nil
}
