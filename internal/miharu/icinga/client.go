// Package icinga provides a client for the Icinga2 API v1: object
// queries with compiled filter expressions, the action endpoints used by
// the dialogue engine, and daemon status requests.
package icinga

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single API call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Config holds connection parameters for the Icinga2 API.
type Config struct {
	// URL is the API base, e.g. "https://icinga.example.com:5665".
	URL      string
	Username string
	Password string
	// InsecureTLS skips certificate verification. Icinga2 ships with a
	// self-signed CA by default, so this is a common deployment reality.
	InsecureTLS bool
	// Timeout bounds each API call. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Filter is an optional expression AND-ed onto every object query,
	// used to scope the bot to a subset of the monitored environment.
	Filter string
	// MaxResults caps the number of objects returned by QueryObjects.
	// Zero means unlimited.
	MaxResults int
}

// Client talks to the Icinga2 API.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// New creates a Client. The returned client is safe for concurrent use.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	transport := http.DefaultTransport
	if cfg.InsecureTLS {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		log: slog.Default().With("component", "icinga"),
	}
}

// APIError is a non-2xx response from the Icinga2 API.
type APIError struct {
	Code   int
	Status string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("icinga2 returned %d: %s", e.Code, e.Status)
	}
	return fmt.Sprintf("icinga2 returned %d", e.Code)
}

// IsNotFound reports whether err is a 404 API response. Icinga2 answers
// object queries that match nothing with 404 instead of an empty list.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// do sends a request and decodes the JSON response into out (if non-nil).
// Object queries are sent as POST with a method override so the filter
// can travel in the request body.
func (c *Client) do(ctx context.Context, method, path string, override bool, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.URL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if override {
		req.Header.Set("X-HTTP-Method-Override", "GET")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("icinga2 request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Code: resp.StatusCode}
		var errBody struct {
			Status string `json:"status"`
			Error  any    `json:"error"`
		}
		if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&errBody); decodeErr == nil {
			apiErr.Status = errBody.Status
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
