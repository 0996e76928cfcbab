// Package client is the operator-side copy of the account service. It holds
// an explicit session, runs the shared policy checks before each request and
// talks to the backend over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hongminglow/cuecast-be/internal/policy"
)

// ErrTransport wraps failures that are not part of the error taxonomy:
// network errors, 5xx responses and undecodable bodies.
var ErrTransport = errors.New("transport error")

// APIError is a taxonomy error returned by the backend. errors.Is matches
// it against the policy sentinel for its kind.
type APIError struct {
	Status  int
	Kind    string
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return (&policy.ValidationError{Fields: e.Fields}).Error()
}

func (e *APIError) Unwrap() error {
	if sentinel := policy.KindError(e.Kind); sentinel != nil {
		return sentinel
	}
	return ErrTransport
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	ErrorKind string          `json:"error_kind"`
	Data      json.RawMessage `json:"data"`
}

// Client calls the backend API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// BaseURL is the backend the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: %s %s: status %d", ErrTransport, method, path, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Kind: env.ErrorKind, Message: env.Message}
		if policy.KindError(env.ErrorKind) == policy.ErrValidation && len(env.Data) > 0 {
			var fields struct {
				Fields map[string]string `json:"fields"`
			}
			if json.Unmarshal(env.Data, &fields) == nil {
				apiErr.Fields = fields.Fields
			}
		}
		return apiErr
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrTransport, path, err)
		}
	}
	return nil
}
