// Package client is a small HTTP client for the pennant API, covering both
// the management surface (flags, segments, sync) and evaluation. Server
// components and pennantctl share it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pennant-io/pennant/pkg/engine"
	"github.com/pennant-io/pennant/pkg/flags"
)

// Tenant headers recognized by the server.
const (
	headerAppID    = "X-App-Id"
	headerEnvID    = "X-Env-Id"
	headerBackupID = "X-Backup-Id"
)

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.Status)
}

// IsNotFound reports whether err is an API error with the NOT_FOUND code.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Code == "NOT_FOUND"
}

// Client talks to a pennant node. The zero value is not usable; use New.
type Client struct {
	baseURL string
	token   string
	app     string
	env     string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer credential: a management token, an evaluation
// token or an API key.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTenant pins the app and environment sent on every request.
func WithTenant(app, env string) Option {
	return func(c *Client) {
		c.app = app
		c.env = env
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client for the node at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SyncSummary reports what an environment or flag sync copied.
type SyncSummary struct {
	Flags    int    `json:"flags"`
	Segments int    `json:"segments"`
	Source   string `json:"source"`
	Target   string `json:"target"`
}

// flagEnvelope is the write-path response shape.
type flagEnvelope struct {
	Flag     flags.Definition `json:"flag"`
	Warnings []string         `json:"warnings"`
}

// EvalInput is the caller context for evaluation requests.
type EvalInput struct {
	ID   string `json:"id,omitempty"`
	User any    `json:"user,omitempty"`
	Page any    `json:"page,omitempty"`
}

// Definitions fetches the full document for the client's tenant.
func (c *Client) Definitions(ctx context.Context) (flags.Document, error) {
	var doc flags.Document
	err := c.do(ctx, http.MethodGet, "/v1/definitions", nil, &doc)
	return doc, err
}

// Flags lists the tenant's flag definitions.
func (c *Client) Flags(ctx context.Context) (map[string]flags.Definition, error) {
	var out struct {
		Flags map[string]flags.Definition `json:"flags"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/flags", nil, &out)
	return out.Flags, err
}

// Flag fetches one flag definition.
func (c *Client) Flag(ctx context.Context, id string) (flags.Definition, error) {
	var def flags.Definition
	err := c.do(ctx, http.MethodGet, "/v1/flags/"+url.PathEscape(id), nil, &def)
	return def, err
}

// PutFlag creates or replaces a flag and returns the stored definition plus
// any advisory warnings.
func (c *Client) PutFlag(ctx context.Context, def flags.Definition) (flags.Definition, []string, error) {
	var out flagEnvelope
	err := c.do(ctx, http.MethodPut, "/v1/flags/"+url.PathEscape(def.ID), def, &out)
	return out.Flag, out.Warnings, err
}

// UpdateFlag applies a partial update to an existing flag.
func (c *Client) UpdateFlag(ctx context.Context, id string, patch flags.Patch) (flags.Definition, []string, error) {
	var out flagEnvelope
	err := c.do(ctx, http.MethodPatch, "/v1/flags/"+url.PathEscape(id), patch, &out)
	return out.Flag, out.Warnings, err
}

// DeleteFlag removes a flag.
func (c *Client) DeleteFlag(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/flags/"+url.PathEscape(id), nil, nil)
}

// Segments lists the tenant's segment expressions.
func (c *Client) Segments(ctx context.Context) (map[string]string, error) {
	var out struct {
		Segments map[string]string `json:"segments"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/segments", nil, &out)
	return out.Segments, err
}

// PutSegment creates or replaces a segment expression.
func (c *Client) PutSegment(ctx context.Context, id, expression string) error {
	body := map[string]string{"expression": expression}
	return c.do(ctx, http.MethodPut, "/v1/segments/"+url.PathEscape(id), body, nil)
}

// DeleteSegment removes a segment and strips it from every flag.
func (c *Client) DeleteSegment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/segments/"+url.PathEscape(id), nil, nil)
}

type syncRequest struct {
	SourceEnv string `json:"sourceEnv,omitempty"`
	TargetEnv string `json:"targetEnv"`
	Overwrite bool   `json:"overwrite,omitempty"`
}

// SyncEnv copies flags and segments from sourceEnv into targetEnv within
// the client's app. An empty sourceEnv means the client's own environment.
func (c *Client) SyncEnv(ctx context.Context, sourceEnv, targetEnv string, overwrite bool) (SyncSummary, error) {
	var out SyncSummary
	req := syncRequest{SourceEnv: sourceEnv, TargetEnv: targetEnv, Overwrite: overwrite}
	err := c.do(ctx, http.MethodPost, "/v1/sync", req, &out)
	return out, err
}

// SyncFlag copies one flag and its referenced segments into targetEnv.
func (c *Client) SyncFlag(ctx context.Context, id, sourceEnv, targetEnv string, overwrite bool) (SyncSummary, error) {
	var out SyncSummary
	req := syncRequest{SourceEnv: sourceEnv, TargetEnv: targetEnv, Overwrite: overwrite}
	err := c.do(ctx, http.MethodPost, "/v1/sync/flags/"+url.PathEscape(id), req, &out)
	return out, err
}

// Evaluate decides every flag for the given caller context.
func (c *Client) Evaluate(ctx context.Context, in EvalInput) (map[string]engine.Result, error) {
	var out map[string]engine.Result
	err := c.do(ctx, http.MethodPost, "/v1/evaluate", in, &out)
	return out, err
}

// EvaluateFlag decides a single flag.
func (c *Client) EvaluateFlag(ctx context.Context, id string, in EvalInput) (engine.Result, error) {
	var out engine.Result
	err := c.do(ctx, http.MethodPost, "/v1/evaluate/"+url.PathEscape(id), in, &out)
	return out, err
}

// Bool evaluates a boolean flag and returns fallback on any failure or
// non-boolean result.
func (c *Client) Bool(ctx context.Context, id string, in EvalInput, fallback bool) bool {
	res, err := c.EvaluateFlag(ctx, id, in)
	if err != nil {
		return fallback
	}
	if v, ok := res.Result.(bool); ok {
		return v
	}
	return fallback
}

// String evaluates a flag whose result is a string, typically a variant id,
// and returns fallback on any failure.
func (c *Client) String(ctx context.Context, id string, in EvalInput, fallback string) string {
	res, err := c.EvaluateFlag(ctx, id, in)
	if err != nil {
		return fallback
	}
	if v, ok := res.Result.(string); ok {
		return v
	}
	return fallback
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.app != "" {
		req.Header.Set(headerAppID, c.app)
	}
	if c.env != "" {
		req.Header.Set(headerEnvID, c.env)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil {
			apiErr.Code = "UNKNOWN"
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
