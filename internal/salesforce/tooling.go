// Package salesforce is a small client for the Salesforce Tooling API and the
// FlowDefinition operations built on it.
package salesforce

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

	"github.com/sunyxi/salesforce-flow-cli/internal/auth"
	"github.com/sunyxi/salesforce-flow-cli/internal/config"
	"github.com/sunyxi/salesforce-flow-cli/internal/logging"
)

const (
	// DefaultAPIVersion is the Tooling API version used when none is configured.
	DefaultAPIVersion = "v58.0"

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second

	maxResponseBody = 32 << 20
)

// QueryResult is one page of a SOQL query.
type QueryResult struct {
	TotalSize      int               `json:"totalSize"`
	Done           bool              `json:"done"`
	NextRecordsURL string            `json:"nextRecordsUrl"`
	Records        []json.RawMessage `json:"records"`
}

// SaveResult is returned by record creation.
type SaveResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

// ToolingOption configures a ToolingClient.
type ToolingOption func(*ToolingClient)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) ToolingOption {
	return func(c *ToolingClient) { c.http = client }
}

// WithAPIVersion sets the API version, for example "58.0" or "v58.0".
func WithAPIVersion(version string) ToolingOption {
	return func(c *ToolingClient) {
		if version != "" {
			c.version = "v" + strings.TrimPrefix(version, "v")
		}
	}
}

// ToolingClient issues authenticated Tooling API requests.
type ToolingClient struct {
	tokens  auth.TokenSource
	http    *http.Client
	version string
}

// NewToolingClient creates a client that authenticates through tokens.
func NewToolingClient(tokens auth.TokenSource, opts ...ToolingOption) (*ToolingClient, error) {
	c := &ToolingClient{
		tokens:  tokens,
		http:    &http.Client{Timeout: DefaultTimeout},
		version: DefaultAPIVersion,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := config.ValidateAPIVersion(c.version); err != nil {
		return nil, err
	}
	return c, nil
}

// APIVersion returns the version segment used in request paths.
func (c *ToolingClient) APIVersion() string {
	return c.version
}

// InstanceURL authenticates if needed and returns the org's instance URL.
func (c *ToolingClient) InstanceURL(ctx context.Context) (string, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	if tok.InstanceURL == "" {
		return "", ErrNotAuthenticated
	}
	return strings.TrimRight(tok.InstanceURL, "/"), nil
}

// Query runs a SOQL query and returns the first page.
func (c *ToolingClient) Query(ctx context.Context, soql string) (*QueryResult, error) {
	var res QueryResult
	if err := c.do(ctx, http.MethodGet, "/query/?q="+url.QueryEscape(soql), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// QueryMore fetches the page at nextRecordsURL.
func (c *ToolingClient) QueryMore(ctx context.Context, nextRecordsURL string) (*QueryResult, error) {
	path := nextRecordsURL
	if i := strings.Index(path, "/tooling"); i >= 0 {
		path = path[i+len("/tooling"):]
	}
	var res QueryResult
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// QueryAll runs a query and follows pagination until every record is collected.
func (c *ToolingClient) QueryAll(ctx context.Context, soql string) ([]json.RawMessage, error) {
	res, err := c.Query(ctx, soql)
	if err != nil {
		return nil, err
	}
	records := res.Records

	for !res.Done && res.NextRecordsURL != "" {
		if res, err = c.QueryMore(ctx, res.NextRecordsURL); err != nil {
			return nil, err
		}
		records = append(records, res.Records...)
	}
	return records, nil
}

// GetRecord loads one sObject into out, optionally restricted to fields.
func (c *ToolingClient) GetRecord(ctx context.Context, sobject, id string, fields []string, out any) error {
	path := fmt.Sprintf("/sobjects/%s/%s", sobject, url.PathEscape(id))
	if len(fields) > 0 {
		path += "?fields=" + url.QueryEscape(strings.Join(fields, ","))
	}
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// UpdateRecord patches an sObject.
func (c *ToolingClient) UpdateRecord(ctx context.Context, sobject, id string, data any) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/sobjects/%s/%s", sobject, url.PathEscape(id)), data, nil)
}

// CreateRecord inserts an sObject and returns its ID.
func (c *ToolingClient) CreateRecord(ctx context.Context, sobject string, data any) (string, error) {
	var res SaveResult
	if err := c.do(ctx, http.MethodPost, "/sobjects/"+sobject, data, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

// DeleteRecord removes an sObject.
func (c *ToolingClient) DeleteRecord(ctx context.Context, sobject, id string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/sobjects/%s/%s", sobject, url.PathEscape(id)), nil, nil)
}

// do sends a request and decodes the JSON response into out. A 401 invalidates
// the token and the request is retried once with a fresh one.
func (c *ToolingClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	status, respBody, reqURL, err := c.send(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		logging.FromContext(ctx).Debug().Ctx(ctx).
			Str("component", "salesforce").
			Str("url", reqURL).
			Msg("access token rejected, re-authenticating")
		c.tokens.Invalidate()
		if status, respBody, reqURL, err = c.send(ctx, method, path, payload); err != nil {
			return err
		}
	}

	if status < 200 || status > 299 {
		apiErr := parseAPIError(status, method, reqURL, respBody)
		logging.FromContext(ctx).Debug().Ctx(ctx).
			Str("component", "salesforce").
			Str("method", method).
			Str("url", reqURL).
			Int("status", status).
			Str("error_code", apiErr.Code).
			Msg("Tooling API error")
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err = json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *ToolingClient) send(ctx context.Context, method, path string, payload []byte) (int, []byte, string, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, nil, "", err
	}
	if tok.InstanceURL == "" {
		return 0, nil, "", ErrNotAuthenticated
	}

	reqURL := strings.TrimRight(tok.InstanceURL, "/") + "/services/data/" + c.version + "/tooling" + path

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return 0, nil, reqURL, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, reqURL, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, reqURL, fmt.Errorf("reading %s %s response: %w", method, path, err)
	}
	return resp.StatusCode, data, reqURL, nil
}
