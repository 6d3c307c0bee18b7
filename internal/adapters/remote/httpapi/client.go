package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
)

// Ensure Client implements ports.Transport.
var _ ports.Transport = (*Client)(nil)

// DefaultRetryAfter is used when a 429 response carries no usable Retry-After.
const DefaultRetryAfter = time.Second

// TokenSource returns the bearer token for a request. An empty token sends
// no Authorization header.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Client speaks the wikisync HTTP protocol. It performs no retries; the
// remote document store owns the retry policy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	userAgent  string
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client for the Client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTokenSource sets the bearer token provider.
func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *Client) {
		c.token = ts
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		userAgent:  "wikisync",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the backend name.
func (c *Client) Name() string { return "http" }

// Read fetches a document.
func (c *Client) Read(ctx context.Context, path string) (*ports.RemoteDocument, error) {
	resp, err := c.do(ctx, http.MethodGet, DocumentsPath+"/"+EscapePath(path), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Transient("read response body", err)
	}
	return &ports.RemoteDocument{
		Path:      path,
		Content:   body,
		Revision:  ParseETag(resp.Header.Get("ETag")),
		UpdatedAt: ParseTime(resp.Header.Get(HeaderUpdatedAt)),
	}, nil
}

// Write stores a document, conditional on its revision.
func (c *Client) Write(ctx context.Context, req ports.WriteRequest) (string, error) {
	headers := http.Header{}
	headers.Set("Content-Type", "text/markdown; charset=utf-8")
	if req.ExpectedRevision == "" {
		headers.Set("If-None-Match", "*")
	} else {
		headers.Set("If-Match", ETag(req.ExpectedRevision))
	}
	if req.Message != "" {
		headers.Set(HeaderMessage, req.Message)
	}

	resp, err := c.do(ctx, http.MethodPut, DocumentsPath+"/"+EscapePath(req.Path), req.Content, headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", c.handleErrorResponse(resp, req.Path)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	rev := ParseETag(resp.Header.Get("ETag"))
	if rev == "" {
		return "", errors.Transient(fmt.Sprintf("write %s: response carried no revision", req.Path), nil)
	}
	return rev, nil
}

// List enumerates documents under prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]ports.RemoteEntry, error) {
	endpoint := DocumentsPath
	if prefix != "" {
		endpoint += "?prefix=" + url.QueryEscape(prefix)
	}
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp, prefix)
	}

	var result ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Transient("decode listing", err)
	}
	return result.Entries, nil
}

// Ping verifies write access.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, AccessPath, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return c.handleErrorResponse(resp, "")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, headers http.Header) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, errors.NewError(errors.CodeConfiguration, "failed to create request", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("User-Agent", c.userAgent)

	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return nil, errors.NewError(errors.CodeUnauthenticated, "resolve token", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Transient(fmt.Sprintf("%s %s", method, endpoint), err)
	}
	return resp, nil
}

// handleErrorResponse maps a non-success response onto the error taxonomy.
func (c *Client) handleErrorResponse(resp *http.Response, path string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	message := strings.TrimSpace(string(body))
	var errResp ErrorBody
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	message = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, message)

	var se *errors.SyncError
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		se = errors.NewError(errors.CodeUnauthenticated, message, nil)
	case resp.StatusCode == http.StatusForbidden:
		se = errors.NewError(errors.CodeForbidden, message, nil)
	case resp.StatusCode == http.StatusNotFound:
		se = errors.NewError(errors.CodeNotFound, message, nil)
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusPreconditionFailed:
		se = errors.NewError(errors.CodeRevisionConflict, message, nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		se = errors.RateLimited(message, parseRetryAfter(resp.Header.Get("Retry-After")))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout:
		se = errors.Transient(message, nil)
	default:
		se = errors.NewError(errors.CodeValidation, message, nil)
	}
	errors.WithContext(se, errors.ContextStatus, resp.StatusCode)
	if path != "" {
		errors.WithContext(se, errors.ContextPath, path)
	}
	return se
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return DefaultRetryAfter
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return DefaultRetryAfter
}
