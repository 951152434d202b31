package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/sync/protocol"
)

// DefaultRequestTimeout bounds one round trip to the server.
const DefaultRequestTimeout = 30 * time.Second

// Transport carries delta exchanges to the server.
type Transport interface {
	// Delta posts local changes and returns the server's delta.
	Delta(ctx context.Context, req *protocol.DeltaRequest) (*protocol.DeltaResponse, error)

	// Teams returns the caller's team memberships.
	Teams(ctx context.Context) (*protocol.TeamsResponse, error)
}

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns the token itself.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// TransportConfig holds server connection configuration.
type TransportConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPTransport implements Transport over HTTP/JSON.
type HTTPTransport struct {
	config     *TransportConfig
	token      TokenSource
	httpClient *http.Client
}

// NewHTTPTransport creates a new HTTPTransport.
func NewHTTPTransport(config *TransportConfig, token TokenSource) *HTTPTransport {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &HTTPTransport{
		config: config,
		token:  token,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// Delta posts to /sync/delta.
func (c *HTTPTransport) Delta(ctx context.Context, req *protocol.DeltaRequest) (*protocol.DeltaResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode delta request", err)
	}
	httpReq, err := c.createRequest(ctx, http.MethodPost, protocol.DeltaPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var resp protocol.DeltaResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Teams fetches /teams.
func (c *HTTPTransport) Teams(ctx context.Context) (*protocol.TeamsResponse, error) {
	httpReq, err := c.createRequest(ctx, http.MethodGet, protocol.TeamsPath, nil)
	if err != nil {
		return nil, err
	}
	var resp protocol.TeamsResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestConnection checks the server health endpoint.
func (c *HTTPTransport) TestConnection(ctx context.Context) error {
	httpReq, err := c.createRequest(ctx, http.MethodGet, protocol.HealthPath, nil)
	if err != nil {
		return err
	}
	return c.do(httpReq, nil)
}

// createRequest creates a request with authentication.
func (c *HTTPTransport) createRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	url := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid server URL", err)
	}
	req.Header.Set("Accept", protocol.ContentType)
	if body != nil {
		req.Header.Set("Content-Type", protocol.ContentType)
	}

	if c.token != nil {
		token, err := c.token.Token(ctx)
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

// do executes req and decodes a 2xx body into out. Transport failures map to
// NETWORK_ERROR and non-2xx statuses to SERVER_REJECTED.
func (c *HTTPTransport) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetwork, fmt.Sprintf("%s %s failed", req.Method, req.URL.Path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(body))
		var er protocol.ErrorResponse
		if json.Unmarshal(body, &er) == nil && er.Error != "" {
			msg = er.Error
		}
		return apperrors.Newf(apperrors.ErrServerRejected, "server returned %d: %s", resp.StatusCode, msg)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.ErrServerRejected, "malformed server response", err)
	}
	return nil
}
