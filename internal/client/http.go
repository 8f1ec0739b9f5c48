// Package client holds the clients that send messages through a running
// Botte deployment: over its HTTP API, by direct invocation, or by writing
// a task to the queue.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/botte/botte-service/config"
	bhttp "github.com/botte/botte-service/internal/http"
	"github.com/botte/botte-service/internal/http/ratelimit"
	"github.com/botte/botte-service/internal/telegram"
)

var (
	// ErrAuth is returned when the API rejects the token.
	ErrAuth = errors.New("authorization failed: check the API token")
	// ErrNotFound is returned for a 404.
	ErrNotFound = errors.New("endpoint not found")
)

// NotError500Error is returned by Unhealth when the endpoint did not fail
// the way it should.
type NotError500Error struct {
	Status int
}

func (e *NotError500Error) Error() string {
	return fmt.Sprintf("expected HTTP 500 from /unhealth, got %d", e.Status)
}

// Health is the body of GET /health.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database,omitempty"`
}

// Version is the body of GET /version.
type Version struct {
	AppName        string            `json:"appName"`
	AppVersion     string            `json:"appVersion"`
	RuntimeVersion string            `json:"runtimeVersion"`
	Dependencies   map[string]string `json:"dependencies,omitempty"`
}

// HTTPClient talks to the Botte HTTP API.
type HTTPClient struct {
	http      *bhttp.Client
	baseURL   string
	token     *config.SecretSource
	senderApp string
}

// NewHTTPClient creates a client for the API at cfg.BaseURL. token may be
// nil when the authorizer is disabled.
func NewHTTPClient(cfg config.ClientConfig, token *config.SecretSource, limits ratelimit.Config, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		http:      bhttp.NewClient(limits, timeout),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     token,
		senderApp: cfg.SenderApp,
	}
}

func (c *HTTPClient) header() (http.Header, error) {
	h := http.Header{}
	if c.token == nil || !c.token.Configured() {
		return h, nil
	}
	token, err := c.token.Get()
	if err != nil {
		return nil, err
	}
	h.Set("Authorization", token)
	return h, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	header, err := c.header()
	if err != nil {
		return err
	}
	resp, err := c.http.Do(ctx, http.MethodGet, c.baseURL+path, nil, header)
	if err != nil {
		return mapError(err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// Health calls GET /health.
func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.get(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Version calls GET /version.
func (c *HTTPClient) Version(ctx context.Context) (*Version, error) {
	var out Version
	if err := c.get(ctx, "/version", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Unhealth calls GET /unhealth and succeeds only when it answers 500.
func (c *HTTPClient) Unhealth(ctx context.Context) error {
	var out map[string]any
	err := c.get(ctx, "/unhealth", &out)
	if err == nil {
		return &NotError500Error{Status: http.StatusOK}
	}

	var retryErr *ratelimit.RetryError
	if errors.As(err, &retryErr) {
		if retryErr.LastStatus == http.StatusInternalServerError {
			return nil
		}
		return &NotError500Error{Status: retryErr.LastStatus}
	}
	return err
}

// SendMessage calls POST /message.
func (c *HTTPClient) SendMessage(ctx context.Context, text string) (*telegram.Message, error) {
	header, err := c.header()
	if err != nil {
		return nil, err
	}

	body, err := c.http.PostJSON(ctx, c.baseURL+"/message", map[string]string{
		"text":       text,
		"sender_app": c.senderApp,
	}, header)
	if err != nil {
		return nil, mapError(err)
	}

	var msg telegram.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode sent message: %w", err)
	}
	msg.Raw = body
	return &msg, nil
}

// mapError turns auth and routing failures into sentinel errors. Other
// failures stay *ratelimit.RetryError.
func mapError(err error) error {
	var retryErr *ratelimit.RetryError
	if !errors.As(err, &retryErr) {
		return err
	}
	switch retryErr.LastStatus {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrAuth, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
