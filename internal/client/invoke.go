package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/botte/botte-service/internal/relay"
)

// Invoker runs a direct invocation. *relay.Relay invokes in process.
type Invoker interface {
	Invoke(ctx context.Context, payload map[string]any) (relay.InvokeResponse, error)
}

// InvokeError is an invocation that ran but answered with an error status.
type InvokeError struct {
	StatusCode int
	Body       any
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("invocation failed with status %d: %v", e.StatusCode, e.Body)
}

// InvokeClient sends messages by direct invocation, either in process or
// over POST /invoke/message.
type InvokeClient struct {
	invoker   Invoker
	senderApp string
}

// NewInvokeClient wraps an Invoker.
func NewInvokeClient(invoker Invoker, senderApp string) *InvokeClient {
	return &InvokeClient{invoker: invoker, senderApp: senderApp}
}

// SendMessage invokes with {"text", "sender_app"} and returns the body of a
// 200 response.
func (c *InvokeClient) SendMessage(ctx context.Context, text string) (any, error) {
	resp, err := c.invoker.Invoke(ctx, map[string]any{
		"text":       text,
		"sender_app": c.senderApp,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &InvokeError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return resp.Body, nil
}

// Invoke posts the payload to /invoke/message, making HTTPClient an Invoker
// for a remote deployment.
func (c *HTTPClient) Invoke(ctx context.Context, payload map[string]any) (relay.InvokeResponse, error) {
	header, err := c.header()
	if err != nil {
		return relay.InvokeResponse{}, err
	}

	body, err := c.http.PostJSON(ctx, c.baseURL+"/invoke/message", payload, header)
	if err != nil {
		return relay.InvokeResponse{}, mapError(err)
	}

	var resp relay.InvokeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return relay.InvokeResponse{}, fmt.Errorf("failed to decode invocation response: %w", err)
	}
	return resp, nil
}
