// Package client provides a language-native API wrapper around the peer
// RPCs spoken between the controller and its workers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
)

// maxBodyBytes caps how much of a peer response is read
const maxBodyBytes = 1 << 20

// Client speaks the controller/worker JSON protocol over HTTP. Every
// transport failure is reported as models.ErrUnreachable.
type Client struct {
	httpClient *http.Client
}

// New creates a client whose requests give up after timeout
func New(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Response is a peer's HTTP answer, body kept verbatim
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Heartbeat probes addr's liveness endpoint. A non-2xx status is an error.
func (c *Client) Heartbeat(ctx context.Context, addr models.Address) error {
	resp, err := c.do(ctx, http.MethodGet, addr.URL(models.HeartbeatPath), nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("heartbeat to %s returned status %d", addr, resp.StatusCode)
	}
	return nil
}

// Register announces a worker to the controller at addr
func (c *Client) Register(ctx context.Context, addr models.Address, req models.RegisterWorkerRequest) error {
	resp, err := c.do(ctx, http.MethodPost, addr.URL(models.RegisterPath), req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registration failed with status %d: %s", resp.StatusCode, string(resp.Body))
	}
	return nil
}

// Launch forwards a work item to the worker at addr. Any HTTP answer,
// including an error status, is returned as a Response rather than an error.
func (c *Client) Launch(ctx context.Context, addr models.Address, item models.WorkItem) (*Response, error) {
	return c.do(ctx, http.MethodPost, addr.URL(models.LaunchPath), item)
}

func (c *Client) do(ctx context.Context, method, url string, payload interface{}) (*Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("problem constructing HTTP request (%s)", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", models.ErrUnreachable, method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response from %s: %v", models.ErrUnreachable, url, err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: json.RawMessage(bytes.TrimSpace(data))}, nil
}
