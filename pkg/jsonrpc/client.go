package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// Client is a JSON-RPC 2.0 client stub over HTTP.
type Client struct {
	c      *resty.Client
	path   string
	nextID atomic.Uint64
}

func NewClient(baseURL string) *Client {
	return &Client{
		c:    resty.New().SetBaseURL(baseURL),
		path: "/",
	}
}

// Call invokes a method with positional params and decodes the result into
// out unless out is nil. A server error object is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, out any, params ...any) error {
	return c.call(ctx, method, out, params)
}

// CallNamed invokes a method with named params.
func (c *Client) CallNamed(ctx context.Context, method string, out any, params map[string]any) error {
	return c.call(ctx, method, out, params)
}

// Notify sends a notification: no id, no response expected.
func (c *Client) Notify(ctx context.Context, method string, params ...any) error {
	req := map[string]any{
		"jsonrpc": version,
		"method":  method,
	}
	if len(params) > 0 {
		req["params"] = params
	}
	_, err := c.c.R().SetContext(ctx).SetBody(req).Post(c.path)
	return err
}

func (c *Client) call(ctx context.Context, method string, out any, params any) error {
	id := c.nextID.Add(1)
	req := map[string]any{
		"jsonrpc": version,
		"id":      id,
		"method":  method,
		"params":  params,
	}

	resp, err := c.c.R().SetContext(ctx).SetBody(req).Post(c.path)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("jsonrpc: unexpected status %d", resp.StatusCode())
	}

	var envelope response
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("jsonrpc: malformed response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}
