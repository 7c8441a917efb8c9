package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/triwire/triwire/pkg/contract"
)

// StatusError is a non-200 response from the server. Business errors
// surface as status 500 with the error description as the body.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rest: status %d: %s", e.Code, e.Message)
}

// Client is the REST client stub. It derives each request's shape (path
// template, query keys, body fields) from the same contract the server
// routes were built from.
type Client struct {
	c        *resty.Client
	contract *contract.Contract
}

func NewClient(baseURL string, c *contract.Contract) *Client {
	return &Client{
		c:        resty.New().SetBaseURL(baseURL),
		contract: c,
	}
}

// Call invokes a routed method. Args are keyed by declared parameter name;
// the 200 response body is decoded into out unless out is nil.
func (c *Client) Call(ctx context.Context, method string, out any, args map[string]any) error {
	m, ok := c.contract.Method(method)
	if !ok {
		return fmt.Errorf("rest: unknown method %q", method)
	}
	if m.Rest == nil {
		return fmt.Errorf("rest: method %q has no route", method)
	}

	req := c.c.R().SetContext(ctx)

	for _, name := range m.Rest.PathParams() {
		v, ok := args[name]
		if !ok {
			return fmt.Errorf("rest: method %q: missing argument %q", method, name)
		}
		req.SetPathParam(name, stringify(v))
	}
	for _, name := range m.Rest.Query {
		v, ok := args[name]
		if !ok {
			return fmt.Errorf("rest: method %q: missing argument %q", method, name)
		}
		req.SetQueryParam(wireName(m, name), stringify(v))
	}
	if len(m.Rest.Body) > 0 {
		body := make(map[string]any, len(m.Rest.Body))
		for _, name := range m.Rest.Body {
			v, ok := args[name]
			if !ok {
				return fmt.Errorf("rest: method %q: missing argument %q", method, name)
			}
			body[wireName(m, name)] = v
		}
		req.SetBody(body)
	}

	resp, err := req.Execute(m.Rest.Verb, m.Rest.Path)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return &StatusError{
			Code:    resp.StatusCode(),
			Message: strings.TrimSpace(resp.String()),
		}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Body(), out)
}

func wireName(m contract.Method, param string) string {
	for _, p := range m.Params {
		if p.Name == param {
			return p.WireName()
		}
	}
	return param
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	bs, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(bs)
}
