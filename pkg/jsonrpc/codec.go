// Package jsonrpc exposes a contract as JSON-RPC 2.0 methods over HTTP.
// Every contract method, fallible or not, is adapted to a (generic JSON
// value, error object) pair; business and serialization failures both map
// to the standard internal-error code.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

const version = "2.0"

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the request carries no id member at all.
func (r *request) isNotification() bool {
	return len(r.ID) == 0
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the standard JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc: code %d: %s", e.Code, e.Message)
}

var nullID = json.RawMessage("null")

func errResponse(id json.RawMessage, code int, message string) *response {
	if len(id) == 0 {
		id = nullID
	}
	return &response{
		JSONRPC: version,
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	}
}

func resultResponse(id json.RawMessage, result json.RawMessage) *response {
	if len(id) == 0 {
		id = nullID
	}
	return &response{
		JSONRPC: version,
		ID:      id,
		Result:  result,
	}
}
