package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/triwire/triwire/pkg/contract"
	"github.com/triwire/triwire/pkg/log"
	"github.com/triwire/triwire/pkg/server"
)

// Handler serves JSON-RPC 2.0 over HTTP POST. Single requests and batches
// are both accepted; notifications produce no response member.
type Handler struct {
	shared *server.Shared
	logger log.Logger
}

func NewHandler(shared *server.Shared, logger log.Logger) *Handler {
	return &Handler{
		shared: shared,
		logger: logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeResponses(w, h.logger, errResponse(nil, CodeParseError, "failed to read request"))
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		h.serveBatch(r.Context(), w, trimmed)
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponses(w, h.logger, errResponse(nil, CodeParseError, "parse error"))
		return
	}

	resp := h.dispatch(r.Context(), &req)
	if req.isNotification() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeResponses(w, h.logger, resp)
}

func (h *Handler) serveBatch(ctx context.Context, w http.ResponseWriter, body []byte) {
	var reqs []request
	if err := json.Unmarshal(body, &reqs); err != nil {
		writeResponses(w, h.logger, errResponse(nil, CodeParseError, "parse error"))
		return
	}
	if len(reqs) == 0 {
		writeResponses(w, h.logger, errResponse(nil, CodeInvalidRequest, "empty batch"))
		return
	}

	var resps []*response
	for i := range reqs {
		resp := h.dispatch(ctx, &reqs[i])
		if !reqs[i].isNotification() {
			resps = append(resps, resp)
		}
	}
	if len(resps) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resps); err != nil && h.logger != nil {
		h.logger.Error("failed to write batch response: " + err.Error())
	}
}

// dispatch resolves and invokes one request. Every failure mode yields a
// response object; a successful call whose result cannot be serialized is
// reported as an internal error rather than silently dropped.
func (h *Handler) dispatch(ctx context.Context, req *request) *response {
	if req.JSONRPC != version || req.Method == "" {
		return errResponse(req.ID, CodeInvalidRequest, "invalid request")
	}

	m, ok := h.shared.Lookup(req.Method)
	if !ok {
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}

	args, rpcErr := decodeParams(m, req.Params)
	if rpcErr != nil {
		return errResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}

	result, err := h.shared.Invoke(ctx, m, args)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, "failed to serialize response: "+err.Error())
	}
	return resultResponse(req.ID, payload)
}

// decodeParams accepts positional (array) params matched to the declared
// order, or named (object) params matched by parameter name or alias.
func decodeParams(m *contract.BoundMethod, raw json.RawMessage) ([]any, *Error) {
	n := m.NumParams()
	trimmed := bytes.TrimSpace(raw)

	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		if n == 0 {
			return nil, nil
		}
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("expected %d params", n)}
	}

	args := make([]any, n)
	switch trimmed[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "malformed params array"}
		}
		if len(elems) != n {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("expected %d params, got %d", n, len(elems))}
		}
		for i, elem := range elems {
			p := m.NewParam(i)
			if err := json.Unmarshal(elem, p); err != nil {
				return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("param %d: %v", i, err)}
			}
			args[i] = p
		}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "malformed params object"}
		}
		for i, p := range m.Params {
			raw, ok := fields[p.Name]
			if !ok && p.Alias != "" {
				raw, ok = fields[p.Alias]
			}
			if !ok {
				return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("missing param %q", p.Name)}
			}
			target := m.NewParam(i)
			if err := json.Unmarshal(raw, target); err != nil {
				return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("param %q: %v", p.Name, err)}
			}
			args[i] = target
		}
	default:
		return nil, &Error{Code: CodeInvalidParams, Message: "params must be an array or object"}
	}
	return args, nil
}

func writeResponses(w http.ResponseWriter, logger log.Logger, resp *response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil && logger != nil {
		logger.Error("failed to write response: " + err.Error())
	}
}
