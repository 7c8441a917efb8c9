// Package rest exposes a contract over HTTP. Each method with route
// metadata becomes one route; its arguments are assembled from three
// disjoint sources (path placeholders, query string, JSON body) in declared
// parameter order before the method is invoked through the shared handle.
package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/triwire/triwire/pkg/contract"
	"github.com/triwire/triwire/pkg/log"
	"github.com/triwire/triwire/pkg/server"
)

// slot ties a wire name to a declared parameter position.
type slot struct {
	wire  string
	index int
}

// routePlan is the precomputed argument-assembly plan for one method.
type routePlan struct {
	m     *contract.BoundMethod
	path  []slot
	query []slot
	body  []slot
}

func buildPlan(m *contract.BoundMethod) routePlan {
	plan := routePlan{m: m}
	r := m.Rest

	for _, name := range r.PathParams() {
		// Path placeholders address parameters by declared name.
		plan.path = append(plan.path, slot{wire: name, index: m.ParamIndex(name)})
	}
	for _, name := range r.Query {
		i := m.ParamIndex(name)
		plan.query = append(plan.query, slot{wire: m.Params[i].WireName(), index: i})
	}
	for _, name := range r.Body {
		i := m.ParamIndex(name)
		plan.body = append(plan.body, slot{wire: m.Params[i].WireName(), index: i})
	}
	return plan
}

// NewRouter builds the route table for every method carrying REST metadata.
func NewRouter(shared *server.Shared, logger log.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if logger != nil {
		r.Use(requestLogger(logger))
	}

	for _, m := range shared.Methods() {
		if m.Rest == nil {
			continue
		}
		plan := buildPlan(m)
		r.Method(m.Rest.Verb, m.Rest.Path, handler(shared, plan))
	}
	return r
}

// handler decodes all three argument groups, rejecting malformed input with
// 400 before the method is ever invoked, then applies the coarse status
// mapping: 200 with the JSON success value, or 500 with the error text.
func handler(shared *server.Shared, plan routePlan) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		args := make([]any, plan.m.NumParams())

		for _, s := range plan.path {
			p := plan.m.NewParam(s.index)
			if err := decodeScalar(chi.URLParam(r, s.wire), p); err != nil {
				http.Error(w, fmt.Sprintf("invalid path parameter %q", s.wire), http.StatusBadRequest)
				return
			}
			args[s.index] = p
		}

		if len(plan.query) > 0 {
			values := r.URL.Query()
			for _, s := range plan.query {
				if !values.Has(s.wire) {
					http.Error(w, fmt.Sprintf("missing query parameter %q", s.wire), http.StatusBadRequest)
					return
				}
				p := plan.m.NewParam(s.index)
				if err := decodeScalar(values.Get(s.wire), p); err != nil {
					http.Error(w, fmt.Sprintf("invalid query parameter %q", s.wire), http.StatusBadRequest)
					return
				}
				args[s.index] = p
			}
		}

		// Methods without body parameters never read the request body.
		if len(plan.body) > 0 {
			var fields map[string]json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
				http.Error(w, "malformed request body", http.StatusBadRequest)
				return
			}
			for _, s := range plan.body {
				raw, ok := fields[s.wire]
				if !ok {
					http.Error(w, fmt.Sprintf("missing body field %q", s.wire), http.StatusBadRequest)
					return
				}
				p := plan.m.NewParam(s.index)
				if err := json.Unmarshal(raw, p); err != nil {
					http.Error(w, fmt.Sprintf("invalid body field %q", s.wire), http.StatusBadRequest)
					return
				}
				args[s.index] = p
			}
		}

		result, err := shared.Invoke(r.Context(), plan.m, args)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		body, err := json.Marshal(result)
		if err != nil {
			http.Error(w, "failed to serialize response: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})
}

// decodeScalar decodes a raw path or query value into the parameter's type.
// Strings are taken verbatim; everything else goes through the JSON decoder.
func decodeScalar(raw string, out any) error {
	v := reflect.ValueOf(out).Elem()
	if v.Kind() == reflect.String {
		v.SetString(raw)
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

func requestLogger(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug(fmt.Sprintf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start)))
		})
	}
}
