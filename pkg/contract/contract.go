// Package contract holds the protocol-independent description of a service:
// its method names, parameter lists, and per-method REST routing metadata.
//
// A Contract is pure data. It is validated at registration time so that a
// misdeclared route fails when the service is assembled, not on the first
// request. Adapters consume the contract through a Binding, which resolves
// each declared method to a concrete Go method on the service instance via
// reflection.
package contract

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrDuplicateMethod is returned when a method name is registered twice.
	ErrDuplicateMethod = errors.New("contract: duplicate method name")
	// ErrDuplicateParam is returned when a method declares two parameters
	// with the same name.
	ErrDuplicateParam = errors.New("contract: duplicate parameter name")
	// ErrAmbiguousParamRole is returned when a REST route does not place a
	// parameter in exactly one of path, query, or body.
	ErrAmbiguousParamRole = errors.New("contract: parameter must map to exactly one of path, query, or body")
	// ErrUnknownParam is returned when a route references a parameter the
	// method does not declare.
	ErrUnknownParam = errors.New("contract: route references unknown parameter")
	// ErrInvalidRoute is returned for malformed route metadata, such as an
	// unsupported HTTP verb or an empty path.
	ErrInvalidRoute = errors.New("contract: invalid route metadata")
)

// Param is one declared method parameter. Alias, when set, overrides the
// wire name used for query and body fields and for named JSON-RPC params.
type Param struct {
	Name  string
	Alias string
}

// WireName returns the name the parameter goes by on the wire.
func (p Param) WireName() string {
	if p.Alias != "" {
		return p.Alias
	}
	return p.Name
}

// Route is the REST metadata attached to a method. Path placeholders use
// {name} tokens; Query and Body list parameter names routed to the query
// string and the JSON request body respectively. Every declared parameter
// must end up in exactly one of the three groups.
type Route struct {
	Verb  string
	Path  string
	Query []string
	Body  []string
}

var placeholderRegex = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// PathParams returns the placeholder names in template order.
func (r *Route) PathParams() []string {
	matches := placeholderRegex.FindAllStringSubmatch(r.Path, -1)
	names := make([]string, len(matches))
	for i, match := range matches {
		names[i] = match[1]
	}
	return names
}

// Method declares one contract method. Name is the wire method name shared
// by all protocols; the stream-RPC and JSON-RPC adapters use Params
// positionally, the REST adapter partitions them per the Route.
type Method struct {
	Name   string
	Params []Param
	Rest   *Route
}

var allowedVerbs = map[string]struct{}{
	"GET":     {},
	"POST":    {},
	"PUT":     {},
	"PATCH":   {},
	"DELETE":  {},
	"HEAD":    {},
	"OPTIONS": {},
}

func (m *Method) validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: empty method name", ErrInvalidRoute)
	}

	seen := make(map[string]struct{}, len(m.Params))
	for _, p := range m.Params {
		if p.Name == "" {
			return fmt.Errorf("method %q: %w: empty parameter name", m.Name, ErrDuplicateParam)
		}
		if _, ok := seen[p.Name]; ok {
			return fmt.Errorf("method %q: %w: %q", m.Name, ErrDuplicateParam, p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	if m.Rest != nil {
		return m.validateRoute()
	}
	return nil
}

// validateRoute checks that path placeholders, query names, and body names
// partition the declared parameters: each parameter in exactly one group.
func (m *Method) validateRoute() error {
	r := m.Rest
	if _, ok := allowedVerbs[r.Verb]; !ok {
		return fmt.Errorf("method %q: %w: unsupported verb %q", m.Name, ErrInvalidRoute, r.Verb)
	}
	if r.Path == "" || r.Path[0] != '/' {
		return fmt.Errorf("method %q: %w: path must begin with '/'", m.Name, ErrInvalidRoute)
	}

	roles := make(map[string]string, len(m.Params))

	assign := func(param, role string) error {
		declared := false
		for _, p := range m.Params {
			if p.Name == param {
				declared = true
				break
			}
		}
		if !declared {
			return fmt.Errorf("method %q: %w: %q (%s)", m.Name, ErrUnknownParam, param, role)
		}
		if prev, ok := roles[param]; ok {
			return fmt.Errorf("method %q: %w: %q is both %s and %s", m.Name, ErrAmbiguousParamRole, param, prev, role)
		}
		roles[param] = role
		return nil
	}

	for _, name := range r.PathParams() {
		if err := assign(name, "path"); err != nil {
			return err
		}
	}
	for _, name := range r.Query {
		if err := assign(name, "query"); err != nil {
			return err
		}
	}
	for _, name := range r.Body {
		if err := assign(name, "body"); err != nil {
			return err
		}
	}

	for _, p := range m.Params {
		if _, ok := roles[p.Name]; !ok {
			return fmt.Errorf("method %q: %w: %q is unassigned", m.Name, ErrAmbiguousParamRole, p.Name)
		}
	}
	return nil
}

// Contract is an ordered, name-unique collection of method declarations.
type Contract struct {
	methods []Method
	byName  map[string]int
}

func New() *Contract {
	return &Contract{
		byName: make(map[string]int),
	}
}

// Register validates and appends one method declaration.
func (c *Contract) Register(m Method) error {
	if err := m.validate(); err != nil {
		return err
	}
	if _, ok := c.byName[m.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateMethod, m.Name)
	}
	c.byName[m.Name] = len(c.methods)
	c.methods = append(c.methods, m)
	return nil
}

// MustRegister is Register for static contract declarations where a failure
// is a programming error.
func (c *Contract) MustRegister(m Method) {
	if err := c.Register(m); err != nil {
		panic(err)
	}
}

// Methods returns the declarations in registration order.
func (c *Contract) Methods() []Method {
	return c.methods
}

// Method looks up a declaration by wire name.
func (c *Contract) Method(name string) (Method, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Method{}, false
	}
	return c.methods[i], true
}
