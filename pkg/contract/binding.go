package contract

import (
	"context"
	"fmt"
	"reflect"

	"github.com/triwire/triwire/internal/util"
)

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// BoundMethod is one contract method resolved against a live service
// instance: the declaration plus the reflected callable and its types.
type BoundMethod struct {
	Method

	fn       reflect.Value
	ptypes   []reflect.Type
	rtype    reflect.Type
	fallible bool
}

// Binding maps every contract method to a Go method on one service value.
type Binding struct {
	methods map[string]*BoundMethod
	ordered []*BoundMethod
}

// Bind resolves every method of the contract against svc. The wire name is
// converted to its exported Go form ("update_settings" binds to
// "UpdateSettings"). Each Go method must have the shape
//
//	func (s *Svc) Name(ctx context.Context, p1 T1, ..., pn Tn) (R, error)
//
// for a fallible method, or the same without the error return for an
// infallible one, with exactly one Ti per declared parameter.
func Bind(c *Contract, svc any) (*Binding, error) {
	sv := reflect.ValueOf(svc)
	if !sv.IsValid() {
		return nil, fmt.Errorf("contract: cannot bind nil service")
	}

	b := &Binding{
		methods: make(map[string]*BoundMethod, len(c.methods)),
	}

	for i := range c.methods {
		m := c.methods[i]
		goName := util.EnsurePascalCase(m.Name)

		fv := sv.MethodByName(goName)
		if !fv.IsValid() {
			return nil, fmt.Errorf("contract: method %q: no method %s on %T", m.Name, goName, svc)
		}

		bound, err := bindMethod(m, fv)
		if err != nil {
			return nil, err
		}
		b.methods[m.Name] = bound
		b.ordered = append(b.ordered, bound)
	}
	return b, nil
}

func bindMethod(m Method, fv reflect.Value) (*BoundMethod, error) {
	ft := fv.Type()

	if ft.IsVariadic() {
		return nil, fmt.Errorf("contract: method %q: variadic methods are not supported", m.Name)
	}
	if ft.NumIn() < 1 || ft.In(0) != ctxType {
		return nil, fmt.Errorf("contract: method %q: first parameter must be context.Context", m.Name)
	}
	if ft.NumIn()-1 != len(m.Params) {
		return nil, fmt.Errorf("contract: method %q: declares %d parameters but Go method takes %d",
			m.Name, len(m.Params), ft.NumIn()-1)
	}

	ptypes := make([]reflect.Type, ft.NumIn()-1)
	for i := range ptypes {
		ptypes[i] = ft.In(i + 1)
	}

	var rtype reflect.Type
	var fallible bool
	switch ft.NumOut() {
	case 1:
		if ft.Out(0) == errType {
			return nil, fmt.Errorf("contract: method %q: must return a value, not a bare error", m.Name)
		}
		rtype = ft.Out(0)
	case 2:
		if ft.Out(1) != errType {
			return nil, fmt.Errorf("contract: method %q: second return value must be error", m.Name)
		}
		rtype = ft.Out(0)
		fallible = true
	default:
		return nil, fmt.Errorf("contract: method %q: must return (value) or (value, error)", m.Name)
	}

	return &BoundMethod{
		Method:   m,
		fn:       fv,
		ptypes:   ptypes,
		rtype:    rtype,
		fallible: fallible,
	}, nil
}

// Method looks up a bound method by wire name.
func (b *Binding) Method(name string) (*BoundMethod, bool) {
	m, ok := b.methods[name]
	return m, ok
}

// Methods returns the bound methods in registration order.
func (b *Binding) Methods() []*BoundMethod {
	return b.ordered
}

// Fallible reports whether the bound method returns a (value, error) pair.
func (m *BoundMethod) Fallible() bool {
	return m.fallible
}

// NumParams returns the number of declared parameters.
func (m *BoundMethod) NumParams() int {
	return len(m.ptypes)
}

// ParamType returns the Go type of parameter i.
func (m *BoundMethod) ParamType(i int) reflect.Type {
	return m.ptypes[i]
}

// ReturnType returns the Go type of the success value.
func (m *BoundMethod) ReturnType() reflect.Type {
	return m.rtype
}

// NewParam returns a pointer to a zero value of parameter i, suitable as a
// decode target for json or cbor unmarshaling.
func (m *BoundMethod) NewParam(i int) any {
	return reflect.New(m.ptypes[i]).Interface()
}

// ParamIndex resolves a wire name (parameter name or alias) to its declared
// position, or -1 if the method has no such parameter.
func (m *BoundMethod) ParamIndex(wire string) int {
	for i, p := range m.Params {
		if p.Name == wire || p.Alias == wire {
			return i
		}
	}
	return -1
}

// Call invokes the bound method. Each args element is either a value of the
// parameter type or a pointer to one (as produced by NewParam); nil selects
// the zero value. For fallible methods the business error is returned as the
// second result; infallible methods always return a nil error.
func (m *BoundMethod) Call(ctx context.Context, args []any) (any, error) {
	if len(args) != len(m.ptypes) {
		return nil, fmt.Errorf("contract: method %q: expected %d arguments, got %d", m.Name, len(m.ptypes), len(args))
	}

	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, reflect.ValueOf(ctx))
	for i, arg := range args {
		if arg == nil {
			in = append(in, reflect.Zero(m.ptypes[i]))
			continue
		}
		av := reflect.ValueOf(arg)
		if av.Kind() == reflect.Pointer && av.Type().Elem() == m.ptypes[i] && av.Type() != m.ptypes[i] {
			av = av.Elem()
		}
		if av.Type() != m.ptypes[i] {
			return nil, fmt.Errorf("contract: method %q: argument %d is %s, expected %s",
				m.Name, i, av.Type(), m.ptypes[i])
		}
		in = append(in, av)
	}

	out := m.fn.Call(in)
	if m.fallible && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}
