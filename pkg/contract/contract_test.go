package contract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDuplicateMethod(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(Method{Name: "greet", Params: []Param{{Name: "name"}}}))

	err := c.Register(Method{Name: "greet", Params: []Param{{Name: "name"}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateMethod)
}

func TestRegisterDuplicateParam(t *testing.T) {
	c := New()
	err := c.Register(Method{
		Name:   "greet",
		Params: []Param{{Name: "name"}, {Name: "name"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateParam)
}

func TestRouteRoleResolution(t *testing.T) {
	register := func(m Method) error {
		return New().Register(m)
	}

	// every param in exactly one group
	require.NoError(t, register(Method{
		Name:   "update_settings",
		Params: []Param{{Name: "user_id"}, {Name: "brightness"}, {Name: "theme"}},
		Rest: &Route{
			Verb: "POST",
			Path: "/users/{user_id}/settings",
			Body: []string{"brightness", "theme"},
		},
	}))

	// unassigned param
	err := register(Method{
		Name:   "update_settings",
		Params: []Param{{Name: "user_id"}, {Name: "brightness"}},
		Rest: &Route{
			Verb: "POST",
			Path: "/users/{user_id}/settings",
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguousParamRole)

	// doubly-assigned param: in path and body
	err = register(Method{
		Name:   "update_settings",
		Params: []Param{{Name: "user_id"}},
		Rest: &Route{
			Verb: "POST",
			Path: "/users/{user_id}/settings",
			Body: []string{"user_id"},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguousParamRole)

	// doubly-assigned param: in query and body
	err = register(Method{
		Name:   "search",
		Params: []Param{{Name: "term"}},
		Rest: &Route{
			Verb:  "GET",
			Path:  "/search",
			Query: []string{"term"},
			Body:  []string{"term"},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguousParamRole)

	// route references a parameter the method does not declare
	err = register(Method{
		Name:   "greet",
		Params: []Param{{Name: "name"}},
		Rest: &Route{
			Verb:  "GET",
			Path:  "/greet/{name}",
			Query: []string{"tone"},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownParam)

	// unsupported verb
	err = register(Method{
		Name:   "greet",
		Params: []Param{{Name: "name"}},
		Rest: &Route{
			Verb: "FETCH",
			Path: "/greet/{name}",
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRoute)
}

func TestPathParams(t *testing.T) {
	r := &Route{Path: "/users/{user_id}/items/{item_id}"}
	assert.Equal(t, []string{"user_id", "item_id"}, r.PathParams())

	r = &Route{Path: "/static"}
	assert.Empty(t, r.PathParams())
}

type calcService struct {
	total int
}

func (s *calcService) Add(ctx context.Context, a int, b int) (int, error) {
	if a < 0 || b < 0 {
		return 0, errors.New("operands must be non-negative")
	}
	s.total = a + b
	return s.total, nil
}

func (s *calcService) Total(ctx context.Context) int {
	return s.total
}

func (s *calcService) Broken(ctx context.Context) error {
	return nil
}

func newCalcContract(t *testing.T) *Contract {
	t.Helper()
	c := New()
	require.NoError(t, c.Register(Method{
		Name:   "add",
		Params: []Param{{Name: "a"}, {Name: "b"}},
	}))
	require.NoError(t, c.Register(Method{Name: "total"}))
	return c
}

func TestBindAndCall(t *testing.T) {
	c := newCalcContract(t)

	binding, err := Bind(c, &calcService{})
	require.NoError(t, err)

	add, ok := binding.Method("add")
	require.True(t, ok)
	assert.True(t, add.Fallible())
	assert.Equal(t, 2, add.NumParams())

	result, err := add.Call(context.Background(), []any{3, 4})
	require.NoError(t, err)
	assert.Equal(t, 7, result)

	// business error propagates as the error return
	_, err = add.Call(context.Background(), []any{-1, 4})
	require.Error(t, err)
	assert.Equal(t, "operands must be non-negative", err.Error())

	// infallible method never errors
	total, ok := binding.Method("total")
	require.True(t, ok)
	assert.False(t, total.Fallible())
	result, err = total.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 7, result)
}

func TestBindPointerArgs(t *testing.T) {
	c := newCalcContract(t)
	binding, err := Bind(c, &calcService{})
	require.NoError(t, err)

	add, _ := binding.Method("add")

	// decode targets from NewParam are pointers and are dereferenced
	a := add.NewParam(0)
	b := add.NewParam(1)
	*(a.(*int)) = 10
	*(b.(*int)) = 5

	result, err := add.Call(context.Background(), []any{a, b})
	require.NoError(t, err)
	assert.Equal(t, 15, result)
}

func TestBindErrors(t *testing.T) {
	// missing Go method
	c := New()
	require.NoError(t, c.Register(Method{Name: "missing"}))
	_, err := Bind(c, &calcService{})
	require.Error(t, err)

	// arity mismatch
	c = New()
	require.NoError(t, c.Register(Method{Name: "add", Params: []Param{{Name: "a"}}}))
	_, err = Bind(c, &calcService{})
	require.Error(t, err)

	// bare error return
	c = New()
	require.NoError(t, c.Register(Method{Name: "broken"}))
	_, err = Bind(c, &calcService{})
	require.Error(t, err)
}

func TestParamIndex(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(Method{
		Name:   "search",
		Params: []Param{{Name: "term", Alias: "q"}, {Name: "limit"}},
	}))
	binding, err := Bind(c, &searchService{})
	require.NoError(t, err)

	m, _ := binding.Method("search")
	assert.Equal(t, 0, m.ParamIndex("term"))
	assert.Equal(t, 0, m.ParamIndex("q"))
	assert.Equal(t, 1, m.ParamIndex("limit"))
	assert.Equal(t, -1, m.ParamIndex("offset"))
}

type searchService struct{}

func (s *searchService) Search(ctx context.Context, term string, limit int) ([]string, error) {
	return nil, nil
}
