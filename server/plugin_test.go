package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPlugin struct {
	name    string
	deps    []string
	optDeps []string
	initErr error
	order   *[]string
}

func (tp *testPlugin) Name() string {
	return tp.name
}

func (tp *testPlugin) Deps() []string {
	return tp.deps
}

func (tp *testPlugin) OptDeps() []string {
	return tp.optDeps
}

func (tp *testPlugin) Init(ctx context.Context, r *Registry) error {
	*tp.order = append(*tp.order, tp.name)
	return tp.initErr
}

func TestInit(t *testing.T) {
	var order []string
	r := &Registry{}
	r.Register(&testPlugin{name: "A", deps: []string{"B", "C"}, order: &order})
	r.Register(&testPlugin{name: "B", deps: []string{"C", "D"}, order: &order})
	r.Register(&testPlugin{name: "C", deps: []string{"D"}, order: &order})
	r.Register(&testPlugin{name: "D", order: &order})

	require.NoError(t, r.Init(t.Context()))
	assert.Equal(t, []string{"D", "C", "B", "A"}, order)
}

func TestOptionalDependencies(t *testing.T) {
	var order []string
	r := &Registry{}
	r.Register(&testPlugin{name: "userjs", optDeps: []string{"templates", "missing"}, order: &order})
	r.Register(&testPlugin{name: "templates", order: &order})

	require.NoError(t, r.Init(t.Context()))
	assert.Equal(t, []string{"templates", "userjs"}, order)
}

func TestCycleDetection(t *testing.T) {
	var order []string
	r := &Registry{}
	r.Register(&testPlugin{name: "A", deps: []string{"B"}, order: &order})
	r.Register(&testPlugin{name: "B", deps: []string{"C"}, order: &order})
	r.Register(&testPlugin{name: "C", deps: []string{"A"}, order: &order})

	err := r.Init(t.Context())
	assert.EqualError(t, err, "plugin: dependency cycle detected involving 'A'")
	assert.Empty(t, order)
}

func TestMissingDependency(t *testing.T) {
	var order []string
	r := &Registry{}
	r.Register(&testPlugin{name: "A", deps: []string{"B"}, order: &order})
	r.Register(&testPlugin{name: "B", deps: []string{"XX"}, order: &order})

	err := r.Init(t.Context())
	assert.EqualError(t, err, "plugin: missing dependency, 'XX' not registered")
}

func TestInitError(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	r := &Registry{}
	r.Register(&testPlugin{name: "A", initErr: boom, order: &order})

	err := r.Init(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "plugin: failed to initialize 'A': boom", err.Error())
}

func TestRegistryGet(t *testing.T) {
	r := &Registry{}
	assert.Nil(t, r.Get("A"))

	p := &testPlugin{name: "A"}
	r.Register(p)
	r.Register(&testPlugin{name: "B"})
	r.Register(p)
	assert.Same(t, p, r.Get("A"))

	var names []string
	for _, p := range r.All() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"A", "B"}, names)
}

func TestRegistryReverse(t *testing.T) {
	r := &Registry{}
	_, err := r.Reverse("echo")
	assert.True(t, errors.Is(err, ErrUnknownRoute))

	r.routes = map[string]string{"echo": "/echo"}
	p, err := r.Reverse("echo")
	require.NoError(t, err)
	assert.Equal(t, "/echo", p)
}
