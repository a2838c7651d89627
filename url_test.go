package userjs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL(t *testing.T) {
	tests := []struct {
		name     string
		params   map[string]any
		expected string
	}{
		{"NoParams", nil, "/userjs"},
		{"EmptyParams", map[string]any{}, "/userjs"},
		{"Single", map[string]any{"jsonp": "init"}, "/userjs?jsonp=init"},
		{"Sorted", map[string]any{"jsonp": "init", "csrf": 1}, "/userjs?csrf=1&jsonp=init"},
		{"Escaped", map[string]any{"q": "a b&c"}, "/userjs?q=a+b%26c"},
		{"Repeated", map[string]any{"tag": []string{"a", "b"}}, "/userjs?tag=a&tag=b"},
		{"Nil", map[string]any{"x": nil}, "/userjs?x="},
		{"Bytes", map[string]any{"b": []byte("raw")}, "/userjs?b=raw"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, URL("/userjs", tc.params))
		})
	}
}

func TestDict(t *testing.T) {
	m, err := Dict("jsonp", "init", "csrf", true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"jsonp": "init", "csrf": true}, m)

	_, err = Dict("jsonp")
	assert.Error(t, err)

	_, err = Dict(1, "x")
	assert.Error(t, err)
}
