package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetRegistry(t *testing.T, infos ...KeyInfo) {
	t.Helper()
	registryMu.Lock()
	saved := registry
	registry = make(map[string]KeyInfo)
	registryMu.Unlock()
	RegisterKeys(infos...)
	t.Cleanup(func() {
		registryMu.Lock()
		registry = saved
		registryMu.Unlock()
	})
}

func TestTransformEnv(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "UJS__SERVER__INCOMING_HEADERS", want: "server.incomingHeaders"},
		{input: "UJS__FOOBAR", want: "foobar"},
		{input: "UJS__A__B_C", want: "a.bC"},
		{input: "UJS__USERJS__REQUIRE_CSRF", want: "userjs.requireCsrf"},
		{input: "UJS__USERJS__IGNORE_EMPTY_VALUES", want: "userjs.ignoreEmptyValues"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, TransformEnv(tt.input))
		})
	}
}

func TestSearchForConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "userjs.yaml"), []byte("userjs: {}\n"), 0o644))

	assert.Equal(t, filepath.Join(root, "userjs.yaml"), SearchForConfig("userjs.yaml", nested))
	assert.Equal(t, "", SearchForConfig("userjs-rando-11234.yaml", nested))
}

func TestSimilarKeys(t *testing.T) {
	resetRegistry(t,
		KeyInfo{Key: "userjs.requireCsrf"},
		KeyInfo{Key: "userjs.ignoreEmptyValues"},
		KeyInfo{Key: "userjs.jsonHandlers"},
		KeyInfo{Key: "server.port"},
	)

	assert.Equal(t, []string{"userjs.requireCsrf"}, SimilarKeys("userjs.requireCsf", 3))
	assert.Equal(t, []string{"userjs.jsonHandlers"}, SimilarKeys("userjs.jsonHandler", 3))
	assert.Empty(t, SimilarKeys("totally.different", 3))
}

func TestValidate(t *testing.T) {
	resetRegistry(t,
		KeyInfo{Key: "userjs.fields", Type: "map"},
		KeyInfo{Key: "userjs.requireCsrf", Type: "bool"},
	)
	RegisterDeprecatedKey("userjs.csrf", "userjs.requireCsrf")

	k := koanf.New(".")
	require.NoError(t, k.Set("userjs.fields.email", "email"))
	require.NoError(t, k.Set("userjs.requireCsrf", true))
	require.NoError(t, k.Set("userjs.requireCsf", true))
	require.NoError(t, k.Set("userjs.csrf", true))

	warnings := Validate(k)
	require.Len(t, warnings, 2)

	byKey := map[string]Warning{}
	for _, w := range warnings {
		byKey[w.Key] = w
	}
	assert.True(t, byKey["userjs.csrf"].Deprecated)
	assert.Equal(t, "'userjs.csrf' is deprecated, use 'userjs.requireCsrf'", byKey["userjs.csrf"].String())
	assert.Equal(t, "'userjs.requireCsf' is not a known config key. Did you mean 'userjs.requireCsrf'?",
		byKey["userjs.requireCsf"].String())
}

func TestLoadDefaults(t *testing.T) {
	resetRegistry(t,
		KeyInfo{Key: "userjs.path", Default: "/userjs"},
		KeyInfo{Key: "userjs.variable", Default: "user"},
		KeyInfo{Key: "userjs.fields"},
	)

	k := koanf.New(".")
	require.NoError(t, k.Set("userjs.variable", "account"))
	LoadDefaults(k)

	assert.Equal(t, "/userjs", k.String("userjs.path"))
	assert.Equal(t, "account", k.String("userjs.variable"))
	assert.False(t, k.Exists("userjs.fields"))
}
