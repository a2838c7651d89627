package userjs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dpup/userjs/errors"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func init() {
	RegisterFieldFunc("test.remoteAddr", func(r *http.Request) (any, error) {
		return r.RemoteAddr, nil
	})
	RegisterPostProcessor("test.version", func(r *http.Request) (Fields, error) {
		return Fields{"version": "1.0"}, nil
	})
	RegisterJSONHandler("test.points", func(v any) (any, error) {
		if p, ok := v.(point); ok {
			return []int{p.X, p.Y}, nil
		}
		return nil, ErrUnsupportedType
	})
}

func loadKoanf(t *testing.T, values map[string]any) *koanf.Koanf {
	t.Helper()
	k := koanf.New(".")
	require.NoError(t, k.Load(confmap.Provider(values, "."), nil))
	return k
}

func TestLoadSettings(t *testing.T) {
	k := loadKoanf(t, map[string]any{
		"userjs.requireCsrf":       true,
		"userjs.ignoreEmptyValues": true,
		"userjs.path":              "/js/user.js",
		"userjs.variable":          "currentUser",
		"userjs.fields": map[string]any{
			"email":   "email",
			"name":    "str:literal",
			"addr":    "func:test.remoteAddr",
			"answer":  42,
			"enabled": false,
		},
		"userjs.postProcessors": []any{"test.version"},
		"userjs.jsonHandlers":   []string{"test.points"},
	})

	s, err := LoadSettings(k)
	require.NoError(t, err)

	assert.True(t, s.RequireCSRF)
	assert.True(t, s.IgnoreEmptyValues)
	assert.Equal(t, "/js/user.js", s.Path)
	assert.Equal(t, "currentUser", s.Variable)
	assert.Len(t, s.PostProcessors, 1)
	assert.Len(t, s.JSONHandlers, 1)

	assert.Equal(t, Path("email"), s.Fields["email"])
	assert.Equal(t, Literal("literal"), s.Fields["name"])
	assert.Equal(t, Literal(42), s.Fields["answer"])
	assert.Equal(t, Literal(false), s.Fields["enabled"])
	assert.Equal(t, KindFunc, s.Fields["addr"].Kind())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	v, err := s.Fields["addr"].resolve(req, AnonymousUser)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1:1234", v)
}

func TestLoadSettingsEmpty(t *testing.T) {
	s, err := LoadSettings(koanf.New("."))
	require.NoError(t, err)
	assert.False(t, s.RequireCSRF)
	assert.Empty(t, s.Fields)
	assert.Empty(t, s.PostProcessors)
	assert.Empty(t, s.JSONHandlers)
}

func TestLoadSettingsErrors(t *testing.T) {
	tests := map[string]struct {
		values  map[string]any
		setting string
		reason  string
	}{
		"NotIterable": {
			values:  map[string]any{"userjs.postProcessors": "test.version"},
			setting: "userjs.postProcessors",
			reason:  "must be a list, got string",
		},
		"UnknownPostProcessor": {
			values:  map[string]any{"userjs.postProcessors": []any{"test.version", "nope"}},
			setting: "userjs.postProcessors",
			reason:  `no post-processor registered as "nope"`,
		},
		"UnknownJSONHandler": {
			values:  map[string]any{"userjs.jsonHandlers": []any{"missing.handler"}},
			setting: "userjs.jsonHandlers",
			reason:  `no json handler registered as "missing.handler"`,
		},
		"EmptyName": {
			values:  map[string]any{"userjs.jsonHandlers": []any{""}},
			setting: "userjs.jsonHandlers",
			reason:  "entry 0 is empty",
		},
		"NonStringName": {
			values:  map[string]any{"userjs.jsonHandlers": []any{3}},
			setting: "userjs.jsonHandlers",
			reason:  "entry 0 must be a name, got int",
		},
		"UnknownFieldFunc": {
			values:  map[string]any{"userjs.fields": map[string]any{"x": "func:nope"}},
			reason:  `no field func registered as "nope"`,
		},
		"FieldsNotMap": {
			values:  map[string]any{"userjs.fields": []any{"email"}},
			setting: "userjs.fields",
			reason:  "must be a mapping, got []interface {}",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadSettings(loadKoanf(t, tc.values))
			require.Error(t, err)

			var ce *ConfigurationError
			require.True(t, errors.As(err, &ce), "expected a ConfigurationError, got %T", err)
			assert.Equal(t, tc.setting, ce.Setting)
			assert.Equal(t, tc.reason, ce.Reason)
			assert.Equal(t, codes.FailedPrecondition, errors.Code(err))
		})
	}
}

func TestSettingsValidate(t *testing.T) {
	_, err := NewHandler(Settings{}, WithPath("userjs"))
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "userjs.path", ce.Setting)

	_, err = NewHandler(Settings{}, WithVariable("window.user"))
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "userjs.variable", ce.Setting)

	h, err := NewHandler(Settings{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPath, h.Settings().Path)
	assert.Equal(t, DefaultVariable, h.Settings().Variable)
}

func TestParseField(t *testing.T) {
	f, err := ParseField("str:")
	require.NoError(t, err)
	assert.Equal(t, Literal(""), f)

	f, err = ParseField("str:str:x")
	require.NoError(t, err)
	assert.Equal(t, Literal("str:x"), f)

	f, err = ParseField(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, KindLiteral, f.Kind())

	f, err = ParseField("profile__settings__theme")
	require.NoError(t, err)
	assert.Equal(t, "path(profile__settings__theme)", f.String())
}

func TestRegisterPanics(t *testing.T) {
	assert.Panics(t, func() { RegisterPostProcessor("", func(*http.Request) (Fields, error) { return nil, nil }) })
	assert.Panics(t, func() { RegisterJSONHandler("nil", nil) })
}
