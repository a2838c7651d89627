package userjs

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dpup/userjs/errors"
	"github.com/dpup/userjs/server"
	"github.com/knadh/koanf/v2"
	"google.golang.org/grpc/codes"
)

func init() {
	server.RegisterConfigKeys(
		server.ConfigKeyInfo{
			Key:         "userjs.requireCsrf",
			Description: "Always set a CSRF cookie when serving the script",
			Type:        "bool",
			Default:     false,
		},
		server.ConfigKeyInfo{
			Key:         "userjs.ignoreEmptyValues",
			Description: "Omit fields whose value is empty, zero or false",
			Type:        "bool",
			Default:     false,
		},
		server.ConfigKeyInfo{
			Key:         "userjs.fields",
			Description: "Output key to field spec: a path, `str:literal`, `func:name` or a literal value",
			Type:        "map",
		},
		server.ConfigKeyInfo{
			Key:         "userjs.postProcessors",
			Description: "Names of registered post-processors, applied in order",
			Type:        "[]string",
		},
		server.ConfigKeyInfo{
			Key:         "userjs.jsonHandlers",
			Description: "Names of registered JSON handlers, tried in order",
			Type:        "[]string",
		},
		server.ConfigKeyInfo{
			Key:         "userjs.path",
			Description: "Path the script is served from",
			Type:        "string",
			Default:     DefaultPath,
		},
		server.ConfigKeyInfo{
			Key:         "userjs.variable",
			Description: "Global the script assigns to, as in window.user",
			Type:        "string",
			Default:     DefaultVariable,
		},
	)
}

const (
	DefaultPath     = "/userjs"
	DefaultVariable = "user"
)

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// ConfigurationError reports an invalid userjs setting.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Setting == "" {
		return "userjs: " + e.Reason
	}
	return "userjs: " + e.Setting + ": " + e.Reason
}

// Code marks configuration errors as failed preconditions.
func (e *ConfigurationError) Code() codes.Code {
	return codes.FailedPrecondition
}

func configError(setting, format string, args ...any) error {
	return errors.Wrap(&ConfigurationError{Setting: setting, Reason: fmt.Sprintf(format, args...)}, 1)
}

func configErrorf(format string, args ...any) error {
	return errors.Wrap(&ConfigurationError{Reason: fmt.Sprintf(format, args...)}, 1)
}

// Settings control what the script contains and how it's served. They're
// loaded once at startup and not modified afterwards.
type Settings struct {
	RequireCSRF       bool
	IgnoreEmptyValues bool
	Fields            map[string]Field
	PostProcessors    []PostProcessor
	JSONHandlers      []JSONHandler
	Path              string
	Variable          string
}

// LoadSettings reads the `userjs.*` keys from k. Named post-processors, JSON
// handlers and field funcs must already be registered.
func LoadSettings(k *koanf.Koanf) (*Settings, error) {
	s := &Settings{
		RequireCSRF:       k.Bool("userjs.requireCsrf"),
		IgnoreEmptyValues: k.Bool("userjs.ignoreEmptyValues"),
		Fields:            map[string]Field{},
		Path:              k.String("userjs.path"),
		Variable:          k.String("userjs.variable"),
	}

	if raw := k.Get("userjs.fields"); raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, configError("userjs.fields", "must be a mapping, got %T", raw)
		}
		for name, v := range m {
			f, err := ParseField(v)
			if err != nil {
				return nil, errors.WrapPrefix(err, "userjs.fields."+name, 0)
			}
			s.Fields[name] = f
		}
	}

	names, err := stringList(k, "userjs.postProcessors")
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		p, ok := lookupPostProcessor(n)
		if !ok {
			return nil, configError("userjs.postProcessors", "no post-processor registered as %q", n)
		}
		s.PostProcessors = append(s.PostProcessors, p)
	}

	names, err = stringList(k, "userjs.jsonHandlers")
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		h, ok := lookupJSONHandler(n)
		if !ok {
			return nil, configError("userjs.jsonHandlers", "no json handler registered as %q", n)
		}
		s.JSONHandlers = append(s.JSONHandlers, h)
	}

	return s, nil
}

// Validate checks the settings that can be changed by options after loading.
func (s *Settings) Validate() error {
	if !strings.HasPrefix(s.Path, "/") {
		return configError("userjs.path", "must start with '/', got %q", s.Path)
	}
	if !identifier.MatchString(s.Variable) {
		return configError("userjs.variable", "%q is not a javascript identifier", s.Variable)
	}
	return nil
}

// Reads a list of non-empty names. A missing key is an empty list.
func stringList(k *koanf.Koanf, key string) ([]string, error) {
	raw := k.Get(key)
	if raw == nil {
		return nil, nil
	}

	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	default:
		return nil, configError(key, "must be a list, got %T", raw)
	}

	names := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, configError(key, "entry %d must be a name, got %T", i, item)
		}
		if s == "" {
			return nil, configError(key, "entry %d is empty", i)
		}
		names = append(names, s)
	}
	return names, nil
}
