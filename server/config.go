package server

import (
	"net"

	"github.com/dpup/userjs/internal/config"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Filename of the standard configuration file.
const ConfigFile = "userjs.yaml"

// ConfigKeyInfo contains metadata about a known configuration key.
type ConfigKeyInfo = config.KeyInfo

// Config is a global koanf instance used to access application level
// configuration options.
//
// Config is loaded in the following order (later sources override earlier):
// 1. Registered key defaults (only for keys no other source sets)
// 2. Auto-discovered userjs.yaml (in init())
// 3. Environment variables with UJS__ prefix (in init())
// 4. Additional sources loaded via LoadConfigFile() or LoadConfigDefaults()
//
// Environment variable transformation:
//   - UJS__SERVER__PORT → server.port
//   - UJS__USERJS__IGNORE_EMPTY_VALUES → userjs.ignoreEmptyValues
var Config = koanf.New(".")

const (
	defaultPort = 8000
	defaultHost = "localhost"
)

func init() {
	registerCoreConfigKeys()

	// Look for a userjs.yaml file in the current directory or any parent.
	if cfg := config.SearchForConfig(ConfigFile, "."); cfg != "" {
		if err := Config.Load(file.Provider(cfg), yaml.Parser()); err != nil {
			panic("error loading config: " + err.Error())
		}
	}

	if err := Config.Load(env.Provider(config.EnvPrefix, ".", config.TransformEnv), nil); err != nil {
		panic("error loading env config: " + err.Error())
	}

	config.LoadDefaults(Config)
}

// RegisterConfigKeys documents configuration keys and their defaults. Plugins
// call this from init() so unknown keys can be reported with suggestions.
func RegisterConfigKeys(infos ...ConfigKeyInfo) {
	config.RegisterKeys(infos...)
	config.LoadDefaults(Config)
}

// RegisterDeprecatedKey registers a deprecated configuration key and its replacement.
func RegisterDeprecatedKey(oldKey, newKey string) {
	config.RegisterDeprecatedKey(oldKey, newKey)
}

// LoadConfigFile loads additional configuration from a YAML file into the
// global Config instance. Call this before creating the server.
func LoadConfigFile(path string) {
	if err := Config.Load(file.Provider(path), yaml.Parser()); err != nil {
		panic("error loading config file '" + path + "': " + err.Error())
	}
}

// LoadConfigDefaults loads configuration values into the global Config
// instance, overriding what was loaded before.
//
// Example:
//
//	server.LoadConfigDefaults(map[string]interface{}{
//	    "userjs.fields": map[string]any{"email": "email"},
//	})
func LoadConfigDefaults(defaults map[string]interface{}) {
	if err := Config.Load(confmap.Provider(defaults, "."), nil); err != nil {
		panic("error loading config defaults: " + err.Error())
	}
}

// ConfigWarnings returns a human readable warning for each loaded key that
// isn't registered, with suggestions for likely typos.
func ConfigWarnings() []string {
	var out []string
	for _, w := range config.Validate(Config) {
		out = append(out, w.String())
	}
	return out
}

func registerCoreConfigKeys() {
	config.RegisterKeys(
		ConfigKeyInfo{
			Key:         "address",
			Description: "External address for the service (used in URL construction and cookie security)",
			Type:        "string",
			Default:     "http://" + net.JoinHostPort(defaultHost, "8000"),
		},
		ConfigKeyInfo{
			Key:         "server.host",
			Description: "Host to bind the server to",
			Type:        "string",
			Default:     defaultHost,
		},
		ConfigKeyInfo{
			Key:         "server.port",
			Description: "Port to bind the server to",
			Type:        "int",
			Default:     defaultPort,
		},
		ConfigKeyInfo{
			Key:         "server.csrfSigningKey",
			Description: "Key used to sign CSRF tokens",
			Type:        "string",
		},
		ConfigKeyInfo{
			Key:         "server.metricsPath",
			Description: "Path to expose Prometheus metrics on, empty to disable",
			Type:        "string",
		},
		ConfigKeyInfo{
			Key:         "server.tls.certFile",
			Description: "Path to TLS certificate file",
			Type:        "string",
		},
		ConfigKeyInfo{
			Key:         "server.tls.keyFile",
			Description: "Path to TLS key file",
			Type:        "string",
		},
		ConfigKeyInfo{
			Key:         "server.security.xFramesOptions",
			Description: "X-Frame-Options header value",
			Type:        "string",
		},
		ConfigKeyInfo{
			Key:         "server.security.hstsExpiration",
			Description: "HSTS max-age duration",
			Type:        "duration",
		},
		ConfigKeyInfo{
			Key:         "server.security.hstsIncludeSubdomains",
			Description: "Include subdomains in HSTS",
			Type:        "bool",
		},
		ConfigKeyInfo{
			Key:         "server.security.hstsPreload",
			Description: "Enable HSTS preload",
			Type:        "bool",
		},
		ConfigKeyInfo{
			Key:         "server.security.corsOrigins",
			Description: "Origins allowed to load scripts with credentials",
			Type:        "[]string",
		},
		ConfigKeyInfo{
			Key:         "server.security.corsAllowCredentials",
			Description: "Allow credentials in CORS requests",
			Type:        "bool",
		},
		ConfigKeyInfo{
			Key:         "server.security.corsMaxAge",
			Description: "CORS preflight cache duration",
			Type:        "duration",
		},
	)
}
