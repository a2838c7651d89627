package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables that are mapped onto
// configuration keys.
const EnvPrefix = "UJS__"

// SearchForConfig looks for filename in startDir and then each parent
// directory, returning the first match or "" if none is found.
func SearchForConfig(filename string, startDir string) string {
	d, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	for {
		p := filepath.Join(d, filename)
		if _, err := os.Stat(p); err == nil {
			return p
		}
		next := filepath.Dir(d)
		if next == d {
			return ""
		}
		d = next
	}
}

// TransformEnv converts UJS__USERJS__IGNORE_EMPTY_VALUES to
// userjs.ignoreEmptyValues.
//   - The UJS__ prefix is removed
//   - Double underscores (__) become dots (.)
//   - Each segment is converted to lowerCamelCase
func TransformEnv(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	segments := strings.Split(s, "__")
	for i, segment := range segments {
		segments[i] = strcase.ToLowerCamel(strings.ToLower(segment))
	}
	return strings.Join(segments, ".")
}

// LoadDefaults sets the registered default of every key that isn't already
// present in k.
func LoadDefaults(k *koanf.Koanf) {
	for key, val := range Defaults() {
		if !k.Exists(key) {
			_ = k.Set(key, val)
		}
	}
}
