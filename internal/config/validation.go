package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/v2"
)

// Warning describes an unknown or deprecated configuration key.
type Warning struct {
	Key         string
	Suggestions []string
	Deprecated  bool
}

func (w Warning) String() string {
	if w.Deprecated {
		return fmt.Sprintf("'%s' is deprecated, use '%s'", w.Key, w.Suggestions[0])
	}
	msg := fmt.Sprintf("'%s' is not a known config key", w.Key)
	switch len(w.Suggestions) {
	case 0:
	case 1:
		msg += fmt.Sprintf(". Did you mean '%s'?", w.Suggestions[0])
	default:
		msg += fmt.Sprintf(". Did you mean one of '%s'?", strings.Join(w.Suggestions, "', '"))
	}
	return msg
}

// Validate checks every key loaded into k against the registry.
func Validate(k *koanf.Koanf) []Warning {
	var warnings []Warning
	for _, key := range k.Keys() {
		if info, ok := LookupKey(key); ok {
			if info.Deprecated {
				warnings = append(warnings, Warning{Key: key, Suggestions: []string{info.ReplacedBy}, Deprecated: true})
			}
			continue
		}
		if HasRegisteredParent(key) {
			continue
		}
		warnings = append(warnings, Warning{Key: key, Suggestions: SimilarKeys(key, 3)})
	}
	return warnings
}
