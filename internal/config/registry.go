// Package config holds the registry of known configuration keys along with
// helpers for locating config files, mapping environment variables onto keys,
// and warning about keys nobody registered.
package config

import (
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
)

// KeyInfo contains metadata about a known configuration key.
type KeyInfo struct {
	Key         string      // Full key path, e.g. "userjs.requireCsrf"
	Description string      // Human-readable description
	Type        string      // Type hint: "string", "bool", "map", "[]string", etc.
	Default     interface{} // Optional default value
	Deprecated  bool        // If true, the key should no longer be used
	ReplacedBy  string      // If deprecated, the key to use instead
}

var (
	registry   = make(map[string]KeyInfo)
	registryMu sync.RWMutex
)

// RegisterKeys records metadata for one or more configuration keys.
func RegisterKeys(infos ...KeyInfo) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, info := range infos {
		registry[info.Key] = info
	}
}

// RegisterDeprecatedKey records that oldKey has been replaced by newKey.
func RegisterDeprecatedKey(oldKey, newKey string) {
	RegisterKeys(KeyInfo{Key: oldKey, Deprecated: true, ReplacedBy: newKey})
}

// LookupKey returns metadata for a registered key.
func LookupKey(key string) (KeyInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[key]
	return info, ok
}

// AllKeys returns every registered key, sorted.
func AllKeys() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Defaults returns the default value of every registered key that has one.
func Defaults() map[string]interface{} {
	registryMu.RLock()
	defer registryMu.RUnlock()
	defaults := make(map[string]interface{})
	for key, info := range registry {
		if info.Default != nil {
			defaults[key] = info.Default
		}
	}
	return defaults
}

// SimilarKeys returns up to max registered keys that look like a typo of key,
// most similar first. Keys sharing the same parent get a one point bonus.
func SimilarKeys(key string, max int) []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	type scored struct {
		key   string
		score int
	}

	var candidates []scored
	prefix := parent(key)
	for k, info := range registry {
		if info.Deprecated {
			continue
		}
		d := levenshtein.ComputeDistance(key, k)
		if d > 0 && prefix != "" && prefix == parent(k) {
			d--
		}
		if d <= 3 {
			candidates = append(candidates, scored{k, d})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score == candidates[j].score {
			return candidates[i].key < candidates[j].key
		}
		return candidates[i].score < candidates[j].score
	})

	out := make([]string, 0, max)
	for i := 0; i < len(candidates) && i < max; i++ {
		out = append(out, candidates[i].key)
	}
	return out
}

// HasRegisteredParent reports whether any ancestor of key is registered. Maps
// such as "userjs.fields" are registered once and own every key below them.
func HasRegisteredParent(key string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	parts := strings.Split(key, ".")
	for i := len(parts) - 1; i > 0; i-- {
		if _, ok := registry[strings.Join(parts[:i], ".")]; ok {
			return true
		}
	}
	return false
}

func parent(key string) string {
	i := strings.LastIndex(key, ".")
	if i == -1 {
		return ""
	}
	return key[:i]
}
