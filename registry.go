package userjs

import "sync"

// Named functions that configuration can refer to. Packages usually register
// from init().
var registry = struct {
	sync.RWMutex
	postProcessors map[string]PostProcessor
	jsonHandlers   map[string]JSONHandler
	fieldFuncs     map[string]FieldFunc
}{
	postProcessors: map[string]PostProcessor{},
	jsonHandlers:   map[string]JSONHandler{},
	fieldFuncs:     map[string]FieldFunc{},
}

// RegisterPostProcessor makes a post-processor available to the
// `userjs.postProcessors` config key under name. Registering a name again
// replaces the earlier function.
func RegisterPostProcessor(name string, p PostProcessor) {
	mustRegister(name, p == nil)
	registry.Lock()
	defer registry.Unlock()
	registry.postProcessors[name] = p
}

// RegisterJSONHandler makes a JSON handler available to the
// `userjs.jsonHandlers` config key under name.
func RegisterJSONHandler(name string, h JSONHandler) {
	mustRegister(name, h == nil)
	registry.Lock()
	defer registry.Unlock()
	registry.jsonHandlers[name] = h
}

// RegisterFieldFunc makes fn available to field specs written as `func:name`.
func RegisterFieldFunc(name string, fn FieldFunc) {
	mustRegister(name, fn == nil)
	registry.Lock()
	defer registry.Unlock()
	registry.fieldFuncs[name] = fn
}

func mustRegister(name string, isNil bool) {
	if name == "" {
		panic("userjs: register called with an empty name")
	}
	if isNil {
		panic("userjs: register called with a nil function for " + name)
	}
}

func lookupPostProcessor(name string) (PostProcessor, bool) {
	registry.RLock()
	defer registry.RUnlock()
	p, ok := registry.postProcessors[name]
	return p, ok
}

func lookupJSONHandler(name string) (JSONHandler, bool) {
	registry.RLock()
	defer registry.RUnlock()
	h, ok := registry.jsonHandlers[name]
	return h, ok
}

func lookupFieldFunc(name string) (FieldFunc, bool) {
	registry.RLock()
	defer registry.RUnlock()
	fn, ok := registry.fieldFuncs[name]
	return fn, ok
}
