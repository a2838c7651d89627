package server

import (
	"context"
	"fmt"

	"github.com/dpup/userjs/errors"
)

// Plugin is the base plugin interface.
type Plugin interface {
	// Name of the plugin, used for querying and dependency resolution.
	Name() string
}

// DependentPlugin is implemented if plugin depends on other plugins.
type DependentPlugin interface {
	// Deps returns the names for plugins which this plugin depends on.
	Deps() []string
}

// OptionalDependentPlugin is implemented if plugin has optional dependencies,
// which should be initialized before the plugin, but are not required.
type OptionalDependentPlugin interface {
	// OptDeps returns the names for plugins which this plugin optionally depends on.
	OptDeps() []string
}

// InitializablePlugin is implemented if the plugin needs to be initialized
// outside construction.
type InitializablePlugin interface {
	// Init the plugin. Will be called in dependency order.
	Init(ctx context.Context, r *Registry) error
}

// OptionProvider can be implemented by plugins to augment the server at build
// time.
type OptionProvider interface {
	ServerOptions() []ServerOption
}

// Registry manages plugins and their dependencies.
type Registry struct {
	plugins map[string]Plugin
	keys    []string

	// Named routes, shared with the server that owns the registry.
	routes map[string]string
}

// Reverse returns the path prefix of a named handler on the server the
// registry belongs to.
func (r *Registry) Reverse(name string) (string, error) {
	if p, ok := r.routes[name]; ok {
		return p, nil
	}
	return "", errors.Mark(ErrUnknownRoute, 0).Append(name)
}

// Get a plugin.
func (r *Registry) Get(key string) Plugin {
	if p, ok := r.plugins[key]; ok {
		return p
	}
	return nil
}

// All returns the registered plugins in registration order.
func (r *Registry) All() []Plugin {
	out := make([]Plugin, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.plugins[k])
	}
	return out
}

// Register a plugin.
func (r *Registry) Register(plugin Plugin) {
	if r.plugins == nil {
		r.plugins = map[string]Plugin{}
	}
	n := plugin.Name()
	if _, ok := r.plugins[n]; !ok {
		r.keys = append(r.keys, n)
	}
	r.plugins[n] = plugin
}

// Init all plugins in the Registry. Plugins will be visited in dependency order.
func (r *Registry) Init(ctx context.Context) error {
	if r.plugins == nil {
		return nil
	}

	// Validate dependency graph first.
	visiting := make(map[string]bool)
	for _, key := range r.keys {
		if err := r.validateDeps(key, visiting, true); err != nil {
			return err
		}
	}

	initialized := make(map[string]bool)
	for _, key := range r.keys {
		if err := r.initPlugin(ctx, key, initialized); err != nil {
			return err
		}
	}

	return nil
}

// Walks the plugin dependency graph and ensures that deps are registered and that
// there are no cycles.
func (r *Registry) validateDeps(key string, visiting map[string]bool, required bool) error {
	if visiting[key] {
		return fmt.Errorf("plugin: dependency cycle detected involving '%v'", key)
	}

	plugin, ok := r.plugins[key]
	if !ok {
		if !required {
			return nil
		}
		return fmt.Errorf("plugin: missing dependency, '%v' not registered", key)
	}

	visiting[key] = true
	defer delete(visiting, key)

	if d, ok := plugin.(DependentPlugin); ok {
		for _, dep := range d.Deps() {
			if err := r.validateDeps(dep, visiting, true); err != nil {
				return err
			}
		}
	}

	if d, ok := plugin.(OptionalDependentPlugin); ok {
		for _, dep := range d.OptDeps() {
			if err := r.validateDeps(dep, visiting, false); err != nil {
				return err
			}
		}
	}

	return nil
}

// Ensures plugins are initialized in dependency order.
func (r *Registry) initPlugin(ctx context.Context, key string, initialized map[string]bool) error {
	if initialized[key] {
		return nil
	}

	plugin, ok := r.plugins[key]
	if !ok {
		return fmt.Errorf("plugin '%v' not registered", key)
	}

	var deps []string
	if d, ok := plugin.(DependentPlugin); ok {
		deps = append(deps, d.Deps()...)
	}
	if d, ok := plugin.(OptionalDependentPlugin); ok {
		for _, dep := range d.OptDeps() {
			if _, ok := r.plugins[dep]; ok {
				deps = append(deps, dep)
			}
		}
	}
	for _, dep := range deps {
		if err := r.initPlugin(ctx, dep, initialized); err != nil {
			return err
		}
	}

	if p, ok := plugin.(InitializablePlugin); ok {
		if err := p.Init(ctx, r); err != nil {
			return fmt.Errorf("plugin: failed to initialize '%v': %w", key, err)
		}
	}

	initialized[key] = true
	return nil
}
