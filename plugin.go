// Package userjs serves attributes of the current user to client-side script.
// A request to the plugin's path returns JavaScript such as
//
//	window.user={"authenticated":true,"email":"ada@example.com","staff":true};
//
// or, with `?jsonp=init`, `init({...});`. Which attributes are included is
// configured as a mapping from output key to field spec, resolved against the
// request's User.
//
// Configuration:
// |-----------------------------------|--------------------------|
// | Env                               | JSON                     |
// | ----------------------------------|--------------------------|
// | UJS__USERJS__REQUIRE_CSRF         | userjs.requireCsrf       |
// | UJS__USERJS__IGNORE_EMPTY_VALUES  | userjs.ignoreEmptyValues |
// | UJS__USERJS__PATH                 | userjs.path              |
// | UJS__USERJS__VARIABLE             | userjs.variable          |
// | n/a                               | userjs.fields            |
// | n/a                               | userjs.postProcessors    |
// | n/a                               | userjs.jsonHandlers      |
// |-----------------------------------|--------------------------|
//
// Example userjs.yaml:
//
//	userjs:
//	  ignoreEmptyValues: true
//	  fields:
//	    email: email
//	    theme: profile__settings__theme
//	    version: str:1.4
//	    greeting: func:greeting
//	  postProcessors: [sqlprofile]
package userjs

import (
	"context"
	"html/template"

	"github.com/dpup/userjs/logging"
	"github.com/dpup/userjs/server"
)

const (
	// Constant name for identifying the userjs plugin.
	PluginName = "userjs"

	// Name of the plugin expected to provide a UserSource.
	AuthPluginName = "auth"
)

// UserSourceProvider is implemented by plugins that can identify the user
// making a request.
type UserSourceProvider interface {
	UserSource() UserSource
}

// Plugin returns a new UserJSPlugin configured from server.Config and opts. It
// panics if the configuration is invalid, use New to handle the error.
func Plugin(opts ...Option) *UserJSPlugin {
	p, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// New returns a new UserJSPlugin configured from server.Config and opts.
func New(opts ...Option) (*UserJSPlugin, error) {
	s, err := LoadSettings(server.Config)
	if err != nil {
		return nil, err
	}
	h, err := NewHandler(*s, opts...)
	if err != nil {
		return nil, err
	}
	return &UserJSPlugin{handler: h}, nil
}

// UserJSPlugin mounts the script handler and provides the `userjsURL` template
// function.
type UserJSPlugin struct {
	handler *Handler

	// Path of the `userjs` route, once the plugin is initialized by a server.
	route string
}

// From server.Plugin.
func (p *UserJSPlugin) Name() string {
	return PluginName
}

// From server.OptionalDependentPlugin.
func (p *UserJSPlugin) OptDeps() []string {
	return []string{AuthPluginName}
}

// From server.OptionProvider.
func (p *UserJSPlugin) ServerOptions() []server.ServerOption {
	return []server.ServerOption{
		server.WithNamedHandler(PluginName, p.handler.settings.Path, p.handler),
	}
}

// From server.InitializablePlugin.
func (p *UserJSPlugin) Init(ctx context.Context, r *server.Registry) error {
	if route, err := r.Reverse(PluginName); err == nil {
		p.route = route
	}
	if !p.handler.customSource {
		if sp, ok := r.Get(AuthPluginName).(UserSourceProvider); ok {
			p.handler.userSource = sp.UserSource()
			logging.Infow(ctx, "userjs: using user source from plugin", "plugin", AuthPluginName)
		}
	}
	return nil
}

// Handler returns the script handler.
func (p *UserJSPlugin) Handler() *Handler {
	return p.handler
}

// URL returns the script's URL with params as the query string. The path is
// the server's `userjs` route, or the configured path outside a server.
func (p *UserJSPlugin) URL(params map[string]any) string {
	path := p.route
	if path == "" {
		path = p.handler.settings.Path
	}
	return URL(path, params)
}

// TemplateFuncs returns the template functions `userjsURL` and `dict`. The
// templates plugin picks them up when both plugins are registered.
//
//	<script src="{{userjsURL}}"></script>
//	<script src="{{userjsURL (dict "jsonp" "init" "csrf" 1)}}"></script>
func (p *UserJSPlugin) TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"userjsURL": func(params ...map[string]any) string {
			merged := map[string]any{}
			for _, m := range params {
				for k, v := range m {
					merged[k] = v
				}
			}
			return p.URL(merged)
		},
		"dict": Dict,
	}
}
