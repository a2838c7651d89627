// Package templates loads html templates for other plugins and host
// applications. Plugins contribute template functions with AddFuncs, for
// example userjs adds `userjsURL`.
//
// Configuration:
// |-----------------------------------|-----------------------|
// | Env                               | JSON                  |
// | ----------------------------------|-----------------------|
// | UJS__TEMPLATES__ALWAYS_PARSE      | templates.alwaysParse |
// | UJS__TEMPLATES__DIRS              | templates.dirs        |
// |-----------------------------------|-----------------------|
package templates

import (
	"bytes"
	"context"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dpup/userjs/errors"
	"github.com/dpup/userjs/logging"
	"github.com/dpup/userjs/server"
	"google.golang.org/grpc/codes"
)

func init() {
	server.RegisterConfigKeys(
		server.ConfigKeyInfo{
			Key:         "templates.alwaysParse",
			Description: "Whether to reparse templates on every execution",
			Type:        "bool",
		},
		server.ConfigKeyInfo{
			Key:         "templates.dirs",
			Description: "Directories to load templates from",
			Type:        "[]string",
		},
	)
}

// Constant name for identifying the templates plugin.
const PluginName = "templates"

// ErrNotInitialized is returned when rendering before any templates were
// parsed.
var ErrNotInitialized = errors.NewC("templates: no templates have been initialized", codes.Internal)

// Plugin returns a new TemplatePlugin.
func Plugin() *TemplatePlugin {
	return &TemplatePlugin{
		alwaysParse: server.Config.Bool("templates.alwaysParse"),
		dirs:        server.Config.Strings("templates.dirs"),
		funcs:       template.FuncMap{},
	}
}

// TemplatePlugin exposes utilities for reading and rendering go templates.
type TemplatePlugin struct {
	alwaysParse bool
	dirs        []string
	funcs       template.FuncMap

	mu        sync.RWMutex
	templates *template.Template
}

// From server.Plugin.
func (p *TemplatePlugin) Name() string {
	return PluginName
}

// FuncProvider is implemented by plugins that contribute template functions.
// They are added when the templates plugin is initialized.
type FuncProvider interface {
	TemplateFuncs() template.FuncMap
}

// From server.InitializablePlugin.
func (p *TemplatePlugin) Init(ctx context.Context, r *server.Registry) error {
	p.mu.Lock()
	if p.funcs == nil {
		p.funcs = template.FuncMap{}
	}
	for _, pl := range r.All() {
		if fp, ok := pl.(FuncProvider); ok {
			for k, fn := range fp.TemplateFuncs() {
				p.funcs[k] = fn
			}
		}
	}
	p.mu.Unlock()

	if err := p.parseAll(); err != nil {
		return err
	}
	logging.Infow(ctx, "templates: parsed", "dirs", p.dirs)
	return nil
}

// AddFuncs makes funcs available to templates, for hosts that aren't plugins. Configured directories are
// parsed again, since a template that calls a missing function fails to parse.
func (p *TemplatePlugin) AddFuncs(funcs template.FuncMap) error {
	p.mu.Lock()
	if p.funcs == nil {
		p.funcs = template.FuncMap{}
	}
	for k, fn := range funcs {
		p.funcs[k] = fn
	}
	reparse := p.templates != nil || len(p.dirs) > 0
	p.mu.Unlock()

	if reparse {
		return p.parseAll()
	}
	return nil
}

// Load templates (*.tmpl) contained within the provided directories and all
// sub-directories.
func (p *TemplatePlugin) Load(dirs []string) error {
	p.mu.Lock()
	p.dirs = append(p.dirs, dirs...)
	p.mu.Unlock()
	return p.parseAll()
}

// Render executes a template by name with the provided data.
//
// The data parameter is wrapped in a TemplateData struct before being passed to the
// template. Within templates, access your data fields using .Data.FieldName, not
// .FieldName directly. The Config field provides access to all configuration values.
//
// Example template usage:
//
//	<script src="{{userjsURL}}"></script>
//	Hello, {{.Data.Name}}!
func (p *TemplatePlugin) Render(ctx context.Context, name string, data interface{}) (string, error) {
	if p.alwaysParse {
		if err := p.parseAll(); err != nil {
			return "", err
		}
	}

	p.mu.RLock()
	t := p.templates
	p.mu.RUnlock()
	if t == nil {
		return "", errors.Mark(ErrNotInitialized, 0)
	}

	var b bytes.Buffer
	if err := t.ExecuteTemplate(&b, name, TemplateData{Data: data, Config: server.Config.All()}); err != nil {
		return "", errors.WrapPrefix(err, "template execution failed (hint: data is wrapped, use .Data.FieldName to access fields)", 0)
	}
	return b.String(), nil
}

// Parses every configured directory into a fresh template set.
func (p *TemplatePlugin) parseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := template.New("").Funcs(p.funcs)
	for _, dir := range p.dirs {
		if err := parse(t, dir); err != nil {
			return errors.WrapPrefix(err, "templates: parsing "+dir, 0)
		}
	}
	p.templates = t
	return nil
}

// Missing directories are skipped.
func parse(t *template.Template, dir string) error {
	return filepath.Walk(dir, func(path string, _ os.FileInfo, _ error) error {
		if strings.HasSuffix(path, ".tmpl") {
			if _, err := t.ParseFiles(path); err != nil {
				return err
			}
		}
		return nil
	})
}

// TemplateData is the wrapper struct passed to all templates during rendering.
// Templates should access the original data via .Data and configuration via .Config.
type TemplateData struct {
	// Data contains the user-provided data passed to Render.
	Data interface{}
	// Config contains all configuration values from server.Config.
	Config map[string]interface{}
}
