package sqlprofile

import (
	"context"
	"database/sql"
	"net/http"
	"sync"

	"github.com/dpup/userjs"
	"github.com/dpup/userjs/errors"
	"github.com/dpup/userjs/logging"
	"github.com/dpup/userjs/server"
)

func init() {
	server.RegisterConfigKeys(
		server.ConfigKeyInfo{
			Key:         "sqlprofile.driver",
			Description: "Database driver, sqlite3 or postgres",
			Type:        "string",
			Default:     "sqlite3",
		},
		server.ConfigKeyInfo{
			Key:         "sqlprofile.dsn",
			Description: "Connection string for the profile database",
			Type:        "string",
		},
		server.ConfigKeyInfo{
			Key:         "sqlprofile.query",
			Description: "Query returning profile columns, with the user's subject as its only argument",
			Type:        "string",
		},
		server.ConfigKeyInfo{
			Key:         "sqlprofile.argPath",
			Description: "Path on the user the query argument is read from",
			Type:        "string",
			Default:     DefaultArgPath,
		},
	)
}

// Constant name for identifying the sqlprofile plugin, and the name its
// post-processor is registered under.
const PluginName = "sqlprofile"

// PluginOption configures the plugin.
type PluginOption func(*SQLProfilePlugin)

// WithDB uses an already open database instead of opening one from config.
func WithDB(db *sql.DB) PluginOption {
	return func(p *SQLProfilePlugin) {
		p.db = db
	}
}

// WithQuery overrides the query from config.
func WithQuery(query string) PluginOption {
	return func(p *SQLProfilePlugin) {
		p.query = query
	}
}

// WithOptions passes options through to the post-processor.
func WithOptions(opts ...Option) PluginOption {
	return func(p *SQLProfilePlugin) {
		p.opts = append(p.opts, opts...)
	}
}

// Plugin returns a plugin that registers a post-processor named `sqlprofile`.
// The post-processor is registered immediately, so create this plugin before
// the userjs plugin that names it. The database is opened when the server
// initializes, and the user source is taken from the auth plugin if there is
// one.
func Plugin(opts ...PluginOption) *SQLProfilePlugin {
	p := &SQLProfilePlugin{
		driver:  server.Config.String("sqlprofile.driver"),
		dsn:     server.Config.String("sqlprofile.dsn"),
		query:   server.Config.String("sqlprofile.query"),
		argPath: server.Config.String("sqlprofile.argPath"),
	}
	for _, opt := range opts {
		opt(p)
	}
	userjs.RegisterPostProcessor(PluginName, p.process)
	return p
}

// SQLProfilePlugin adds profile columns to userjs output.
type SQLProfilePlugin struct {
	driver  string
	dsn     string
	query   string
	argPath string
	opts    []Option

	mu      sync.RWMutex
	db      *sql.DB
	profile *profile
}

// From server.Plugin.
func (p *SQLProfilePlugin) Name() string {
	return PluginName
}

// From server.OptionalDependentPlugin.
func (p *SQLProfilePlugin) OptDeps() []string {
	return []string{userjs.AuthPluginName}
}

// From server.InitializablePlugin.
func (p *SQLProfilePlugin) Init(ctx context.Context, r *server.Registry) error {
	if p.query == "" {
		return errors.Wrap(&userjs.ConfigurationError{Setting: "sqlprofile.query", Reason: "must be set"}, 0)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		if p.dsn == "" {
			return errors.Wrap(&userjs.ConfigurationError{Setting: "sqlprofile.dsn", Reason: "must be set"}, 0)
		}
		db, err := Open(p.driver, p.dsn)
		if err != nil {
			return err
		}
		p.db = db
		logging.Infow(ctx, "sqlprofile: connected", "driver", p.driver)
	}

	opts := []Option{}
	if p.argPath != "" {
		opts = append(opts, WithArgPath(p.argPath))
	}
	if sp, ok := r.Get(userjs.AuthPluginName).(userjs.UserSourceProvider); ok {
		opts = append(opts, WithUserSource(sp.UserSource()))
	}
	p.profile = newProfile(p.db, p.query, append(opts, p.opts...)...)
	return nil
}

// DB returns the plugin's database, nil before Init.
func (p *SQLProfilePlugin) DB() *sql.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db
}

// Close closes the database.
func (p *SQLProfilePlugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	p.profile = nil
	return err
}

func (p *SQLProfilePlugin) process(r *http.Request) (userjs.Fields, error) {
	p.mu.RLock()
	prof := p.profile
	p.mu.RUnlock()
	if prof == nil {
		logging.Warn(r.Context(), "sqlprofile: post-processor used before the plugin was initialized")
		return nil, nil
	}
	return prof.process(r)
}
