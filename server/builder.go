package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/dpup/userjs/logging"
)

// ServerOption customizes the configuration and operation of the server.
type ServerOption func(*builder)

// ConfigInjector adds request scoped configuration to a request's context.
type ConfigInjector func(ctx context.Context) context.Context

type handler struct {
	name    string
	prefix  string
	handler http.Handler
}

// New returns a new server. Options are applied on top of values read from
// Config.
func New(opts ...ServerOption) *Server {
	b := &builder{
		host:           Config.String("server.host"),
		port:           Config.Int("server.port"),
		address:        Config.String("address"),
		certFile:       Config.String("server.tls.certFile"),
		keyFile:        Config.String("server.tls.keyFile"),
		metricsPath:    Config.String("server.metricsPath"),
		csrfSigningKey: []byte(Config.String("server.csrfSigningKey")),
		securityHeaders: &SecurityHeaders{
			XFramesOptions:        XFramesOptions(Config.String("server.security.xFramesOptions")),
			HSTSExpiration:        Config.Duration("server.security.hstsExpiration"),
			HSTSIncludeSubdomains: Config.Bool("server.security.hstsIncludeSubdomains"),
			HSTSPreload:           Config.Bool("server.security.hstsPreload"),
			CORSOrigins:           Config.Strings("server.security.corsOrigins"),
			CORSAllowCredentials:  Config.Bool("server.security.corsAllowCredentials"),
			CORSMaxAge:            Config.Duration("server.security.corsMaxAge"),
		},
		plugins: &Registry{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b.build()
}

type builder struct {
	baseContext     context.Context
	logger          logging.Logger
	host            string
	port            int
	address         string
	certFile        string
	keyFile         string
	metricsPath     string
	csrfSigningKey  []byte
	securityHeaders *SecurityHeaders

	plugins   *Registry
	handlers  []handler
	injectors []ConfigInjector
}

func (b *builder) build() *Server {
	if b.baseContext == nil {
		b.baseContext = context.Background()
	}
	if b.logger != nil {
		b.baseContext = logging.With(b.baseContext, b.logger)
	}
	ctx := logging.EnsureLogger(b.baseContext)
	ctx = WithAddress(ctx, b.address)

	for _, w := range ConfigWarnings() {
		logging.Warn(ctx, w)
	}

	if len(b.csrfSigningKey) == 0 {
		b.csrfSigningKey = randomSigningKey()
		logging.Warn(ctx, "Using a randomly generated CSRF signing key, tokens will be "+
			"invalidated on restart. Set server.csrfSigningKey or UJS__SERVER__CSRF_SIGNING_KEY.")
	}

	s := &Server{
		baseContext:    ctx,
		host:           b.host,
		port:           b.port,
		certFile:       b.certFile,
		keyFile:        b.keyFile,
		csrfSigningKey: b.csrfSigningKey,
		httpMux:        http.NewServeMux(),
		plugins:        b.plugins,
	}
	b.plugins.routes = map[string]string{}

	for _, h := range b.handlers {
		var hh http.Handler = h.handler
		hh = metricsMiddleware(hh, h.prefix)
		hh = csrfMiddleware(hh, b.csrfSigningKey)
		hh = securityMiddleware(hh, b.securityHeaders)
		hh = logging.Middleware(hh)
		hh = contextMiddleware(hh, ctx, b.address, b.csrfSigningKey, b.injectors)
		s.httpMux.Handle(h.prefix, hh)
		if h.name != "" {
			b.plugins.routes[h.name] = h.prefix
		}
	}

	if b.metricsPath != "" {
		s.httpMux.Handle(b.metricsPath, metricsHandler())
	}

	return s
}

// WithContext sets the base context for the server. The logger and any values
// in this context are made available to every request.
func WithContext(ctx context.Context) ServerOption {
	return func(b *builder) {
		b.baseContext = ctx
	}
}

// WithLogger sets the logger requests are scoped from.
func WithLogger(l logging.Logger) ServerOption {
	return func(b *builder) {
		b.logger = l
	}
}

// WithHost configures the hostname or IP the server will listen on.
//
// Config key: `server.host`.
func WithHost(host string) ServerOption {
	return func(b *builder) {
		b.host = host
	}
}

// WithPort configures the port the server will listen on.
//
// Config key: `server.port`.
func WithPort(port int) ServerOption {
	return func(b *builder) {
		b.port = port
	}
}

// WithExternalAddress sets the external address of the service.
//
// Config key: `address`.
func WithExternalAddress(address string) ServerOption {
	return func(b *builder) {
		b.address = address
	}
}

// WithTLS configures the server to allow traffic via TLS using the provided
// cert. If not called server will use HTTP/H2C.
//
// Config keys: `server.tls.certFile`, `server.tls.keyFile`.
func WithTLS(certFile, keyFile string) ServerOption {
	return func(b *builder) {
		b.certFile = certFile
		b.keyFile = keyFile
	}
}

// WithCSRFSigningKey sets the key used to sign CSRF tokens.
//
// Config key: `server.csrfSigningKey`.
func WithCSRFSigningKey(signingKey string) ServerOption {
	return func(b *builder) {
		b.csrfSigningKey = []byte(signingKey)
	}
}

// WithSecurityHeaders sets the security headers that should be set on HTTP
// responses. Pass nil to disable them.
//
// Config keys: `server.security.*`.
func WithSecurityHeaders(headers *SecurityHeaders) ServerOption {
	return func(b *builder) {
		b.securityHeaders = headers
	}
}

// WithMetrics exposes Prometheus metrics on the given path.
//
// Config key: `server.metricsPath`.
func WithMetrics(path string) ServerOption {
	return func(b *builder) {
		b.metricsPath = path
	}
}

// WithHTTPHandler adds an HTTP handler.
func WithHTTPHandler(prefix string, h http.Handler) ServerOption {
	return WithNamedHandler("", prefix, h)
}

// WithHTTPHandlerFunc adds an HTTP handler function.
func WithHTTPHandlerFunc(prefix string, h func(http.ResponseWriter, *http.Request)) ServerOption {
	return WithNamedHandler("", prefix, http.HandlerFunc(h))
}

// WithNamedHandler adds an HTTP handler whose path can be looked up by name
// with Server.Reverse.
func WithNamedHandler(name, prefix string, h http.Handler) ServerOption {
	return func(b *builder) {
		b.handlers = append(b.handlers, handler{
			name:    name,
			prefix:  prefix,
			handler: h,
		})
	}
}

// WithRequestConfig adds an injector that is applied to the context of every
// request. Plugins use this to make their configuration available to code
// that only sees the request.
func WithRequestConfig(fn ConfigInjector) ServerOption {
	return func(b *builder) {
		b.injectors = append(b.injectors, fn)
	}
}

// WithPlugin registers a plugin with the server's registry. Plugins will be
// initialized at server start. If the Plugin implements `OptionProvider` then
// additional server options can be configured for the server.
func WithPlugin(p Plugin) ServerOption {
	return func(b *builder) {
		if so, ok := p.(OptionProvider); ok {
			for _, opt := range so.ServerOptions() {
				opt(b)
			}
		}
		b.plugins.Register(p)
	}
}

// Annotates request contexts with the server's address, CSRF key and request
// config, plus the server's logger when the request doesn't carry one already.
func contextMiddleware(h http.Handler, base context.Context, address string, csrfSigningKey []byte, injectors []ConfigInjector) http.Handler {
	logger := logging.FromContext(base)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithAddress(r.Context(), address)
		ctx = ContextWithCSRFSigningKey(ctx, csrfSigningKey)
		for _, inject := range injectors {
			ctx = inject(ctx)
		}
		if !logging.HasLogger(r.Context()) {
			ctx = logging.With(ctx, logger)
		}
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

func randomSigningKey() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("server: random number generation failed: " + err.Error())
	}
	return []byte(hex.EncodeToString(b))
}
