package userjs

// Option customizes a Handler.
type Option func(*Handler)

// WithField adds or replaces a field.
func WithField(name string, f Field) Option {
	return func(h *Handler) {
		h.settings.Fields[name] = f
	}
}

// WithPostProcessor appends a post-processor after any that were configured.
func WithPostProcessor(p PostProcessor) Option {
	return func(h *Handler) {
		h.settings.PostProcessors = append(h.settings.PostProcessors, p)
	}
}

// WithJSONHandler appends a JSON handler after any that were configured.
func WithJSONHandler(jh JSONHandler) Option {
	return func(h *Handler) {
		h.settings.JSONHandlers = append(h.settings.JSONHandlers, jh)
	}
}

// WithRequireCSRF sets whether every response carries a CSRF cookie.
//
// Config key: `userjs.requireCsrf`.
func WithRequireCSRF(require bool) Option {
	return func(h *Handler) {
		h.settings.RequireCSRF = require
	}
}

// WithIgnoreEmptyValues sets whether falsy fields are dropped.
//
// Config key: `userjs.ignoreEmptyValues`.
func WithIgnoreEmptyValues(ignore bool) Option {
	return func(h *Handler) {
		h.settings.IgnoreEmptyValues = ignore
	}
}

// WithPath sets the path the script is served from.
//
// Config key: `userjs.path`.
func WithPath(path string) Option {
	return func(h *Handler) {
		h.settings.Path = path
	}
}

// WithVariable sets the global the script assigns to.
//
// Config key: `userjs.variable`.
func WithVariable(name string) Option {
	return func(h *Handler) {
		h.settings.Variable = name
	}
}

// WithUserSource sets how the user is found for a request. Without it the
// user comes from an "auth" plugin if one is registered, otherwise from the
// request context.
func WithUserSource(src UserSource) Option {
	return func(h *Handler) {
		h.userSource = src
		h.customSource = true
	}
}

// WithCSRFSigningKey signs CSRF cookies with key rather than the server's key.
func WithCSRFSigningKey(key []byte) Option {
	return func(h *Handler) {
		h.csrfSigningKey = key
	}
}
