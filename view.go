package userjs

import (
	"io"
	"net/http"
	"reflect"
	"regexp"
	"sort"
	"strconv"

	"github.com/dpup/userjs/errors"
	"github.com/dpup/userjs/logging"
	"github.com/dpup/userjs/server"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/codes"
)

const (
	// JSONPParam names the callback to wrap the output in.
	JSONPParam = "jsonp"

	// CSRFParam forces a CSRF cookie onto the response when non-empty.
	CSRFParam = "csrf"

	ContentType = "text/javascript"
)

// ErrInvalidCallback is returned for JSONP callbacks that aren't a plain
// identifier or dotted member expression.
var ErrInvalidCallback = errors.NewC("userjs: invalid jsonp callback", codes.InvalidArgument)

var jsonpCallback = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)

var (
	responsesTotal = server.NewCounterVec(prometheus.CounterOpts{
		Name: "userjs_responses_total",
		Help: "Scripts served, by variant (plain or csrf) and format (global or jsonp).",
	}, "variant", "format")

	errorsTotal = server.NewCounterVec(prometheus.CounterOpts{
		Name: "userjs_errors_total",
		Help: "Failed script requests, by the stage that failed.",
	}, "stage")
)

// Handler serves the user script.
type Handler struct {
	settings       Settings
	userSource     UserSource
	customSource   bool
	csrfSigningKey []byte
	encoder        *Encoder
	fieldNames     []string
}

// NewHandler returns a handler for the given settings. Options are applied
// after the settings, so they take precedence.
func NewHandler(s Settings, opts ...Option) (*Handler, error) {
	if s.Path == "" {
		s.Path = DefaultPath
	}
	if s.Variable == "" {
		s.Variable = DefaultVariable
	}
	fields := make(map[string]Field, len(s.Fields))
	for k, f := range s.Fields {
		fields[k] = f
	}
	s.Fields = fields

	h := &Handler{settings: s, userSource: ContextUserSource}
	for _, opt := range opts {
		opt(h)
	}
	if err := h.settings.Validate(); err != nil {
		return nil, err
	}

	h.encoder = &Encoder{Handlers: h.settings.JSONHandlers}
	for k := range h.settings.Fields {
		h.fieldNames = append(h.fieldNames, k)
	}
	sort.Strings(h.fieldNames)
	return h, nil
}

// Settings returns a copy of the handler's settings.
func (h *Handler) Settings() Settings {
	return h.settings
}

// Fields resolves the field set for a request.
func (h *Handler) Fields(r *http.Request) (Fields, error) {
	u, err := h.userSource(r)
	if err != nil {
		return nil, h.fail(r, "user", errors.WrapPrefix(err, "userjs: user source failed", 0))
	}
	if u == nil {
		u = AnonymousUser
	}

	fields := Fields{"authenticated": u.IsAuthenticated()}
	// Roles are only included when set so anonymous clients can't see which
	// roles exist.
	if u.IsStaff() {
		fields["staff"] = true
	}
	if u.IsSuperuser() {
		fields["superuser"] = true
	}

	for _, name := range h.fieldNames {
		v, err := h.settings.Fields[name].resolve(r, u)
		if err != nil {
			return nil, h.fail(r, "field", errors.WrapPrefix(err, "userjs: field "+name, 0))
		}
		fields[name] = v
	}

	for i, p := range h.settings.PostProcessors {
		extra, err := p(r)
		if err != nil {
			return nil, h.fail(r, "postprocess", errors.WrapPrefix(err, "userjs: post-processor "+strconv.Itoa(i), 0))
		}
		for k, v := range extra {
			fields[k] = v
		}
	}

	if h.settings.IgnoreEmptyValues {
		for k, v := range fields {
			if isEmpty(v) {
				delete(fields, k)
			}
		}
	}
	return fields, nil
}

// Build returns the script for a request: `window.user={...};`, or
// `cb({...});` when the request asks for a JSONP callback.
func (h *Handler) Build(r *http.Request) (string, error) {
	cb := r.URL.Query().Get(JSONPParam)
	if cb != "" && !jsonpCallback.MatchString(cb) {
		return "", h.fail(r, "callback", errors.Mark(ErrInvalidCallback, 0))
	}

	fields, err := h.Fields(r)
	if err != nil {
		return "", err
	}

	js, err := h.encoder.Encode(fields)
	if err != nil {
		return "", h.fail(r, "encode", err)
	}

	if cb != "" {
		return cb + "(" + string(js) + ");", nil
	}
	return "window." + h.settings.Variable + "=" + string(js) + ";", nil
}

// ServeHTTP writes the script. When CSRF is required, by settings or by a
// non-empty `csrf` query param, a CSRF cookie is set on successful responses.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := h.Build(r)
	if err != nil {
		server.WriteError(w, r, err)
		return
	}

	variant := "plain"
	if h.settings.RequireCSRF || r.URL.Query().Get(CSRFParam) != "" {
		variant = "csrf"
		if err := h.ensureCSRFCookie(w, r); err != nil {
			server.WriteError(w, r, h.fail(r, "csrf", err))
			return
		}
	}

	format := "global"
	if r.URL.Query().Get(JSONPParam) != "" {
		format = "jsonp"
	}
	logging.Track(r.Context(), "userjs.variant", variant)
	logging.Track(r.Context(), "userjs.format", format)
	responsesTotal.WithLabelValues(variant, format).Inc()

	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = io.WriteString(w, body)
	}
}

func (h *Handler) ensureCSRFCookie(w http.ResponseWriter, r *http.Request) error {
	if len(h.csrfSigningKey) > 0 {
		server.SendCSRFToken(w, r, h.csrfSigningKey)
		return nil
	}
	_, err := server.EnsureCSRFCookie(w, r)
	return err
}

func (h *Handler) fail(r *http.Request, stage string, err error) error {
	errorsTotal.WithLabelValues(stage).Inc()
	logging.Track(r.Context(), "userjs.stage", stage)
	return err
}

// Reports whether v is falsy: absent, nil, false, zero, or an empty string,
// map, slice or array.
func isEmpty(v any) bool {
	if v == nil || v == Absent {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.Complex64, reflect.Complex128:
		return rv.Complex() == 0
	case reflect.String, reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
