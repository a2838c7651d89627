package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dpup/userjs/errors"
	"google.golang.org/grpc/codes"
)

type XFramesOptions string

const (
	XFramesOptionsNone       XFramesOptions = ""
	XFramesOptionsDeny       XFramesOptions = "DENY"
	XFramesOptionsSameOrigin XFramesOptions = "SAMEORIGIN"
)

// HSTS requires a minimum expiration of 1 year for preload.
var ErrBadHSTSExpiration = errors.NewC("server: HSTS preload requires expiration of at least 1 year", codes.FailedPrecondition)

// SecurityHeaders contains the security headers that should be set on HTTP
// responses.
type SecurityHeaders struct {
	// X-Frame-Options controls whether the browser should allow the page to be
	// rendered in a frame or iframe.
	XFramesOptions XFramesOptions

	// Strict-Transport-Security (HSTS) tells the browser to always use HTTPS
	// when connecting to the site.
	HSTSExpiration        time.Duration
	HSTSIncludeSubdomains bool
	HSTSPreload           bool

	// Origins allowed to make credentialed requests, for example a single page
	// app served from a different host fetching the user script with XHR.
	CORSOrigins          []string
	CORSAllowCredentials bool
	CORSMaxAge           time.Duration

	staticHeaders    map[string]string
	preflightHeaders map[string]string
	allowedOrigins   map[string]bool
	once             sync.Once
	err              error
}

// Apply the security headers to the given response.
func (s *SecurityHeaders) Apply(w http.ResponseWriter, r *http.Request) error {
	s.once.Do(func() { s.err = s.compute() })
	if s.err != nil {
		return s.err
	}
	for k, v := range s.staticHeaders {
		w.Header().Set(k, v)
	}

	origin := r.Header.Get("Origin")
	if origin != "" && s.allowedOrigins[origin] {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		if s.CORSAllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			for k, v := range s.preflightHeaders {
				w.Header().Set(k, v)
			}
		}
	}
	return nil
}

func (s *SecurityHeaders) compute() error {
	s.staticHeaders = map[string]string{
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}

	if s.XFramesOptions != XFramesOptionsNone {
		s.staticHeaders["X-Frame-Options"] = string(s.XFramesOptions)
	}

	if s.HSTSExpiration > 0 {
		h := fmt.Sprintf("max-age=%.0f", s.HSTSExpiration.Seconds())
		if s.HSTSIncludeSubdomains {
			h += "; includeSubDomains"
		}
		if s.HSTSPreload {
			if s.HSTSExpiration < time.Hour*24*365 {
				return errors.Mark(ErrBadHSTSExpiration, 0)
			}
			h += "; preload"
		}
		s.staticHeaders["Strict-Transport-Security"] = h
	}

	if len(s.CORSOrigins) > 0 {
		s.staticHeaders["Vary"] = "Origin"
		s.preflightHeaders = map[string]string{
			"Access-Control-Allow-Methods": strings.Join([]string{http.MethodGet, http.MethodHead, http.MethodOptions}, ", "),
		}
		if s.CORSMaxAge > 0 {
			s.preflightHeaders["Access-Control-Max-Age"] = fmt.Sprintf("%.0f", s.CORSMaxAge.Seconds())
		}
		s.allowedOrigins = map[string]bool{}
		for _, origin := range s.CORSOrigins {
			s.allowedOrigins[origin] = true
		}
	}
	return nil
}

func securityMiddleware(h http.Handler, s *SecurityHeaders) http.Handler {
	if s == nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.Apply(w, r); err != nil {
			WriteError(w, r, err)
			return
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
