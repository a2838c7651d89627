package logging

import (
	"context"
	"net/http"
	"reflect"
	"time"

	"github.com/dpup/userjs/errors"
	"github.com/google/uuid"
)

const (
	stackSize = 5

	// Header used to propagate request IDs from load balancers, and echoed back
	// on the response.
	RequestIDHeader = "X-Request-Id"
)

// Middleware returns an HTTP middleware that creates a logging scope for each
// request, recovers from panics, and writes an access log line once the
// handler has returned. Fields added with Track during the request are
// included on the access log.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, reqID)

		ctx := With(r.Context(), FromContext(r.Context()).Named(r.URL.Path).With("req.id", reqID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				Track(ctx, "error.panic", true)
				TrackError(ctx, errors.FromPanic(p, 2))
				if !rec.wroteHeader {
					http.Error(rec, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}

			logger := FromContext(ctx).
				With("req.method", r.Method).
				With("req.query", r.URL.RawQuery).
				With("resp.status", rec.status).
				With("resp.bytes", rec.bytes).
				With("duration", time.Since(start))

			switch {
			case rec.status >= http.StatusInternalServerError:
				logger.Error("request failed")
			case rec.status >= http.StatusBadRequest:
				logger.Warn("request rejected")
			default:
				logger.Info("request finished")
			}
		}()

		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

// TrackError adds fields describing err to the request's logging scope.
func TrackError(ctx context.Context, err error) {
	Track(ctx, "error", err.Error())
	Track(ctx, "error.type", reflect.TypeOf(err).String())
	Track(ctx, "error.http_status", errors.HTTPStatusCode(err))

	// Add a minimalist stack trace to the log.
	var e *errors.Error
	if errors.As(err, &e) {
		Track(ctx, "error.stack_trace", e.MinimalStack(0, stackSize))
		Track(ctx, "error.original_type", e.TypeName())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// Unwrap allows http.ResponseController to reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
