// Package server is a small host for HTTP handlers and plugins: it loads
// configuration, initializes plugins in dependency order, wraps handlers with
// logging, security headers, CSRF checks and metrics, and serves HTTP/1.1 and
// h2c traffic with graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/NYTimes/gziphandler"
	uerrors "github.com/dpup/userjs/errors"
	"github.com/dpup/userjs/logging"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc/codes"
)

// ErrUnknownRoute is returned by Reverse for names that weren't registered.
var ErrUnknownRoute = uerrors.NewC("server: unknown route", codes.NotFound)

// Server wraps an HTTP server, its handlers and plugins.
//
// Usage:
//
//	s := server.New(
//	    server.WithPlugin(userjs.Plugin()),
//	)
//	if err := s.Start(); err != nil {
//	    log.Fatal(err)
//	}
type Server struct {
	// Hostname or IP to bind to.
	host string

	// Port to listen on.
	port int

	// Location of certificate file, if TLS to be used.
	certFile string

	// Location of key file, if TLS to be used.
	keyFile string

	// Key used to sign CSRF cookies.
	csrfSigningKey []byte

	// Context that is propagated to handlers.
	baseContext context.Context

	httpServer *http.Server
	httpMux    *http.ServeMux

	plugins  *Registry
	initOnce sync.Once
	initErr  error
}

// Plugins returns the server's plugin registry.
func (s *Server) Plugins() *Registry {
	return s.plugins
}

// CSRFSigningKey returns the key the server signs CSRF cookies with.
func (s *Server) CSRFSigningKey() []byte {
	return s.csrfSigningKey
}

// Reverse returns the path prefix registered for a named handler.
func (s *Server) Reverse(name string) (string, error) {
	return s.plugins.Reverse(name)
}

// Init validates config and initializes plugins in dependency order. It is
// called by Start and only runs once; tests that drive Handler directly should
// call it first.
func (s *Server) Init() error {
	s.initOnce.Do(func() {
		if errs := ValidateConfig(Config); len(errs) > 0 {
			s.initErr = uerrors.NewC(FormatValidationErrors(errs), codes.FailedPrecondition)
			return
		}
		s.initErr = s.plugins.Init(s.baseContext)
	})
	return s.initErr
}

// Handler returns the root HTTP handler, without compression or h2c.
func (s *Server) Handler() http.Handler {
	return s.httpMux
}

// Start serving requests. Blocks until the process receives SIGINT or SIGTERM.
func (s *Server) Start() error {
	if err := s.Init(); err != nil {
		return err
	}

	addr := net.JoinHostPort(s.host, fmt.Sprint(s.port))
	s.httpServer = &http.Server{
		Addr: addr,
		BaseContext: func(listener net.Listener) context.Context {
			return s.baseContext
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		gracefulStop := make(chan os.Signal, 1)
		signal.Notify(gracefulStop, syscall.SIGTERM, syscall.SIGINT)
		sig := <-gracefulStop
		logging.Infof(s.baseContext, "👋 Graceful shutdown triggered... (sig %+v)", sig)
		_ = s.Shutdown()
		close(done)
	}()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	defer ln.Close()

	handler := gziphandler.GzipHandler(s.httpMux)

	if s.certFile != "" {
		s.httpServer.Handler = handler
		s.httpServer.TLSConfig = safeTLSConfig()
		logging.Infof(s.baseContext, "🚀  Listening for traffic on https://%s", addr)
		err = s.httpServer.ServeTLS(ln, s.certFile, s.keyFile)
	} else {
		s.httpServer.Handler = h2c.NewHandler(handler, &http2.Server{})
		logging.Infof(s.baseContext, "🚀  Listening for traffic on http://%s", addr)
		err = s.httpServer.Serve(ln)
	}

	if !errors.Is(err, http.ErrServerClosed) {
		return err // The server wasn't shutdown gracefully.
	}

	<-done
	return nil
}

// Shutdown gracefully shuts down the server with a 2s timeout.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(s.baseContext, time.Second*2)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		logging.Errorw(s.baseContext, "❌ Shutdown error", "error", err)
	} else {
		logging.Info(s.baseContext, "👍 Connections drained")
	}
	return err
}

// TLS1.2 min and support for HTTP2.
func safeTLSConfig() *tls.Config {
	return &tls.Config{
		NextProtos: []string{"h2"},
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
	}
}
