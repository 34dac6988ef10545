// Commons for HTTP handling
package rpc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/net/netutil"

	"github.com/oprelay/oprelay/libs/log"
)

// Config is a server configuration.
type Config struct {
	// The maximum number of connections the listener accepts at once.
	// Zero means unlimited.
	MaxOpenConnections int

	// Used to set the HTTP server's per-request read timeout.
	ReadTimeout time.Duration

	// Used to set the HTTP server's per-request write timeout. Zero means
	// no write timeout, which leaves slow responses to the client.
	WriteTimeout time.Duration

	// The maximum number of bytes read from a request body.
	MaxBodyBytes int64

	// The maximum size of the request header.
	MaxHeaderBytes int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConnections: 0,
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       0,
		MaxBodyBytes:       int64(1000000), // 1MB
		MaxHeaderBytes:     1 << 20,        // same as the net/http default
	}
}

// Listen starts a new net.Listener on the given address. It returns an
// error if the address is invalid or the call fails. The address must be a
// fully formed URL, including the tcp:// or unix:// prefix.
func Listen(addr string, maxOpenConnections int) (listener net.Listener, err error) {
	parts := strings.SplitN(addr, "://", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf(
			"invalid listening address %s (use fully formed addresses, including the tcp:// or unix:// prefix)",
			addr,
		)
	}
	proto, addr := parts[0], parts[1]
	listener, err = net.Listen(proto, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %v: %v", addr, err)
	}
	if maxOpenConnections > 0 {
		listener = netutil.LimitListener(listener, maxOpenConnections)
	}

	return listener, nil
}

// Serve creates an http.Server and calls Serve with the given listener. It
// wraps handler to recover panics and limit the request body size. It
// returns an error when the server is shut down, which is always non-nil:
// http.ErrServerClosed once ctx ends.
func Serve(ctx context.Context, listener net.Listener, handler http.Handler, logger log.Logger, config *Config) error {
	logger.Info("starting RPC HTTP server on", "addr", listener.Addr())
	return serve(ctx, listener, handler, logger, config, func(s *http.Server) error {
		return s.Serve(listener)
	})
}

// ServeTLS is Serve for HTTPS; certFile and keyFile are paths to the server
// certificate and its matching private key.
func ServeTLS(
	ctx context.Context,
	listener net.Listener,
	handler http.Handler,
	certFile, keyFile string,
	logger log.Logger,
	config *Config,
) error {
	logger.Info("starting RPC HTTPS server on",
		"addr", listener.Addr(),
		"cert", certFile,
		"key", keyFile)
	return serve(ctx, listener, handler, logger, config, func(s *http.Server) error {
		return s.ServeTLS(listener, certFile, keyFile)
	})
}

func serve(
	ctx context.Context,
	listener net.Listener,
	handler http.Handler,
	logger log.Logger,
	config *Config,
	run func(*http.Server) error,
) error {
	s := &http.Server{
		Handler:        recoverAndLogHandler(maxBytesHandler{h: handler, n: config.MaxBodyBytes}, logger),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	sig := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = s.Shutdown(sctx)
		case <-sig:
		}
	}()

	err := run(s)
	close(sig)
	if err != nil {
		logger.Info("RPC HTTP server stopped", "err", err)
	}
	return err
}

// recoverAndLogHandler wraps an HTTP handler, adding error logging. If the
// inner handler panics, the wrapper recovers, logs, and sends a 500 error
// response.
func recoverAndLogHandler(handler http.Handler, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Capture the HTTP status written for logging.
		rww := newStatusWriter(w)
		begin := time.Now()

		defer func() {
			if e := recover(); e != nil {
				logger.Error("panic in RPC HTTP handler",
					"err", e, "stack", string(debug.Stack()))
				if !rww.wroteHeader {
					writeError(w, http.StatusInternalServerError,
						fmt.Errorf("internal server error"))
				}
			}

			elapsed := time.Since(begin)
			logger.Debug("served RPC HTTP response",
				"method", r.Method,
				"url", r.URL,
				"status", rww.code,
				"duration-sec", elapsed.Seconds(),
				"remoteAddr", r.RemoteAddr)
		}()

		handler.ServeHTTP(rww, r)
	})
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, code: http.StatusOK}
}

type statusWriter struct {
	http.ResponseWriter

	wroteHeader bool
	code        int
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.code = code
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the wrapped writer keep supporting connection upgrades.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.ResponseWriter.(http.Hijacker).Hijack()
}

type maxBytesHandler struct {
	h http.Handler
	n int64
}

func (h maxBytesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.n)
	h.h.ServeHTTP(w, r)
}
