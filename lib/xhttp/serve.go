// Package xhttp implements http helpers.
package xhttp

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"oss.terrastruct.com/xcontext"
)

// MaxBodyBytes bounds request bodies accepted by servers from NewServer.
const MaxBodyBytes = 1 << 20 // 1,048,576B

// NewServer returns a server with conservative limits. writeTimeout should exceed the
// longest render the handlers may wait on.
func NewServer(log *log.Logger, writeTimeout time.Duration, h http.Handler) *http.Server {
	if writeTimeout <= 0 {
		writeTimeout = time.Minute
	}
	return &http.Server{
		MaxHeaderBytes: 1 << 18, // 262,144B
		ReadTimeout:    time.Minute,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    time.Hour,
		ErrorLog:       log,
		Handler:        http.MaxBytesHandler(h, MaxBodyBytes),
	}
}

// Serve serves on l until ctx is done and then shuts down gracefully within shutdownTimeout.
func Serve(ctx context.Context, shutdownTimeout time.Duration, s *http.Server, l net.Listener) error {
	s.BaseContext = func(net.Listener) context.Context {
		return ctx
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(l)
	}()

	select {
	case err := <-done:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		ctx = xcontext.WithoutCancel(ctx)
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		return s.Shutdown(ctx)
	}
}
