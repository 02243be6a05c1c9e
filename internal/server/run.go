// internal/server/run.go
//
// Server lifecycle.
//
// Context
// -------
// Serve runs an *http.Server until ctx is cancelled, then drains in-flight
// requests for at most ShutdownTimeout.  The serve loop and the shutdown
// watcher share an errgroup so the first failure wins.

package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Serve runs srv on ln until ctx is cancelled, then shuts it down
// gracefully.  A clean shutdown returns nil.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, log *zap.SugaredLogger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infow("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		log.Infow("http server shutting down")
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

// ListenAndServe listens on srv.Addr and calls Serve.
func ListenAndServe(ctx context.Context, srv *http.Server, log *zap.SugaredLogger) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	return Serve(ctx, srv, ln, log)
}
