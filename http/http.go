package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// ShutdownTimeout bounds the time given to in-flight requests once the
// context of ListenAndServe is done.
const ShutdownTimeout = time.Second * 10

// ListenAndServe runs the servers until ctx is done, then shuts them down.
func ListenAndServe(ctx context.Context, servers ...*http.Server) {
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				logs.Warn(errors.Newf("shutting down the server failed").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}
	}()

	var wg sync.WaitGroup

	for _, s := range servers {
		wg.Add(1)

		go func(s *http.Server) {
			defer wg.Done()

			logs.WithTag("addr", s.Addr).Info("starting server")

			switch err := s.ListenAndServe(); err {
			case nil, http.ErrServerClosed, context.Canceled:
				logs.WithTag("addr", s.Addr).Info("stopping server")

			default:
				logs.Warn(errors.Newf("server stopped").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}(s)
	}

	wg.Wait()
}

// Routes of the client facing server, besides the websocket endpoint mounted
// on "/".
const (
	RouteHealth      = "/health"
	RouteVersion     = "/version"
	RouteReady       = "/ready"
	RouteDebugOctree = "/debug/octree"
)

// MetricsPathFormatter labels a request with its route. Paths outside the
// known routes are served by the websocket endpoint and share the "/" label.
// Redirected, malformed, unknown and rejected method requests are not
// labelled.
func MetricsPathFormatter(statusCode int, path string) string {
	switch statusCode {
	case http.StatusMovedPermanently,
		http.StatusBadRequest,
		http.StatusNotFound,
		http.StatusMethodNotAllowed:
		return ""
	}

	switch path {
	case RouteHealth, RouteVersion, RouteReady, RouteDebugOctree:
		return path
	default:
		return "/"
	}
}
