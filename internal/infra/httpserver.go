package infra

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// minShutdownGrace bounds how long in-flight requests may run after a stop
// signal. A donation waiting on a token receipt needs up to the receipt
// timeout to settle.
const minShutdownGrace = 10 * time.Second

// HTTPServer runs the API until its context is cancelled.
type HTTPServer struct {
	server *http.Server
	logger zerolog.Logger
	grace  time.Duration
}

func NewHTTPServer(cfg *Config, handler http.Handler, logger zerolog.Logger) *HTTPServer {
	l := logger.With().Str("component", "http").Logger()
	grace := cfg.TokenReceiptTimeout + 5*time.Second
	if grace < minShutdownGrace {
		grace = minShutdownGrace
	}
	return &HTTPServer{
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           handler,
			ReadTimeout:       cfg.HTTPReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.HTTPWriteTimeout,
			IdleTimeout:       cfg.HTTPIdleTimeout,
			ErrorLog:          log.New(l, "", 0),
		},
		logger: l,
		grace:  grace,
	}
}

// Serve listens until ctx is done and then drains in-flight requests. Request
// contexts are detached from ctx so a stop signal does not abort a transfer
// half way; the drain deadline bounds them instead.
func (s *HTTPServer) Serve(ctx context.Context) error {
	s.server.BaseContext = func(net.Listener) context.Context {
		return context.WithoutCancel(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Dur("grace", s.grace).Msg("draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
