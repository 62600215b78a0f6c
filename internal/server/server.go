package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubgate/hubgate/internal/config"
	"github.com/rs/zerolog/log"
)

// Run serves HTTP until SIGINT or SIGTERM, then drains in-flight requests
// within the configured shutdown timeout. Registered shutdown hooks run
// after the listener drains, so the cache sweeper and telemetry flush see
// no further traffic.
func Run(cfg config.ServerConfig, server *http.Server, hooks *ShutdownHooks) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server: listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		// fall through to graceful shutdown
	}

	stop()
	log.Info().Msg("server: shutdown signal received")

	timeout := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if err != nil {
		log.Warn().Err(err).Msg("server: shutdown incomplete, closing")
		err = errors.Join(err, server.Close())
	}

	if hooks != nil {
		hooks.Execute(shutdownCtx)
	}

	log.Info().Msg("server: stopped")
	return err
}
