package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"apples-watch/internal/api"
)

// ServeOptions configure the alert API server.
type ServeOptions struct {
	Listen   string
	AlertsDB string
}

// Serve runs the alert management API until interrupted.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openAlertStore(ctx, a.alertsPath(opts.AlertsDB))
	if err != nil {
		return err
	}
	defer store.Close()

	listen := opts.Listen
	if listen == "" {
		listen = a.Config.Server.Listen
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(&api.Config{
		AlertHandler: api.NewAlertHandler(store),
		Logger:       a.Logger,
	})

	srv := &http.Server{
		Addr:              listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("listen", listen).Msg("alert api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.Logger.Info().Msg("alert api stopped")
	return nil
}
