package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"librarylog/internal/app"
	"librarylog/internal/auth"
	"librarylog/internal/config"
	"librarylog/internal/handler"
	"librarylog/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	a.Seed(ctx)

	if a.Relay != nil {
		go func() {
			if err := a.Relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("broadcast relay stopped", zap.Error(err))
			}
		}()
	}

	health := map[string]handler.HealthChecker{"db": a.DB}
	if a.Redis != nil {
		health["redis"] = a.Redis
	}
	issuer := auth.NewIssuer(cfg.JWT.Issuer, cfg.JWT.SigningKey, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	h := handler.New(a.Service, a.Hub, issuer, health, logger.Named("http"))
	r := handler.NewRouter(h, handler.RouterConfig{
		AllowOrigins:       cfg.HTTP.AllowOrigins,
		ViewToken:          cfg.Auth.ViewToken,
		RequireDeviceToken: cfg.Auth.RequireDeviceToken,
		RateLimitPerMin:    cfg.RateLimit.PerMin,
		Production:         cfg.IsProduction(),
		Location:           a.Location,
		Metrics:            a.Metrics,
		Logger:             logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// no WriteTimeout: /library/events streams for as long as the viewer stays
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("db", a.DB.Driver), zap.String("broadcast", cfg.Broadcast.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}
