// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-tracker/internal/app"
	"expense-tracker/internal/config"
	"expense-tracker/internal/handler"
	"expense-tracker/internal/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

// run returns only after every deferred cleanup has run.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Shutdown cleanup failed", "error", err)
		}
	}()

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, 5*time.Minute)
	defer limiter.Stop()

	gin.SetMode(gin.ReleaseMode)
	h := handler.New(a.Store, handler.Services{
		Expenses: a.Expenses,
		Budgets:  a.Budgets,
		Exports:  a.Exports,
		Auth:     a.Auth,
		Admin:    a.Admin,
	})
	router := handler.NewRouter(h, middleware.NewAuthMiddleware(a.Tokens, a.Store), handler.RouterConfig{
		CORSOrigin: cfg.CORSOrigin,
		Limiter:    limiter,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:           cfg.Addr(),
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server started",
			"addr", srv.Addr,
			"backend", a.Store.Name(),
			"email_verification", cfg.RequireEmailVerification,
			"timezone", cfg.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
