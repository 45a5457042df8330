package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"authgate/core"
)

// shutdownTimeout bounds how long in-flight requests get after a signal.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Printf("api: %v", err)
		os.Exit(1)
	}
}

func run() error {
	startedAt := time.Now()
	cfg, err := core.Load(core.ConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = core.NewInstanceID(cfg.ServiceName)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logCloser.Close()

	store, storeCloser, err := core.OpenCredentialStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open credential store", "driver", cfg.StoreDriver, "error", err)
		return err
	}
	defer storeCloser.Close()

	hasher, err := core.NewPasswordHasher(cfg.HashAlgorithm)
	if err != nil {
		logger.Error("failed to create password hasher", "error", err)
		return err
	}
	tokens, err := core.NewTokenService(core.TokenConfig{
		Secret: []byte(cfg.SigningSecret),
		Method: cfg.SigningMethod,
		TTL:    cfg.TokenTTL,
		Issuer: cfg.TokenIssuer,
	})
	if err != nil {
		logger.Error("failed to create token service", "error", err)
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := core.NewMetrics(registry)

	authService := core.NewAuthService(store, tokens, hasher, logger,
		core.WithAutoProvision(cfg.AutoProvision()),
		core.WithMetrics(metrics),
	)

	if err := core.BootstrapOperator(ctx, authService, cfg, logger); err != nil {
		logger.Error("bootstrap operator failed", "error", err)
		return err
	}

	// Gorilla cookie store for the token cookie.
	cookieStore := sessions.NewCookieStore([]byte(cfg.SessionKey))

	router := core.NewRouter(cfg, core.RouterDeps{
		Logger:   logger,
		Auth:     authService,
		Sessions: cookieStore,
		Registry: registry,
		Metrics:  metrics,
		TokenTTL: tokens.TTL(),

		Status:    authService,
		StartedAt: startedAt,
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen", "addr", addr, "error", err)
		return err
	}
	logger.Info("starting api server", "addr", addr, "store", cfg.StoreDriver, "auto_provision", cfg.AutoProvision())

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	if err := serve(ctx, srv, ln, logger); err != nil {
		logger.Error("server failed", "error", err)
		return err
	}
	return nil
}

// serve runs srv on ln until ctx is done, then drains it.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
