package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/till/internal/backend"
	"github.com/nikolayk812/till/internal/cart"
	"github.com/nikolayk812/till/internal/config"
	"github.com/nikolayk812/till/internal/httpapi"
	"github.com/nikolayk812/till/internal/observability"
	"github.com/nikolayk812/till/internal/port"
	"github.com/nikolayk812/till/internal/repository"
	"github.com/nikolayk812/till/internal/session"
	"github.com/nikolayk812/till/internal/submission"
	"github.com/nikolayk812/till/internal/txid"
	"go.uber.org/zap"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("tilld stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}

	guard := session.NewGuard(session.WithLogger(logger.Named("session")))
	if cfg.Backend.AccessToken != "" {
		guard.SetToken(cfg.Backend.AccessToken)
	}

	client, err := backend.NewClient(cfg.Backend.BaseURL, guard,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithCurrency(cfg.Sale.Currency),
		backend.WithLogger(logger.Named("backend")),
	)
	if err != nil {
		return fmt.Errorf("backend.NewClient: %w", err)
	}

	var catalog port.CatalogReader = client
	if cfg.Catalog.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Catalog.DSN)
		if err != nil {
			return fmt.Errorf("pgxpool.New: %w", err)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("pool.Ping: %w", err)
		}

		repo, err := repository.NewCatalog(pool)
		if err != nil {
			return fmt.Errorf("repository.NewCatalog: %w", err)
		}
		catalog = repo
		logger.Info("catalog source: postgres")
	} else {
		logger.Info("catalog source: backend", zap.String("base_url", cfg.Backend.BaseURL))
	}

	engine, err := cart.NewEngine(catalog, txid.NewGenerator(), cart.Config{
		TaxRate:  cfg.Sale.TaxRate,
		Currency: cfg.Sale.Currency,
		Logger:   logger.Named("cart"),
	})
	if err != nil {
		return fmt.Errorf("cart.NewEngine: %w", err)
	}

	coordinator, err := submission.NewCoordinator(engine, guard, client,
		submission.WithTimeout(cfg.Backend.Timeout),
		submission.WithLogger(logger.Named("submission")),
	)
	if err != nil {
		return fmt.Errorf("submission.NewCoordinator: %w", err)
	}

	handler, err := httpapi.NewHandler(engine, coordinator, guard, catalog, logger.Named("http"))
	if err != nil {
		return fmt.Errorf("httpapi.NewHandler: %w", err)
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpapi.NewRouter(handler),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("console api listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("currency", cfg.Sale.Currency.String()),
			zap.Stringer("tax_rate", cfg.Sale.TaxRate),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("srv.ListenAndServe: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down console api")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("srv.Shutdown: %w", err)
	}
	return nil
}
