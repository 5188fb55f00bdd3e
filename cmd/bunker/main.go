package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/bunker-client/internal/client"
	"github.com/DoyleJ11/bunker-client/internal/config"
	"github.com/DoyleJ11/bunker-client/internal/httpapi"
	"github.com/DoyleJ11/bunker-client/internal/logging"
	"github.com/DoyleJ11/bunker-client/internal/restore"
	"github.com/DoyleJ11/bunker-client/internal/session"
	"github.com/DoyleJ11/bunker-client/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("exiting", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) (err error) {
	storage, err := openStorage(cfg)
	if err != nil {
		return err
	}
	sessions := session.NewStore(storage, log, session.Options{TTL: cfg.SessionTTL})

	ws := transport.NewWebSocket(transport.Options{
		URL:          cfg.ServerURL,
		ReconnectMin: cfg.ReconnectMin,
		ReconnectMax: cfg.ReconnectMax,
	}, log)

	c := client.New(ctx, ws, sessions, log, client.Options{
		Restore: restore.Options{Timeout: cfg.RestoreTimeout},
	})
	defer func() { err = multierr.Append(err, c.Close()) }()
	c.Start()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(c, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := ws.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("transport: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		res, err := c.Restore(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("restore: %w", err)
		}
		log.Info("restore complete",
			zap.Bool("success", res.Success),
			zap.String("reason", string(res.Reason)),
			zap.String("game_id", res.Game.ID()),
		)
		return nil
	})

	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("server", cfg.ServerURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStorage(cfg config.Config) (session.Storage, error) {
	switch cfg.SessionBackend {
	case config.BackendPostgres:
		return session.OpenPostgres(cfg.SessionDSN)
	case config.BackendMemory:
		return session.NewMemoryStorage(), nil
	default:
		return session.OpenSQLite(cfg.SessionPath)
	}
}
