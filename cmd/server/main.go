package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	infraeventbus "github.com/amirasaad/ledger/infra/eventbus"
	"github.com/amirasaad/ledger/infra/initializer"
	"github.com/amirasaad/ledger/pkg/app"
	"github.com/amirasaad/ledger/pkg/config"
	"github.com/amirasaad/ledger/pkg/service/audit"
	"github.com/amirasaad/ledger/webapi"
	log "github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
)

const (
	purgeInterval   = time.Hour
	shutdownTimeout = 10 * time.Second
)

// @title Ledger API
// @version 1.0.0
// @description Double-entry ledger, idempotent money movement, consistency audits and statement reconciliation.
// @BasePath /
//
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description "Enter your Bearer token in the format: `Bearer {token}`"
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load application configuration: %w", err)
	}

	rt, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Error("failed to release resources", "error", err)
		}
	}()

	a, err := app.New(rt.Deps, cfg)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	fiberApp := webapi.SetupApp(a, rt.Registry)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	slog.Info("Starting server",
		"env", cfg.Env,
		"address", addr,
		"scheme", cfg.Server.Scheme,
	)
	return serve(ctx, a, fiberApp, ln, rt.Consumer)
}

// serve runs the HTTP server and the background workers until ctx is
// cancelled or one of them fails, then shuts the server down.
func serve(
	ctx context.Context,
	a *app.App,
	fiberApp *fiber.App,
	ln net.Listener,
	consumer *infraeventbus.RedisEventBus,
) error {
	logger := a.Deps.Logger
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := fiberApp.Listener(ln); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")
		return fiberApp.ShutdownWithTimeout(shutdownTimeout)
	})

	var outboxInterval, auditInterval time.Duration
	if a.Config.Outbox != nil {
		outboxInterval = a.Config.Outbox.Interval
	}
	if a.Config.Audit != nil {
		auditInterval = a.Config.Audit.Interval
	}
	g.Go(func() error { return a.Dispatcher.Run(ctx, outboxInterval) })
	g.Go(func() error { return audit.NewScheduler(a.AuditService, auditInterval, logger).Run(ctx) })
	g.Go(func() error {
		return every(ctx, purgeInterval, func(ctx context.Context) {
			n, err := a.Guard.Purge(ctx)
			if err != nil {
				logger.Error("idempotency purge failed", "error", err)
				return
			}
			if n > 0 {
				logger.Info("expired idempotency keys purged", "count", n)
			}
		})
	})
	if consumer != nil {
		g.Go(func() error { return consumer.Consume(ctx) })
	}
	return g.Wait()
}

// every calls fn each interval until ctx is cancelled.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}
