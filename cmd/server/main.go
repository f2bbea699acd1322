package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"notary/internal/document/handler"
	docmetrics "notary/internal/document/metrics"
	"notary/internal/document/service"
	"notary/internal/idempotency"
	jwttoken "notary/internal/jwt_token"
	"notary/internal/platform/config"
	"notary/internal/platform/httpserver"
	"notary/internal/platform/logger"
	"notary/internal/platform/metrics"
	"notary/internal/platform/tracing"
	httptransport "notary/internal/transport/http"
	id "notary/pkg/domain"
	"notary/pkg/platform/audit/publishers/compliance"
	authmw "notary/pkg/platform/middleware/auth"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("notary stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("notary stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	infra, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close(log)

	admin, err := id.ParseIdentity(cfg.AdminIdentity)
	if err != nil {
		return err
	}

	publisher := compliance.New(infra.auditStore,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)
	svc, err := service.New(infra.documents, infra.tx, admin,
		service.WithLogger(log),
		service.WithAuditPublisher(publisher),
		service.WithMetrics(docmetrics.New()),
	)
	if err != nil {
		return fmt.Errorf("build document service: %w", err)
	}

	jwtService := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience)
	documents := handler.New(svc, log,
		handler.WithAuth(authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log)),
		handler.WithCreateMiddleware(idempotency.Middleware(infra.idempotency, cfg.Idempotency.TTL, log)),
	)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:         log,
		Metrics:        metrics.New(),
		RequestTimeout: cfg.RequestTimeout,
		Stats:          svc.Stats,
		Checks:         infra.checks,
	}, documents)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting notary",
		"addr", cfg.Addr,
		"postgres", cfg.UsesPostgres(),
		"redis", cfg.Redis.URL != "",
		"relay", infra.relay != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(gctx, srv, cfg.ShutdownTimeout, log)
	})
	if infra.relay != nil {
		g.Go(func() error {
			return infra.relay.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
