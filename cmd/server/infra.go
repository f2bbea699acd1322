package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"notary/internal/document/service"
	"notary/internal/document/store"
	"notary/internal/idempotency"
	idemstore "notary/internal/idempotency/store"
	"notary/internal/platform/config"
	"notary/internal/platform/postgres"
	"notary/internal/platform/redis"
	httptransport "notary/internal/transport/http"
	audit "notary/pkg/platform/audit"
	"notary/pkg/platform/audit/outbox"
	auditmemory "notary/pkg/platform/audit/store/memory"
	auditpostgres "notary/pkg/platform/audit/store/postgres"
)

const (
	auditTopicPartitions  = 3
	auditTopicReplication = 1
)

// infra holds the backing stores selected by configuration.
type infra struct {
	documents   service.Store
	tx          service.StoreTx
	auditStore  audit.Store
	idempotency idempotency.Store
	relay       *outbox.Relay
	checks      map[string]httptransport.HealthCheck

	closers []func() error
}

// buildInfra picks Postgres or in-memory document storage, Redis or in-memory
// idempotency, and starts the outbox relay when Kafka is configured.
func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	in := &infra{checks: make(map[string]httptransport.HealthCheck)}

	if cfg.UsesPostgres() {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			in.Close(log)
			return nil, fmt.Errorf("migrate: %w", err)
		}
		in.documents = store.NewPostgres(db)
		in.tx = store.NewPostgresTx(db)
		in.auditStore = auditpostgres.New(db)
		in.checks["postgres"] = db.PingContext

		if cfg.RelayEnabled() {
			if err := in.startRelay(ctx, cfg, db, log); err != nil {
				in.Close(log)
				return nil, err
			}
		}
	} else {
		documents := store.NewInMemory()
		auditLog := auditmemory.NewInMemoryStore()
		in.documents = documents
		in.tx = store.NewInMemoryTx(documents, auditLog)
		in.auditStore = auditLog
		log.Warn("DATABASE_URL not set: documents and audit events are kept in memory")
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close(log)
		return nil, err
	}
	if client != nil {
		in.closers = append(in.closers, client.Close)
		in.idempotency = idemstore.NewRedis(client.Client)
		in.checks["redis"] = client.Health
	} else {
		in.idempotency = idemstore.NewInMemory()
	}

	return in, nil
}

func (in *infra) startRelay(ctx context.Context, cfg config.Server, db *sql.DB, log *slog.Logger) error {
	publisher, err := outbox.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
	if err != nil {
		return err
	}
	in.closers = append(in.closers, func() error {
		publisher.Close()
		return nil
	})
	if err := publisher.EnsureTopic(ctx, auditTopicPartitions, auditTopicReplication); err != nil {
		return err
	}

	relay, err := outbox.NewRelay(db, publisher,
		outbox.WithLogger(log),
		outbox.WithMetrics(outbox.NewMetrics()),
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
	)
	if err != nil {
		return err
	}
	in.relay = relay
	in.checks["kafka"] = publisher.Ping
	return nil
}

// Close releases resources in reverse order of acquisition.
func (in *infra) Close(log *slog.Logger) {
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			log.Warn("close failed", "error", err)
		}
	}
	in.closers = nil
}
