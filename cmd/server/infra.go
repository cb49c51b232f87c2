package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"libreg/internal/audit"
	"libreg/internal/geo"
	"libreg/internal/geo/models"
	geostore "libreg/internal/geo/store"
	librarystore "libreg/internal/library/store"
	"libreg/internal/platform/config"
	"libreg/internal/platform/postgres"
	"libreg/internal/platform/redis"
	ratelimitmetrics "libreg/internal/ratelimit/metrics"
	ratelimit "libreg/internal/ratelimit/middleware"
	"libreg/internal/ratelimit/store/bucket"
	"libreg/internal/registration"
	regmetrics "libreg/internal/registration/metrics"
	httptransport "libreg/internal/transport/http"
	"libreg/pkg/platform/circuit"
)

const (
	auditBufferSize   = 1024
	auditPartitions   = 3
	auditReplications = 1
)

// infra holds the storage and messaging backends picked by configuration.
type infra struct {
	libraries    registration.LibraryStore
	places       geo.Resolver
	audit        *audit.Publisher
	auditWorker  *audit.Worker
	redis        *redis.Client
	healthChecks map[string]httptransport.HealthCheck

	closers []func()
}

func (i *infra) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
}

func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger, m *regmetrics.Metrics) (*infra, error) {
	in := &infra{healthChecks: map[string]httptransport.HealthCheck{}}
	ok := false
	defer func() {
		if !ok {
			in.Close()
		}
	}()

	if cfg.DatabaseURL != "" {
		if err := in.openPostgres(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
		log.Info("using postgres storage")
	} else {
		if err := in.openMemory(cfg.Registration.GazetteerPath); err != nil {
			return nil, err
		}
		log.Warn("DATABASE_URL not set, using in-memory storage")
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client != nil {
		in.closers = append(in.closers, func() { _ = client.Close() })
		in.redis = client
		in.healthChecks["redis"] = client.Health
		in.places = geostore.NewCachedResolver(in.places, client.Client, cfg.Redis.PlaceTTL,
			geostore.WithCacheLogger(log),
			geostore.WithCacheObserver(m),
		)
		log.Info("place cache enabled", slog.Duration("ttl", cfg.Redis.PlaceTTL))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		if err := in.openKafka(ctx, cfg.Kafka, log); err != nil {
			return nil, err
		}
		log.Info("publishing audit events to kafka", slog.String("topic", cfg.Kafka.AuditTopic))
	} else {
		in.audit = audit.NewPublisher(audit.NewLogStore(log))
	}

	ok = true
	return in, nil
}

func (i *infra) openPostgres(ctx context.Context, url string) error {
	db, err := postgres.Open(ctx, url)
	if err != nil {
		return err
	}
	i.closers = append(i.closers, func() { _ = db.Close() })
	if err := postgres.CreateSchema(ctx, db); err != nil {
		return err
	}

	pool, err := postgres.OpenPool(ctx, url)
	if err != nil {
		return err
	}
	i.closers = append(i.closers, pool.Close)

	gazetteer := geostore.NewPostgres(pool)
	// Places are seeded with registryctl; this only guarantees the everywhere row.
	if _, err := gazetteer.Import(ctx, nil); err != nil {
		return err
	}

	i.libraries = librarystore.NewPostgres(db)
	i.places = gazetteer
	i.healthChecks["postgres"] = pingChecks(db, pool)
	return nil
}

func pingChecks(db *sql.DB, pool *pgxpool.Pool) httptransport.HealthCheck {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		return pool.Ping(ctx)
	}
}

func (i *infra) openMemory(gazetteerPath string) error {
	gazetteer := geostore.NewGazetteer()
	if gazetteerPath != "" {
		loaded, err := geostore.LoadGazetteer(gazetteerPath)
		if err != nil {
			return fmt.Errorf("load gazetteer: %w", err)
		}
		gazetteer = loaded
	}
	i.libraries = librarystore.NewInMemory()
	i.places = gazetteer
	return nil
}

func (i *infra) openKafka(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) error {
	store, err := audit.NewKafkaStore(cfg.Brokers, cfg.AuditTopic)
	if err != nil {
		return err
	}
	i.closers = append(i.closers, store.Close)
	if err := store.EnsureTopic(ctx, auditPartitions, auditReplications); err != nil {
		return err
	}

	buffer := audit.NewBuffer(auditBufferSize)
	i.audit = audit.NewPublisher(buffer)
	i.auditWorker = audit.NewWorker(store, buffer.Events(), log)
	i.healthChecks["kafka"] = store.Ping
	return nil
}

// resolveDefaultNation looks up the configured nation abbreviation. An empty
// abbreviation disables the default.
func resolveDefaultNation(ctx context.Context, places geo.Resolver, abbreviation string) (*models.Place, error) {
	if abbreviation == "" {
		return nil, nil
	}
	res, err := places.Resolve(ctx, abbreviation, nil)
	if err != nil {
		return nil, fmt.Errorf("resolve default nation: %w", err)
	}
	if res.Outcome != geo.Found {
		return nil, fmt.Errorf("default nation %q: %s", abbreviation, res.Outcome)
	}
	return res.Place, nil
}

// rateLimiter keeps counts in Redis when it is configured, falling back to a
// per-process window while Redis is unreachable.
func (i *infra) rateLimiter(cfg config.RateLimitConfig, log *slog.Logger, m *ratelimitmetrics.Metrics) *ratelimit.Middleware {
	local := bucket.NewInMemoryBucketStore()
	opts := []ratelimit.Option{
		ratelimit.WithMetrics(m),
		ratelimit.WithDisabled(cfg.Disabled),
	}
	if i.redis == nil {
		return ratelimit.New(local, cfg.Requests, cfg.Window, log, opts...)
	}
	opts = append(opts, ratelimit.WithFallback(local, circuit.New("ratelimit-redis")))
	return ratelimit.New(bucket.NewRedisBucketStore(i.redis.Client), cfg.Requests, cfg.Window, log, opts...)
}
