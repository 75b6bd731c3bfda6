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

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"credpass/internal/consensus"
	issuancemetrics "credpass/internal/issuance/metrics"
	issuance "credpass/internal/issuance/service"
	intentstore "credpass/internal/issuance/store"
	jwttoken "credpass/internal/jwt_token"
	"credpass/internal/ledger/ethclient"
	"credpass/internal/ledger/journal"
	"credpass/internal/ledger/source"
	"credpass/internal/metadata"
	"credpass/internal/platform/config"
	"credpass/internal/platform/database"
	"credpass/internal/platform/health"
	"credpass/internal/platform/httpserver"
	"credpass/internal/platform/kafka"
	"credpass/internal/platform/kafka/consumer"
	"credpass/internal/platform/logger"
	"credpass/internal/platform/redis"
	projectormetrics "credpass/internal/projector/metrics"
	projector "credpass/internal/projector/service"
	checkpoint "credpass/internal/projector/store"
	"credpass/internal/query/handler"
	querymetrics "credpass/internal/query/metrics"
	query "credpass/internal/query/service"
	"credpass/pkg/platform/middleware/admin"
	"credpass/pkg/platform/middleware/request"
	"credpass/pkg/platform/middleware/requesttime"
	"credpass/pkg/platform/tracer"
)

const (
	requestTimeout   = 30 * time.Second
	maxBodyBytes     = 1 << 20
	poolStatsEvery   = 15 * time.Second
	checkpointName   = "credpass"
	tracerName       = "credpass"
	consumerBackoff  = time.Second
	workerStopBudget = 10 * time.Second
)

// main wires the projector, its event source, the issuance worker and the
// read API. Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.NewWithLevel(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

type infra struct {
	db    *database.Pool
	redis *redis.Client
}

func (i *infra) close(log *slog.Logger) {
	if err := i.db.Close(); err != nil {
		log.Error("close database", "error", err)
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Error("close redis", "error", err)
		}
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	log.Info("initializing credpass",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"kafka", cfg.Kafka.Brokers != "",
		"events_file", cfg.EventsFile,
		"issuance", cfg.IssuanceEnabled(),
	)

	inf, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer inf.close(log)

	tr := tracer.NewOTel(tracerName)
	engine := consensus.New()

	proj := buildProjector(cfg, inf, engine, tr, log)
	if err := proj.Restore(ctx); err != nil {
		return fmt.Errorf("restore projection: %w", err)
	}
	log.Info("projection restored", "cursor", proj.Cursor())

	gateway := metadata.NewGateway(cfg.IPFS.GatewayURL,
		metadata.WithAPIURL(cfg.IPFS.APIURL),
		metadata.WithCacheSize(cfg.IPFS.CacheBytes),
		metadata.WithMetrics(metadata.NewMetrics()),
		metadata.WithTracer(tr),
		metadata.WithLogger(log),
	)

	bridge, closeLedger, err := buildBridge(ctx, cfg, inf, proj, gateway, tr, log)
	if err != nil {
		return err
	}
	defer closeLedger()

	healthHandler := health.New(cfg.Environment)
	healthHandler.ReportCursor(proj.Cursor)
	if inf.db != nil {
		healthHandler.RegisterCheck("database", inf.db.Health)
	}
	if inf.redis != nil {
		healthHandler.RegisterCheck("redis", inf.redis.Health)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Kafka.Brokers != "" {
		groupID := cfg.Kafka.GroupID
		if inf.db == nil {
			// Without a journal the committed offsets of a shared group would
			// skip history this process never saw.
			groupID += "-" + uuid.NewString()
		}
		c, err := consumer.New(consumer.Config{
			Brokers:      cfg.Kafka.Brokers,
			GroupID:      groupID,
			RetryBackoff: consumerBackoff,
		}, source.NewKafkaHandler(proj, log), log)
		if err != nil {
			return err
		}
		if err := c.Subscribe([]string{cfg.Kafka.Topic}); err != nil {
			return err
		}
		healthHandler.RegisterCheck("kafka", kafka.NewHealthChecker(cfg.Kafka.Brokers).Check)
		healthHandler.RegisterCheck("kafka_consumer", c.Check)
		g.Go(func() error { return c.Run(gctx) })
	} else if cfg.EventsFile != "" {
		g.Go(func() error {
			stats, err := source.ReplayFile(gctx, cfg.EventsFile, proj, log)
			if err != nil {
				return err
			}
			log.InfoContext(gctx, "events file replayed",
				"lines", stats.Lines,
				"applied", stats.Applied,
				"skipped", stats.Skipped,
				"malformed", stats.Malformed,
				"cursor", proj.Cursor(),
			)
			return proj.Checkpoint(gctx)
		})
	} else {
		log.Warn("no ledger event source configured; serving the restored projection")
	}

	if inf.redis != nil {
		g.Go(func() error {
			inf.redis.RunPoolStats(gctx, poolStatsEvery)
			return nil
		})
	}

	if bridge != nil {
		bridge.Start()
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), workerStopBudget)
			defer cancel()
			return bridge.Stop(stopCtx)
		})
	}

	router := buildRouter(cfg, proj, engine, gateway, bridge, healthHandler, log)
	srv := httpserver.New(cfg.Addr, router)
	g.Go(func() error { return httpserver.Run(gctx, srv, log) })

	err = g.Wait()

	checkpointCtx, cancel := context.WithTimeout(context.Background(), workerStopBudget)
	defer cancel()
	if cpErr := proj.Checkpoint(checkpointCtx); cpErr != nil {
		log.Error("final checkpoint failed", "error", cpErr)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func connect(ctx context.Context, cfg config.Server) (*infra, error) {
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	db, err := database.New(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &infra{db: db, redis: rc}, nil
}

func buildProjector(cfg config.Server, inf *infra, engine *consensus.Engine, tr tracer.Tracer, log *slog.Logger) *projector.Projector {
	var (
		j  journal.Journal
		cp checkpoint.Store
	)
	// Checkpoints are only useful next to a durable journal.
	switch {
	case inf.db != nil && inf.redis != nil:
		j = journal.NewPostgres(inf.db.DB())
		cp = checkpoint.NewRedis(inf.redis.Client, checkpointName)
	case inf.db != nil:
		j = journal.NewPostgres(inf.db.DB())
		cp = checkpoint.NewPostgres(inf.db.DB(), checkpointName)
	default:
		log.Warn("no database configured; the projection is rebuilt from the event source on every start")
		j = journal.NewInMemory()
		cp = checkpoint.NewInMemory()
	}

	return projector.New(j,
		projector.WithCheckpointStore(cp),
		projector.WithCheckpointEvery(cfg.Projector.CheckpointEvery),
		projector.WithEngine(engine),
		projector.WithMetrics(projectormetrics.New()),
		projector.WithTracer(tr),
		projector.WithLogger(log),
	)
}

// buildBridge returns a nil bridge when no issuer key or RPC endpoint is set.
func buildBridge(
	ctx context.Context,
	cfg config.Server,
	inf *infra,
	proj *projector.Projector,
	storage metadata.Storage,
	tr tracer.Tracer,
	log *slog.Logger,
) (*issuance.Bridge, func(), error) {
	if !cfg.IssuanceEnabled() {
		log.Info("credential issuance disabled")
		return nil, func() {}, nil
	}

	intents, err := intentStore(inf)
	if err != nil {
		return nil, nil, err
	}

	client, err := ethclient.Dial(ctx, ethclient.Config{
		RPCURL:          cfg.Ledger.RPCURL,
		ContractAddress: cfg.Ledger.ContractAddress,
		PrivateKeyHex:   cfg.Ledger.PrivateKey,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial ledger: %w", err)
	}

	bridge := issuance.New(proj, client, storage, intents,
		issuance.WithCredentialTTL(cfg.Issuance.CredentialTTL),
		issuance.WithPollInterval(cfg.Issuance.PollInterval),
		issuance.WithMetrics(issuancemetrics.New()),
		issuance.WithTracer(tr),
		issuance.WithLogger(log),
	)
	log.Info("credential issuance enabled", "issuer", client.Account().Hex())
	return bridge, client.Close, nil
}

// intentStore picks the durable intent store. Issuance refuses to start on a
// process-local store, since a restart would forget in-flight mints.
func intentStore(inf *infra) (intentstore.Store, error) {
	switch {
	case inf.db != nil:
		return intentstore.NewPostgres(inf.db.DB()), nil
	case inf.redis != nil:
		return intentstore.NewRedis(inf.redis.Client), nil
	default:
		return nil, errors.New("credential issuance needs DATABASE_URL or REDIS_URL for its intent store")
	}
}

func buildRouter(
	cfg config.Server,
	proj *projector.Projector,
	engine *consensus.Engine,
	storage metadata.Storage,
	bridge *issuance.Bridge,
	healthHandler *health.Handler,
	log *slog.Logger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(log))
	r.Use(request.LatencyMiddleware(request.NewMetrics()))
	r.Use(request.Timeout(requestTimeout))
	r.Use(request.BodyLimit(maxBodyBytes))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	querySvc := query.New(proj,
		query.WithEngine(engine),
		query.WithStorage(storage),
		query.WithGatewayURL(cfg.IPFS.GatewayURL),
		query.WithLogger(log),
	)
	handler.New(querySvc, log, querymetrics.New()).Register(r)

	if cfg.AdminJWTSigningKey == "" {
		log.Info("admin api disabled")
		return r
	}
	var intents handler.IssuanceAdmin
	if bridge != nil {
		intents = bridge
	}
	adminHandler := handler.NewAdmin(proj, intents, log)
	r.Group(func(ar chi.Router) {
		ar.Use(admin.RequireAdmin(jwttoken.New(cfg.AdminJWTSigningKey), log))
		adminHandler.Register(ar)
	})
	return r
}
