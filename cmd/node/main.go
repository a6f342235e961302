package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hushnetwork/node-cache/buildinfo"
	"github.com/hushnetwork/node-cache/internal/blockchainclock"
	"github.com/hushnetwork/node-cache/internal/cache/kv"
	"github.com/hushnetwork/node-cache/internal/cache/projections/feedmetadata"
	"github.com/hushnetwork/node-cache/internal/cache/projections/identity"
	"github.com/hushnetwork/node-cache/internal/cache/projections/messagetail"
	"github.com/hushnetwork/node-cache/internal/cache/projections/participants"
	"github.com/hushnetwork/node-cache/internal/cache/projections/pushtoken"
	"github.com/hushnetwork/node-cache/internal/cache/projections/reactiontally"
	"github.com/hushnetwork/node-cache/internal/cache/projections/readwatermark"
	"github.com/hushnetwork/node-cache/internal/cache/projections/userfeeds"
	"github.com/hushnetwork/node-cache/internal/cryptoport"
	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/internal/events"
	"github.com/hushnetwork/node-cache/internal/facade"
	"github.com/hushnetwork/node-cache/internal/facade/transport"
	"github.com/hushnetwork/node-cache/internal/rotation"
	"github.com/hushnetwork/node-cache/internal/store"
	"github.com/hushnetwork/node-cache/pkg/logging"
	"github.com/hushnetwork/node-cache/pkg/metrics"
)

func main() {
	conf, _ := setupConfig()

	logging.SetupLogger(buildinfo.GitCommit, conf.Log.Debug, conf.Log.Human)

	if err := metrics.SetupInstrumentation(":"+conf.Metrics.Port, "node-cache"); err != nil {
		log.Fatal().Err(err).Str("port", conf.Metrics.Port).Msg("could not setup instrumentation")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.Open(ctx, conf.Postgres.URI, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("opening postgres")
	}
	txn := store.NewTransactor(pool)

	redisClient := newRedisClient(conf.Redis)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("connecting to redis")
	}
	kvStore := kv.NewRedisStore(redisClient)

	profiles := store.NewProfileRepo(txn)
	feeds := store.NewFeedRepo(txn)
	messages := store.NewMessageRepo(txn)
	keyGenerations := store.NewKeyGenerationRepo(txn)
	readPositions := store.NewReadPositionRepo(txn)
	reactions := store.NewReactionRepo(txn)
	deviceTokens := store.NewDeviceTokenRepo(txn)

	prefix := conf.Redis.KeyPrefix
	userFeedsSvc := userfeeds.New(kvStore, prefix, log.Logger)
	feedMetadataSvc := feedmetadata.New(kvStore, prefix, log.Logger)
	participantsSvc := participants.New(kvStore, prefix, log.Logger)
	identitySvc := identity.New(kvStore, prefix, log.Logger)
	messageTailSvc := messagetail.New(kvStore, prefix, log.Logger)
	readWatermarkSvc := readwatermark.New(kvStore, prefix, log.Logger)
	talliesSvc := reactiontally.New(kvStore, prefix, log.Logger)
	pushTokensSvc := pushtoken.New(kvStore, prefix, log.Logger)

	bus := events.New(log.Logger)

	chainSource, closeChainClient, err := newChainSource(conf.Chain)
	if err != nil {
		log.Fatal().Err(err).Msg("creating blockchain clock source")
	}
	clock := blockchainclock.New(chainSource)

	crypto := cryptoport.New()
	rotationEngine := rotation.New(profiles, feeds, keyGenerations, crypto, bus, log.Logger)

	svc := facade.New(facade.Deps{
		UserFeeds:     userFeedsSvc,
		FeedMetadata:  feedMetadataSvc,
		Participants:  participantsSvc,
		Identity:      identitySvc,
		MessageTail:   messageTailSvc,
		ReadWatermark: readWatermarkSvc,
		Tallies:       talliesSvc,
		PushTokens:    pushTokensSvc,

		Profiles:       profiles,
		Feeds:          feeds,
		Messages:       messages,
		KeyGenerations: keyGenerations,
		ReadPositions:  readPositions,
		Reactions:      reactions,
		DeviceTokens:   deviceTokens,
		Txn:            txn,

		Rotation: rotationEngine,
		Bus:      bus,
		Clock:    clock,
	}, log.Logger)

	instrumented, err := facade.NewInstrumented(svc)
	if err != nil {
		log.Fatal().Err(err).Msg("instrumenting facade")
	}

	invalidators := events.NewInvalidators(
		identitySvc,
		participantsSvc,
		feedMetadataSvc,
		talliesSvc,
		svc.FeedsForAddress,
		feeds.ActiveMembers,
		svc.ResolveTitle,
		profiles.Get,
		log.Logger,
	)
	invalidators.Register(bus)

	rateLimInterval, err := time.ParseDuration(conf.HTTP.RateLimInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("parsing http rate limiter interval")
	}

	router, err := transport.ConfiguredRouter(instrumented, transport.Config{
		MaxRequestsPerInterval: conf.HTTP.MaxRequestPerInterval,
		RateLimitInterval:      rateLimInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("configuring router")
	}

	httpServer := &http.Server{
		Addr:    ":" + conf.HTTP.Port,
		Handler: router.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("starting http server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutting down http server")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server group exited with error")
	}

	closeChainClient()
	txn.Close()
	if err := redisClient.Close(); err != nil {
		log.Error().Err(err).Msg("closing redis client")
	}
	log.Info().Msg("shutdown complete")
}

func newRedisClient(cfg RedisConfig) redis.UniversalClient {
	if len(cfg.ClusterAddrs) > 0 {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.ClusterAddrs,
			Password: cfg.Password,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// newChainSource builds the blockchainclock.Source this node polls: the
// current block number from the configured endpoint, minus the configured
// finality depth, so the rest of the system never observes a block that
// could still be reorganized away. Returns a no-op source (always zero)
// when no endpoint is configured, so the node can run in cache-only mode
// against a pre-seeded store for local development.
func newChainSource(cfg ChainConfig) (blockchainclock.Source, func(), error) {
	if cfg.EthEndpoint == "" {
		log.Warn().Msg("no chain endpoint configured, blockchain clock will always report block 0")
		return func(context.Context) (domain.BlockIndex, error) {
			return 0, nil
		}, func() {}, nil
	}

	conn, err := ethclient.Dial(cfg.EthEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing chain endpoint: %w", err)
	}

	source := func(ctx context.Context) (domain.BlockIndex, error) {
		head, err := conn.BlockNumber(ctx)
		if err != nil {
			return 0, fmt.Errorf("fetching chain tip: %w", err)
		}
		if head < cfg.FinalityDepth {
			return 0, nil
		}
		return domain.BlockIndex(head - cfg.FinalityDepth), nil
	}
	return source, conn.Close, nil
}
