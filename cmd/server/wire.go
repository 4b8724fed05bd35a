package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpAdapter "github.com/iho/timebank/internal/adapter/http"
	"github.com/iho/timebank/internal/adapter/http/handler"
	"github.com/iho/timebank/internal/adapter/http/middleware"
	"github.com/iho/timebank/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/timebank/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/timebank/internal/adapter/repository/redis"
	"github.com/iho/timebank/internal/infrastructure/auth"
	"github.com/iho/timebank/internal/infrastructure/config"
	"github.com/iho/timebank/internal/infrastructure/eventpublisher"
	"github.com/iho/timebank/internal/infrastructure/metrics"
	"github.com/iho/timebank/internal/infrastructure/postgres"
	"github.com/iho/timebank/internal/infrastructure/recovery"
	"github.com/iho/timebank/internal/infrastructure/redis"
	"github.com/iho/timebank/internal/usecase"
)

// storage is the set of repositories the use cases run on.
type storage struct {
	txManager    usecase.TransactionManager
	accounts     usecase.AccountRepository
	participants usecase.ParticipantRepository
	transactions usecase.TransactionRepository
	sessions     usecase.SessionRepository
	outbox       usecase.OutboxRepository
	ledger       usecase.LedgerRepository

	locker      usecase.ScheduleLocker
	rooms       usecase.RoomRegistry
	idempotency usecase.IdempotencyStore

	// publishers receive drained outbox events.
	publishers eventpublisher.Fanout
	checks     map[string]handler.Pinger
	closers    []func()
}

func (s *storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStorage opens the configured store. Holds, rooms and idempotency
// start on the memory driver and are replaced by attachRedis.
func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storage, error) {
	local := memory.NewStore()
	st := &storage{
		locker:      memory.NewScheduleLocker(local),
		rooms:       memory.NewRoomRegistry(local),
		idempotency: memory.NewIdempotencyStore(local),
		publishers:  eventpublisher.Fanout{eventpublisher.NewLogPublisher(logger)},
		checks:      map[string]handler.Pinger{},
	}

	switch cfg.StorageDriver {
	case config.StorageMemory:
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
		st.txManager = memory.NewTxManager(local)
		st.accounts = memory.NewAccountRepository(local)
		st.participants = memory.NewParticipantRepository(local)
		st.transactions = memory.NewTransactionRepository(local)
		st.sessions = memory.NewSessionRepository(local)
		st.outbox = memory.NewOutboxRepository(local)
		st.ledger = memory.NewLedgerRepository(local)
		return st, nil

	case config.StoragePostgres:
		if cfg.MigrateOnStart {
			if err := postgres.RunMigrations(cfg.DatabaseURL, logger); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
			DatabaseURL: cfg.DatabaseURL,
			MaxConns:    cfg.DatabaseMaxConns,
			MinConns:    cfg.DatabaseMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		logger.Info().Msg("connected to postgres")

		st.usePostgres(pool)
		return st, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func (s *storage) usePostgres(pool *pgxpool.Pool) {
	s.txManager = postgresRepo.NewTxManager(pool)
	s.accounts = postgresRepo.NewAccountRepository(pool)
	s.participants = postgresRepo.NewParticipantRepository(pool)
	s.transactions = postgresRepo.NewTransactionRepository(pool)
	s.sessions = postgresRepo.NewSessionRepository(pool)
	s.outbox = postgresRepo.NewOutboxRepository(pool)
	s.ledger = postgresRepo.NewLedgerRepository(pool)
	s.checks["postgres"] = pool
	s.closers = append(s.closers, pool.Close)
}

// attachRedis moves holds, rooms and idempotency keys to Redis so several
// instances share them, and adds the transaction stream publisher.
func (s *storage) attachRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set, holds and rooms are local to this instance")
		return nil
	}

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info().Msg("connected to redis")

	s.useRedis(client, cfg.TransactionStream, cfg.StreamMaxLen)
	return nil
}

func (s *storage) useRedis(client *goredis.Client, stream string, maxLen int64) {
	s.locker = redisRepo.NewScheduleLocker(client)
	s.rooms = redisRepo.NewRoomRegistry(client)
	s.idempotency = redisRepo.NewIdempotencyStore(client)
	s.publishers = append(s.publishers, redisRepo.NewStreamPublisher(client, stream, maxLen))
	s.checks["redis"] = handler.PingerFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	s.closers = append(s.closers, func() { _ = client.Close() })
}

// application is the wired service.
type application struct {
	router      http.Handler
	publisher   *eventpublisher.EventPublisher
	sweeper     *recovery.Sweeper
	rateLimiter *middleware.RateLimiter
}

func buildApplication(cfg *config.Config, st *storage, logger zerolog.Logger, registry *prometheus.Registry) (*application, error) {
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)
	idGen := postgresRepo.NewULIDGenerator()

	ledgerUC, err := usecase.NewLedgerUseCase(usecase.LedgerConfig{
		TxManager:       st.txManager,
		AccountRepo:     st.accounts,
		TransactionRepo: st.transactions,
		OutboxRepo:      st.outbox,
		IDGen:           idGen,
		Recorder:        m,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	accountUC := usecase.NewAccountUseCase(usecase.AccountConfig{
		TxManager:         st.txManager,
		AccountRepo:       st.accounts,
		ParticipantRepo:   st.participants,
		OutboxRepo:        st.outbox,
		Ledger:            ledgerUC,
		IDGen:             idGen,
		Logger:            logger,
		InitialGrant:      cfg.InitialGrant,
		DefaultHourlyRate: cfg.DefaultHourlyRate,
	})

	sessionUC, err := usecase.NewSessionUseCase(usecase.SessionConfig{
		TxManager:       st.txManager,
		SessionRepo:     st.sessions,
		ParticipantRepo: st.participants,
		AccountRepo:     st.accounts,
		OutboxRepo:      st.outbox,
		Ledger:          ledgerUC,
		ScheduleLocker:  st.locker,
		IDGen:           idGen,
		Recorder:        m,
		Logger:          logger,
		ConfirmLease:    cfg.ConfirmLease,
		CompleteLease:   cfg.CompleteLease,
		BookingHold:     cfg.BookingHold,
		RoomLeadIn:      cfg.RoomLeadIn,
	})
	if err != nil {
		return nil, err
	}

	roomUC := usecase.NewRoomUseCase(sessionUC, st.rooms, logger, cfg.RoomTTL)
	reconciliationUC := usecase.NewReconciliationUseCase(st.ledger)

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		rateLimiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)
	}

	var jwtManager *auth.JWTManager
	if cfg.AuthEnabled {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	} else {
		logger.Warn().Msg("authentication disabled, callers are taken from X-Caller-ID headers")
	}

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		ParticipantHandler: handler.NewParticipantHandler(accountUC),
		SessionHandler:     handler.NewSessionHandler(sessionUC, postgresRepo.NewRetrier(logger, postgresRepo.WithMaxRetries(1))),
		LedgerHandler:      handler.NewLedgerHandler(ledgerUC),
		RoomHandler:        handler.NewRoomHandler(roomUC),
		AdminHandler:       handler.NewAdminHandler(reconciliationUC),
		HealthHandler:      handler.NewHealthHandler(st.checks),
		Authenticator:      middleware.NewAuthenticator(jwtManager, cfg.AuthEnabled, m),
		Idempotency:        middleware.NewIdempotencyMiddleware(st.idempotency, cfg.IdempotencyTTL, logger),
		RateLimiter:        rateLimiter,
		Metrics:            m,
		Gatherer:           registry,
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	return &application{
		router: router,
		publisher: eventpublisher.NewEventPublisher(eventpublisher.Config{
			OutboxRepo: st.outbox,
			Publisher:  st.publishers,
			Observer:   m,
			Logger:     logger,
			BatchSize:  cfg.OutboxBatchSize,
			Interval:   cfg.OutboxInterval,
			Retention:  cfg.OutboxRetention,
		}),
		sweeper: recovery.NewSweeper(recovery.Config{
			Sessions: sessionUC,
			Observer: m,
			Logger:   logger,
			Interval: cfg.RecoveryInterval,
		}),
		rateLimiter: rateLimiter,
	}, nil
}
