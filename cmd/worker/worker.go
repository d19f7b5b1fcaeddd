package main

import (
	"context"

	"github.com/communimeter/verify-worker/internal/config"
	"github.com/communimeter/verify-worker/internal/consensus"
	"github.com/communimeter/verify-worker/internal/db"
	"github.com/communimeter/verify-worker/internal/httpapi"
	"github.com/communimeter/verify-worker/internal/metrics"
	"github.com/communimeter/verify-worker/internal/mq"
	"github.com/communimeter/verify-worker/internal/plausibility"
	"github.com/communimeter/verify-worker/internal/repository"
	"github.com/communimeter/verify-worker/internal/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// startWorker binds the submission and vote consumers to the fx
// lifecycle. Each queue has its own channel and prefetch window.
func startWorker(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	svc *service.VerificationService,
) error {
	ctx, cancel := context.WithCancel(context.Background())

	submissions, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.SubmissionQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.IngestExchange,
		RoutingKey:    cfg.RabbitMQ.SubmissionKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       svc.HandleSubmissionMessage,
	})
	if err != nil {
		cancel()
		return err
	}

	votes, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.VoteQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.IngestExchange,
		RoutingKey:    cfg.RabbitMQ.VoteKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       svc.HandleVoteMessage,
	})
	if err != nil {
		cancel()
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting consumers",
				zap.String("submission_queue", cfg.RabbitMQ.SubmissionQueue),
				zap.String("vote_queue", cfg.RabbitMQ.VoteQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			if err := submissions.Start(ctx); err != nil {
				return err
			}
			return votes.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := submissions.Close(); err != nil {
				logger.Error("failed to close submission consumer", zap.Error(err))
			}
			if err := votes.Close(); err != nil {
				logger.Error("failed to close vote consumer", zap.Error(err))
				return err
			}
			logger.Info("worker stopped gracefully")
			return nil
		},
	})

	return nil
}

// startHTTP runs the read-side API and metrics endpoint.
func startHTTP(lc fx.Lifecycle, server *httpapi.Server, cfg *config.Config, logger *zap.Logger) {
	httpapi.StartServer(lc, server, cfg.ServicePort, logger)
}

// ProvideRepository creates a new repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideConsensusEngine creates the consensus engine from config
func ProvideConsensusEngine(cfg *config.Config) *consensus.Engine {
	return consensus.NewEngine(consensus.Config{
		VotesRequired: cfg.Consensus.VotesRequired,
		Threshold:     cfg.Consensus.ConsensusThreshold,
	})
}

// ProvidePlausibilityFilter creates the plausibility filter from config
func ProvidePlausibilityFilter(cfg *config.Config) *plausibility.Filter {
	return plausibility.NewFilter(
		cfg.Plausibility.DailyUsageCeilingFactor,
		cfg.Plausibility.MinSamplesForCeiling,
	)
}

// ProvideMetrics creates the Prometheus metrics set
func ProvideMetrics() *metrics.Metrics {
	return metrics.New()
}

// ProvidePublisher creates a new status event publisher
func ProvidePublisher(conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	return mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
}

// ProvideVerificationService creates the verification service
func ProvideVerificationService(
	repo *repository.Repository,
	engine *consensus.Engine,
	filter *plausibility.Filter,
	publisher *mq.Publisher,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *service.VerificationService {
	return service.NewVerificationService(repo, engine, filter, publisher, m, cfg, logger)
}

// ProvideHTTPServer creates the HTTP API server
func ProvideHTTPServer(svc *service.VerificationService, m *metrics.Metrics, logger *zap.Logger) *httpapi.Server {
	return httpapi.NewServer(svc, m, logger)
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideMQConnection creates a new RabbitMQ connection instance
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}
