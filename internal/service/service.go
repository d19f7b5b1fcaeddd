// Package service orchestrates the community verification pipeline:
// reading submission with plausibility checks, vote recording,
// consensus finalization and reputation fan-out.
package service

import (
	"context"
	"time"

	"github.com/communimeter/verify-worker/internal/config"
	"github.com/communimeter/verify-worker/internal/consensus"
	"github.com/communimeter/verify-worker/internal/db"
	"github.com/communimeter/verify-worker/internal/metrics"
	"github.com/communimeter/verify-worker/internal/mq"
	"github.com/communimeter/verify-worker/internal/plausibility"
	"github.com/communimeter/verify-worker/internal/repository"
	"github.com/communimeter/verify-worker/internal/reputation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the persistence surface the service depends on. It is
// satisfied by *repository.Repository.
type Store interface {
	BeginTx(ctx context.Context) (repository.Tx, error)

	GetReading(ctx context.Context, id uuid.UUID) (*db.Reading, error)
	GetReadingForUpdate(ctx context.Context, tx repository.Tx, id uuid.UUID) (*db.Reading, error)
	HasVote(ctx context.Context, tx repository.Tx, readingID, verifierID uuid.UUID) (bool, error)
	GetUserTx(ctx context.Context, tx repository.Tx, id uuid.UUID) (*db.User, error)
	InsertVote(ctx context.Context, tx repository.Tx, vote *db.Vote) error
	IncrementVerifierStats(ctx context.Context, tx repository.Tx, userID uuid.UUID, xp int) error
	ListVotesForReading(ctx context.Context, tx repository.Tx, readingID uuid.UUID) ([]db.Vote, error)
	FinalizeReading(ctx context.Context, tx repository.Tx, readingID uuid.UUID, status consensus.Status, score float64) error
	IncrementOwnerVerified(ctx context.Context, tx repository.Tx, userID uuid.UUID, xp int) error
	ApplyReputationAdjustment(ctx context.Context, tx repository.Tx, adj reputation.Adjustment) error

	GetMeterOwned(ctx context.Context, tx repository.Tx, meterID, userID uuid.UUID) (*db.Meter, error)
	GetLatestReading(ctx context.Context, tx repository.Tx, meterID uuid.UUID) (*db.Reading, error)
	GetRecentDailyUsage(ctx context.Context, tx repository.Tx, meterID uuid.UUID, limit int) ([]float64, error)
	InsertReading(ctx context.Context, tx repository.Tx, reading *db.Reading) error
	IncrementOwnerReadingStats(ctx context.Context, tx repository.Tx, userID uuid.UUID, xp int) error
	UpdateMeterSamples(ctx context.Context, tx repository.Tx, meterID uuid.UUID, samples []string) error

	VerificationQueue(ctx context.Context, verifierID uuid.UUID, meterType *string, votesRequired, limit int) ([]db.QueueItem, error)
	CountAvailableForVerifier(ctx context.Context, verifierID uuid.UUID) (int, error)
	VoteCountsByValue(ctx context.Context, readingID uuid.UUID) (map[consensus.VoteValue]int, error)
	GetUserVote(ctx context.Context, readingID, verifierID uuid.UUID) (*db.Vote, error)
	CountVotesByVerifier(ctx context.Context, verifierID uuid.UUID) (int, error)
	CountVotesByVerifierSince(ctx context.Context, verifierID uuid.UUID, since time.Time) (int, error)
	ListResolvedVotesByVerifier(ctx context.Context, verifierID uuid.UUID) ([]repository.ResolvedVote, error)
	ListRecentVotesByVerifier(ctx context.Context, verifierID uuid.UUID, limit int) ([]db.Vote, error)
	Leaderboard(ctx context.Context, since *time.Time, limit int) ([]repository.LeaderboardRow, error)
}

// EventPublisher dispatches status events after a reading is decided.
// It is satisfied by *mq.Publisher.
type EventPublisher interface {
	PublishStatusEvent(ctx context.Context, event mq.StatusEvent, routingKey string) error
}

// VerificationService coordinates the verification core against
// persistence and the event bus.
type VerificationService struct {
	repo      Store
	engine    *consensus.Engine
	filter    *plausibility.Filter
	publisher EventPublisher
	metrics   *metrics.Metrics
	cfg       *config.Config
	logger    *zap.Logger

	// now is swappable in tests.
	now func() time.Time
}

// NewVerificationService creates a new verification service
func NewVerificationService(
	repo Store,
	engine *consensus.Engine,
	filter *plausibility.Filter,
	publisher EventPublisher,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *VerificationService {
	return &VerificationService{
		repo:      repo,
		engine:    engine,
		filter:    filter,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}
