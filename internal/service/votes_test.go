package service_test

import (
	"context"
	"testing"

	"github.com/communimeter/verify-worker/internal/config"
	"github.com/communimeter/verify-worker/internal/consensus"
	"github.com/communimeter/verify-worker/internal/db"
	"github.com/communimeter/verify-worker/internal/metrics"
	"github.com/communimeter/verify-worker/internal/mq"
	"github.com/communimeter/verify-worker/internal/plausibility"
	"github.com/communimeter/verify-worker/internal/repository"
	"github.com/communimeter/verify-worker/internal/reputation"
	"github.com/communimeter/verify-worker/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTx satisfies the transaction handle without a database. Embedding
// leaves unimplemented methods panicking, which is what a test wants.
type fakeTx struct{ repository.Tx }

func (fakeTx) Commit(ctx context.Context) error   { return nil }
func (fakeTx) Rollback(ctx context.Context) error { return nil }

// fakeStore records the persistence calls CastVote makes. Methods the
// vote path never touches are left to the embedded interface.
type fakeStore struct {
	service.Store

	reading  *db.Reading
	verifier *db.User
	votes    []db.Vote
	beginErr error

	insertedVotes   []*db.Vote
	statsIncrements int
	finalizeCalls   int
	ownerVerified   int
	adjustments     []reputation.Adjustment
}

func (f *fakeStore) BeginTx(ctx context.Context) (repository.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return fakeTx{}, nil
}

func (f *fakeStore) GetReadingForUpdate(ctx context.Context, tx repository.Tx, id uuid.UUID) (*db.Reading, error) {
	return f.reading, nil
}

func (f *fakeStore) HasVote(ctx context.Context, tx repository.Tx, readingID, verifierID uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeStore) GetUserTx(ctx context.Context, tx repository.Tx, id uuid.UUID) (*db.User, error) {
	return f.verifier, nil
}

func (f *fakeStore) InsertVote(ctx context.Context, tx repository.Tx, vote *db.Vote) error {
	f.insertedVotes = append(f.insertedVotes, vote)
	return nil
}

func (f *fakeStore) IncrementVerifierStats(ctx context.Context, tx repository.Tx, userID uuid.UUID, xp int) error {
	f.statsIncrements++
	return nil
}

func (f *fakeStore) ListVotesForReading(ctx context.Context, tx repository.Tx, readingID uuid.UUID) ([]db.Vote, error) {
	return f.votes, nil
}

func (f *fakeStore) FinalizeReading(ctx context.Context, tx repository.Tx, readingID uuid.UUID, status consensus.Status, score float64) error {
	f.finalizeCalls++
	return nil
}

func (f *fakeStore) IncrementOwnerVerified(ctx context.Context, tx repository.Tx, userID uuid.UUID, xp int) error {
	f.ownerVerified++
	return nil
}

func (f *fakeStore) ApplyReputationAdjustment(ctx context.Context, tx repository.Tx, adj reputation.Adjustment) error {
	f.adjustments = append(f.adjustments, adj)
	return nil
}

type fakePublisher struct {
	events      []mq.StatusEvent
	routingKeys []string
}

func (f *fakePublisher) PublishStatusEvent(ctx context.Context, event mq.StatusEvent, routingKey string) error {
	f.events = append(f.events, event)
	f.routingKeys = append(f.routingKeys, routingKey)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		RabbitMQ: config.RabbitMQConfig{
			VerifiedRoutingKey: "reading.verified",
			RejectedRoutingKey: "reading.rejected",
		},
		Consensus: config.ConsensusConfig{
			VotesRequired:      3,
			ConsensusThreshold: 0.67,
			XPForVerification:  5,
			XPBonusConsensus:   10,
			XPForReading:       10,
			XPVerifiedBonus:    5,
		},
	}
}

func newTestService(store *fakeStore, pub *fakePublisher) *service.VerificationService {
	cfg := testConfig()
	engine := consensus.NewEngine(consensus.Config{
		VotesRequired: cfg.Consensus.VotesRequired,
		Threshold:     cfg.Consensus.ConsensusThreshold,
	})
	filter := plausibility.NewFilter(10, 3)
	return service.NewVerificationService(store, engine, filter, pub, metrics.New(), cfg, zap.NewNop())
}

func trustPtr(v int) *int { return &v }

func TestCastVote_TerminalReadingIsNotRefinalized(t *testing.T) {
	readingID := uuid.New()
	ownerID := uuid.New()
	verifierID := uuid.New()

	store := &fakeStore{
		reading: &db.Reading{
			ID:                 readingID,
			MeterID:            uuid.New(),
			UserID:             ownerID,
			VerificationStatus: consensus.StatusVerified,
		},
		verifier: &db.User{ID: verifierID, TrustScore: 60},
	}
	pub := &fakePublisher{}
	svc := newTestService(store, pub)

	res, err := svc.CastVote(context.Background(), readingID, verifierID, consensus.VoteCorrect, nil)
	require.NoError(t, err)

	// The late vote is recorded and credited...
	assert.Len(t, store.insertedVotes, 1)
	assert.Equal(t, 1, store.statsIncrements)

	// ...but the decided reading is left untouched: no re-finalize, no
	// reputation fan-out, no owner bonus, no event.
	assert.Equal(t, consensus.StatusVerified, res.Outcome.Status)
	assert.Zero(t, store.finalizeCalls)
	assert.Zero(t, store.ownerVerified)
	assert.Empty(t, store.adjustments)
	assert.Empty(t, pub.events)
}

func TestCastVote_QuorumVoteFinalizesAndPublishes(t *testing.T) {
	readingID := uuid.New()
	ownerID := uuid.New()
	verifierID := uuid.New()
	dissenterID := uuid.New()

	store := &fakeStore{
		reading: &db.Reading{
			ID:                 readingID,
			MeterID:            uuid.New(),
			UserID:             ownerID,
			VerificationStatus: consensus.StatusPending,
		},
		verifier: &db.User{ID: verifierID, TrustScore: 50},
		// The stored tally after this vote: two correct, one
		// incorrect, all trust 50. Two thirds verifies.
		votes: []db.Vote{
			{ReadingID: readingID, VerifierID: uuid.New(), Vote: consensus.VoteCorrect, VerifierTrustScore: trustPtr(50)},
			{ReadingID: readingID, VerifierID: dissenterID, Vote: consensus.VoteIncorrect, VerifierTrustScore: trustPtr(50)},
			{ReadingID: readingID, VerifierID: verifierID, Vote: consensus.VoteCorrect, VerifierTrustScore: trustPtr(50)},
		},
	}
	pub := &fakePublisher{}
	svc := newTestService(store, pub)

	res, err := svc.CastVote(context.Background(), readingID, verifierID, consensus.VoteCorrect, nil)
	require.NoError(t, err)

	assert.Equal(t, consensus.StatusVerified, res.Outcome.Status)
	assert.Equal(t, 1, store.finalizeCalls)
	assert.Equal(t, 1, store.ownerVerified)

	// Two winners gain, the dissenter loses.
	assert.Len(t, store.adjustments, 3)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "reading.verified", pub.routingKeys[0])
	assert.Equal(t, string(consensus.StatusVerified), pub.events[0].Status)
	assert.Equal(t, readingID.String(), pub.events[0].ReadingID)
}

func TestCastVote_OwnReadingRejected(t *testing.T) {
	readingID := uuid.New()
	ownerID := uuid.New()

	store := &fakeStore{
		reading: &db.Reading{
			ID:                 readingID,
			UserID:             ownerID,
			VerificationStatus: consensus.StatusPending,
		},
	}
	pub := &fakePublisher{}
	svc := newTestService(store, pub)

	_, err := svc.CastVote(context.Background(), readingID, ownerID, consensus.VoteCorrect, nil)
	assert.ErrorIs(t, err, service.ErrOwnReading)
	assert.Empty(t, store.insertedVotes)
}
