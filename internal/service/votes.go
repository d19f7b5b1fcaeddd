package service

import (
	"context"
	"fmt"

	"github.com/communimeter/verify-worker/internal/consensus"
	"github.com/communimeter/verify-worker/internal/db"
	"github.com/communimeter/verify-worker/internal/mq"
	"github.com/communimeter/verify-worker/internal/repository"
	"github.com/communimeter/verify-worker/internal/reputation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VoteResult reports a recorded vote together with the consensus
// outcome its finalize check produced.
type VoteResult struct {
	Vote    *db.Vote
	Outcome consensus.Outcome
}

// CastVote records one verifier's judgment on a reading and runs the
// finalize check. The whole sequence runs in one transaction holding a
// row lock on the reading, so two votes racing to be the quorum vote
// cannot both finalize it.
func (s *VerificationService) CastVote(
	ctx context.Context,
	readingID, verifierID uuid.UUID,
	value consensus.VoteValue,
	suggestedValue *string,
) (*VoteResult, error) {
	if !value.Valid() {
		s.metrics.VotesRejected.WithLabelValues("invalid_vote").Inc()
		return nil, ErrInvalidVote
	}
	if value == consensus.VoteIncorrect && (suggestedValue == nil || *suggestedValue == "") {
		s.metrics.VotesRejected.WithLabelValues("missing_suggested_value").Inc()
		return nil, ErrSuggestedValueRequired
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	reading, err := s.repo.GetReadingForUpdate(ctx, tx, readingID)
	if err != nil {
		return nil, err
	}
	if reading == nil {
		s.metrics.VotesRejected.WithLabelValues("not_found").Inc()
		return nil, ErrReadingNotFound
	}
	if reading.UserID == verifierID {
		s.metrics.VotesRejected.WithLabelValues("own_reading").Inc()
		return nil, ErrOwnReading
	}

	alreadyVoted, err := s.repo.HasVote(ctx, tx, readingID, verifierID)
	if err != nil {
		return nil, err
	}
	if alreadyVoted {
		s.metrics.VotesRejected.WithLabelValues("duplicate").Inc()
		return nil, ErrAlreadyVoted
	}

	verifier, err := s.repo.GetUserTx(ctx, tx, verifierID)
	if err != nil {
		return nil, err
	}
	if verifier == nil {
		s.metrics.VotesRejected.WithLabelValues("not_found").Inc()
		return nil, ErrUserNotFound
	}

	// Snapshot the trust score at cast time; consensus weighting must
	// stay reproducible after later reputation changes.
	snapshot := verifier.TrustScore
	vote := &db.Vote{
		ReadingID:          readingID,
		VerifierID:         verifierID,
		Vote:               value,
		SuggestedValue:     suggestedValue,
		VerifierTrustScore: &snapshot,
		CreatedAt:          s.now(),
	}

	if err := s.repo.InsertVote(ctx, tx, vote); err != nil {
		return nil, err
	}
	if err := s.repo.IncrementVerifierStats(ctx, tx, verifierID, s.cfg.Consensus.XPForVerification); err != nil {
		return nil, err
	}

	outcome, transitioned, err := s.finalize(ctx, tx, reading)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.VotesCast.Inc()
	s.logger.Info("vote recorded",
		zap.String("reading_id", readingID.String()),
		zap.String("verifier_id", verifierID.String()),
		zap.String("vote", string(value)),
		zap.String("status", string(outcome.Status)),
	)

	// Event emission happens after commit and never rolls back the
	// transaction that produced it.
	if transitioned {
		s.publishOutcome(ctx, reading, outcome)
	}

	return &VoteResult{Vote: vote, Outcome: outcome}, nil
}

// finalize evaluates consensus for a reading whose row lock is held by
// tx. The returned bool is true only when this call moved the reading
// to a terminal state: a reading that is already terminal is left
// untouched, so re-running finalize re-applies no reputation effects.
func (s *VerificationService) finalize(ctx context.Context, tx repository.Tx, reading *db.Reading) (consensus.Outcome, bool, error) {
	if reading.VerificationStatus.Terminal() {
		return consensus.Outcome{Status: reading.VerificationStatus, Winner: consensus.VoteNone}, false, nil
	}

	votes, err := s.repo.ListVotesForReading(ctx, tx, reading.ID)
	if err != nil {
		return consensus.Outcome{}, false, err
	}

	ballots := make([]consensus.Ballot, len(votes))
	for i, v := range votes {
		weight := 0
		if v.VerifierTrustScore != nil {
			weight = *v.VerifierTrustScore
		}
		ballots[i] = consensus.Ballot{Value: v.Vote, Weight: weight}
	}

	outcome := s.engine.Evaluate(ballots)
	if !outcome.Decided() {
		return outcome, false, nil
	}

	if err := s.repo.FinalizeReading(ctx, tx, reading.ID, outcome.Status, outcome.Score); err != nil {
		return consensus.Outcome{}, false, err
	}

	if outcome.Status == consensus.StatusVerified {
		if err := s.repo.IncrementOwnerVerified(ctx, tx, reading.UserID, s.cfg.Consensus.XPVerifiedBonus); err != nil {
			return consensus.Outcome{}, false, err
		}
	}

	if outcome.Winner != consensus.VoteNone {
		voterBallots := make([]reputation.VoterBallot, len(votes))
		for i, v := range votes {
			voterBallots[i] = reputation.VoterBallot{VerifierID: v.VerifierID, Value: v.Vote}
		}
		adjustments := reputation.Adjustments(voterBallots, outcome.Winner, s.cfg.Consensus.XPBonusConsensus)
		for _, adj := range adjustments {
			if err := s.repo.ApplyReputationAdjustment(ctx, tx, adj); err != nil {
				return consensus.Outcome{}, false, err
			}
		}
		s.metrics.ReputationUpdates.Add(float64(len(adjustments)))
	}

	s.metrics.ConsensusDecided.WithLabelValues(string(outcome.Status)).Inc()
	s.logger.Info("reading finalized",
		zap.String("reading_id", reading.ID.String()),
		zap.String("status", string(outcome.Status)),
		zap.Float64("score", outcome.Score),
		zap.Int("votes", outcome.TotalVotes),
	)

	return outcome, true, nil
}

// publishOutcome emits a status event for verified and rejected
// readings. Failures are logged and swallowed; dispatch is
// fire-and-forget.
func (s *VerificationService) publishOutcome(ctx context.Context, reading *db.Reading, outcome consensus.Outcome) {
	var routingKey string
	switch outcome.Status {
	case consensus.StatusVerified:
		routingKey = s.cfg.RabbitMQ.VerifiedRoutingKey
	case consensus.StatusRejected:
		routingKey = s.cfg.RabbitMQ.RejectedRoutingKey
	default:
		return
	}

	event := mq.StatusEvent{
		ReadingID:         reading.ID.String(),
		MeterID:           reading.MeterID.String(),
		OwnerID:           reading.UserID.String(),
		Status:            string(outcome.Status),
		VerificationScore: outcome.Score,
		TotalVotes:        outcome.TotalVotes,
	}

	if err := s.publisher.PublishStatusEvent(ctx, event, routingKey); err != nil {
		s.logger.Error("failed to publish status event",
			zap.Error(err),
			zap.String("reading_id", event.ReadingID),
			zap.String("routing_key", routingKey),
		)
	}
}
