package service

import (
	"context"
	"time"

	"github.com/communimeter/verify-worker/internal/consensus"
	"github.com/communimeter/verify-worker/internal/db"
	"github.com/communimeter/verify-worker/internal/repository"
	"github.com/google/uuid"
)

// QueueResult is one page of the verification queue plus the total
// supply of readings the verifier could still vote on.
type QueueResult struct {
	Items          []db.QueueItem
	TotalAvailable int
}

// GetQueue returns pending readings the verifier is eligible to vote
// on: not their own, not yet voted on by them, still pending and short
// of quorum. Near-resolution readings surface first.
func (s *VerificationService) GetQueue(ctx context.Context, verifierID uuid.UUID, meterType *string, limit int) (*QueueResult, error) {
	if limit <= 0 {
		limit = s.cfg.Queue.DefaultLimit
	}
	if limit > s.cfg.Queue.MaxLimit {
		limit = s.cfg.Queue.MaxLimit
	}

	items, err := s.repo.VerificationQueue(ctx, verifierID, meterType, s.cfg.Consensus.VotesRequired, limit)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.CountAvailableForVerifier(ctx, verifierID)
	if err != nil {
		return nil, err
	}

	return &QueueResult{Items: items, TotalAvailable: total}, nil
}

// StatusSummary describes where a reading stands in verification.
type StatusSummary struct {
	ReadingID        uuid.UUID
	Status           consensus.Status
	TotalVotes       int
	VotesCorrect     int
	VotesIncorrect   int
	VotesUnclear     int
	ConsensusReached bool
	YourVote         consensus.VoteValue
}

// GetVerificationStatus summarizes a reading's votes for the requesting
// verifier. The consensus_reached hint uses unweighted counts; the
// authoritative decision is the stored status.
func (s *VerificationService) GetVerificationStatus(ctx context.Context, readingID, verifierID uuid.UUID) (*StatusSummary, error) {
	reading, err := s.repo.GetReading(ctx, readingID)
	if err != nil {
		return nil, err
	}
	if reading == nil {
		return nil, ErrReadingNotFound
	}

	counts, err := s.repo.VoteCountsByValue(ctx, readingID)
	if err != nil {
		return nil, err
	}

	summary := &StatusSummary{
		ReadingID:      readingID,
		Status:         reading.VerificationStatus,
		VotesCorrect:   counts[consensus.VoteCorrect],
		VotesIncorrect: counts[consensus.VoteIncorrect],
		VotesUnclear:   counts[consensus.VoteUnclear],
	}
	summary.TotalVotes = summary.VotesCorrect + summary.VotesIncorrect + summary.VotesUnclear

	if summary.TotalVotes >= s.cfg.Consensus.VotesRequired {
		leading := summary.VotesCorrect
		if summary.VotesIncorrect > leading {
			leading = summary.VotesIncorrect
		}
		if float64(leading)/float64(summary.TotalVotes) >= s.cfg.Consensus.ConsensusThreshold {
			summary.ConsensusReached = true
		}
	}

	userVote, err := s.repo.GetUserVote(ctx, readingID, verifierID)
	if err != nil {
		return nil, err
	}
	if userVote != nil {
		summary.YourVote = userVote.Vote
	}

	return summary, nil
}

// HistorySummary is a verifier's track record.
type HistorySummary struct {
	TotalVerifications    int
	VerificationsThisWeek int
	ConsensusMatches      int
	ConsensusRate         float64
	XPEarned              int
	RecentVotes           []db.Vote
}

// GetVerifierHistory reports a verifier's totals, consensus accuracy
// and recent votes.
func (s *VerificationService) GetVerifierHistory(ctx context.Context, verifierID uuid.UUID, limit int) (*HistorySummary, error) {
	total, err := s.repo.CountVotesByVerifier(ctx, verifierID)
	if err != nil {
		return nil, err
	}

	weekAgo := s.now().Add(-7 * 24 * time.Hour)
	thisWeek, err := s.repo.CountVotesByVerifierSince(ctx, verifierID, weekAgo)
	if err != nil {
		return nil, err
	}

	resolved, err := s.repo.ListResolvedVotesByVerifier(ctx, verifierID)
	if err != nil {
		return nil, err
	}

	matches := 0
	for _, rv := range resolved {
		if (rv.Vote == consensus.VoteCorrect && rv.FinalStatus == consensus.StatusVerified) ||
			(rv.Vote == consensus.VoteIncorrect && rv.FinalStatus == consensus.StatusRejected) {
			matches++
		}
	}

	rate := 0.0
	if len(resolved) > 0 {
		rate = float64(matches) / float64(len(resolved))
	}

	recent, err := s.repo.ListRecentVotesByVerifier(ctx, verifierID, limit)
	if err != nil {
		return nil, err
	}

	return &HistorySummary{
		TotalVerifications:    total,
		VerificationsThisWeek: thisWeek,
		ConsensusMatches:      matches,
		ConsensusRate:         rate,
		XPEarned:              total*s.cfg.Consensus.XPForVerification + matches*s.cfg.Consensus.XPBonusConsensus,
		RecentVotes:           recent,
	}, nil
}

// GetLeaderboard returns the top verifiers for the given period
// ("week", "month" or "all").
func (s *VerificationService) GetLeaderboard(ctx context.Context, period string, limit int) ([]repository.LeaderboardRow, error) {
	var since *time.Time
	switch period {
	case "week":
		t := s.now().Add(-7 * 24 * time.Hour)
		since = &t
	case "month":
		t := s.now().Add(-30 * 24 * time.Hour)
		since = &t
	}

	return s.repo.Leaderboard(ctx, since, limit)
}
