package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/communimeter/verify-worker/internal/consensus"
	"github.com/communimeter/verify-worker/internal/db"
	"github.com/google/uuid"
)

// ResolvedVote pairs a past vote with the final status of its reading.
type ResolvedVote struct {
	Vote        consensus.VoteValue
	FinalStatus consensus.Status
}

// LeaderboardRow is one verifier's standing on the leaderboard.
type LeaderboardRow struct {
	UserID        uuid.UUID
	DisplayName   string
	TrustScore    int
	Verifications int
}

// CountVotesByVerifier counts all votes a verifier has ever cast.
func (r *Repository) CountVotesByVerifier(ctx context.Context, verifierID uuid.UUID) (int, error) {
	query := `SELECT COUNT(id) FROM verification_votes WHERE verifier_id = $1`

	var count int
	if err := r.pool.QueryRow(ctx, query, verifierID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count votes: %w", err)
	}
	return count, nil
}

// CountVotesByVerifierSince counts votes cast at or after since.
func (r *Repository) CountVotesByVerifierSince(ctx context.Context, verifierID uuid.UUID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(id)
		FROM verification_votes
		WHERE verifier_id = $1 AND created_at >= $2
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, verifierID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent votes: %w", err)
	}
	return count, nil
}

// ListResolvedVotesByVerifier returns the verifier's votes on readings
// that reached a verified or rejected outcome, for consensus-rate stats.
func (r *Repository) ListResolvedVotesByVerifier(ctx context.Context, verifierID uuid.UUID) ([]ResolvedVote, error) {
	query := `
		SELECT v.vote, r.verification_status
		FROM verification_votes v
		JOIN readings r ON r.id = v.reading_id
		WHERE v.verifier_id = $1
		  AND r.verification_status IN ('verified', 'rejected')
	`

	rows, err := r.pool.Query(ctx, query, verifierID)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolved votes: %w", err)
	}
	defer rows.Close()

	var resolved []ResolvedVote
	for rows.Next() {
		var vote, status string
		if err := rows.Scan(&vote, &status); err != nil {
			return nil, fmt.Errorf("failed to scan resolved vote: %w", err)
		}
		resolved = append(resolved, ResolvedVote{
			Vote:        consensus.VoteValue(vote),
			FinalStatus: consensus.Status(status),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return resolved, nil
}

// ListRecentVotesByVerifier returns the verifier's latest votes.
func (r *Repository) ListRecentVotesByVerifier(ctx context.Context, verifierID uuid.UUID, limit int) ([]db.Vote, error) {
	query := `
		SELECT id, reading_id, verifier_id, vote, suggested_value, verifier_trust_score, created_at
		FROM verification_votes
		WHERE verifier_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, verifierID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent votes: %w", err)
	}
	defer rows.Close()

	var votes []db.Vote
	for rows.Next() {
		var vote db.Vote
		var value string
		if err := rows.Scan(
			&vote.ID,
			&vote.ReadingID,
			&vote.VerifierID,
			&value,
			&vote.SuggestedValue,
			&vote.VerifierTrustScore,
			&vote.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		vote.Vote = consensus.VoteValue(value)
		votes = append(votes, vote)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return votes, nil
}

// Leaderboard returns the top verifiers by vote count. since limits the
// window; nil means all time.
func (r *Repository) Leaderboard(ctx context.Context, since *time.Time, limit int) ([]LeaderboardRow, error) {
	query := `
		SELECT u.id, u.display_name, u.trust_score, COUNT(v.id) AS verification_count
		FROM users u
		JOIN verification_votes v ON v.verifier_id = u.id
		WHERE ($1::timestamptz IS NULL OR v.created_at >= $1)
		GROUP BY u.id, u.display_name, u.trust_score
		ORDER BY verification_count DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var board []LeaderboardRow
	for rows.Next() {
		var row LeaderboardRow
		if err := rows.Scan(&row.UserID, &row.DisplayName, &row.TrustScore, &row.Verifications); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		board = append(board, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return board, nil
}
