package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/communimeter/verify-worker/internal/consensus"
	"github.com/communimeter/verify-worker/internal/db"
	"github.com/communimeter/verify-worker/internal/reputation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is an alias for pgx.Tx
type Tx = pgx.Tx

const readingColumns = `
	id, meter_id, user_id, raw_value, normalized_value, numeric_value,
	confidence, verification_status, verification_score, flagged_for_review,
	flag_reason, usage_since_last, days_since_last, captured_at, created_at
`

// Repository handles database operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// BeginTx starts a new transaction
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (*db.Reading, error) {
	var reading db.Reading
	var status string
	err := row.Scan(
		&reading.ID,
		&reading.MeterID,
		&reading.UserID,
		&reading.RawValue,
		&reading.NormalizedValue,
		&reading.NumericValue,
		&reading.Confidence,
		&status,
		&reading.VerificationScore,
		&reading.FlaggedForReview,
		&reading.FlagReason,
		&reading.UsageSinceLast,
		&reading.DaysSinceLast,
		&reading.CapturedAt,
		&reading.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	reading.VerificationStatus, err = consensus.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return &reading, nil
}

// GetReading loads a reading by id. Returns nil when it does not exist.
func (r *Repository) GetReading(ctx context.Context, id uuid.UUID) (*db.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM readings WHERE id = $1`

	reading, err := scanReading(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reading: %w", err)
	}
	return reading, nil
}

// GetReadingForUpdate loads a reading inside tx and takes a row lock on
// it. Votes racing to finalize the same reading serialize here.
func (r *Repository) GetReadingForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*db.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM readings WHERE id = $1 FOR UPDATE`

	reading, err := scanReading(tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock reading: %w", err)
	}
	return reading, nil
}

// HasVote reports whether the verifier has already voted on the reading.
func (r *Repository) HasVote(ctx context.Context, tx pgx.Tx, readingID, verifierID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM verification_votes
			WHERE reading_id = $1 AND verifier_id = $2
		)
	`

	var exists bool
	if err := tx.QueryRow(ctx, query, readingID, verifierID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check existing vote: %w", err)
	}
	return exists, nil
}

// GetUserTx loads a user inside tx. Returns nil when it does not exist.
func (r *Repository) GetUserTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*db.User, error) {
	query := `
		SELECT id, display_name, trust_score, xp, total_readings,
		       verified_readings, verifications_performed, created_at
		FROM users
		WHERE id = $1
	`

	var user db.User
	err := tx.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.DisplayName,
		&user.TrustScore,
		&user.XP,
		&user.TotalReadings,
		&user.VerifiedReadings,
		&user.VerificationsPerformed,
		&user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// InsertVote persists a new vote within a transaction
func (r *Repository) InsertVote(ctx context.Context, tx pgx.Tx, vote *db.Vote) error {
	query := `
		INSERT INTO verification_votes (
			reading_id, verifier_id, vote, suggested_value, verifier_trust_score, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := tx.QueryRow(ctx, query,
		vote.ReadingID,
		vote.VerifierID,
		string(vote.Vote),
		vote.SuggestedValue,
		vote.VerifierTrustScore,
		vote.CreatedAt,
	).Scan(&vote.ID)

	if err != nil {
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return nil
}

// IncrementVerifierStats credits a verifier for casting a vote.
func (r *Repository) IncrementVerifierStats(ctx context.Context, tx pgx.Tx, userID uuid.UUID, xp int) error {
	query := `
		UPDATE users
		SET verifications_performed = verifications_performed + 1,
		    xp = xp + $1
		WHERE id = $2
	`

	if _, err := tx.Exec(ctx, query, xp, userID); err != nil {
		return fmt.Errorf("failed to update verifier stats: %w", err)
	}
	return nil
}

// ListVotesForReading loads all votes on a reading, oldest first.
func (r *Repository) ListVotesForReading(ctx context.Context, tx pgx.Tx, readingID uuid.UUID) ([]db.Vote, error) {
	query := `
		SELECT id, reading_id, verifier_id, vote, suggested_value, verifier_trust_score, created_at
		FROM verification_votes
		WHERE reading_id = $1
		ORDER BY created_at
	`

	rows, err := tx.Query(ctx, query, readingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
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

// FinalizeReading records the consensus decision on a reading.
func (r *Repository) FinalizeReading(ctx context.Context, tx pgx.Tx, readingID uuid.UUID, status consensus.Status, score float64) error {
	query := `
		UPDATE readings
		SET verification_status = $1, verification_score = $2
		WHERE id = $3
	`

	if _, err := tx.Exec(ctx, query, string(status), score, readingID); err != nil {
		return fmt.Errorf("failed to finalize reading: %w", err)
	}
	return nil
}

// IncrementOwnerVerified credits a reading owner when their reading is
// verified.
func (r *Repository) IncrementOwnerVerified(ctx context.Context, tx pgx.Tx, userID uuid.UUID, xp int) error {
	query := `
		UPDATE users
		SET verified_readings = verified_readings + 1,
		    xp = xp + $1
		WHERE id = $2
	`

	if _, err := tx.Exec(ctx, query, xp, userID); err != nil {
		return fmt.Errorf("failed to update owner stats: %w", err)
	}
	return nil
}

// ApplyReputationAdjustment applies one voter's trust and XP delta.
// The trust score is clamped to its bounds in the database so that a
// concurrent adjustment can never push it out of range.
func (r *Repository) ApplyReputationAdjustment(ctx context.Context, tx pgx.Tx, adj reputation.Adjustment) error {
	query := `
		UPDATE users
		SET trust_score = LEAST($1, GREATEST($2, trust_score + $3)),
		    xp = xp + $4
		WHERE id = $5
	`

	if _, err := tx.Exec(ctx, query,
		reputation.TrustMax,
		reputation.TrustMin,
		adj.TrustDelta,
		adj.XPDelta,
		adj.UserID,
	); err != nil {
		return fmt.Errorf("failed to apply reputation adjustment: %w", err)
	}
	return nil
}

// touchTime returns now in UTC; split out so tests can compare stored
// timestamps without truncation surprises.
func touchTime() time.Time {
	return time.Now().UTC()
}
