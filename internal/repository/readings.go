package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/communimeter/verify-worker/internal/consensus"
	"github.com/communimeter/verify-worker/internal/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetMeterOwned loads a meter only when it belongs to userID. Returns
// nil when absent or owned by someone else.
func (r *Repository) GetMeterOwned(ctx context.Context, tx pgx.Tx, meterID, userID uuid.UUID) (*db.Meter, error) {
	query := `
		SELECT id, user_id, name, meter_type, digit_count, has_decimal_point,
		       decimal_places, sample_readings, last_read_at, created_at
		FROM meters
		WHERE id = $1 AND user_id = $2
	`

	var meter db.Meter
	var samples []byte
	err := tx.QueryRow(ctx, query, meterID, userID).Scan(
		&meter.ID,
		&meter.UserID,
		&meter.Name,
		&meter.MeterType,
		&meter.DigitCount,
		&meter.HasDecimalPoint,
		&meter.DecimalPlaces,
		&samples,
		&meter.LastReadAt,
		&meter.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query meter: %w", err)
	}

	if len(samples) > 0 {
		if err := json.Unmarshal(samples, &meter.SampleReadings); err != nil {
			return nil, fmt.Errorf("failed to decode sample readings: %w", err)
		}
	}
	return &meter, nil
}

// GetLatestReading loads the meter's most recent reading by capture
// time. Returns nil when the meter has no readings yet.
func (r *Repository) GetLatestReading(ctx context.Context, tx pgx.Tx, meterID uuid.UUID) (*db.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM readings
		WHERE meter_id = $1
		ORDER BY captured_at DESC
		LIMIT 1
	`

	reading, err := scanReading(tx.QueryRow(ctx, query, meterID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest reading: %w", err)
	}
	return reading, nil
}

// GetRecentDailyUsage returns the meter's recent daily usage rates for
// the plausibility ceiling check.
func (r *Repository) GetRecentDailyUsage(ctx context.Context, tx pgx.Tx, meterID uuid.UUID, limit int) ([]float64, error) {
	query := `
		SELECT usage_since_last / days_since_last
		FROM readings
		WHERE meter_id = $1
		  AND usage_since_last IS NOT NULL
		  AND usage_since_last >= 0
		  AND days_since_last > 0
		ORDER BY captured_at DESC
		LIMIT $2
	`

	rows, err := tx.Query(ctx, query, meterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage history: %w", err)
	}
	defer rows.Close()

	var rates []float64
	for rows.Next() {
		var rate float64
		if err := rows.Scan(&rate); err != nil {
			return nil, fmt.Errorf("failed to scan usage rate: %w", err)
		}
		rates = append(rates, rate)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return rates, nil
}

// InsertReading persists a new reading within a transaction
func (r *Repository) InsertReading(ctx context.Context, tx pgx.Tx, reading *db.Reading) error {
	query := `
		INSERT INTO readings (
			meter_id, user_id, raw_value, normalized_value, numeric_value,
			confidence, verification_status, flagged_for_review, flag_reason,
			usage_since_last, days_since_last, captured_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	err := tx.QueryRow(ctx, query,
		reading.MeterID,
		reading.UserID,
		reading.RawValue,
		reading.NormalizedValue,
		reading.NumericValue,
		reading.Confidence,
		string(reading.VerificationStatus),
		reading.FlaggedForReview,
		reading.FlagReason,
		reading.UsageSinceLast,
		reading.DaysSinceLast,
		reading.CapturedAt,
		reading.CreatedAt,
	).Scan(&reading.ID)

	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// IncrementOwnerReadingStats credits a user for submitting a reading.
func (r *Repository) IncrementOwnerReadingStats(ctx context.Context, tx pgx.Tx, userID uuid.UUID, xp int) error {
	query := `
		UPDATE users
		SET total_readings = total_readings + 1,
		    xp = xp + $1
		WHERE id = $2
	`

	if _, err := tx.Exec(ctx, query, xp, userID); err != nil {
		return fmt.Errorf("failed to update reader stats: %w", err)
	}
	return nil
}

// UpdateMeterSamples stores the meter's rolling sample history and
// bumps last_read_at.
func (r *Repository) UpdateMeterSamples(ctx context.Context, tx pgx.Tx, meterID uuid.UUID, samples []string) error {
	encoded, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("failed to encode sample readings: %w", err)
	}

	query := `
		UPDATE meters
		SET sample_readings = $1, last_read_at = $2
		WHERE id = $3
	`

	if _, err := tx.Exec(ctx, query, encoded, touchTime(), meterID); err != nil {
		return fmt.Errorf("failed to update meter samples: %w", err)
	}
	return nil
}

// VerificationQueue returns pending readings the verifier is eligible
// to vote on, ordered closest-to-resolution first with OCR confidence
// as the tie-break.
func (r *Repository) VerificationQueue(ctx context.Context, verifierID uuid.UUID, meterType *string, votesRequired, limit int) ([]db.QueueItem, error) {
	query := `
		SELECT r.id, r.meter_id, r.user_id, r.raw_value, r.normalized_value,
		       r.numeric_value, r.confidence, r.verification_status,
		       r.verification_score, r.flagged_for_review, r.flag_reason,
		       r.usage_since_last, r.days_since_last, r.captured_at, r.created_at,
		       m.meter_type, COALESCE(vc.vote_count, 0)
		FROM readings r
		JOIN meters m ON m.id = r.meter_id
		LEFT JOIN (
			SELECT reading_id, COUNT(id) AS vote_count
			FROM verification_votes
			GROUP BY reading_id
		) vc ON vc.reading_id = r.id
		WHERE r.user_id <> $1
		  AND r.id NOT IN (SELECT reading_id FROM verification_votes WHERE verifier_id = $1)
		  AND r.verification_status = 'pending'
		  AND COALESCE(vc.vote_count, 0) < $2
		  AND ($3::text IS NULL OR m.meter_type = $3)
		ORDER BY vc.vote_count DESC NULLS LAST, r.confidence DESC
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, verifierID, votesRequired, meterType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query verification queue: %w", err)
	}
	defer rows.Close()

	var items []db.QueueItem
	for rows.Next() {
		var item db.QueueItem
		var status string
		if err := rows.Scan(
			&item.Reading.ID,
			&item.Reading.MeterID,
			&item.Reading.UserID,
			&item.Reading.RawValue,
			&item.Reading.NormalizedValue,
			&item.Reading.NumericValue,
			&item.Reading.Confidence,
			&status,
			&item.Reading.VerificationScore,
			&item.Reading.FlaggedForReview,
			&item.Reading.FlagReason,
			&item.Reading.UsageSinceLast,
			&item.Reading.DaysSinceLast,
			&item.Reading.CapturedAt,
			&item.Reading.CreatedAt,
			&item.MeterType,
			&item.VotesCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		item.Reading.VerificationStatus, err = consensus.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return items, nil
}

// CountAvailableForVerifier counts every pending reading the verifier
// could still vote on, independent of the queue page and its vote cap.
func (r *Repository) CountAvailableForVerifier(ctx context.Context, verifierID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(id)
		FROM readings
		WHERE user_id <> $1
		  AND id NOT IN (SELECT reading_id FROM verification_votes WHERE verifier_id = $1)
		  AND verification_status = 'pending'
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, verifierID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count available readings: %w", err)
	}
	return count, nil
}

// VoteCountsByValue tallies a reading's votes per judgment.
func (r *Repository) VoteCountsByValue(ctx context.Context, readingID uuid.UUID) (map[consensus.VoteValue]int, error) {
	query := `
		SELECT vote, COUNT(id)
		FROM verification_votes
		WHERE reading_id = $1
		GROUP BY vote
	`

	rows, err := r.pool.Query(ctx, query, readingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vote counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[consensus.VoteValue]int)
	for rows.Next() {
		var value string
		var count int
		if err := rows.Scan(&value, &count); err != nil {
			return nil, fmt.Errorf("failed to scan vote count: %w", err)
		}
		counts[consensus.VoteValue(value)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return counts, nil
}

// GetUserVote returns the verifier's vote on a reading, or nil.
func (r *Repository) GetUserVote(ctx context.Context, readingID, verifierID uuid.UUID) (*db.Vote, error) {
	query := `
		SELECT id, reading_id, verifier_id, vote, suggested_value, verifier_trust_score, created_at
		FROM verification_votes
		WHERE reading_id = $1 AND verifier_id = $2
	`

	var vote db.Vote
	var value string
	err := r.pool.QueryRow(ctx, query, readingID, verifierID).Scan(
		&vote.ID,
		&vote.ReadingID,
		&vote.VerifierID,
		&value,
		&vote.SuggestedValue,
		&vote.VerifierTrustScore,
		&vote.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user vote: %w", err)
	}
	vote.Vote = consensus.VoteValue(value)
	return &vote, nil
}
