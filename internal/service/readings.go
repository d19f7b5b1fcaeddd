package service

import (
	"context"
	"fmt"
	"time"

	"github.com/communimeter/verify-worker/internal/consensus"
	"github.com/communimeter/verify-worker/internal/db"
	"github.com/communimeter/verify-worker/internal/plausibility"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmitReadingInput carries one meter-value observation produced by
// the upstream OCR pipeline.
type SubmitReadingInput struct {
	MeterID         uuid.UUID
	OwnerID         uuid.UUID
	RawValue        string
	NormalizedValue string
	NumericValue    *float64
	Confidence      float64
	CapturedAt      time.Time
}

// SubmitReading persists a new reading after running the plausibility
// filter against the meter's prior reading, credits the owner and
// updates the meter's rolling sample history.
func (s *VerificationService) SubmitReading(ctx context.Context, in SubmitReadingInput) (*db.Reading, error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	meter, err := s.repo.GetMeterOwned(ctx, tx, in.MeterID, in.OwnerID)
	if err != nil {
		return nil, err
	}
	if meter == nil {
		return nil, ErrMeterNotFound
	}

	prior, err := s.repo.GetLatestReading(ctx, tx, in.MeterID)
	if err != nil {
		return nil, err
	}

	var priorInfo *plausibility.Prior
	var dailyHistory []float64
	if prior != nil {
		priorInfo = &plausibility.Prior{
			NumericValue: prior.NumericValue,
			Elapsed:      in.CapturedAt.Sub(prior.CapturedAt),
		}
		dailyHistory, err = s.repo.GetRecentDailyUsage(ctx, tx, in.MeterID, 10)
		if err != nil {
			return nil, err
		}
	}

	assessment := s.filter.Evaluate(in.NumericValue, priorInfo, dailyHistory)
	if !assessment.Flagged {
		if ok, reason := plausibility.CheckShape(in.NormalizedValue, meter.DigitCount); !ok {
			assessment.Flagged = true
			assessment.FlagReason = reason
		}
	}

	reading := &db.Reading{
		MeterID:            in.MeterID,
		UserID:             in.OwnerID,
		RawValue:           in.RawValue,
		NormalizedValue:    in.NormalizedValue,
		NumericValue:       in.NumericValue,
		Confidence:         in.Confidence,
		VerificationStatus: consensus.StatusPending,
		FlaggedForReview:   assessment.Flagged,
		UsageSinceLast:     assessment.UsageSinceLast,
		DaysSinceLast:      assessment.DaysSinceLast,
		CapturedAt:         in.CapturedAt,
		CreatedAt:          s.now(),
	}
	if assessment.Flagged {
		reason := assessment.FlagReason
		reading.FlagReason = &reason
	}

	if err := s.repo.InsertReading(ctx, tx, reading); err != nil {
		return nil, err
	}
	if err := s.repo.IncrementOwnerReadingStats(ctx, tx, in.OwnerID, s.cfg.Consensus.XPForReading); err != nil {
		return nil, err
	}

	samples := meter.SampleReadings
	if in.NormalizedValue != "" {
		samples = append(samples, in.NormalizedValue)
		if size := s.cfg.Plausibility.SampleHistorySize; len(samples) > size {
			samples = samples[len(samples)-size:]
		}
	}
	if err := s.repo.UpdateMeterSamples(ctx, tx, in.MeterID, samples); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.ReadingsSubmitted.Inc()
	if assessment.Flagged {
		s.metrics.ReadingsFlagged.Inc()
		s.logger.Warn("reading flagged for review",
			zap.String("reading_id", reading.ID.String()),
			zap.String("meter_id", in.MeterID.String()),
			zap.String("reason", assessment.FlagReason),
		)
	} else {
		s.logger.Info("reading submitted",
			zap.String("reading_id", reading.ID.String()),
			zap.String("meter_id", in.MeterID.String()),
		)
	}

	return reading, nil
}
