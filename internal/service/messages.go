package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/communimeter/verify-worker/internal/consensus"
	"github.com/communimeter/verify-worker/internal/logging"
	"github.com/communimeter/verify-worker/internal/mq"
	"github.com/communimeter/verify-worker/tools/timeparser"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmissionMessage is the reading-submission payload consumed from the
// ingest exchange. The OCR pipeline upstream produces raw/normalized
// values and a confidence; this worker owns everything after that.
type SubmissionMessage struct {
	RequestID       string    `json:"request_id"`
	MeterID         string    `json:"meter_id"`
	UserID          string    `json:"user_id"`
	RawValue        string    `json:"raw_value"`
	NormalizedValue string    `json:"normalized_value"`
	NumericValue    *float64  `json:"numeric_value"`
	Confidence      float64   `json:"confidence"`
	CapturedAt      string    `json:"captured_at"`
	ReceivedAt      time.Time `json:"received_at"`
}

// VoteMessage is the verification-vote payload consumed from the ingest
// exchange.
type VoteMessage struct {
	RequestID      string  `json:"request_id"`
	ReadingID      string  `json:"reading_id"`
	VerifierID     string  `json:"verifier_id"`
	Vote           string  `json:"vote"`
	SuggestedValue *string `json:"suggested_value"`
}

// HandleSubmissionMessage processes one reading submission from the
// queue. Validation failures are marked permanent and go to the DLQ;
// infrastructure failures are left transient so the consumer can
// redeliver.
func (s *VerificationService) HandleSubmissionMessage(ctx context.Context, body []byte) error {
	var msg SubmissionMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return mq.Permanent(fmt.Errorf("failed to unmarshal submission message: %w", err))
	}

	reqLogger := logging.WithRequestID(s.logger, msg.RequestID)

	meterID, err := uuid.Parse(msg.MeterID)
	if err != nil {
		return mq.Permanent(fmt.Errorf("invalid meter_id %q: %w", msg.MeterID, err))
	}
	userID, err := uuid.Parse(msg.UserID)
	if err != nil {
		return mq.Permanent(fmt.Errorf("invalid user_id %q: %w", msg.UserID, err))
	}

	capturedAt, err := timeparser.ParseCaptureTimestamp(msg.CapturedAt)
	if err != nil {
		return mq.Permanent(fmt.Errorf("invalid captured_at: %w", err))
	}

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	if !timeparser.IsWithinTolerance(capturedAt, receivedAt, s.cfg.Validation.TimestampToleranceMinutes) {
		return mq.Permanent(fmt.Errorf("captured_at outside tolerance window (±%d minutes)",
			s.cfg.Validation.TimestampToleranceMinutes))
	}

	reading, err := s.SubmitReading(ctx, SubmitReadingInput{
		MeterID:         meterID,
		OwnerID:         userID,
		RawValue:        msg.RawValue,
		NormalizedValue: msg.NormalizedValue,
		NumericValue:    msg.NumericValue,
		Confidence:      msg.Confidence,
		CapturedAt:      capturedAt,
	})
	if err != nil {
		reqLogger.Error("failed to submit reading",
			zap.Error(err),
			zap.String("meter_id", msg.MeterID),
		)
		if isValidationErr(err) {
			return mq.Permanent(err)
		}
		return err
	}

	reqLogger.Debug("submission processed", zap.String("reading_id", reading.ID.String()))
	return nil
}

// HandleVoteMessage processes one verification vote from the queue.
// Validation failures are terminal for the message and go to the DLQ;
// they must not be redelivered. Infrastructure failures stay transient.
func (s *VerificationService) HandleVoteMessage(ctx context.Context, body []byte) error {
	var msg VoteMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return mq.Permanent(fmt.Errorf("failed to unmarshal vote message: %w", err))
	}

	reqLogger := logging.WithRequestID(s.logger, msg.RequestID)

	readingID, err := uuid.Parse(msg.ReadingID)
	if err != nil {
		return mq.Permanent(fmt.Errorf("invalid reading_id %q: %w", msg.ReadingID, err))
	}
	verifierID, err := uuid.Parse(msg.VerifierID)
	if err != nil {
		return mq.Permanent(fmt.Errorf("invalid verifier_id %q: %w", msg.VerifierID, err))
	}

	result, err := s.CastVote(ctx, readingID, verifierID, consensus.VoteValue(msg.Vote), msg.SuggestedValue)
	if err != nil {
		reqLogger.Error("failed to cast vote",
			zap.Error(err),
			zap.String("reading_id", msg.ReadingID),
			zap.String("verifier_id", msg.VerifierID),
		)
		if isValidationErr(err) {
			return mq.Permanent(err)
		}
		return err
	}

	reqLogger.Debug("vote processed",
		zap.String("vote_id", result.Vote.ID.String()),
		zap.String("status", string(result.Outcome.Status)),
	)
	return nil
}
