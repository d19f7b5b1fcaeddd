package db

import (
	"time"

	"github.com/communimeter/verify-worker/internal/consensus"
	"github.com/google/uuid"
)

// User is the trust-relevant subset of a platform user.
type User struct {
	ID                     uuid.UUID
	DisplayName            string
	TrustScore             int
	XP                     int
	TotalReadings          int
	VerifiedReadings       int
	VerificationsPerformed int
	CreatedAt              time.Time
}

// Meter represents a physical utility meter.
type Meter struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Name            string
	MeterType       string
	DigitCount      int
	HasDecimalPoint bool
	DecimalPlaces   int
	SampleReadings  []string
	LastReadAt      *time.Time
	CreatedAt       time.Time
}

// Reading represents one meter-value observation.
type Reading struct {
	ID                 uuid.UUID
	MeterID            uuid.UUID
	UserID             uuid.UUID
	RawValue           string
	NormalizedValue    string
	NumericValue       *float64
	Confidence         float64
	VerificationStatus consensus.Status
	VerificationScore  *float64
	FlaggedForReview   bool
	FlagReason         *string
	UsageSinceLast     *float64
	DaysSinceLast      *float64
	CapturedAt         time.Time
	CreatedAt          time.Time
}

// Vote is one verifier's immutable judgment on one reading. The trust
// score is snapshotted at cast time so that consensus weighting stays
// reproducible after later reputation changes.
type Vote struct {
	ID                 uuid.UUID
	ReadingID          uuid.UUID
	VerifierID         uuid.UUID
	Vote               consensus.VoteValue
	SuggestedValue     *string
	VerifierTrustScore *int
	CreatedAt          time.Time
}

// QueueItem is a pending reading as presented to a verifier, joined
// with the meter context needed to judge it.
type QueueItem struct {
	Reading    Reading
	MeterType  string
	VotesCount int
}
