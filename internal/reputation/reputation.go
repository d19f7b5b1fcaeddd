// Package reputation computes trust and XP adjustments after a reading
// reaches consensus. The math is pure; persistence applies the deltas.
package reputation

import (
	"github.com/communimeter/verify-worker/internal/consensus"
	"github.com/google/uuid"
)

// Trust score bounds. A user's trust score never leaves this range.
const (
	TrustMin = 0
	TrustMax = 100
)

// VoterBallot pairs a verifier with the judgment they cast.
type VoterBallot struct {
	VerifierID uuid.UUID
	Value      consensus.VoteValue
}

// Adjustment is one voter's reputation change. TrustDelta is applied
// with clamping to [TrustMin, TrustMax] against the voter's current score.
type Adjustment struct {
	UserID     uuid.UUID
	TrustDelta int
	XPDelta    int
}

// Adjustments maps every ballot on a resolved reading to its reputation
// change. Voters on the winning side gain bonusXP and one trust point;
// voters who committed to the losing side lose one trust point. Unclear
// ballots are never penalized. A missing winner yields no adjustments.
func Adjustments(ballots []VoterBallot, winner consensus.VoteValue, bonusXP int) []Adjustment {
	if winner == consensus.VoteNone {
		return nil
	}

	adjustments := make([]Adjustment, 0, len(ballots))
	for _, b := range ballots {
		switch {
		case b.Value == winner:
			adjustments = append(adjustments, Adjustment{
				UserID:     b.VerifierID,
				TrustDelta: 1,
				XPDelta:    bonusXP,
			})
		case b.Value != consensus.VoteUnclear:
			adjustments = append(adjustments, Adjustment{
				UserID:     b.VerifierID,
				TrustDelta: -1,
			})
		}
	}

	return adjustments
}

// ClampTrust bounds a trust score to [TrustMin, TrustMax].
func ClampTrust(score int) int {
	if score < TrustMin {
		return TrustMin
	}
	if score > TrustMax {
		return TrustMax
	}
	return score
}
