package reputation_test

import (
	"testing"

	"github.com/communimeter/verify-worker/internal/consensus"
	"github.com/communimeter/verify-worker/internal/reputation"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBonusXP = 10

func TestAdjustments_FanOut(t *testing.T) {
	winner := uuid.New()
	loser := uuid.New()
	abstainer := uuid.New()

	ballots := []reputation.VoterBallot{
		{VerifierID: winner, Value: consensus.VoteCorrect},
		{VerifierID: loser, Value: consensus.VoteIncorrect},
		{VerifierID: abstainer, Value: consensus.VoteUnclear},
	}

	adjustments := reputation.Adjustments(ballots, consensus.VoteCorrect, testBonusXP)

	// The unclear voter gets no adjustment at all.
	require.Len(t, adjustments, 2)

	assert.Equal(t, winner, adjustments[0].UserID)
	assert.Equal(t, 1, adjustments[0].TrustDelta)
	assert.Equal(t, testBonusXP, adjustments[0].XPDelta)

	assert.Equal(t, loser, adjustments[1].UserID)
	assert.Equal(t, -1, adjustments[1].TrustDelta)
	assert.Zero(t, adjustments[1].XPDelta)
}

func TestAdjustments_IncorrectWins(t *testing.T) {
	correctVoter := uuid.New()
	incorrectVoter := uuid.New()

	ballots := []reputation.VoterBallot{
		{VerifierID: correctVoter, Value: consensus.VoteCorrect},
		{VerifierID: incorrectVoter, Value: consensus.VoteIncorrect},
	}

	adjustments := reputation.Adjustments(ballots, consensus.VoteIncorrect, testBonusXP)

	require.Len(t, adjustments, 2)
	assert.Equal(t, -1, adjustments[0].TrustDelta)
	assert.Equal(t, 1, adjustments[1].TrustDelta)
	assert.Equal(t, testBonusXP, adjustments[1].XPDelta)
}

func TestAdjustments_NoWinnerIsNoOp(t *testing.T) {
	ballots := []reputation.VoterBallot{
		{VerifierID: uuid.New(), Value: consensus.VoteCorrect},
		{VerifierID: uuid.New(), Value: consensus.VoteIncorrect},
	}

	adjustments := reputation.Adjustments(ballots, consensus.VoteNone, testBonusXP)

	assert.Empty(t, adjustments)
}

func TestClampTrust_Bounds(t *testing.T) {
	assert.Equal(t, reputation.TrustMax, reputation.ClampTrust(101))
	assert.Equal(t, reputation.TrustMax, reputation.ClampTrust(100))
	assert.Equal(t, 57, reputation.ClampTrust(57))
	assert.Equal(t, reputation.TrustMin, reputation.ClampTrust(0))
	assert.Equal(t, reputation.TrustMin, reputation.ClampTrust(-1))
}

// Repeated adjustments never push a score out of [TrustMin, TrustMax].
func TestClampTrust_RepeatedAdjustmentsStayBounded(t *testing.T) {
	score := 99
	for i := 0; i < 5; i++ {
		score = reputation.ClampTrust(score + 1)
	}
	assert.Equal(t, reputation.TrustMax, score)

	score = 1
	for i := 0; i < 5; i++ {
		score = reputation.ClampTrust(score - 1)
	}
	assert.Equal(t, reputation.TrustMin, score)
}
