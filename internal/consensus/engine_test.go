package consensus_test

import (
	"testing"

	"github.com/communimeter/verify-worker/internal/consensus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultEngine() *consensus.Engine {
	return consensus.NewEngine(consensus.Config{
		VotesRequired: 3,
		Threshold:     0.67,
	})
}

func ballots(values ...consensus.VoteValue) []consensus.Ballot {
	bs := make([]consensus.Ballot, len(values))
	for i, v := range values {
		bs[i] = consensus.Ballot{Value: v, Weight: 50}
	}
	return bs
}

func TestEvaluate_BelowQuorumStaysPending(t *testing.T) {
	engine := defaultEngine()

	out := engine.Evaluate(ballots(consensus.VoteCorrect, consensus.VoteCorrect))

	assert.Equal(t, consensus.StatusPending, out.Status)
	assert.False(t, out.Decided())
	assert.Equal(t, consensus.VoteNone, out.Winner)
}

func TestEvaluate_TwoThirdsMajorityVerifies(t *testing.T) {
	engine := defaultEngine()

	// Two correct, one incorrect, all trust 50: 100/150 = 0.667 meets
	// the inclusive 0.67 threshold.
	out := engine.Evaluate(ballots(consensus.VoteCorrect, consensus.VoteCorrect, consensus.VoteIncorrect))

	require.True(t, out.Decided())
	assert.Equal(t, consensus.StatusVerified, out.Status)
	assert.Equal(t, consensus.VoteCorrect, out.Winner)
	assert.InDelta(t, 0.667, out.CorrectRatio, 0.0005)
	assert.InDelta(t, 0.667, out.Score, 0.0005)
}

func TestEvaluate_JustBelowTwoThirdsStaysPending(t *testing.T) {
	engine := defaultEngine()

	// 66/100 = 0.66 stays below the threshold at two-decimal precision.
	out := engine.Evaluate([]consensus.Ballot{
		{Value: consensus.VoteCorrect, Weight: 33},
		{Value: consensus.VoteCorrect, Weight: 33},
		{Value: consensus.VoteIncorrect, Weight: 34},
	})

	assert.Equal(t, consensus.StatusPending, out.Status)
	assert.Equal(t, consensus.VoteNone, out.Winner)
}

func TestEvaluate_MajorityIncorrectRejects(t *testing.T) {
	engine := defaultEngine()

	out := engine.Evaluate(ballots(consensus.VoteIncorrect, consensus.VoteIncorrect, consensus.VoteIncorrect))

	assert.Equal(t, consensus.StatusRejected, out.Status)
	assert.Equal(t, consensus.VoteIncorrect, out.Winner)
	assert.Equal(t, 1.0, out.IncorrectRatio)
	assert.Equal(t, 1.0, out.Score)
}

func TestEvaluate_EvenSplitAtDoubleQuorumDisputes(t *testing.T) {
	engine := defaultEngine()

	out := engine.Evaluate(ballots(
		consensus.VoteCorrect, consensus.VoteCorrect, consensus.VoteCorrect,
		consensus.VoteIncorrect, consensus.VoteIncorrect, consensus.VoteIncorrect,
	))

	assert.Equal(t, consensus.StatusDisputed, out.Status)
	assert.Equal(t, consensus.VoteNone, out.Winner)
	assert.Equal(t, 0.5, out.CorrectRatio)
	assert.Equal(t, 0.5, out.IncorrectRatio)
	assert.Equal(t, 0.5, out.Score)
}

func TestEvaluate_NoConsensusBelowDoubleQuorumStaysPending(t *testing.T) {
	engine := defaultEngine()

	// Four votes split 2/2: neither ratio meets the threshold and the
	// dispute fallback needs six votes.
	out := engine.Evaluate(ballots(
		consensus.VoteCorrect, consensus.VoteCorrect,
		consensus.VoteIncorrect, consensus.VoteIncorrect,
	))

	assert.Equal(t, consensus.StatusPending, out.Status)
}

func TestEvaluate_UnclearDilutesBothSides(t *testing.T) {
	engine := defaultEngine()

	// Two correct and one unclear: 100/150 = 0.667 still verifies, but
	// two correct and two unclear (100/200 = 0.5) does not.
	verified := engine.Evaluate(ballots(consensus.VoteCorrect, consensus.VoteCorrect, consensus.VoteUnclear))
	assert.Equal(t, consensus.StatusVerified, verified.Status)

	diluted := engine.Evaluate(ballots(
		consensus.VoteCorrect, consensus.VoteCorrect,
		consensus.VoteUnclear, consensus.VoteUnclear,
	))
	assert.Equal(t, consensus.StatusPending, diluted.Status)
}

func TestEvaluate_TrustWeightingOutweighsHeadcount(t *testing.T) {
	engine := defaultEngine()

	// One high-trust incorrect vote against two low-trust correct
	// votes: 10+10 correct vs 100 incorrect out of 120.
	out := engine.Evaluate([]consensus.Ballot{
		{Value: consensus.VoteCorrect, Weight: 10},
		{Value: consensus.VoteCorrect, Weight: 10},
		{Value: consensus.VoteIncorrect, Weight: 100},
	})

	assert.Equal(t, consensus.StatusRejected, out.Status)
	assert.Equal(t, consensus.VoteIncorrect, out.Winner)
}

func TestEvaluate_MissingSnapshotDefaultsTo50(t *testing.T) {
	engine := defaultEngine()

	out := engine.Evaluate([]consensus.Ballot{
		{Value: consensus.VoteCorrect, Weight: 0},
		{Value: consensus.VoteCorrect, Weight: 0},
		{Value: consensus.VoteIncorrect, Weight: 50},
	})

	assert.Equal(t, consensus.StatusVerified, out.Status)
	assert.InDelta(t, 0.667, out.CorrectRatio, 0.0005)
}

func TestEvaluate_NoBallots(t *testing.T) {
	engine := defaultEngine()

	out := engine.Evaluate(nil)

	assert.Equal(t, consensus.StatusPending, out.Status)
	assert.Zero(t, out.TotalVotes)
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, consensus.StatusPending.Terminal())
	assert.True(t, consensus.StatusVerified.Terminal())
	assert.True(t, consensus.StatusRejected.Terminal())
	assert.True(t, consensus.StatusDisputed.Terminal())
}

func TestParseStatus(t *testing.T) {
	status, err := consensus.ParseStatus("disputed")
	require.NoError(t, err)
	assert.Equal(t, consensus.StatusDisputed, status)

	_, err = consensus.ParseStatus("bogus")
	assert.Error(t, err)
}

func TestVoteValue_Valid(t *testing.T) {
	assert.True(t, consensus.VoteCorrect.Valid())
	assert.True(t, consensus.VoteIncorrect.Valid())
	assert.True(t, consensus.VoteUnclear.Valid())
	assert.False(t, consensus.VoteNone.Valid())
	assert.False(t, consensus.VoteValue("maybe").Valid())
}
