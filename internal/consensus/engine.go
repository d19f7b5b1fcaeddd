package consensus

import "math"

// DefaultTrustScore is assumed for votes whose trust snapshot is missing.
const DefaultTrustScore = 50

// Config holds the tunables of the consensus decision.
type Config struct {
	VotesRequired int
	Threshold     float64
}

// Ballot is one vote reduced to what the tally needs: the judgment and
// the verifier's trust score as it was when the vote was cast.
type Ballot struct {
	Value  VoteValue
	Weight int
}

// Outcome is the result of evaluating all ballots on a reading.
type Outcome struct {
	Status         Status
	Winner         VoteValue
	Score          float64
	CorrectRatio   float64
	IncorrectRatio float64
	TotalVotes     int
}

// Decided reports whether the outcome moves the reading out of pending.
func (o Outcome) Decided() bool {
	return o.Status != StatusPending
}

// Engine evaluates trust-weighted consensus over verification ballots.
type Engine struct {
	cfg Config
}

// NewEngine creates a consensus engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate computes the trust-weighted tally and decides the reading's
// next status. Votes below quorum, or a degenerate zero total weight,
// leave the reading pending. Unclear ballots contribute to the total
// weight only, diluting both ratios.
func (e *Engine) Evaluate(ballots []Ballot) Outcome {
	out := Outcome{Status: StatusPending, Winner: VoteNone, TotalVotes: len(ballots)}

	if len(ballots) < e.cfg.VotesRequired {
		return out
	}

	var weightedCorrect, weightedIncorrect, totalWeight int
	for _, b := range ballots {
		weight := b.Weight
		if weight <= 0 {
			weight = DefaultTrustScore
		}
		totalWeight += weight
		switch b.Value {
		case VoteCorrect:
			weightedCorrect += weight
		case VoteIncorrect:
			weightedIncorrect += weight
		}
	}

	if totalWeight == 0 {
		return out
	}

	out.CorrectRatio = roundRatio(float64(weightedCorrect) / float64(totalWeight))
	out.IncorrectRatio = roundRatio(float64(weightedIncorrect) / float64(totalWeight))

	switch {
	case e.meetsThreshold(out.CorrectRatio):
		out.Status = StatusVerified
		out.Winner = VoteCorrect
	case e.meetsThreshold(out.IncorrectRatio):
		out.Status = StatusRejected
		out.Winner = VoteIncorrect
	case len(ballots) >= 2*e.cfg.VotesRequired:
		// Twice the quorum voted and neither side converged.
		out.Status = StatusDisputed
	default:
		return out
	}

	if out.CorrectRatio > out.IncorrectRatio {
		out.Score = out.CorrectRatio
	} else {
		out.Score = out.IncorrectRatio
	}

	return out
}

// meetsThreshold compares a ratio against the threshold at two-decimal
// precision, inclusively. A clean two-thirds majority (0.667) rounds to
// 0.67 and meets the default 0.67 threshold; 0.66 does not.
func (e *Engine) meetsThreshold(ratio float64) bool {
	return math.Round(ratio*100)/100 >= e.cfg.Threshold
}

func roundRatio(r float64) float64 {
	return math.Round(r*1000) / 1000
}
