package consensus

import "fmt"

// Status is the verification state of a reading. Pending is the only
// state that can transition; the other three are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
	StatusDisputed Status = "disputed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusRejected || s == StatusDisputed
}

// ParseStatus converts a stored status string into a Status.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending, StatusVerified, StatusRejected, StatusDisputed:
		return Status(raw), nil
	}
	return "", fmt.Errorf("unknown verification status %q", raw)
}

// VoteValue is a verifier's judgment on a reading.
type VoteValue string

const (
	VoteCorrect   VoteValue = "correct"
	VoteIncorrect VoteValue = "incorrect"
	VoteUnclear   VoteValue = "unclear"

	// VoteNone marks the absence of a winning side (disputed outcomes).
	VoteNone VoteValue = ""
)

// Valid reports whether v is one of the three accepted vote values.
func (v VoteValue) Valid() bool {
	return v == VoteCorrect || v == VoteIncorrect || v == VoteUnclear
}
