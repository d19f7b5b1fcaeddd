package service

import "errors"

// Validation failures surfaced to the caller. All are checked before
// any mutation and are terminal for the request; none of them should
// be retried.
var (
	ErrReadingNotFound        = errors.New("reading not found")
	ErrMeterNotFound          = errors.New("meter not found or not owned by user")
	ErrUserNotFound           = errors.New("user not found")
	ErrOwnReading             = errors.New("cannot verify own reading")
	ErrAlreadyVoted           = errors.New("already voted on this reading")
	ErrInvalidVote            = errors.New("vote must be one of: correct, incorrect, unclear")
	ErrSuggestedValueRequired = errors.New("suggested_value is required when voting incorrect")
)

// isValidationErr reports whether err is one of the precondition
// sentinels above, as opposed to an infrastructure failure.
func isValidationErr(err error) bool {
	for _, sentinel := range []error{
		ErrReadingNotFound,
		ErrMeterNotFound,
		ErrUserNotFound,
		ErrOwnReading,
		ErrAlreadyVoted,
		ErrInvalidVote,
		ErrSuggestedValueRequired,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
