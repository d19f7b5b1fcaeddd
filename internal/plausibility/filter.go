package plausibility

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// FlagReasonDecreased marks readings whose value went backwards.
// Meters are monotonic counters; a decrease signals a reset or misread.
const FlagReasonDecreased = "reading decreased from previous"

// Prior describes the meter's most recent reading before the one under
// evaluation. NumericValue is nil when the prior reading carried no
// parseable number.
type Prior struct {
	NumericValue *float64
	Elapsed      time.Duration
}

// Assessment is the outcome of checking a new reading against the
// meter's prior reading. Usage and days are nil when the data to
// compute them is absent.
type Assessment struct {
	UsageSinceLast *float64
	DaysSinceLast  *float64
	Flagged        bool
	FlagReason     string
}

// Filter validates new meter readings against the prior reading and
// historical daily usage, with configurable thresholds.
type Filter struct {
	ceilingFactor float64
	minSamples    int
}

// NewFilter creates a plausibility filter. ceilingFactor is the multiple
// of the historical daily usage average above which a reading is flagged;
// minSamples is how much history is needed before the ceiling applies.
func NewFilter(ceilingFactor float64, minSamples int) *Filter {
	return &Filter{
		ceilingFactor: ceilingFactor,
		minSamples:    minSamples,
	}
}

// Evaluate checks a new numeric reading against the meter's prior
// reading. prior is nil for the first reading of a meter, which is
// always plausible. dailyHistory holds the meter's recent daily usage
// rates and feeds the ceiling check.
func (f *Filter) Evaluate(value *float64, prior *Prior, dailyHistory []float64) Assessment {
	var a Assessment

	if prior == nil {
		return a
	}

	days := prior.Elapsed.Seconds() / 86400
	a.DaysSinceLast = &days

	if value == nil || prior.NumericValue == nil {
		return a
	}

	usage := *value - *prior.NumericValue
	a.UsageSinceLast = &usage

	if usage < 0 {
		a.Flagged = true
		a.FlagReason = FlagReasonDecreased
		return a
	}

	if days <= 0 || len(dailyHistory) < f.minSamples {
		return a
	}

	sum := 0.0
	for _, v := range dailyHistory {
		sum += v
	}
	average := sum / float64(len(dailyHistory))

	dailyUsage := usage / days
	if average > 0 && dailyUsage > f.ceilingFactor*average {
		a.Flagged = true
		a.FlagReason = fmt.Sprintf("daily usage %.2f exceeds %.1fx historical average %.2f",
			dailyUsage, f.ceilingFactor, average)
	}

	return a
}

// CheckShape validates a normalized reading against the meter's digit
// contract. digitCount covers the integer digits only; zero disables
// the check for meters whose contract is not yet learned.
func CheckShape(normalized string, digitCount int) (bool, string) {
	if digitCount <= 0 || normalized == "" {
		return true, ""
	}

	intPart := normalized
	if i := strings.IndexAny(normalized, ".,"); i >= 0 {
		intPart = normalized[:i]
	}

	digits := 0
	for _, r := range intPart {
		if unicode.IsDigit(r) {
			digits++
		}
	}

	if digits != digitCount {
		return false, fmt.Sprintf("expected %d digits, got %d", digitCount, digits)
	}
	return true, ""
}
