package plausibility_test

import (
	"testing"
	"time"

	"github.com/communimeter/verify-worker/internal/plausibility"
)

const (
	testCeilingFactor = 10.0
	testMinSamples    = 3
)

func floatPtr(v float64) *float64 {
	return &v
}

func TestEvaluate_FirstReading(t *testing.T) {
	filter := plausibility.NewFilter(testCeilingFactor, testMinSamples)

	a := filter.Evaluate(floatPtr(1234.0), nil, nil)

	if a.Flagged {
		t.Errorf("First reading should never be flagged, got reason %q", a.FlagReason)
	}
	if a.UsageSinceLast != nil || a.DaysSinceLast != nil {
		t.Error("First reading should have nil usage and days")
	}
}

func TestEvaluate_DecreasedReadingFlagged(t *testing.T) {
	filter := plausibility.NewFilter(testCeilingFactor, testMinSamples)

	prior := &plausibility.Prior{
		NumericValue: floatPtr(150.0),
		Elapsed:      24 * time.Hour,
	}

	a := filter.Evaluate(floatPtr(100.0), prior, nil)

	if !a.Flagged {
		t.Fatal("Expected decreased reading to be flagged")
	}
	if a.FlagReason != plausibility.FlagReasonDecreased {
		t.Errorf("Expected reason %q, got %q", plausibility.FlagReasonDecreased, a.FlagReason)
	}
	if a.UsageSinceLast == nil || *a.UsageSinceLast != -50.0 {
		t.Errorf("Expected usage -50, got %v", a.UsageSinceLast)
	}
}

func TestEvaluate_UsageAndDays(t *testing.T) {
	filter := plausibility.NewFilter(testCeilingFactor, testMinSamples)

	prior := &plausibility.Prior{
		NumericValue: floatPtr(100.0),
		Elapsed:      48 * time.Hour,
	}

	a := filter.Evaluate(floatPtr(110.0), prior, nil)

	if a.Flagged {
		t.Errorf("Expected no flag, got %q", a.FlagReason)
	}
	if a.UsageSinceLast == nil || *a.UsageSinceLast != 10.0 {
		t.Errorf("Expected usage 10, got %v", a.UsageSinceLast)
	}
	if a.DaysSinceLast == nil || *a.DaysSinceLast != 2.0 {
		t.Errorf("Expected 2 days since last, got %v", a.DaysSinceLast)
	}
}

func TestEvaluate_MissingNumericValue(t *testing.T) {
	filter := plausibility.NewFilter(testCeilingFactor, testMinSamples)

	prior := &plausibility.Prior{
		NumericValue: floatPtr(100.0),
		Elapsed:      24 * time.Hour,
	}

	a := filter.Evaluate(nil, prior, nil)

	if a.Flagged {
		t.Error("Reading without numeric value should not be flagged")
	}
	if a.UsageSinceLast != nil {
		t.Error("Usage should be nil without a numeric value")
	}
	if a.DaysSinceLast == nil {
		t.Error("Days since last should still be computed")
	}
}

func TestEvaluate_DailyUsageCeiling(t *testing.T) {
	filter := plausibility.NewFilter(testCeilingFactor, testMinSamples)

	prior := &plausibility.Prior{
		NumericValue: floatPtr(1000.0),
		Elapsed:      24 * time.Hour,
	}
	history := []float64{5.0, 4.5, 5.5}

	// 200 units in one day against a ~5/day history.
	a := filter.Evaluate(floatPtr(1200.0), prior, history)

	if !a.Flagged {
		t.Fatal("Expected implausibly high daily usage to be flagged")
	}
	if a.FlagReason == "" {
		t.Error("Expected a flag reason for ceiling anomaly")
	}
}

func TestEvaluate_CeilingNeedsEnoughHistory(t *testing.T) {
	filter := plausibility.NewFilter(testCeilingFactor, testMinSamples)

	prior := &plausibility.Prior{
		NumericValue: floatPtr(1000.0),
		Elapsed:      24 * time.Hour,
	}
	history := []float64{5.0, 4.5} // below testMinSamples

	a := filter.Evaluate(floatPtr(1200.0), prior, history)

	if a.Flagged {
		t.Errorf("Ceiling should not apply with insufficient history, got %q", a.FlagReason)
	}
}

func TestEvaluate_NormalUsageWithinCeiling(t *testing.T) {
	filter := plausibility.NewFilter(testCeilingFactor, testMinSamples)

	prior := &plausibility.Prior{
		NumericValue: floatPtr(1000.0),
		Elapsed:      24 * time.Hour,
	}
	history := []float64{5.0, 4.5, 5.5, 6.0}

	a := filter.Evaluate(floatPtr(1006.0), prior, history)

	if a.Flagged {
		t.Errorf("Expected no flag for normal usage, got %q", a.FlagReason)
	}
}

func TestEvaluate_ZeroElapsedSkipsCeiling(t *testing.T) {
	filter := plausibility.NewFilter(testCeilingFactor, testMinSamples)

	prior := &plausibility.Prior{
		NumericValue: floatPtr(100.0),
		Elapsed:      0,
	}
	history := []float64{5.0, 4.5, 5.5}

	a := filter.Evaluate(floatPtr(150.0), prior, history)

	if a.Flagged {
		t.Errorf("Zero elapsed time should skip the ceiling check, got %q", a.FlagReason)
	}
}

func TestCheckShape(t *testing.T) {
	cases := []struct {
		name       string
		normalized string
		digitCount int
		wantOK     bool
	}{
		{"matching digits", "12345", 5, true},
		{"too few digits", "1234", 5, false},
		{"too many digits", "123456", 5, false},
		{"decimals not counted", "12345.7", 5, true},
		{"comma separator", "12345,7", 5, true},
		{"zero contract disables check", "999", 0, true},
		{"empty value skipped", "", 5, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := plausibility.CheckShape(tc.normalized, tc.digitCount)
			if ok != tc.wantOK {
				t.Errorf("CheckShape(%q, %d) = %v, want %v (reason %q)",
					tc.normalized, tc.digitCount, ok, tc.wantOK, reason)
			}
			if !ok && reason == "" {
				t.Error("Expected a reason when the shape check fails")
			}
		})
	}
}
