package timeparser_test

import (
	"testing"
	"time"

	"github.com/communimeter/verify-worker/tools/timeparser"
)

func TestParseCaptureTimestamp_RFC3339(t *testing.T) {
	parsed, err := timeparser.ParseCaptureTimestamp("2026-08-20T10:30:00Z")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	if !parsed.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, parsed)
	}
}

func TestParseCaptureTimestamp_DayFirst(t *testing.T) {
	parsed, err := timeparser.ParseCaptureTimestamp("20/08/2026 10:30:00")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	if !parsed.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, parsed)
	}
}

func TestParseCaptureTimestamp_DateTime(t *testing.T) {
	parsed, err := timeparser.ParseCaptureTimestamp("2026-08-20 10:30:00")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if parsed.Hour() != 10 || parsed.Day() != 20 {
		t.Errorf("Unexpected parse result: %v", parsed)
	}
}

func TestParseCaptureTimestamp_Invalid(t *testing.T) {
	_, err := timeparser.ParseCaptureTimestamp("not a timestamp")
	if err == nil {
		t.Error("Expected error for unparseable timestamp")
	}
}

func TestIsWithinTolerance(t *testing.T) {
	received := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)

	if !timeparser.IsWithinTolerance(received.Add(-4*time.Minute), received, 5) {
		t.Error("Expected timestamp 4 minutes early to be within a 5 minute tolerance")
	}
	if !timeparser.IsWithinTolerance(received.Add(4*time.Minute), received, 5) {
		t.Error("Expected timestamp 4 minutes late to be within a 5 minute tolerance")
	}
	if timeparser.IsWithinTolerance(received.Add(-6*time.Minute), received, 5) {
		t.Error("Expected timestamp 6 minutes early to be outside a 5 minute tolerance")
	}
}
