package timeparser

import (
	"fmt"
	"time"
)

// ParseCaptureTimestamp parses a reading's captured_at value. Device
// clients submit RFC3339; older hardware senders use day-first local
// formats.
func ParseCaptureTimestamp(dateStr string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"02/01/2006 15:04:05", // DD/MM/YYYY HH:mm:ss
		"2006-01-02 15:04:05",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, dateStr)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", dateStr, lastErr)
}

// IsWithinTolerance checks if the capture timestamp is within tolerance
// of the time the submission was received.
func IsWithinTolerance(capturedAt, receivedAt time.Time, toleranceMinutes int) bool {
	diff := capturedAt.Sub(receivedAt)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(toleranceMinutes)*time.Minute
}
