package cache

import (
	"fmt"
	"strconv"
	"time"
)

// TTL bounds and default for flow listings.
const (
	DefaultTTLSeconds = 300
	MinTTLSeconds     = 60
	MaxTTLSeconds     = 7 * 24 * 60 * 60

	minutesPerHour = 60
	hoursPerDay    = 24
)

// ErrInvalidTTL is returned for a TTL outside [MinTTLSeconds, MaxTTLSeconds].
var ErrInvalidTTL = fmt.Errorf("TTL must be between %d and %d seconds", MinTTLSeconds, MaxTTLSeconds)

// ValidateTTL checks that seconds is within range.
func ValidateTTL(seconds int) error {
	if seconds < MinTTLSeconds || seconds > MaxTTLSeconds {
		return fmt.Errorf("%w: got %d", ErrInvalidTTL, seconds)
	}
	return nil
}

// ParseTTL accepts integer seconds ("300") or a Go duration ("5m", "1h30m").
func ParseTTL(s string) (int, error) {
	seconds, err := strconv.Atoi(s)
	if err != nil {
		d, durErr := time.ParseDuration(s)
		if durErr != nil {
			return 0, fmt.Errorf("invalid TTL format: %w", durErr)
		}
		seconds = int(d.Seconds())
	}
	if err = ValidateTTL(seconds); err != nil {
		return 0, err
	}
	return seconds, nil
}

// FormatDuration renders d compactly: "45s", "5m", "2h30m", "1d6h".
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.0fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.0fm", d.Minutes())
	case d < hoursPerDay*time.Hour:
		hours := int(d.Hours())
		if minutes := int(d.Minutes()) % minutesPerHour; minutes != 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	default:
		days := int(d.Hours()) / hoursPerDay
		if hours := int(d.Hours()) % hoursPerDay; hours != 0 {
			return fmt.Sprintf("%dd%dh", days, hours)
		}
		return fmt.Sprintf("%dd", days)
	}
}
