package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// DateLayout is the wire and store format for calendar dates.
const DateLayout = "2006-01-02"

// MinutesPerDay bounds minutes-of-day values.
const MinutesPerDay = 24 * 60

// Interval is a half-open [Start, End) range in minutes from midnight.
type Interval struct {
	Start int
	End   int
}

// Len returns the interval length in minutes.
func (iv Interval) Len() int { return iv.End - iv.Start }

// Overlaps reports whether two half-open intervals intersect. Intervals
// that merely touch at an endpoint do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start < other.End && iv.End > other.Start
}

// Contains reports whether other lies entirely within iv.
func (iv Interval) Contains(other Interval) bool {
	return other.Start >= iv.Start && other.End <= iv.End
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s,%s)", FormatClock(iv.Start), FormatClock(iv.End))
}

// ParseClock parses a 24h "HH:MM" clock string into minutes from midnight.
// "24:00" is accepted as the exclusive end of day.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	mins, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	if hours < 0 || hours > 24 || mins < 0 || mins > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	total := hours*60 + mins
	if total > MinutesPerDay {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return total, nil
}

// FormatClock renders minutes from midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
