package schema

import (
	"testing"
)

// TestParseClock_Valid tests parsing of well-formed clock values
func TestParseClock_Valid(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"00:00", 0},
		{"09:00", 540},
		{"09:30", 570},
		{"18:00", 1080},
		{"23:59", 1439},
		{"24:00", 1440},
	}

	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if err != nil {
			t.Errorf("ParseClock(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

// TestParseClock_Invalid tests rejection of malformed clock values
func TestParseClock_Invalid(t *testing.T) {
	for _, in := range []string{"", "9", "25:00", "12:60", "ab:cd", "12-30", "24:01"} {
		if _, err := ParseClock(in); err == nil {
			t.Errorf("ParseClock(%q) succeeded, want error", in)
		}
	}
}

// TestFormatClock tests round-tripping minutes back to HH:MM
func TestFormatClock(t *testing.T) {
	for _, s := range []string{"00:00", "09:30", "18:00", "23:59"} {
		mins, err := ParseClock(s)
		if err != nil {
			t.Fatalf("ParseClock(%q) failed: %v", s, err)
		}
		if got := FormatClock(mins); got != s {
			t.Errorf("FormatClock(%d) = %q, want %q", mins, got, s)
		}
	}
}

// TestInterval_Overlaps tests the half-open overlap predicate
func TestInterval_Overlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"partial overlap", Interval{540, 600}, Interval{570, 630}, true},
		{"touching endpoints", Interval{540, 600}, Interval{600, 660}, false},
		{"contained", Interval{540, 660}, Interval{570, 600}, true},
		{"identical", Interval{540, 600}, Interval{540, 600}, true},
		{"disjoint", Interval{540, 600}, Interval{720, 780}, false},
		{"reversed touching", Interval{600, 660}, Interval{540, 600}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Overlaps(tc.b); got != tc.want {
				t.Errorf("%v.Overlaps(%v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			// Overlap is symmetric
			if got := tc.b.Overlaps(tc.a); got != tc.want {
				t.Errorf("%v.Overlaps(%v) = %v, want %v", tc.b, tc.a, got, tc.want)
			}
		})
	}
}
