package schema

import (
	"time"
)

// GapSource identifies how a time gap came to exist. Manual gaps are
// user-authored and take unconditional precedence over recalculation.
type GapSource string

const (
	GapSourceManual   GapSource = "manual"
	GapSourceCalendar GapSource = "calendar"
	GapSourceDefault  GapSource = "default"
	GapSourceActivity GapSource = "activity"
)

// TimeGap is a contiguous free interval on a given date, derived from the
// complement of scheduled tasks within working hours or authored directly
// by the user.
type TimeGap struct {
	SyncMeta

	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	IsAvailable     bool      `json:"is_available"`
	Source          GapSource `json:"gap_source_id"`
	QualityScore    float64   `json:"quality_score,omitempty"`
	ModifiedBy      string    `json:"modified_by,omitempty"`

	LastModifiedAt time.Time `json:"last_modified_at"`
}

func (g *TimeGap) Table() string { return TableGaps }

func (g *TimeGap) RemoteUpdatedAt() time.Time { return g.LastModifiedAt }

func (g *TimeGap) DateKey() string { return g.Date }

// Manual reports whether the gap is user-authored.
func (g *TimeGap) Manual() bool { return g.Source == GapSourceManual }

// Interval returns the gap's minutes-of-day interval.
func (g *TimeGap) Interval() (Interval, error) {
	start, err := ParseClock(g.StartTime)
	if err != nil {
		return Interval{}, &ValidationError{Field: "start_time", Reason: "must be a 24h HH:MM clock value"}
	}
	end, err := ParseClock(g.EndTime)
	if err != nil {
		return Interval{}, &ValidationError{Field: "end_time", Reason: "must be a 24h HH:MM clock value"}
	}
	return Interval{Start: start, End: end}, nil
}

// Overlaps reports whether the two gaps occupy overlapping intervals on
// the same date. Touching endpoints do not overlap.
func (g *TimeGap) Overlaps(other *TimeGap) bool {
	if g.Date != other.Date {
		return false
	}
	a, err := g.Interval()
	if err != nil {
		return false
	}
	b, err := other.Interval()
	if err != nil {
		return false
	}
	return a.Overlaps(b)
}

// Validate checks the gap's field values, including that the interval is
// well-formed and the stored duration matches it.
func (g *TimeGap) Validate() error {
	if err := g.ValidateMeta(); err != nil {
		return err
	}
	if _, err := time.Parse(DateLayout, g.Date); err != nil {
		return &ValidationError{Field: "date", Reason: "must be formatted as 2006-01-02"}
	}
	iv, err := g.Interval()
	if err != nil {
		return err
	}
	if iv.End <= iv.Start {
		return &ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	switch g.Source {
	case GapSourceManual, GapSourceCalendar, GapSourceDefault, GapSourceActivity:
	default:
		return &ValidationError{Field: "gap_source_id", Reason: "must be one of manual, calendar, default, activity"}
	}
	if g.DurationMinutes != iv.Len() {
		return &ValidationError{Field: "duration_minutes", Reason: "does not match start_time/end_time"}
	}
	return nil
}
