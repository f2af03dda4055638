// Package gaps derives and maintains the free time gaps on a user's
// schedule: the complement of busy task intervals within the preference
// work window, cached per date and reconciled against user-authored gaps.
package gaps

import (
	"sort"
	"time"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
)

// FreeIntervals computes the free intervals inside window after removing
// the busy intervals, each padded by buffer minutes on both sides. Free
// intervals shorter than minLen are discarded.
func FreeIntervals(window schema.Interval, busy []schema.Interval, buffer, minLen int) []schema.Interval {
	if minLen < 1 {
		minLen = 1
	}

	padded := make([]schema.Interval, 0, len(busy))
	for _, b := range busy {
		b.Start -= buffer
		b.End += buffer
		if b.Start < 0 {
			b.Start = 0
		}
		if b.End > schema.MinutesPerDay {
			b.End = schema.MinutesPerDay
		}
		if b.Overlaps(window) {
			padded = append(padded, b)
		}
	}
	sort.Slice(padded, func(i, j int) bool { return padded[i].Start < padded[j].Start })

	var free []schema.Interval
	cursor := window.Start
	for _, b := range padded {
		if b.Start > cursor {
			if iv := (schema.Interval{Start: cursor, End: b.Start}); iv.Len() >= minLen {
				free = append(free, iv)
			}
		}
		if b.End > cursor {
			cursor = b.End
		}
	}
	if cursor < window.End {
		if iv := (schema.Interval{Start: cursor, End: window.End}); iv.Len() >= minLen {
			free = append(free, iv)
		}
	}
	return free
}

// Compute derives the gaps for one date from preferences and the day's
// tasks. Non-working days produce no gaps. The returned gaps carry no
// identity; the merge step assigns ids and ownership.
func Compute(prefs *schema.UserPreferences, date string, tasks []*schema.Task) ([]*schema.TimeGap, error) {
	day, err := time.Parse(schema.DateLayout, date)
	if err != nil {
		return nil, &schema.ValidationError{Field: "date", Reason: "must be formatted as 2006-01-02"}
	}
	if !prefs.WorksOn(day.Weekday()) {
		return nil, nil
	}

	var busy []schema.Interval
	for _, task := range tasks {
		if !task.Active() {
			continue
		}
		if iv, ok := task.BusyInterval(); ok {
			busy = append(busy, iv)
		}
	}

	free := FreeIntervals(prefs.WorkWindow(), busy, prefs.BufferMinutes, prefs.MinGapMinutes)

	out := make([]*schema.TimeGap, 0, len(free))
	for _, iv := range free {
		out = append(out, &schema.TimeGap{
			Date:            date,
			StartTime:       schema.FormatClock(iv.Start),
			EndTime:         schema.FormatClock(iv.End),
			DurationMinutes: iv.Len(),
			IsAvailable:     true,
			Source:          schema.GapSourceDefault,
		})
	}
	return out, nil
}

// checkGaps inspects a date's gap set against the work window. Every
// malformed gap and every overlapping pair yields an error; gaps outside
// the window are reported as warnings but tolerated, since manual gaps
// may legitimately sit outside working hours.
func checkGaps(window schema.Interval, gaps []*schema.TimeGap) (issues []error, warnings []string) {
	for i, g := range gaps {
		if verr := g.Validate(); verr != nil {
			issues = append(issues, verr)
			continue
		}
		iv, _ := g.Interval()
		if iv.Start < window.Start || iv.End > window.End {
			warnings = append(warnings, g.ID+": outside work window "+window.String())
		}
		for _, other := range gaps[i+1:] {
			if g.Overlaps(other) {
				issues = append(issues, &schema.ValidationError{
					Field:  "gaps",
					Reason: "gaps " + g.ID + " and " + other.ID + " overlap",
				})
			}
		}
	}
	return issues, warnings
}
