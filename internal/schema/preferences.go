package schema

import (
	"time"
)

// UserPreferences holds the user's scheduling window and engine feature
// flags. There is exactly one preferences record per owner; the safe-delete
// lifecycle refuses to delete it.
type UserPreferences struct {
	SyncMeta

	WorkStartTime string   `json:"work_start_time"`
	WorkEndTime   string   `json:"work_end_time"`
	WorkingDays   []string `json:"working_days,omitempty"`

	BufferMinutes int `json:"buffer_minutes"`
	MinGapMinutes int `json:"min_gap_minutes"`

	NotificationsEnabled bool `json:"notifications_enabled"`
	AutoScheduleEnabled  bool `json:"auto_schedule_enabled"`
	CalendarSyncEnabled  bool `json:"calendar_sync_enabled"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (p *UserPreferences) Table() string { return TablePreferences }

func (p *UserPreferences) RemoteUpdatedAt() time.Time { return p.UpdatedAt }

func (p *UserPreferences) DateKey() string { return "" }

// WorkWindow returns the preference work window as a minutes-of-day
// interval. Falls back to 09:00-18:00 when the stored values are unusable.
func (p *UserPreferences) WorkWindow() Interval {
	start, err1 := ParseClock(p.WorkStartTime)
	end, err2 := ParseClock(p.WorkEndTime)
	if err1 != nil || err2 != nil || end <= start {
		return Interval{Start: 9 * 60, End: 18 * 60}
	}
	return Interval{Start: start, End: end}
}

// WorksOn reports whether the given weekday is a working day. An empty
// WorkingDays list means every day is a working day.
func (p *UserPreferences) WorksOn(day time.Weekday) bool {
	if len(p.WorkingDays) == 0 {
		return true
	}
	for _, d := range p.WorkingDays {
		if d == day.String() {
			return true
		}
	}
	return false
}

// Validate checks the preferences record.
func (p *UserPreferences) Validate() error {
	if err := p.ValidateMeta(); err != nil {
		return err
	}
	start, err := ParseClock(p.WorkStartTime)
	if err != nil {
		return &ValidationError{Field: "work_start_time", Reason: "must be a 24h HH:MM clock value"}
	}
	end, err := ParseClock(p.WorkEndTime)
	if err != nil {
		return &ValidationError{Field: "work_end_time", Reason: "must be a 24h HH:MM clock value"}
	}
	if end <= start {
		return &ValidationError{Field: "work_end_time", Reason: "must be after work_start_time"}
	}
	if p.BufferMinutes < 0 || p.MinGapMinutes < 0 {
		return &ValidationError{Field: "buffer_minutes", Reason: "must not be negative"}
	}
	return nil
}

// DefaultPreferences returns the preferences applied before the user has
// configured anything: 09:00-18:00, Monday through Friday.
func DefaultPreferences(ownerID string) *UserPreferences {
	return &UserPreferences{
		SyncMeta: SyncMeta{
			ID:          "prefs-" + ownerID,
			OwnerID:     ownerID,
			SyncVersion: 1,
		},
		WorkStartTime: "09:00",
		WorkEndTime:   "18:00",
		WorkingDays:   []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
		BufferMinutes: 5,
		MinGapMinutes: 15,
	}
}

// UserProfile is the user's identity record. Like preferences, it is a
// protected singleton and cannot be deleted.
type UserProfile struct {
	SyncMeta

	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Timezone    string `json:"timezone,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (u *UserProfile) Table() string { return TableProfile }

func (u *UserProfile) RemoteUpdatedAt() time.Time { return u.UpdatedAt }

func (u *UserProfile) DateKey() string { return "" }

func (u *UserProfile) Validate() error {
	return u.ValidateMeta()
}
