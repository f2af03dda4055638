package schema

import (
	"time"
)

// Task statuses.
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusCancelled  = "cancelled"
)

// TimerState tracks an in-flight work timer on a task. Timer state is
// locally authoritative: a running timer on this device is never clobbered
// by a remote copy during conflict merges.
type TimerState struct {
	IsRunning      bool       `json:"is_running"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	ElapsedSeconds int        `json:"elapsed_seconds"`
}

// Task is a user task with optional scheduling information.
//
// DueDate is "2006-01-02", DueTime and Duration are "15:04" clock strings.
// A task with both DueDate and DueTime occupies a busy interval of Duration
// length when gaps are computed for that date.
type Task struct {
	SyncMeta

	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
	Status   string `json:"status"`
	Priority string `json:"priority,omitempty"`
	Notes    string `json:"notes,omitempty"`

	DueDate  string `json:"due_date,omitempty"`
	DueTime  string `json:"due_time,omitempty"`
	Duration string `json:"duration,omitempty"`

	Timer *TimerState `json:"timer_state,omitempty"`

	ReminderAt   *time.Time `json:"reminder_at,omitempty"`
	ReminderSent bool       `json:"reminder_sent,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Task) Table() string { return TableTasks }

func (t *Task) RemoteUpdatedAt() time.Time { return t.UpdatedAt }

func (t *Task) DateKey() string { return t.DueDate }

// Active reports whether the task should occupy time when computing gaps:
// not soft-deleted, not completed, not cancelled.
func (t *Task) Active() bool {
	if t.IsDeleted() {
		return false
	}
	return t.Status != TaskStatusCompleted && t.Status != TaskStatusCancelled
}

// Validate checks the task's field values.
func (t *Task) Validate() error {
	if err := t.ValidateMeta(); err != nil {
		return err
	}
	if t.Title == "" {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	if len(t.Title) > 500 {
		return &ValidationError{Field: "title", Reason: "must be 500 characters or less"}
	}
	switch t.Status {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
	default:
		return &ValidationError{Field: "status", Reason: "must be one of pending, in_progress, completed, cancelled"}
	}
	if t.DueDate != "" {
		if _, err := time.Parse(DateLayout, t.DueDate); err != nil {
			return &ValidationError{Field: "due_date", Reason: "must be formatted as 2006-01-02"}
		}
	}
	if t.DueTime != "" {
		if _, err := ParseClock(t.DueTime); err != nil {
			return &ValidationError{Field: "due_time", Reason: "must be a 24h HH:MM clock value"}
		}
	}
	if t.Duration != "" {
		if _, err := ParseClock(t.Duration); err != nil {
			return &ValidationError{Field: "duration", Reason: "must be a HH:MM duration"}
		}
	}
	return nil
}

// BusyInterval returns the minutes-of-day interval this task occupies on
// its due date, or ok=false when the task has no scheduled time.
func (t *Task) BusyInterval() (iv Interval, ok bool) {
	if t.DueDate == "" || t.DueTime == "" {
		return Interval{}, false
	}
	start, err := ParseClock(t.DueTime)
	if err != nil {
		return Interval{}, false
	}
	dur := 0
	if t.Duration != "" {
		if d, err := ParseClock(t.Duration); err == nil {
			dur = d
		}
	}
	if dur <= 0 {
		dur = DefaultTaskMinutes
	}
	end := start + dur
	if end > MinutesPerDay {
		end = MinutesPerDay
	}
	return Interval{Start: start, End: end}, true
}

// DefaultTaskMinutes is assumed for scheduled tasks without a duration.
const DefaultTaskMinutes = 30
