package schema

import (
	"time"
)

// ScheduledGap links a TimeGap to the Task scheduled into it.
type ScheduledGap struct {
	SyncMeta

	GapID     string `json:"gap_id"`
	TaskID    string `json:"task_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (s *ScheduledGap) Table() string { return TableScheduled }

func (s *ScheduledGap) RemoteUpdatedAt() time.Time { return s.UpdatedAt }

func (s *ScheduledGap) DateKey() string { return s.Date }

func (s *ScheduledGap) Validate() error {
	if err := s.ValidateMeta(); err != nil {
		return err
	}
	if s.GapID == "" {
		return &ValidationError{Field: "gap_id", Reason: "is required"}
	}
	if s.TaskID == "" {
		return &ValidationError{Field: "task_id", Reason: "is required"}
	}
	if _, err := time.Parse(DateLayout, s.Date); err != nil {
		return &ValidationError{Field: "date", Reason: "must be formatted as 2006-01-02"}
	}
	return nil
}

// ActivityCompletion records that a task was worked on during a date, with
// the minutes actually spent. Completions feed activity-sourced gaps.
type ActivityCompletion struct {
	SyncMeta

	TaskID          string    `json:"task_id"`
	Date            string    `json:"date"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationMinutes int       `json:"duration_minutes"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (a *ActivityCompletion) Table() string { return TableCompletions }

func (a *ActivityCompletion) RemoteUpdatedAt() time.Time { return a.UpdatedAt }

func (a *ActivityCompletion) DateKey() string { return a.Date }

func (a *ActivityCompletion) Validate() error {
	if err := a.ValidateMeta(); err != nil {
		return err
	}
	if a.TaskID == "" {
		return &ValidationError{Field: "task_id", Reason: "is required"}
	}
	if _, err := time.Parse(DateLayout, a.Date); err != nil {
		return &ValidationError{Field: "date", Reason: "must be formatted as 2006-01-02"}
	}
	if a.DurationMinutes < 0 {
		return &ValidationError{Field: "duration_minutes", Reason: "must not be negative"}
	}
	return nil
}
