package server

import (
	"encoding/json"

	"cadence/internal/domain"
)

// Request payloads

type CreateSeriesRequest struct {
	ID             *string `json:"id,omitempty"`
	Title          string  `json:"title"`
	RecurrenceType string  `json:"recurrence_type" enum:"none,daily,weekly"`
	TimesPerDay    int     `json:"times_per_day,omitempty" minimum:"0"`
	DaysOfWeek     []int   `json:"days_of_week,omitempty"`
	TimeStart      *string `json:"time_start,omitempty"`
	TimeEnd        *string `json:"time_end,omitempty"`
	StartDate      string  `json:"start_date" format:"date"`
	EndDate        *string `json:"end_date,omitempty" format:"date"`
	GoalID         *string `json:"goal_id,omitempty"`
}

type UpdateSeriesRequest struct {
	Title     *string  `json:"title,omitempty"`
	TimeStart **string `json:"time_start,omitempty"`
	TimeEnd   **string `json:"time_end,omitempty"`
	GoalID    **string `json:"goal_id,omitempty"`
	Active    *bool    `json:"active,omitempty"`
}

type SplitSeriesRequest struct {
	SplitDate      string   `json:"split_date" format:"date"`
	Title          *string  `json:"title,omitempty"`
	TimeStart      **string `json:"time_start,omitempty"`
	TimeEnd        **string `json:"time_end,omitempty"`
	RecurrenceType *string  `json:"recurrence_type,omitempty" enum:"none,daily,weekly"`
	TimesPerDay    *int     `json:"times_per_day,omitempty"`
	DaysOfWeek     []int    `json:"days_of_week,omitempty"`
}

type OverrideRequest struct {
	Title     *string  `json:"title,omitempty"`
	TimeStart **string `json:"time_start,omitempty"`
	TimeEnd   **string `json:"time_end,omitempty"`
}

type MoveRequest struct {
	To        string   `json:"to" format:"date"`
	Title     *string  `json:"title,omitempty"`
	TimeStart **string `json:"time_start,omitempty"`
	TimeEnd   **string `json:"time_end,omitempty"`
}

type CreateTaskRequest struct {
	ID        *string `json:"id,omitempty"`
	Title     string  `json:"title"`
	Date      string  `json:"date" format:"date"`
	TimeStart *string `json:"time_start,omitempty"`
	TimeEnd   *string `json:"time_end,omitempty"`
	GoalID    *string `json:"goal_id,omitempty"`
}

type ConvertRecurringRequest struct {
	RecurrenceType string `json:"recurrence_type" enum:"daily,weekly"`
	TimesPerDay    int    `json:"times_per_day,omitempty"`
	DaysOfWeek     []int  `json:"days_of_week,omitempty"`
}

type ConvertIndependentRequest struct {
	KeepDate string `json:"keep_date" format:"date"`
}

type SetCompletionRequest struct {
	SeriesID  *string `json:"series_id,omitempty"`
	TaskID    *string `json:"task_id,omitempty"`
	Date      string  `json:"date,omitempty" format:"date"`
	Instance  int     `json:"instance,omitempty" minimum:"0"`
	Completed bool    `json:"completed"`
}

type CreateKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type SeriesResponse struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	RecurrenceType string  `json:"recurrence_type" enum:"none,daily,weekly"`
	TimesPerDay    int     `json:"times_per_day,omitempty"`
	DaysOfWeek     []int   `json:"days_of_week,omitempty"`
	TimeStart      *string `json:"time_start,omitempty"`
	TimeEnd        *string `json:"time_end,omitempty"`
	StartDate      string  `json:"start_date" format:"date"`
	EndDate        *string `json:"end_date,omitempty" format:"date"`
	GoalID         *string `json:"goal_id,omitempty"`
	Active         bool    `json:"active"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

type OverrideResponse struct {
	SeriesID  string  `json:"series_id"`
	Date      string  `json:"date" format:"date"`
	Title     *string `json:"title,omitempty"`
	TimeStart *string `json:"time_start,omitempty"`
	TimeEnd   *string `json:"time_end,omitempty"`
	Detached  bool    `json:"detached"`
	Skip      bool    `json:"skip"`
	MovedFrom *string `json:"moved_from,omitempty" format:"date"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

type TaskResponse struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Date      string  `json:"date" format:"date"`
	TimeStart *string `json:"time_start,omitempty"`
	TimeEnd   *string `json:"time_end,omitempty"`
	Completed bool    `json:"completed"`
	SeriesID  *string `json:"series_id,omitempty"`
	GoalID    *string `json:"goal_id,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

// ConvertIndependentResponse carries the kept task, or flags that the
// keep date fell on or before the series start and nothing was kept.
type ConvertIndependentResponse struct {
	Task          *TaskResponse `json:"task,omitempty"`
	SeriesDeleted bool          `json:"series_deleted"`
}

type CounterResponse struct {
	SeriesID     string `json:"series_id"`
	PeriodStart  string `json:"period_start" format:"date"`
	PlannedCount int    `json:"planned_count"`
	ActualCount  int    `json:"actual_count"`
}

type KeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is the plaintext secret, returned once at creation only.
	Key string `json:"key,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Conversion helpers

func seriesResponse(s domain.TaskSeries) SeriesResponse {
	return SeriesResponse{
		ID:             s.ID,
		Title:          s.Title,
		RecurrenceType: s.RecurrenceType,
		TimesPerDay:    s.TimesPerDay,
		DaysOfWeek:     s.DaysOfWeek,
		TimeStart:      s.TimeStart,
		TimeEnd:        s.TimeEnd,
		StartDate:      s.StartDate,
		EndDate:        s.EndDate,
		GoalID:         s.GoalID,
		Active:         s.Active,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func overrideResponse(o domain.OccurrenceOverride) OverrideResponse {
	return OverrideResponse{
		SeriesID:  o.SeriesID,
		Date:      o.Date,
		Title:     o.Title,
		TimeStart: o.TimeStart,
		TimeEnd:   o.TimeEnd,
		Detached:  o.Detached,
		Skip:      o.Skip,
		MovedFrom: o.MovedFrom,
		UpdatedAt: o.UpdatedAt,
	}
}

func taskResponse(t domain.IndependentTask) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		Title:     t.Title,
		Date:      t.Date,
		TimeStart: t.TimeStart,
		TimeEnd:   t.TimeEnd,
		Completed: t.Completed,
		SeriesID:  t.SeriesID,
		GoalID:    t.GoalID,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func counterResponse(c domain.PeriodCounter) CounterResponse {
	return CounterResponse(c)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
