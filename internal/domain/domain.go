package domain

// Recurrence type discriminators. A series carries exactly one
// canonical representation; legacy dual-column rule encodings are not
// modeled.
const (
	RecurrenceNone   = "none"
	RecurrenceDaily  = "daily"
	RecurrenceWeekly = "weekly"
)

type TaskSeries struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
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
	DeletedAt      *string `json:"deleted_at,omitempty" format:"date-time"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

// OccurrenceOverride materializes lazily on the first exception for a
// (series, date) pair. At most one row exists per pair; the schema
// enforces it.
type OccurrenceOverride struct {
	SeriesID  string  `json:"series_id"`
	Date      string  `json:"date" format:"date"`
	Title     *string `json:"title,omitempty"`
	TimeStart *string `json:"time_start,omitempty"`
	TimeEnd   *string `json:"time_end,omitempty"`
	Detached  bool    `json:"detached"`
	Skip      bool    `json:"skip"`
	MovedFrom *string `json:"moved_from,omitempty" format:"date"`
	DeletedAt *string `json:"deleted_at,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

type IndependentTask struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Title     string  `json:"title"`
	Date      string  `json:"date" format:"date"`
	TimeStart *string `json:"time_start,omitempty"`
	TimeEnd   *string `json:"time_end,omitempty"`
	Completed bool    `json:"completed"`
	SeriesID  *string `json:"series_id,omitempty"`
	GoalID    *string `json:"goal_id,omitempty"`
	DeletedAt *string `json:"deleted_at,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

// CompletionRecord exists iff the instance is completed. Instance is
// 1-based; rules without multiple daily instances use instance 1.
type CompletionRecord struct {
	SeriesID    string `json:"series_id"`
	Date        string `json:"date" format:"date"`
	Instance    int    `json:"instance"`
	CompletedAt string `json:"completed_at" format:"date-time"`
}

type PeriodCounter struct {
	SeriesID     string `json:"series_id"`
	PeriodStart  string `json:"period_start" format:"date"`
	PlannedCount int    `json:"planned_count"`
	ActualCount  int    `json:"actual_count"`
}

type Goal struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Title     string  `json:"title"`
	Focused   bool    `json:"focused"`
	VisionID  *string `json:"vision_id,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

// AgendaItem is the composed occurrence shape the aggregator returns.
// Exactly one of SeriesID/TaskID is set.
type AgendaItem struct {
	SeriesID  *string `json:"series_id,omitempty"`
	TaskID    *string `json:"task_id,omitempty"`
	Date      string  `json:"date" format:"date"`
	Instance  int     `json:"instance"`
	Title     string  `json:"title"`
	TimeStart *string `json:"time_start,omitempty"`
	TimeEnd   *string `json:"time_end,omitempty"`
	Completed bool    `json:"completed"`
	Detached  bool    `json:"detached"`
	GoalID    *string `json:"goal_id,omitempty"`
	GoalTitle string  `json:"goal_title,omitempty"`
	GoalFocus bool    `json:"goal_focused,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
