package cadencesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Cadence HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Series represents the API series model.
type Series struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	RecurrenceType string  `json:"recurrence_type"`
	TimesPerDay    int     `json:"times_per_day,omitempty"`
	DaysOfWeek     []int   `json:"days_of_week,omitempty"`
	TimeStart      *string `json:"time_start,omitempty"`
	TimeEnd        *string `json:"time_end,omitempty"`
	StartDate      string  `json:"start_date"`
	EndDate        *string `json:"end_date,omitempty"`
	GoalID         *string `json:"goal_id,omitempty"`
	Active         bool    `json:"active"`
}

// Task represents an independent task.
type Task struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Date      string  `json:"date"`
	TimeStart *string `json:"time_start,omitempty"`
	TimeEnd   *string `json:"time_end,omitempty"`
	Completed bool    `json:"completed"`
	SeriesID  *string `json:"series_id,omitempty"`
}

// AgendaItem is one line of the aggregated agenda.
type AgendaItem struct {
	Date      string  `json:"date"`
	Title     string  `json:"title"`
	TimeStart *string `json:"time_start,omitempty"`
	TimeEnd   *string `json:"time_end,omitempty"`
	SeriesID  *string `json:"series_id,omitempty"`
	TaskID    *string `json:"task_id,omitempty"`
	Instance  int     `json:"instance"`
	Completed bool    `json:"completed"`
	Detached  bool    `json:"detached"`
}

// Counter is a weekly planned/actual tally.
type Counter struct {
	SeriesID     string `json:"series_id"`
	PeriodStart  string `json:"period_start"`
	PlannedCount int    `json:"planned_count"`
	ActualCount  int    `json:"actual_count"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateSeries creates a recurring series.
func (c *Client) CreateSeries(ctx context.Context, body map[string]any) (Series, error) {
	var resp Series
	err := c.do(ctx, http.MethodPost, "v1/series", body, &resp)
	return resp, err
}

// ListSeries lists series for the authenticated user.
func (c *Client) ListSeries(ctx context.Context) ([]Series, error) {
	var resp struct {
		Items []Series `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v1/series", nil, &resp)
	return resp.Items, err
}

// Agenda returns aggregated occurrences for an inclusive date range.
func (c *Client) Agenda(ctx context.Context, start, end string) ([]AgendaItem, error) {
	var resp struct {
		Items []AgendaItem `json:"items"`
	}
	endpoint := fmt.Sprintf("v1/agenda?start=%s&end=%s", url.QueryEscape(start), url.QueryEscape(end))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// SkipOccurrence removes one occurrence from its date.
func (c *Client) SkipOccurrence(ctx context.Context, seriesID, date string) error {
	endpoint := fmt.Sprintf("v1/series/%s/occurrences/%s", url.PathEscape(seriesID), url.PathEscape(date))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// MoveOccurrence moves one occurrence to another date.
func (c *Client) MoveOccurrence(ctx context.Context, seriesID, date, to string) error {
	endpoint := fmt.Sprintf("v1/series/%s/occurrences/%s/move", url.PathEscape(seriesID), url.PathEscape(date))
	return c.do(ctx, http.MethodPost, endpoint, map[string]any{"to": to}, nil)
}

// SetCompletion sets the completion state of a series occurrence instance.
func (c *Client) SetCompletion(ctx context.Context, seriesID, date string, instance int, completed bool) error {
	body := map[string]any{
		"series_id": seriesID,
		"date":      date,
		"instance":  instance,
		"completed": completed,
	}
	return c.do(ctx, http.MethodPut, "v1/completions", body, nil)
}

// SetTaskCompletion sets the completion state of an independent task.
func (c *Client) SetTaskCompletion(ctx context.Context, taskID string, completed bool) error {
	body := map[string]any{
		"task_id":   taskID,
		"completed": completed,
	}
	return c.do(ctx, http.MethodPut, "v1/completions", body, nil)
}

// CreateTask creates an independent task.
func (c *Client) CreateTask(ctx context.Context, title, date string) (Task, error) {
	body := map[string]any{
		"title": title,
		"date":  date,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v1/tasks", body, &resp)
	return resp, err
}

// Counters returns weekly counters for a series between two period starts.
func (c *Client) Counters(ctx context.Context, seriesID, from, to string) ([]Counter, error) {
	var resp struct {
		Items []Counter `json:"items"`
	}
	endpoint := fmt.Sprintf("v1/series/%s/counters?from=%s&to=%s",
		url.PathEscape(seriesID), url.QueryEscape(from), url.QueryEscape(to))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	var resp struct {
		Items []Event `json:"items"`
	}
	endpoint := "v1/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
