package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"cadence/internal/domain"
	"cadence/internal/engine"
	"cadence/internal/recurrence"
	"cadence/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"move_conflict"`
	Message string         `json:"message" example:"occurrence already exists at this date"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Cadence API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the required envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request shape errors are 400 bad_request; 422 is
			// reserved for domain rule violations.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Cadence API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAgenda(group, cfg.Engine)
	registerSeries(group, cfg.Engine)
	registerOccurrences(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerCompletions(group, cfg.Engine)
	registerCounters(group, cfg.Engine)
	registerKeys(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps domain errors onto the wire taxonomy.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		details := map[string]any{}
		if ve.Field != "" {
			details["field"] = ve.Field
		}
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), details)
	}
	var mc engine.MoveConflictError
	if errors.As(err, &mc) {
		return newAPIError(http.StatusConflict, "move_conflict", err.Error(), map[string]any{"date": mc.Date})
	}
	if errors.Is(err, engine.ErrNotAuthenticated) {
		return newAPIError(http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "database is locked"),
		strings.Contains(lowered, "disk i/o error"),
		strings.Contains(lowered, "unable to open database"):
		return newAPIError(http.StatusServiceUnavailable, "store_unavailable", "storage temporarily unavailable", nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "move_conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusServiceUnavailable:
		return "store_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Cadence API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAgenda(api huma.API, e engine.Engine) {
	type agendaInput struct {
		Start string `query:"start" format:"date"`
		End   string `query:"end" format:"date"`
	}
	type agendaOutput struct {
		Body struct {
			Items []domain.AgendaItem `json:"items"`
		} `json:"body"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "agenda",
		Method:      http.MethodGet,
		Path:        "/agenda",
		Summary:     "Aggregated occurrences for a date range",
	}, func(ctx context.Context, input *agendaInput) (*agendaOutput, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.OccurrencesForRange(ctx, userID, input.Start, input.End)
		if err != nil {
			return nil, handleError(err)
		}
		out := &agendaOutput{}
		out.Body.Items = nonNilSlice(items)
		return out, nil
	})
}

type SeriesPath struct {
	SeriesID string `path:"series_id"`
}

type seriesOutput struct {
	Body SeriesResponse `json:"body"`
}

func ownedSeriesForRead(ctx context.Context, e engine.Engine, userID, id string) (domain.TaskSeries, error) {
	s, err := e.Repo.GetSeries(ctx, id)
	if err != nil {
		return s, err
	}
	if s.UserID != userID || s.DeletedAt != nil {
		return domain.TaskSeries{}, repo.ErrNotFound
	}
	return s, nil
}

func registerSeries(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-series",
		Method:        http.MethodPost,
		Path:          "/series",
		Summary:       "Create a task series",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateSeriesRequest `json:"body"`
	}) (*seriesOutput, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.SeriesCreateOptions{
			UserID:         userID,
			Title:          input.Body.Title,
			RecurrenceType: input.Body.RecurrenceType,
			TimesPerDay:    input.Body.TimesPerDay,
			DaysOfWeek:     input.Body.DaysOfWeek,
			TimeStart:      input.Body.TimeStart,
			TimeEnd:        input.Body.TimeEnd,
			StartDate:      input.Body.StartDate,
			EndDate:        input.Body.EndDate,
			GoalID:         input.Body.GoalID,
			ActorID:        userID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		s, err := e.CreateSeries(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &seriesOutput{Body: seriesResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-series",
		Method:      http.MethodGet,
		Path:        "/series",
		Summary:     "List series",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []SeriesResponse `json:"items"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		list, err := e.Repo.ListSeries(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []SeriesResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = []SeriesResponse{}
		for _, s := range list {
			out.Body.Items = append(out.Body.Items, seriesResponse(s))
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-series",
		Method:      http.MethodGet,
		Path:        "/series/{series_id}",
		Summary:     "Get a series",
	}, func(ctx context.Context, input *SeriesPath) (*seriesOutput, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := ownedSeriesForRead(ctx, e, userID, input.SeriesID)
		if err != nil {
			return nil, handleError(err)
		}
		return &seriesOutput{Body: seriesResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-series",
		Method:      http.MethodPatch,
		Path:        "/series/{series_id}",
		Summary:     "Update series fields",
	}, func(ctx context.Context, input *struct {
		SeriesPath
		Body UpdateSeriesRequest `json:"body"`
	}) (*seriesOutput, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.UpdateSeries(ctx, userID, input.SeriesID, repo.SeriesUpdate{
			Title:     input.Body.Title,
			TimeStart: input.Body.TimeStart,
			TimeEnd:   input.Body.TimeEnd,
			GoalID:    input.Body.GoalID,
			Active:    input.Body.Active,
		}, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &seriesOutput{Body: seriesResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "split-series",
		Method:        http.MethodPost,
		Path:          "/series/{series_id}/split",
		Summary:       "Split a series at a date",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		SeriesPath
		Body SplitSeriesRequest `json:"body"`
	}) (*seriesOutput, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.SplitOptions{
			Title:     input.Body.Title,
			TimeStart: input.Body.TimeStart,
			TimeEnd:   input.Body.TimeEnd,
		}
		if input.Body.RecurrenceType != nil {
			r := recurrence.Rule{
				Type:       *input.Body.RecurrenceType,
				DaysOfWeek: input.Body.DaysOfWeek,
			}
			if input.Body.TimesPerDay != nil {
				r.TimesPerDay = *input.Body.TimesPerDay
			}
			opts.Rule = &r
		}
		succ, err := e.SplitSeries(ctx, userID, input.SeriesID, input.Body.SplitDate, opts, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &seriesOutput{Body: seriesResponse(succ)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "convert-series-independent",
		Method:      http.MethodPost,
		Path:        "/series/{series_id}/convert-independent",
		Summary:     "Collapse a series into one independent task",
	}, func(ctx context.Context, input *struct {
		SeriesPath
		Body ConvertIndependentRequest `json:"body"`
	}) (*struct {
		Body ConvertIndependentResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.ConvertToIndependent(ctx, userID, input.SeriesID, input.Body.KeepDate, userID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body ConvertIndependentResponse `json:"body"`
		}{}
		if t != nil {
			tr := taskResponse(*t)
			out.Body.Task = &tr
		} else {
			out.Body.SeriesDeleted = true
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-series",
		Method:        http.MethodDelete,
		Path:          "/series/{series_id}",
		Summary:       "Delete an entire series",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *SeriesPath) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteEntireSeries(ctx, userID, input.SeriesID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-series-future",
		Method:        http.MethodDelete,
		Path:          "/series/{series_id}/future",
		Summary:       "Delete all occurrences from a date onward",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		SeriesPath
		From string `query:"from" format:"date"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteFutureOccurrences(ctx, userID, input.SeriesID, input.From, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerOccurrences(api huma.API, e engine.Engine) {
	type OccurrencePath struct {
		SeriesID string `path:"series_id"`
		Date     string `path:"date"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "override-occurrence",
		Method:      http.MethodPut,
		Path:        "/series/{series_id}/occurrences/{date}",
		Summary:     "Override fields of one occurrence",
	}, func(ctx context.Context, input *struct {
		OccurrencePath
		Body OverrideRequest `json:"body"`
	}) (*struct {
		Body OverrideResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.UpsertOverride(ctx, userID, input.SeriesID, input.Date, engine.OverrideChange{
			Title:     input.Body.Title,
			TimeStart: input.Body.TimeStart,
			TimeEnd:   input.Body.TimeEnd,
		}, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OverrideResponse `json:"body"`
		}{Body: overrideResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-occurrence",
		Method:        http.MethodDelete,
		Path:          "/series/{series_id}/occurrences/{date}",
		Summary:       "Remove one occurrence from its date",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *OccurrencePath) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteOccurrence(ctx, userID, input.SeriesID, input.Date, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-occurrence",
		Method:      http.MethodPost,
		Path:        "/series/{series_id}/occurrences/{date}/move",
		Summary:     "Move one occurrence to another date",
	}, func(ctx context.Context, input *struct {
		OccurrencePath
		Body MoveRequest `json:"body"`
	}) (*struct {
		Body OverrideResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		err := e.Move(ctx, userID, input.SeriesID, input.Date, input.Body.To, engine.OverrideChange{
			Title:     input.Body.Title,
			TimeStart: input.Body.TimeStart,
			TimeEnd:   input.Body.TimeEnd,
		}, userID)
		if err != nil {
			return nil, handleError(err)
		}
		o, err := e.Repo.GetOverride(ctx, input.SeriesID, input.Body.To)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OverrideResponse `json:"body"`
		}{Body: overrideResponse(o)}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	type TaskPath struct {
		TaskID string `path:"task_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create an independent task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TaskCreateOptions{
			UserID:    userID,
			Title:     input.Body.Title,
			Date:      input.Body.Date,
			TimeStart: input.Body.TimeStart,
			TimeEnd:   input.Body.TimeEnd,
			GoalID:    input.Body.GoalID,
			ActorID:   userID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List independent tasks",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []TaskResponse `json:"items"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		list, err := e.Repo.ListTasks(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []TaskResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = []TaskResponse{}
		for _, t := range list {
			out.Body.Items = append(out.Body.Items, taskResponse(t))
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Delete an independent task",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *TaskPath) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, userID, input.TaskID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "convert-task-recurring",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/convert-recurring",
		Summary:       "Promote a task into a recurring series",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body ConvertRecurringRequest `json:"body"`
	}) (*seriesOutput, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rule := recurrence.Rule{
			Type:        input.Body.RecurrenceType,
			TimesPerDay: input.Body.TimesPerDay,
			DaysOfWeek:  input.Body.DaysOfWeek,
		}
		s, err := e.ConvertToRecurring(ctx, userID, input.TaskID, rule, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &seriesOutput{Body: seriesResponse(s)}, nil
	})
}

func registerCompletions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "set-completion",
		Method:        http.MethodPut,
		Path:          "/completions",
		Summary:       "Set the completion state of an occurrence or task",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		Body SetCompletionRequest `json:"body"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ref := engine.CompletionRef{
			Date:     input.Body.Date,
			Instance: input.Body.Instance,
		}
		if input.Body.SeriesID != nil {
			ref.SeriesID = *input.Body.SeriesID
		}
		if input.Body.TaskID != nil {
			ref.TaskID = *input.Body.TaskID
		}
		if err := e.SetCompletion(ctx, userID, ref, input.Body.Completed, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerCounters(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-counters",
		Method:      http.MethodGet,
		Path:        "/series/{series_id}/counters",
		Summary:     "Weekly completion counters for a series",
	}, func(ctx context.Context, input *struct {
		SeriesPath
		From string `query:"from" format:"date"`
		To   string `query:"to" format:"date"`
	}) (*struct {
		Body struct {
			Items []CounterResponse `json:"items"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := ownedSeriesForRead(ctx, e, userID, input.SeriesID); err != nil {
			return nil, handleError(err)
		}
		list, err := e.Repo.ListCounters(ctx, input.SeriesID, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []CounterResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = []CounterResponse{}
		for _, c := range list {
			out.Body.Items = append(out.Body.Items, counterResponse(c))
		}
		return out, nil
	})
}

func registerKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-key",
		Method:        http.MethodPost,
		Path:          "/keys",
		Summary:       "Create an API key",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateKeyRequest `json:"body"`
	}) (*struct {
		Body KeyResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plaintext, key, err := NewAPIKey(ctx, e.Repo, userID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body KeyResponse `json:"body"`
		}{Body: KeyResponse{
			ID:        key.ID,
			Name:      key.Name,
			CreatedAt: key.CreatedAt,
			Key:       plaintext,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-keys",
		Method:      http.MethodGet,
		Path:        "/keys",
		Summary:     "List API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []KeyResponse `json:"items"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []KeyResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = []KeyResponse{}
		for _, k := range keys {
			out.Body.Items = append(out.Body.Items, KeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-key",
		Method:        http.MethodDelete,
		Path:          "/keys/{key_id}",
		Summary:       "Delete an API key",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		owned := false
		for _, k := range keys {
			if k.ID == input.KeyID {
				owned = true
				break
			}
		}
		if !owned {
			return nil, handleError(repo.ErrNotFound)
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent mutation events",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" minimum:"0" maximum:"1000"`
	}) (*struct {
		Body struct {
			Items []EventResponse `json:"items"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		events, err := e.Repo.ListEvents(ctx, userID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []EventResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = []EventResponse{}
		for _, evt := range events {
			out.Body.Items = append(out.Body.Items, eventResponse(evt))
		}
		return out, nil
	})
}
