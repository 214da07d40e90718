package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"cadence/internal/config"
	"cadence/internal/db"
	"cadence/internal/engine"
	"cadence/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("u1"))
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{AllowLegacyUserHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

var asUser = map[string]string{"X-User-Id": "u1"}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestUnauthorizedWithoutCredentials(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/series", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("expected code unauthorized, got %q", code)
	}
}

func TestSeriesAgendaRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/series", map[string]any{
		"title":           "Standup",
		"recurrence_type": "weekly",
		"days_of_week":    []int{1, 3, 5},
		"start_date":      "2024-01-01",
		"time_start":      "09:00",
	}, asUser)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create series status %d: %s", res.StatusCode, string(data))
	}
	var created SeriesResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal series: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected series id")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/agenda?start=2024-01-01&end=2024-01-07", nil, asUser)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("agenda status %d: %s", res.StatusCode, string(data))
	}
	var agenda struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(data, &agenda); err != nil {
		t.Fatalf("unmarshal agenda: %v", err)
	}
	if len(agenda.Items) != 3 {
		t.Fatalf("expected 3 agenda items, got %d: %s", len(agenda.Items), string(data))
	}
}

func TestMoveConflictStatus(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/series", map[string]any{
		"title":           "Watering",
		"recurrence_type": "daily",
		"start_date":      "2024-01-01",
	}, asUser)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create series status %d: %s", res.StatusCode, string(data))
	}
	var created SeriesResponse
	_ = json.Unmarshal(data, &created)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/series/"+created.ID+"/occurrences/2024-01-02/move", map[string]any{
		"to": "2024-01-03",
	}, asUser)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("first move status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/series/"+created.ID+"/occurrences/2024-01-04/move", map[string]any{
		"to": "2024-01-03",
	}, asUser)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "move_conflict" {
		t.Fatalf("expected code move_conflict, got %q", code)
	}
}

func TestValidationFailedStatus(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/series", map[string]any{
		"title":           "Empty weekly",
		"recurrence_type": "weekly",
		"start_date":      "2024-01-01",
	}, asUser)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "validation_failed" {
		t.Fatalf("expected code validation_failed, got %q", code)
	}
}

func TestNotFoundStatus(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/series/nope", nil, asUser)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("expected code not_found, got %q", code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/keys", map[string]any{
		"name": "ci",
	}, asUser)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var key KeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatalf("expected plaintext key in create response")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks with api key status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/keys", nil, asUser)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list keys status %d: %s", res.StatusCode, string(data))
	}
	var listed struct {
		Items []KeyResponse `json:"items"`
	}
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatalf("unmarshal keys: %v", err)
	}
	if len(listed.Items) != 1 || listed.Items[0].Key != "" {
		t.Fatalf("expected one key without plaintext, got %s", string(data))
	}
}

func TestHealthExemptFromAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}
