package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/ozone-monitor/db"
	"github.com/thatsimonsguy/ozone-monitor/internal/client"
	"github.com/thatsimonsguy/ozone-monitor/internal/commands"
	"github.com/thatsimonsguy/ozone-monitor/internal/model"
	"github.com/thatsimonsguy/ozone-monitor/internal/poller"
)

type fakeDashboards struct {
	mu     sync.Mutex
	status poller.Status
	subs   []chan model.Dashboard
}

func (f *fakeDashboards) Status() poller.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeDashboards) Subscribe() (<-chan model.Dashboard, func()) {
	ch := make(chan model.Dashboard, 1)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeDashboards) publish(d model.Dashboard) {
	f.mu.Lock()
	f.status.Dashboard = &d
	subs := append([]chan model.Dashboard(nil), f.subs...)
	f.mu.Unlock()
	for _, ch := range subs {
		ch <- d
	}
}

func (f *fakeDashboards) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// blockingIssuer holds every command until release is closed.
type blockingIssuer struct {
	entered chan client.Command
	release chan struct{}
	err     error
}

func (b *blockingIssuer) Issue(ctx context.Context, cmd client.Command, pulseMs uint32) error {
	b.entered <- cmd
	<-b.release
	return b.err
}

type MockNotifier struct{}

func (m *MockNotifier) Send(title, message string) error { return nil }

func runningDashboard(paused bool) *model.Dashboard {
	return &model.Dashboard{
		TS:    "2025-03-01T08:00:00Z",
		Cycle: model.Cycle{Status: model.CycleInitialized, Running: true, Paused: paused},
		Timer: model.Timer{TotalMinutes: 720, RemainingMinutes: 715, Active: true, Text: "11:55"},
	}
}

func setupServer(t *testing.T, dashboards *fakeDashboards, issuer commands.Issuer) (*Server, *commands.Dispatcher) {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	log := db.NewCommandLog(conn, 100)
	dispatcher := commands.NewDispatcher(issuer, commands.WithRecorder(log), commands.WithNotifier(&MockNotifier{}))
	return NewServer(dashboards, dispatcher, log, 400, nil), dispatcher
}

func TestGetDashboard(t *testing.T) {
	updated := time.Date(2025, 3, 1, 8, 0, 1, 0, time.UTC)
	dashboards := &fakeDashboards{status: poller.Status{
		State:     poller.StatePolling,
		Dashboard: runningDashboard(false),
		LastError: errors.New("fetch tags: transport: connection refused"),
		UpdatedAt: updated,
	}}
	server, _ := setupServer(t, dashboards, &blockingIssuer{})

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp DashboardResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "polling", resp.State)
	require.NotNil(t, resp.Dashboard)
	assert.Equal(t, 715, resp.Dashboard.Timer.RemainingMinutes)
	assert.True(t, resp.CanPause)
	assert.False(t, resp.CanResume)
	assert.Contains(t, resp.LastError, "connection refused")
	require.NotNil(t, resp.UpdatedAt)
	assert.True(t, updated.Equal(*resp.UpdatedAt))
	assert.Len(t, resp.Busy, len(client.Commands))
}

func TestGetDashboard_BeforeFirstFetch(t *testing.T) {
	server, _ := setupServer(t, &fakeDashboards{}, &blockingIssuer{})

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp DashboardResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Nil(t, resp.Dashboard)
	assert.False(t, resp.CanPause)
	assert.False(t, resp.CanResume)
	assert.Nil(t, resp.UpdatedAt)
}

func TestRunCommand_Success(t *testing.T) {
	issuer := &blockingIssuer{entered: make(chan client.Command, 1), release: make(chan struct{})}
	close(issuer.release)
	server, _ := setupServer(t, &fakeDashboards{}, issuer)

	req := httptest.NewRequest(http.MethodPost, "/api/commands/reset?pulseMs=250", nil)
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, client.CommandReset, <-issuer.entered)

	req = httptest.NewRequest(http.MethodGet, "/api/commands", nil)
	w = httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var records []model.CommandRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "reset", records[0].Kind)
	assert.Equal(t, uint32(250), records[0].PulseMs)
	assert.True(t, records[0].OK)
}

func TestRunCommand_BusyReturnsConflict(t *testing.T) {
	issuer := &blockingIssuer{entered: make(chan client.Command, 2), release: make(chan struct{})}
	dashboards := &fakeDashboards{status: poller.Status{Dashboard: runningDashboard(true)}}
	server, dispatcher := setupServer(t, dashboards, issuer)
	router := server.Router()

	first := make(chan int, 1)
	go func() {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/commands/resume", nil))
		first <- w.Code
	}()
	<-issuer.entered
	assert.True(t, dispatcher.IsBusy(client.CommandResume))

	// while resume is in flight the UI may neither pause nor resume
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	var resp DashboardResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Busy[client.CommandResume])
	assert.False(t, resp.CanResume)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/commands/resume", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	close(issuer.release)
	assert.Equal(t, http.StatusNoContent, <-first)
	assert.False(t, dispatcher.IsBusy(client.CommandResume))
}

func TestRunCommand_ControllerFailure(t *testing.T) {
	issuer := &blockingIssuer{
		entered: make(chan client.Command, 1),
		release: make(chan struct{}),
		err:     &client.CommandError{Kind: client.CommandEmpty, Status: http.StatusInternalServerError},
	}
	close(issuer.release)
	server, dispatcher := setupServer(t, &fakeDashboards{}, issuer)

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/commands/empty", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Contains(t, resp.Error, "command empty")
	assert.False(t, dispatcher.IsBusy(client.CommandEmpty))
}

func TestRunCommand_BadRequests(t *testing.T) {
	server, _ := setupServer(t, &fakeDashboards{}, &blockingIssuer{})
	router := server.Router()

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"unknown kind", http.MethodPost, "/api/commands/explode", http.StatusNotFound},
		{"bad pulse", http.MethodPost, "/api/commands/stop?pulseMs=abc", http.StatusBadRequest},
		{"zero pulse", http.MethodPost, "/api/commands/stop?pulseMs=0", http.StatusBadRequest},
		{"pulse too long", http.MethodPost, "/api/commands/stop?pulseMs=60000", http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/api/commands/stop", http.StatusMethodNotAllowed},
		{"bad limit", http.MethodGet, "/api/commands?limit=0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHealthz(t *testing.T) {
	server, _ := setupServer(t, &fakeDashboards{status: poller.Status{State: poller.StateStopped}}, &blockingIssuer{})

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","poller":"stopped"}`, w.Body.String())
}

func TestStreamPushesUpdates(t *testing.T) {
	dashboards := &fakeDashboards{status: poller.Status{State: poller.StatePolling, Dashboard: runningDashboard(false)}}
	server, _ := setupServer(t, dashboards, &blockingIssuer{})

	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first DashboardResponse
	require.NoError(t, conn.ReadJSON(&first))
	require.NotNil(t, first.Dashboard)
	assert.Equal(t, 715, first.Dashboard.Timer.RemainingMinutes)

	require.Eventually(t, func() bool { return dashboards.subscribers() == 1 }, time.Second, time.Millisecond)
	next := *runningDashboard(false)
	next.Timer.RemainingMinutes = 714
	dashboards.publish(next)

	var second DashboardResponse
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, 714, second.Dashboard.Timer.RemainingMinutes)
}
