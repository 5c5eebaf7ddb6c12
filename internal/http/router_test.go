package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"medbuddy/internal/config"
	"medbuddy/internal/events"
	"medbuddy/internal/jobs"
	"medbuddy/internal/reminder"
	"medbuddy/internal/vapi"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const future = "2099-01-01T08:00:00"

type fakeCalls struct {
	mu      sync.Mutex
	calls   []string
	hold    chan struct{}
	connErr error
	numbers []json.RawMessage
}

func (f *fakeCalls) PlaceCall(_ context.Context, medication, _ string) error {
	f.mu.Lock()
	f.calls = append(f.calls, medication)
	hold := f.hold
	f.mu.Unlock()
	if hold != nil {
		<-hold
	}
	return nil
}

func (f *fakeCalls) TestConnection(context.Context) error { return f.connErr }

func (f *fakeCalls) ListPhoneNumbers(context.Context) ([]json.RawMessage, error) {
	if f.connErr != nil {
		return nil, f.connErr
	}
	return f.numbers, nil
}

func (f *fakeCalls) placed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type env struct {
	router http.Handler
	store  *reminder.Store
	sched  *jobs.Scheduler
	hub    *events.Hub
	calls  *fakeCalls
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "reminders.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&reminder.Reminder{}))

	store := &reminder.Store{DB: gdb}
	hub := events.NewHub(16, nil)
	calls := &fakeCalls{hold: make(chan struct{})}
	sched := jobs.New(store, calls, hub, nil)
	t.Cleanup(sched.Stop)
	hold := calls.hold
	t.Cleanup(func() { close(hold) })

	cfg := config.Config{CORSAllowedOrigins: []string{"*"}}
	r := NewRouter(cfg, Deps{Store: store, Sched: sched, Hub: hub, Calls: calls, Log: zap.NewNop()})
	return &env{router: r, store: store, sched: sched, hub: hub, calls: calls}
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) create(t *testing.T, medication, when string) uint64 {
	t.Helper()
	w := e.do(t, http.MethodPost, "/reminders", `{"medication":"`+medication+`","time":"`+when+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Status string `json:"status"`
		ID     uint64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, reminder.StatusScheduled, resp.Status)
	require.NotZero(t, resp.ID)
	return resp.ID
}

// requirePending checks that the create already armed a timer for id.
func (e *env) requirePending(t *testing.T, id uint64) {
	t.Helper()
	require.Contains(t, e.sched.Pending(), id)
}

func (e *env) list(t *testing.T) []reminder.Reminder {
	t.Helper()
	w := e.do(t, http.MethodGet, "/reminders", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rows []reminder.Reminder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	return rows
}

func path(id uint64, suffix string) string {
	return "/reminders/" + strconv.FormatUint(id, 10) + suffix
}

func TestCreateAndList_RoundTrip(t *testing.T) {
	e := newEnv(t)
	id := e.create(t, "Aspirin", "8 PM")

	rows := e.list(t)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].ID)
	assert.Equal(t, "Aspirin", rows[0].Medication)
	assert.Equal(t, "8 PM", rows[0].Time)
	assert.Equal(t, reminder.StatusScheduled, rows[0].Status)
}

func TestCreate_Validation(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"medication":`},
		{"missing medication", `{"time":"8 PM"}`},
		{"blank time", `{"medication":"Aspirin","time":"  "}`},
		{"unparseable time", `{"medication":"Aspirin","time":"whenever you feel like it"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/reminders", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	assert.Empty(t, e.list(t))
}

func TestList_EmptyIsArray(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/reminders", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestCancel(t *testing.T) {
	e := newEnv(t)
	id := e.create(t, "Lisinopril", future)
	e.requirePending(t, id)

	w := e.do(t, http.MethodPost, path(id, "/cancel"), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"status":"cancelled","id":`+strconv.FormatUint(id, 10)+`}`, w.Body.String())

	assert.NotContains(t, e.sched.Pending(), id)
	assert.Equal(t, reminder.StatusCancelled, e.list(t)[0].Status)
	assert.Empty(t, e.calls.placed())

	// cancelling again is tolerated
	w = e.do(t, http.MethodPost, path(id, "/cancel"), "")
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/reminders/999/cancel", "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/reminders/abc/cancel", "").Code)
}

func TestCreateThenCancel_LeavesNothingPending(t *testing.T) {
	e := newEnv(t)

	for i := 0; i < 50; i++ {
		id := e.create(t, "Lisinopril", future)
		w := e.do(t, http.MethodPost, path(id, "/cancel"), "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NotContains(t, e.sched.Pending(), id)

		id = e.create(t, "Metformin", future)
		require.Equal(t, http.StatusOK, e.do(t, http.MethodDelete, path(id, ""), "").Code)
		require.NotContains(t, e.sched.Pending(), id)
	}
	assert.Empty(t, e.sched.Pending())
}

func TestCancelByMedication(t *testing.T) {
	e := newEnv(t)
	id := e.create(t, "Aspirin 500mg", future)
	e.requirePending(t, id)

	w := e.do(t, http.MethodPost, "/cancel_by_medication", `{"medication":"asp"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Status     string `json:"status"`
		ID         uint64 `json:"id"`
		Medication string `json:"medication"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, reminder.StatusCancelled, resp.Status)
	assert.Equal(t, id, resp.ID)
	assert.Equal(t, "Aspirin 500mg", resp.Medication)
	assert.NotContains(t, e.sched.Pending(), id)

	// nothing scheduled matches any more
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/cancel_reminder", `{"medication":"asp"}`).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/cancel_by_medication", `{"medication":"ibuprofen"}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/cancel_by_medication", `{"medication":""}`).Code)
}

func TestDelete(t *testing.T) {
	e := newEnv(t)
	id := e.create(t, "Metformin", future)
	e.requirePending(t, id)

	w := e.do(t, http.MethodDelete, path(id, ""), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, e.list(t))
	assert.NotContains(t, e.sched.Pending(), id)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, path(id, ""), "").Code)
}

func TestSetStatus(t *testing.T) {
	e := newEnv(t)
	id := e.create(t, "Metformin", future)
	e.requirePending(t, id)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, path(id, "/status?status=snoozed"), "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPut, "/reminders/999/status?status=completed", "").Code)

	w := e.do(t, http.MethodPut, path(id, "/status?status=completed"), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, reminder.StatusCompleted, e.list(t)[0].Status)
	assert.NotContains(t, e.sched.Pending(), id)

	w = e.do(t, http.MethodPut, path(id, "/status?status=scheduled"), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, e.sched.Pending(), id)
}

func TestTriggerCall(t *testing.T) {
	e := newEnv(t)
	e.calls.hold = nil

	w := e.do(t, http.MethodPost, "/trigger_call", `{"medication":"Aspirin","message":"hi"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"status":"calling"}`, w.Body.String())

	w = e.do(t, http.MethodPost, "/api/trigger_call", `{}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	assert.Eventually(t, func() bool { return len(e.calls.placed()) == 2 }, time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"Aspirin", "general"}, e.calls.placed())
	assert.Empty(t, e.list(t))
}

func TestDiagnostics(t *testing.T) {
	e := newEnv(t)
	e.calls.numbers = []json.RawMessage{json.RawMessage(`{"id":"pn-1"}`)}

	w := e.do(t, http.MethodGet, "/diagnostics/connection", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/phone-numbers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Found 1 phone number(s)")

	e.calls.connErr = vapi.ErrNotConfigured
	assert.Equal(t, http.StatusServiceUnavailable, e.do(t, http.MethodGet, "/test-vapi", "").Code)

	e.calls.connErr = errors.Join(vapi.ErrExternalService, errors.New("401"))
	assert.Equal(t, http.StatusBadGateway, e.do(t, http.MethodGet, "/diagnostics/phone-numbers", "").Code)
}

func TestChat(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/chat", `{"message":"Remind me to take Vitamin D at `+future+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Reminder set for Vitamin D")

	rows := e.list(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "Vitamin D", rows[0].Medication)

	w = e.do(t, http.MethodPost, "/api/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Remind me to take [medication] at [time]")

	w = e.do(t, http.MethodPost, "/api/chat", `{"message":"remind me to take Aspirin at whenever you feel like it"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "couldn't understand the time")
}

func TestRootAndHealth(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "MedBuddy API is running")

	w = e.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, "ok", w.Body.String())

	w = e.do(t, http.MethodPost, "/api/say_reminder", `{"message":"take it"}`)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestEventsWebsocket(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return e.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	id := e.create(t, "Aspirin", future)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev struct {
		Event string              `json:"event"`
		Data  []reminder.Reminder `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.RemindersUpdated, ev.Event)
	require.Len(t, ev.Data, 1)
	assert.Equal(t, id, ev.Data[0].ID)
	assert.Equal(t, reminder.StatusScheduled, ev.Data[0].Status)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return e.hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}
