package gateway

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
	"github.com/mcdev12/tasktimer/go/internal/models"
	"github.com/mcdev12/tasktimer/go/internal/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApp struct {
	mu     sync.Mutex
	calls  []string
	texts  []string
	failOn string
	view   timer.View
}

func (a *fakeApp) record(call, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
	a.texts = append(a.texts, text)
	if call == a.failOn {
		return errors.New("write failed")
	}
	return nil
}

func (a *fakeApp) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *fakeApp) SetDescription(ctx context.Context, text string) error {
	return a.record("set_description", text)
}
func (a *fakeApp) FocusTime() { _ = a.record("focus_time", "") }
func (a *fakeApp) BlurTime(ctx context.Context, text string) error {
	return a.record("blur_time", text)
}
func (a *fakeApp) Toggle(ctx context.Context) error { return a.record("toggle", "") }
func (a *fakeApp) Reset(ctx context.Context) error  { return a.record("reset", "") }
func (a *fakeApp) View() timer.View                 { return a.view }
func (a *fakeApp) Snapshot() models.Snapshot {
	return models.Snapshot{Description: a.view.Description}
}

type fakeStore struct{ err error }

func (s fakeStore) Ping(ctx context.Context) error { return s.err }

type fakeGuard struct{ online bool }

func (g fakeGuard) Online() bool     { return g.online }
func (g fakeGuard) Skipped() uint64 { return 3 }

func TestHub_Dispatch(t *testing.T) {
	ctx := context.Background()
	app := &fakeApp{}
	hub := NewHub(DefaultConnectionConfig())
	hub.SetSink(app)

	messages := []string{
		`{"type":"description_changed","text":"standup"}`,
		`{"type":"time_focused"}`,
		`{"type":"time_blurred","text":"0:10:00"}`,
		`{"type":"toggle"}`,
		`{"type":"reset"}`,
	}
	for _, raw := range messages {
		msg, err := ParseClientMessage([]byte(raw))
		require.NoError(t, err)
		require.NoError(t, hub.Dispatch(ctx, msg))
	}

	assert.Equal(t, []string{"set_description", "focus_time", "blur_time", "toggle", "reset"}, app.Calls())
	assert.Equal(t, "standup", app.texts[0])
	assert.Equal(t, "0:10:00", app.texts[2])

	t.Run("unknown type", func(t *testing.T) {
		err := hub.Dispatch(ctx, ClientMessage{Type: "explode"})
		assert.Error(t, err)
	})

	t.Run("sink errors are returned", func(t *testing.T) {
		app.failOn = "toggle"
		assert.Error(t, hub.Dispatch(ctx, ClientMessage{Type: MessageToggle}))
	})
}

func TestStateHandler(t *testing.T) {
	app := &fakeApp{view: timer.View{Description: "review", Time: "0:01:00", State: models.TimerStateRunning, Running: true}}
	mux := http.NewServeMux()
	NewStateHandler(app).RegisterStateRoutes(mux)

	t.Run("get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/timer", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp TimerStateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "0:01:00", resp.View.Time)
		assert.Equal(t, models.TimerStateRunning, resp.View.State)
		assert.Equal(t, "review", resp.Snapshot.Description)
	})

	t.Run("post not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/timer", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHealthChecker(t *testing.T) {
	tests := []struct {
		name       string
		store      fakeStore
		online     bool
		wantStatus int
	}{
		{"healthy", fakeStore{}, true, http.StatusOK},
		{"offline is reported but healthy", fakeStore{}, false, http.StatusOK},
		{"store down", fakeStore{err: errors.New("no route")}, false, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker(tt.store, fakeGuard{online: tt.online}, nil, time.Second)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.online, body["online"])
			assert.Equal(t, float64(3), body["skipped_writes"])
		})
	}
}

func TestHub_WebSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := &fakeApp{}
	hub := NewHub(DefaultConnectionConfig())
	svc := NewService(DefaultConfig(), hub, app, fakeStore{}, fakeGuard{online: true})
	go svc.Start(ctx)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	// rendered before the display connects
	hub.Render(timer.View{Description: "first", Time: "0:00:00"})

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/timer"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readFrame := func() Frame {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	}

	// a frame still queued at connect time may arrive twice
	readUntil := func(match func(Frame) bool) Frame {
		for i := 0; i < 10; i++ {
			if f := readFrame(); match(f) {
				return f
			}
		}
		t.Fatal("expected frame not received")
		return Frame{}
	}

	f := readFrame()
	require.Equal(t, FrameTypeView, f.Type)
	assert.Equal(t, "first", f.View.Description)

	hub.Render(timer.View{Description: "second", Time: "0:00:01"})
	f = readUntil(func(f Frame) bool { return f.View != nil && f.View.Description == "second" })
	assert.Equal(t, "0:00:01", f.View.Time)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"toggle"}`)))
	assert.Eventually(t, func() bool {
		calls := app.Calls()
		return len(calls) == 1 && calls[0] == "toggle"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	f = readUntil(func(f Frame) bool { return f.Type == FrameTypeError })
	assert.NotEmpty(t, f.Error)
	assert.Equal(t, 1, hub.ConnectionCount())
}

func TestHub_BroadcastDuringUnregister(t *testing.T) {
	hub := NewHub(DefaultConnectionConfig())

	const workers = 4
	const rounds = 300
	frame := []byte(`{"type":"view"}`)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				// sized so a broadcast never finds the buffer full
				conn := &Connection{ID: "display", Send: make(chan []byte, workers*rounds), Hub: hub}
				hub.register(conn)
				hub.unregister(conn)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				assert.NotPanics(t, func() { hub.handleBroadcast(frame) })
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, hub.ConnectionCount())
}

type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (w brokenWriter) Write([]byte) (int, error) { return 0, errors.New("client went away") }

func TestHealthChecker_WriteFailure(t *testing.T) {
	h := NewHealthChecker(fakeStore{err: errors.New("no route")}, fakeGuard{}, nil, time.Second)
	w := brokenWriter{httptest.NewRecorder()}

	assert.NotPanics(t, func() {
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Zero(t, w.Body.Len())
}
