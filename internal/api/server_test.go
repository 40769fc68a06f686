package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alymdu/shortest-plates/internal/plates"
	"github.com/alymdu/shortest-plates/internal/progress"
	"github.com/alymdu/shortest-plates/internal/storage/memory"
	"github.com/alymdu/shortest-plates/internal/worker"
)

func TestServer_StartAndAlreadyRunning(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	server := NewServer(ctrl, memory.NewResultStore(), Config{}, zap.NewNop())

	rec := serve(server, http.MethodPost, "/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var body controlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, controlResponse{OK: true, Message: "Started", RunID: "run-1"}, body)

	rec = serve(server, http.MethodGet, "/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"message":"Already running"`)
	require.Contains(t, rec.Body.String(), `"run_id":"run-1"`)
}

func TestServer_StartFailure(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{startErr: errors.New("no entropy")}
	server := NewServer(ctrl, memory.NewResultStore(), Config{}, zap.NewNop())

	rec := serve(server, http.MethodGet, "/start", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "failed to start run")
}

func TestServer_StopStates(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	server := NewServer(ctrl, memory.NewResultStore(), Config{}, zap.NewNop())

	rec := serve(server, http.MethodGet, "/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"message":"Not running"`)

	serve(server, http.MethodGet, "/start", nil)
	rec = serve(server, http.MethodPost, "/stop", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"message":"Stopping"`)
}

func TestServer_ControlToken(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	server := NewServer(ctrl, memory.NewResultStore(), Config{ControlToken: "s3cret"}, zap.NewNop())

	rec := serve(server, http.MethodGet, "/start", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "Missing or invalid token")

	rec = serve(server, http.MethodGet, "/start?token=wrong", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, ctrl.starts())

	rec = serve(server, http.MethodGet, "/start?token=s3cret", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = serve(server, http.MethodPost, "/stop", http.Header{"X-Control-Token": {"s3cret"}})
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Read-only routes stay open.
	rec = serve(server, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_StatusIdleHasNulls(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeController{}, memory.NewResultStore(), Config{}, zap.NewNop())
	rec := serve(server, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, false, body["running"])
	for _, key := range []string{"last_plate", "last_status", "last_checked_at", "queue_remaining"} {
		v, ok := body[key]
		require.True(t, ok, key)
		require.Nil(t, v, key)
	}
}

func TestServer_ResultsJSON(t *testing.T) {
	t.Parallel()

	store := seededStore(t, "AA", "AB", "AC")
	server := NewServer(&fakeController{}, store, Config{}, zap.NewNop())

	rec := serve(server, http.MethodGet, "/results.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 3)
	require.Equal(t, "AC", rows[0]["plate"])
	require.Equal(t, "AA", rows[2]["plate"])
	require.Equal(t, "2026-01-02T03:04:05Z", rows[2]["checked_at"])

	rec = serve(server, http.MethodGet, "/results.json?limit=2", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	require.Equal(t, "AB", rows[1]["plate"])

	rec = serve(server, http.MethodGet, "/results.json?limit=abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(server, http.MethodGet, "/results.json?limit=-1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ResultsJSONEmpty(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeController{}, memory.NewResultStore(), Config{}, zap.NewNop())
	rec := serve(server, http.MethodGet, "/results.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestServer_ResultsHTML(t *testing.T) {
	t.Parallel()

	store := seededStore(t, "AA")
	require.NoError(t, store.Append(context.Background(), plates.Observation{
		Code:      "AB",
		Status:    plates.StatusUnknown,
		Note:      "<script>alert(1)</script>",
		CheckedAt: time.Date(2026, 1, 2, 3, 5, 5, 0, time.UTC),
	}))
	ctrl := &fakeController{snap: progress.Snapshot{
		Running:        true,
		LastCode:       progress.Ptr(plates.Code("AB")),
		LastStatus:     progress.Ptr(plates.StatusUnknown),
		LastCheckedAt:  progress.Ptr(time.Date(2026, 1, 2, 3, 5, 5, 0, time.UTC)),
		QueueRemaining: progress.Ptr(674),
	}}
	server := NewServer(ctrl, store, Config{}, zap.NewNop())

	rec := serve(server, http.MethodGet, "/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	page := rec.Body.String()
	require.Contains(t, page, "Status: running")
	require.Contains(t, page, "Last: AB (unknown) at 2026-01-02T03:05:05Z")
	require.Contains(t, page, "Remaining: 674")
	require.Contains(t, page, `<span class="badge issued">issued</span>`)
	require.NotContains(t, page, "<script>alert(1)</script>")
	require.Contains(t, page, "&lt;script&gt;")
	require.Less(t, strings.Index(page, ">AB<"), strings.Index(page, ">AA<"), "newest first")
}

func TestServer_ResultsHTMLEmpty(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeController{}, memory.NewResultStore(), Config{}, zap.NewNop())
	rec := serve(server, http.MethodGet, "/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Status: stopped")
	require.Contains(t, rec.Body.String(), "No results yet.")
	require.NotContains(t, rec.Body.String(), "Remaining:")
}

func TestServer_ResultsStoreFailure(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeController{}, failingStore{}, Config{}, zap.NewNop())
	rec := serve(server, http.MethodGet, "/results.json", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	server = NewServer(&fakeController{}, nil, Config{}, zap.NewNop())
	rec = serve(server, http.MethodGet, "/results", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeController{}, memory.NewResultStore(), Config{}, zap.NewNop())
	rec := serve(server, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(server, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "platechecker_http_requests_total")
}

func TestServer_WorkerScenario(t *testing.T) {
	t.Parallel()

	store := memory.NewResultStore()
	fetcher := fetcherFunc(func(_ context.Context, url string) (string, error) {
		if strings.HasSuffix(url, "=AA") {
			return "Plate is issued", nil
		}
		return "available", nil
	})
	w, err := worker.New(worker.Config{
		URLPrefix: "https://plates.example/check?plate=",
		Interval:  time.Hour,
	}, worker.Deps{Fetcher: fetcher, Store: store}, zap.NewNop())
	require.NoError(t, err)
	server := NewServer(w, store, Config{}, zap.NewNop())

	rec := serve(server, http.MethodGet, "/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool { return w.Snapshot().Processed == 1 }, 2*time.Second, 5*time.Millisecond)

	rec = serve(server, http.MethodGet, "/stop", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Wait(ctx))

	rec = serve(server, http.MethodGet, "/results.json", nil)
	var rows []plates.Observation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	require.Equal(t, plates.Code("AA"), rows[0].Code)
	require.Equal(t, plates.StatusIssued, rows[0].Status)
	require.Empty(t, rows[0].Note)

	rec = serve(server, http.MethodGet, "/status", nil)
	var snap progress.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.False(t, snap.Running)
	require.Equal(t, plates.Code("AA"), *snap.LastCode)
	require.Equal(t, plates.Total-1, *snap.QueueRemaining)

	rec = serve(server, http.MethodGet, "/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeController{}, memory.NewResultStore(), Config{}, zap.NewNop())
	rec := serve(server, http.MethodGet, "/healthz", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(server, http.MethodGet, "/healthz", http.Header{"X-Request-ID": {"abc"}})
	require.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

func serve(s *Server, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func seededStore(t *testing.T, codes ...plates.Code) *memory.ResultStore {
	t.Helper()
	store := memory.NewResultStore()
	for _, code := range codes {
		require.NoError(t, store.Append(context.Background(), plates.Observation{
			Code:      code,
			Status:    plates.StatusIssued,
			CheckedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		}))
	}
	return store
}

type fakeController struct {
	mu       sync.Mutex
	running  bool
	nStarts  int
	startErr error
	snap     progress.Snapshot
}

func (c *fakeController) Start() (worker.StartResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return worker.StartResult{}, c.startErr
	}
	if c.running {
		return worker.StartResult{Outcome: worker.AlreadyRunning, RunID: "run-1"}, nil
	}
	c.running = true
	c.nStarts++
	return worker.StartResult{Outcome: worker.Started, RunID: "run-1"}, nil
}

func (c *fakeController) Stop() worker.StopResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return worker.NotRunning
	}
	c.running = false
	return worker.Stopping
}

func (c *fakeController) Snapshot() progress.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Clone()
}

func (c *fakeController) starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nStarts
}

type failingStore struct{}

func (failingStore) Append(context.Context, plates.Observation) error { return errors.New("read-only") }

func (failingStore) Scan(context.Context, int) ([]plates.Observation, error) {
	return nil, errors.New("disk gone")
}

type fetcherFunc func(ctx context.Context, url string) (string, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) (string, error) { return f(ctx, url) }

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
