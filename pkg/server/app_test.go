package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/pkg/config"
	xhttp "FinSignal/pkg/http"
)

type pinger struct{ err error }

func (p pinger) Health(context.Context) error { return p.err }

type probe struct{ err error }

func (p probe) Exists(context.Context, ...string) (bool, error) { return false, p.err }

func ready(t *testing.T, h *HealthHandler) (int, map[string]string) {
	t.Helper()
	s := xhttp.NewServer([]xhttp.Handler{h}, xhttp.WithMetrics("", 0))
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body struct {
		Status int               `json:"status"`
		Data   map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Status, body.Data
}

func TestHealthHandler_Ready(t *testing.T) {
	status, data := ready(t, NewHealthHandler(pinger{}, probe{}))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]string{"clickhouse": "ok", "cache": "ok"}, data)

	status, data = ready(t, NewHealthHandler(pinger{err: errors.New("dial tcp: refused")}, probe{}))
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "dial tcp: refused", data["clickhouse"])

	status, data = ready(t, NewHealthHandler(nil, nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, data)
}

type fakeScheduler struct {
	started chan struct{}
	stopped bool
}

func (s *fakeScheduler) Start(context.Context) { close(s.started) }
func (s *fakeScheduler) Stop()                 { s.stopped = true }

type closer struct {
	order *[]string
	name  string
	err   error
}

func (c closer) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestApp_RunContextShutsDownInOrder(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.ShutdownTimeout = time.Second
	srv := xhttp.NewServer(nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithMetrics("", 0))

	var order []string
	sched := &fakeScheduler{started: make(chan struct{})}
	app := New(cfg, nil, srv, sched,
		WithCloser("kafka", closer{order: &order, name: "kafka", err: errors.New("flush failed")}),
		WithCloser("skipped", nil),
		WithCloser("clickhouse", closer{order: &order, name: "clickhouse"}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	<-sched.started
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.True(t, sched.stopped)
	assert.Equal(t, []string{"kafka", "clickhouse"}, order)
}
