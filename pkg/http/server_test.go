package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicHandler struct{}

func (panicHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/boom", func(c echo.Context) error { panic("boom") })
	e.GET("/app-error", func(c echo.Context) error {
		return AppErrorResponse(c, NotFoundError("signal not found").WithError(errors.New("missing")))
	})
}

func newTestServer() *Server {
	// Metrics are disabled so tests do not touch the default registry.
	return NewServer([]Handler{panicHandler{}}, WithMetrics("", 0))
}

func TestServer_Health(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":200,"message":"OK","data":{"status":"ok"}}`, rec.Body.String())
}

func TestServer_RecoversPanics(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestServer_RequestIDPropagates(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc-123")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(echo.HeaderXRequestID))
}

func TestServer_AppErrorEnvelope(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app-error", nil))

	// Envelope is always written with 200; status lives in the body.
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":404`)
	assert.Contains(t, rec.Body.String(), `"code":"ERR_NOT_FOUND"`)
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestServer_CORSRestrictedOrigins(t *testing.T) {
	s := NewServer(nil, WithMetrics("", 0), WithCORS(true, "https://app.example.com"))

	for origin, want := range map[string]string{
		"https://app.example.com":  "https://app.example.com",
		"https://evil.example.com": "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Header().Get("Access-Control-Allow-Origin"), origin)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
