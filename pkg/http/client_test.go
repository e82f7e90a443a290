package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "finsignal-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"c":101.5}`))
	}))
	defer srv.Close()

	c := NewClient(WithUserAgent("finsignal-test"))
	var out struct {
		C float64 `json:"c"`
	}
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodGet,
		URL:         srv.URL + "/quote",
		QueryParams: map[string][]string{"symbol": {"AAPL"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 101.5, out.C)
}

func TestClient_StatusError(t *testing.T) {
	codes := map[int]bool{http.StatusTooManyRequests: true, http.StatusBadGateway: true, http.StatusForbidden: false}
	for code, temporary := range codes {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", code)
		}))
		err := NewClient().SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, nil)
		srv.Close()

		var se *StatusError
		require.True(t, errors.As(err, &se), "code %d", code)
		assert.Equal(t, code, se.Code)
		assert.Equal(t, temporary, se.Temporary(), "code %d", code)
	}
}

func TestClient_MaxBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	var raw []byte
	err := NewClient(WithMaxBody(16)).SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, &raw)
	assert.Error(t, err)

	err = NewClient().SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, &raw)
	require.NoError(t, err)
	assert.Len(t, raw, 64)
}
