package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"communitydms/api/internal/testutil"
)

type downStore struct {
	*testutil.MemStore
}

func (downStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func newTestHandler(f *fixture) http.Handler {
	return NewHTTPServer(f.svc, HTTPConfig{}).Handler()
}

// doJSON performs a request against h and decodes the JSON envelope.
func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (f *fixture) token(t *testing.T, email string) string {
	t.Helper()
	result, err := f.svc.Login(context.Background(), email, "password123", Actor{})
	require.NoError(t, err)
	return result.Token
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	status, body := doJSON(t, newTestHandler(f), http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestReady(t *testing.T) {
	f := newFixture(t)
	status, body := doJSON(t, newTestHandler(f), http.MethodGet, "/api/ready", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	down := New(Deps{Store: downStore{MemStore: f.mem}, Tokens: f.svc.tokens})
	status, body = doJSON(t, NewHTTPServer(down, HTTPConfig{}).Handler(), http.MethodGet, "/api/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "not_ready", body["status"])
	checks := body["checks"].(map[string]any)
	database := checks["database"].(map[string]any)
	assert.Equal(t, "error", database["status"])
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	status, body := doJSON(t, newTestHandler(f), http.MethodGet, "/api/nope", "", nil)
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, CodeNotFound, body["code"])
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	newTestHandler(f).ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
