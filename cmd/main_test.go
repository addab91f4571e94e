package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canteen-system/internal/logger"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

func TestHealthHidesDatabaseError(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter("test", &buf, slog.LevelDebug)
	h := healthHandler(stubPinger{err: errors.New(`dial tcp 10.0.0.5:5432: password authentication failed for user "canteen"`)}, log)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"status": "unavailable"}, body)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")

	assert.Contains(t, buf.String(), "health_check_failed")
	assert.Contains(t, buf.String(), "password authentication failed")
}

func TestHealthOK(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(stubPinger{}, logger.Discard()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
