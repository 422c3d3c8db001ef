package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

// mockHealthCheck 模拟健康检查
type mockHealthCheck struct {
	name string
	err  error
}

func (m *mockHealthCheck) Name() string {
	return m.name
}

func (m *mockHealthCheck) Check(ctx context.Context) error {
	return m.err
}

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

func TestHealthHandler_HandleHealthz(t *testing.T) {
	handler := NewHealthHandler("v1.2.3", zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleHealthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "v1.2.3", status.Version)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantState  string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "all pass",
			checks: []HealthCheck{
				&mockHealthCheck{name: "channel"},
				NewFuncHealthCheck("host", func(context.Context) error { return nil }),
			},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "one fails",
			checks: []HealthCheck{
				&mockHealthCheck{name: "channel"},
				&mockHealthCheck{name: "redis", err: errors.New("connection refused")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler("dev", nil)
			for _, c := range tt.checks {
				handler.RegisterCheck(c)
			}

			w := httptest.NewRecorder()
			handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var status HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			assert.Equal(t, tt.wantState, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
			for _, c := range tt.checks {
				assert.Contains(t, status.Checks, c.Name())
			}
		})
	}
}

func TestHealthHandler_FailedCheckMessage(t *testing.T) {
	handler := NewHealthHandler("dev", nil)
	handler.RegisterCheck(&mockHealthCheck{name: "redis", err: errors.New("connection refused")})

	w := httptest.NewRecorder()
	handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "fail", status.Checks["redis"].Status)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	handler := NewHealthHandler("v1.0.0", nil)

	w := httptest.NewRecorder()
	handler.HandleVersion("2026-01-01", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "v1.0.0", data["version"])
	assert.Equal(t, "abc123", data["git_commit"])
}

func TestHealthHandler_RegisterRoutes(t *testing.T) {
	handler := NewHealthHandler("v1.0.0", nil)
	handler.RegisterCheck(&mockHealthCheck{name: "bridge", err: errors.New("channel closed")})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, "2026-01-01", "abc123")

	for path, want := range map[string]int{
		"/healthz": http.StatusOK,
		"/health":  http.StatusOK,
		"/ready":   http.StatusServiceUnavailable,
		"/readyz":  http.StatusServiceUnavailable,
		"/version": http.StatusOK,
	} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}

func TestRedisHealthCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	check := NewRedisHealthCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	assert.Equal(t, "redis", check.Name())
	assert.NoError(t, check.Check(context.Background()))

	mr.Close()
	assert.Error(t, check.Check(context.Background()))
}
