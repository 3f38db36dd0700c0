package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pgPingFunc func(ctx context.Context) error

func (f pgPingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newHealthRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestLiveness(t *testing.T) {
	_, rdb := newHealthRedis(t)
	h := NewHealthHandler(pgPingFunc(func(context.Context) error { return nil }), rdb, "test", "v1.2.3")

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[LivenessResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "v1.2.3", resp.Version)
}

func TestReadiness(t *testing.T) {
	healthy := pgPingFunc(func(context.Context) error { return nil })
	down := pgPingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		pg         pgPingFunc
		redisDown  bool
		wantCode   int
		wantStatus string
	}{
		{"all up", healthy, false, http.StatusOK, "ok"},
		{"redis down", healthy, true, http.StatusOK, "degraded"},
		{"postgres down", down, false, http.StatusServiceUnavailable, "error"},
		{"both down", down, true, http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, rdb := newHealthRedis(t)
			if tt.redisDown {
				mr.Close()
			}
			h := NewHealthHandler(tt.pg, rdb, "test", "dev")

			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			require.Equal(t, tt.wantCode, rec.Code)
			resp := decode[ReadinessResponse](t, rec)
			assert.Equal(t, tt.wantStatus, resp.Status)
			if tt.redisDown {
				assert.Equal(t, "down", resp.Dependencies["redis"])
			} else {
				assert.Equal(t, "ok", resp.Dependencies["redis"])
			}
		})
	}
}
