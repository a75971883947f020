package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		pg, redis  error
		wantCode   int
		wantStatus string
	}{
		{name: "all up", wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "redis down", redis: errBoom, wantCode: http.StatusOK, wantStatus: "degraded"},
		{name: "postgres down", pg: errBoom, wantCode: http.StatusServiceUnavailable, wantStatus: "error"},
		{name: "both down", pg: errBoom, redis: errBoom, wantCode: http.StatusServiceUnavailable, wantStatus: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.cfg.Health = NewHealthHandler(fakePinger{tt.pg}, fakePinger{tt.redis}, "test", "v1")

			rec := doRequest(t, NewRouter(env.cfg), http.MethodGet, "/health/ready", "", nil, nil)
			require.Equal(t, tt.wantCode, rec.Code)

			resp := decodeBody[ReadinessResponse](t, rec)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, "v1", resp.Version)
		})
	}
}

func TestLiveness(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Health = NewHealthHandler(fakePinger{errBoom}, fakePinger{errBoom}, "test", "v1")

	rec := doRequest(t, NewRouter(env.cfg), http.MethodGet, "/health/live", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[LivenessResponse](t, rec).Status)
}

func TestRequestID_EchoedOrGenerated(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Health = NewHealthHandler(fakePinger{}, fakePinger{}, "test", "v1")
	h := NewRouter(env.cfg)

	rec := doRequest(t, h, http.MethodGet, "/health/live", "", nil, map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = doRequest(t, h, http.MethodGet, "/health/live", "", nil, nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
