package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/sink"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsEndpoint(t *testing.T) {
	gauge := sink.NewGaugeSink()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(gauge.Collector()))
	gauge.Set(types.IdentityKey{Kind: types.RAM, Container: "a", Pod: "p", Namespace: "n", Node: "x"}, 0.4)

	srv := httptest.NewServer(NewRouter(reg, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body),
		`container_runtime_cost_total{container="a",namespace="n",node="x",pod="p",resource="ram"} 0.4`)
}

func TestHealthzFollowsReadiness(t *testing.T) {
	var ready atomic.Bool
	srv := httptest.NewServer(NewRouter(prometheus.NewRegistry(), ready.Load))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ready.Store(true)
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownRoute(t *testing.T) {
	srv := httptest.NewServer(NewRouter(prometheus.NewRegistry(), nil))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/metrics", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
