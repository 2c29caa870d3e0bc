package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/udp-request-server/internal/config"
	"github.com/skypro1111/udp-request-server/internal/metrics"
	"github.com/skypro1111/udp-request-server/internal/protocol"
)

func newTestHTTPServer(t *testing.T) (*HTTPServer, *UDPServer) {
	t.Helper()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	appConfig := config.Default()
	appConfig.Server = *testServerConfig()

	udpServer := NewUDPServer(&appConfig.Server, testLogger(), pingPongHandler(), nil, m)
	require.NoError(t, udpServer.Start())
	t.Cleanup(func() { _ = udpServer.Stop() })

	h := NewHTTPServer(config.HTTPConfig{Enabled: true, Address: "127.0.0.1", Port: 8085},
		testLogger(), appConfig, udpServer, m, registry)
	return h, udpServer
}

func getJSON(t *testing.T, handler http.Handler, path string) (int, map[string]interface{}) {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHTTPHealth(t *testing.T) {
	h, udpServer := newTestHTTPServer(t)
	handler := h.Handler()

	code, body := getJSON(t, handler, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "running", body["state"])

	workers, ok := body["workers"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "running", workers["receiver"])

	require.NoError(t, udpServer.Stop())
	code, body = getJSON(t, handler, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "stopped", body["state"])
}

func TestHTTPStatsAndPeers(t *testing.T) {
	h, udpServer := newTestHTTPServer(t)
	handler := h.Handler()

	client := newClient(t)
	sendMessage(t, client, udpServer.LocalAddr(), protocol.Message{"requestType": "ping"})
	_, err := readPayload(client, 2*time.Second)
	require.NoError(t, err)

	code, body := getJSON(t, handler, "/stats")
	assert.Equal(t, http.StatusOK, code)
	udp, ok := body["udp"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1.0, udp["packages_received"])
	assert.Equal(t, 20.0, udp["queue_capacity"])

	code, body = getJSON(t, handler, "/peers")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["total_peers"])
	assert.Equal(t, 8.0, body["max_hosts"])
}

func TestHTTPConfigAndRoot(t *testing.T) {
	h, _ := newTestHTTPServer(t)
	handler := h.Handler()

	code, body := getJSON(t, handler, "/config")
	assert.Equal(t, http.StatusOK, code)
	server, ok := body["server"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1", server["bind_address"])

	code, body = getJSON(t, handler, "/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "endpoints")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stats", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPMetrics(t *testing.T) {
	h, udpServer := newTestHTTPServer(t)
	handler := h.Handler()

	client := newClient(t)
	sendMessage(t, client, udpServer.LocalAddr(), protocol.Message{"requestType": "ping"})
	_, err := readPayload(client, 2*time.Second)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "udp_packages_received_total 1"))
}

func TestHTTPStartServesAndStops(t *testing.T) {
	free, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := free.Addr().(*net.TCPAddr).Port
	require.NoError(t, free.Close())

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	appConfig := config.Default()
	appConfig.Server = *testServerConfig()

	udpServer := NewUDPServer(&appConfig.Server, testLogger(), pingPongHandler(), nil, m)
	require.NoError(t, udpServer.Start())
	t.Cleanup(func() { _ = udpServer.Stop() })

	h := NewHTTPServer(config.HTTPConfig{Enabled: true, Address: "127.0.0.1", Port: port},
		testLogger(), appConfig, udpServer, m, registry)
	require.NoError(t, h.Start())

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Stop(ctx))

	_, err = http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	assert.Error(t, err)
}
