package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/udp-request-server/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func runWithConfig(ctx context.Context, path string, stdin string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	registry := prometheus.NewRegistry()
	code := run(ctx, []string{"-config", path}, strings.NewReader(stdin), &stdout, &stderr, registry, registry)
	return code, stdout.String(), stderr.String()
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

func TestRunBindFailure(t *testing.T) {
	occupied, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	port := occupied.LocalAddr().(*net.UDPAddr).Port
	path := writeConfig(t, fmt.Sprintf("server:\n  bind_address: 127.0.0.1\n  udp_port: %d\n", port))

	code, stdout, _ := runWithConfig(context.Background(), path, "")
	assert.Equal(t, exitBindError, code)
	assert.Contains(t, stdout, "Failed to start UDP server")
}

func TestRunHTTPListenFailureIsNotBindError(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	httpPort := occupied.Addr().(*net.TCPAddr).Port
	path := writeConfig(t, fmt.Sprintf(
		"server:\n  bind_address: 127.0.0.1\n  udp_port: %d\nhttp:\n  enabled: true\n  address: 127.0.0.1\n  port: %d\n",
		freeUDPPort(t), httpPort))

	code, stdout, _ := runWithConfig(context.Background(), path, "")
	assert.Equal(t, exitConfigError, code)
	assert.Contains(t, stdout, "Failed to start HTTP server")
	assert.NotContains(t, stdout, "Failed to start UDP server")
}

func TestRunInvalidConfig(t *testing.T) {
	path := writeConfig(t, "server:\n  udp_port: 70000\n")

	code, _, stderr := runWithConfig(context.Background(), path, "")
	assert.Equal(t, exitConfigError, code)
	assert.Contains(t, stderr, "Failed to load configuration")
}

func TestRunBadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	registry := prometheus.NewRegistry()
	code := run(context.Background(), []string{"-nope"}, strings.NewReader(""), &stdout, &stderr, registry, registry)
	assert.Equal(t, exitConfigError, code)
}

func TestRunPromptsWithoutConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	answers := fmt.Sprintf("127.0.0.1\n%d\n2\n", freeUDPPort(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	var stdout, stderr bytes.Buffer
	go func() {
		registry := prometheus.NewRegistry()
		done <- run(ctx, []string{"-config", path}, strings.NewReader(answers), &stdout, &stderr, registry, registry)
	}()

	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case code := <-done:
		assert.Equal(t, exitOK, code, stderr.String())
	case <-time.After(15 * time.Second):
		t.Fatal("service did not stop after cancellation")
	}
	assert.Contains(t, stdout.String(), "There is no config file")
	assert.Contains(t, stdout.String(), "Service stopped")
}

func TestInitLogger(t *testing.T) {
	var stdout, stderr bytes.Buffer

	logger := initLogger(config.LoggingConfig{Level: "warn", Format: "json", Output: "stderr"}, &stdout, &stderr)
	logger.Info("hidden")
	logger.Warn("shown", "peer", "127.0.0.1:1")

	assert.Empty(t, stdout.String())
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(stderr.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "127.0.0.1:1", entry["peer"])

	stderr.Reset()
	logger = initLogger(config.LoggingConfig{Level: "bogus"}, &stdout, &stderr)
	logger.Debug("hidden")
	logger.Info("visible")
	assert.Contains(t, stdout.String(), "msg=visible")
	assert.NotContains(t, stdout.String(), "hidden")
}
