// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civgrid/civgrid/internal/observability"
	"github.com/civgrid/civgrid/internal/storage"
)

// notifyingObsServer reports its bound address once Start succeeds.
type notifyingObsServer struct {
	*observability.Server
	onStart func(addr string)
}

func newNotifyingObsServer(addr string, checker observability.ReadinessChecker, onStart func(string)) *notifyingObsServer {
	return &notifyingObsServer{Server: observability.NewServer(addr, checker), onStart: onStart}
}

func (s *notifyingObsServer) Start() (<-chan error, error) {
	ch, err := s.Server.Start()
	if err == nil {
		s.onStart(s.Server.Addr())
	}
	return ch, err
}

func TestServeCommand_Help(t *testing.T) {
	output, err := execute(t, "serve", "--help")
	require.NoError(t, err)
	assert.Contains(t, output, "--storage.type")
	assert.Contains(t, output, "--metrics_addr")
	assert.Contains(t, output, "SIGHUP")
}

func TestServe_InvalidConfig(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	_, err := execute(t, "--config", configPath, "serve", "--log_format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_format")
}

func TestServe_StartsAndShutsDown(t *testing.T) {
	configPath, dataDir := writeTestConfig(t)
	seedStore(t, dataDir)

	configFile = configPath
	t.Cleanup(func() { configFile = "" })

	cmd := NewServeCmd()
	cmd.SetOut(new(bytes.Buffer))
	require.NoError(t, cmd.ParseFlags(nil))

	// A pre-cancelled context drives the server straight through startup
	// into graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- runServeWithDeps(ctx, cmd, nil) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func TestServe_MetricsEndpointResponds(t *testing.T) {
	configPath, dataDir := writeTestConfig(t)
	seedStore(t, dataDir)

	configFile = configPath
	t.Cleanup(func() { configFile = "" })

	cmd := NewServeCmd()
	cmd.SetOut(new(bytes.Buffer))
	require.NoError(t, cmd.ParseFlags(nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var addr string
	ready := make(chan struct{})
	deps := &ServeDeps{
		ObservabilityServerFactory: func(a string, checker observability.ReadinessChecker) ObservabilityServer {
			return newNotifyingObsServer(a, checker, func(bound string) {
				addr = bound
				close(ready)
			})
		},
	}

	done := make(chan error, 1)
	go func() { done <- runServeWithDeps(ctx, cmd, deps) }()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(30 * time.Second):
		t.Fatal("observability server never started")
	}

	// Readiness flips once the world state is loaded.
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/readyz", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close() //nolint:errcheck // test probe
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func TestServe_FlushesOnShutdown(t *testing.T) {
	configPath, dataDir := writeTestConfig(t)
	rome := seedStore(t, dataDir)

	// Start and immediately stop; the final flush must leave the store
	// loadable and complete.
	configFile = configPath
	t.Cleanup(func() { configFile = "" })

	cmd := NewServeCmd()
	cmd.SetOut(new(bytes.Buffer))
	require.NoError(t, cmd.ParseFlags(nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, runServeWithDeps(ctx, cmd, nil))

	provider := storage.NewJSONProvider(filepath.Join(dataDir, "json"))
	require.NoError(t, provider.Init(context.Background()))
	civs, err := provider.LoadCivilizations(context.Background())
	require.NoError(t, err)
	require.Len(t, civs, 1)
	assert.Equal(t, 500.0, civs[rome.ID].BankBalance)
}
