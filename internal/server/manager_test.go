package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- DefaultConfig ---

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8765", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

// --- NewManager ---

func TestNewManager(t *testing.T) {
	handler := http.NewServeMux()
	cfg := DefaultConfig()
	m := NewManager("relay", handler, cfg, zap.NewNop())

	require.NotNil(t, m)
	assert.True(t, m.IsRunning()) // not closed yet
	assert.Equal(t, "relay", m.Name())
	assert.Equal(t, ":8765", m.Addr())
	assert.Empty(t, m.BoundAddr(), "not started yet")
}

// --- Start / Shutdown lifecycle ---

func TestManager_StartAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0" // random port
	m := NewManager("relay", handler, cfg, zap.NewNop())

	err := m.Start()
	require.NoError(t, err)
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	addr := m.BoundAddr()
	require.NotEmpty(t, addr)
	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	err = m.Shutdown(context.Background())
	require.NoError(t, err)
	assert.False(t, m.IsRunning())
}

func TestManager_DoubleStart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	m := NewManager("relay", http.NewServeMux(), cfg, zap.NewNop())

	require.NoError(t, m.Start())
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	err := m.Start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	m := NewManager("relay", http.NewServeMux(), cfg, zap.NewNop())

	require.NoError(t, m.Start())

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_StartAfterShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	m := NewManager("relay", http.NewServeMux(), cfg, zap.NewNop())

	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))

	err := m.Start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestManager_Errors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	m := NewManager("relay", http.NewServeMux(), cfg, zap.NewNop())

	ch := m.Errors()
	require.NotNil(t, ch)

	select {
	case <-ch:
		t.Fatal("should not have received an error")
	default:
	}
}

// --- Run ---

func TestRun_CancelsOnContext(t *testing.T) {
	relayCfg := DefaultConfig()
	relayCfg.Addr = "127.0.0.1:0"
	metricsCfg := DefaultConfig()
	metricsCfg.Addr = "127.0.0.1:0"

	relay := NewManager("relay", http.NewServeMux(), relayCfg, zap.NewNop())
	metrics := NewManager("metrics", http.NewServeMux(), metricsCfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, zap.NewNop(), relay, metrics)
	}()

	// Both servers come up before we cancel.
	require.Eventually(t, func() bool {
		return relay.BoundAddr() != "" && metrics.BoundAddr() != ""
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	assert.False(t, relay.IsRunning())
	assert.False(t, metrics.IsRunning())
}

func TestRun_StartFailureCleansUp(t *testing.T) {
	goodCfg := DefaultConfig()
	goodCfg.Addr = "127.0.0.1:0"
	good := NewManager("relay", http.NewServeMux(), goodCfg, zap.NewNop())

	require.NoError(t, good.Start())
	t.Cleanup(func() { good.Shutdown(context.Background()) })

	// Second manager binds the same port as the first, which must fail.
	badCfg := DefaultConfig()
	badCfg.Addr = good.BoundAddr()
	bad := NewManager("metrics", http.NewServeMux(), badCfg, zap.NewNop())

	firstCfg := DefaultConfig()
	firstCfg.Addr = "127.0.0.1:0"
	first := NewManager("extra", http.NewServeMux(), firstCfg, zap.NewNop())

	err := Run(context.Background(), zap.NewNop(), first, bad)
	require.Error(t, err)
	assert.False(t, first.IsRunning(), "already-started managers are shut down on failure")
}
