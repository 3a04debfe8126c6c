package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcdev12/tapchain/go/clients"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, clients.ClusterDevnet, cfg.Cluster)
	assert.Equal(t, "https://api.devnet.solana.com", cfg.RPCURL)
	assert.Equal(t, "wss://api.devnet.solana.com", cfg.WSURL)
	assert.Equal(t, defaultProgramID, cfg.ProgramID)
	assert.Equal(t, 30, cfg.Session.DurationTicks)
	assert.Equal(t, time.Second, cfg.Session.TickInterval)
	assert.Equal(t, 10, cfg.Leaderboard.Size)
	assert.Equal(t, "memory", cfg.Journal.Driver)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
cluster: localnet
operation_timeout: 5s
refresh_interval: 2s
session:
  duration_ticks: 10
  tick_interval: 500ms
gateway:
  addr: ":9090"
journal:
  driver: postgres
  table: journal_test
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8899", cfg.RPCURL)
	assert.Equal(t, "ws://127.0.0.1:8900", cfg.WSURL)
	assert.Equal(t, 5*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 2*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 10, cfg.Session.DurationTicks)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.TickInterval)
	assert.Equal(t, ":9090", cfg.Gateway.Addr)
	assert.Equal(t, "postgres", cfg.Journal.Driver)
	assert.Equal(t, "journal_test", cfg.Journal.Table)
	// untouched keys keep their defaults
	assert.Equal(t, "confirmed", cfg.Commitment)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("TAPCHAIN_RPC_URL", "http://rpc.test")
	t.Setenv("TAPCHAIN_WS_URL", "ws://rpc.test")
	t.Setenv("TAPCHAIN_LOCALNET", "true")
	t.Setenv("TAPCHAIN_REFRESH_INTERVAL", "3s")
	t.Setenv("GATEWAY_ADDR", ":7000")
	t.Setenv("NATS_ENABLED", "yes-please")

	cfg, err := loadConfig(writeConfig(t, "rpc_url: http://file.test\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://rpc.test", cfg.RPCURL)
	assert.Equal(t, "ws://rpc.test", cfg.WSURL)
	assert.True(t, cfg.Localnet)
	assert.Equal(t, 3*time.Second, cfg.RefreshInterval)
	assert.Equal(t, ":7000", cfg.Gateway.Addr)
	// unparsable booleans fall back
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad program id", body: "program_id: not-base58!\n"},
		{name: "unknown cluster", body: "cluster: moonnet\n"},
		{name: "zero duration", body: "session:\n  duration_ticks: 0\n"},
		{name: "negative interval", body: "refresh_interval: -1s\n"},
		{name: "unknown journal", body: "journal:\n  driver: sqlite\n"},
		{name: "malformed yaml", body: "session: [\n"},
		{name: "unknown log level", body: "log_level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestSetupKeypairOnLocalnet(t *testing.T) {
	cfg := defaultConfig()
	cfg.Localnet = true
	cfg.KeypairPath = filepath.Join(t.TempDir(), "id.json")

	first, err := setupKeypair(cfg)
	require.NoError(t, err)
	second, err := setupKeypair(cfg)
	require.NoError(t, err)
	assert.Equal(t, first.PublicKey(), second.PublicKey())

	cfg.Localnet = false
	cfg.KeypairPath = ""
	_, err = setupKeypair(cfg)
	assert.Error(t, err)
}
