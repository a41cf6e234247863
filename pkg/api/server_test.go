package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherchat/cipherchat/pkg/config"
	"github.com/cipherchat/cipherchat/pkg/crypto"
	"github.com/cipherchat/cipherchat/pkg/network"
	"github.com/cipherchat/cipherchat/pkg/storage"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	key, err := crypto.GenerateRSAKeyPair()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"

	chat, err := network.NewServer(cfg, key, store)
	require.NoError(t, err)
	require.NoError(t, chat.Start())
	t.Cleanup(func() { chat.Stop() })

	return NewServer(chat, 0)
}

func TestHealthEndpoint(t *testing.T) {
	server := setupTestServer(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatsEndpoint(t *testing.T) {
	server := setupTestServer(t)

	client := network.NewClient(server.chat.Addr().String())
	require.NoError(t, client.Connect())
	defer client.Close()

	reg, err := client.Register("statsuser", "Passw0rd!")
	require.NoError(t, err)
	require.True(t, reg.Success)

	login, err := client.Login("statsuser", "Passw0rd!")
	require.NoError(t, err)
	require.True(t, login.Success)

	// Binding happens on the first authenticated request
	_, err = client.GetChats()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/node/stats", nil)
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(1), resp.Stats.RegisteredUsers)
	assert.Equal(t, 1, resp.Stats.ActiveConnections)
}

func TestUnknownRouteReturns404(t *testing.T) {
	server := setupTestServer(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/node/peers", nil)
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
