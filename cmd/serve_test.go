package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/repreneur-cli/internal/store"
)

func TestNewServeHandler_Health(t *testing.T) {
	srv := httptest.NewServer(newServeHandler(testConfig(t), store.Noop{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewServeHandler_Metrics(t *testing.T) {
	srv := httptest.NewServer(newServeHandler(testConfig(t), store.Noop{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `repreneur_ledger_runs{status="complete"} 0`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewServeHandler_MissingSnapshotIsEmpty(t *testing.T) {
	srv := httptest.NewServer(newServeHandler(testConfig(t), store.Noop{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/candidates")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"count":0`)
}
