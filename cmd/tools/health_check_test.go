package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckServiceHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/status":
			_, _ = w.Write([]byte(`{"connected":false,"consecutiveFailures":3,"lastError":"boom","records":7}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	require.NoError(t, checkServiceHealth(srv.Client(), srv.URL+"/health"))

	status, err := fetchSyncStatus(srv.Client(), srv.URL+"/status")
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.Equal(t, 3, status.ConsecutiveFailures)
	assert.Equal(t, 7, status.Records)

	assert.Error(t, checkServiceHealth(srv.Client(), srv.URL+"/missing"))
}
