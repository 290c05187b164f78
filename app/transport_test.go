package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTransport_LogsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	client := &http.Client{Transport: NewTransport(zap.New(core))}

	resp, err := client.Get(srv.URL + "/ping")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	entries := logs.FilterMessage("Outbound request").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, http.StatusTeapot, entries[0].ContextMap()["status"])
	assert.Equal(t, "/ping", entries[0].ContextMap()["path"])
}
