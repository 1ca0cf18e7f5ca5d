package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/httpclient"
	"github.com/stacklok/catalog-sync-server/internal/status"
)

func testReport(t *testing.T) Report {
	t.Helper()
	cfg := "nightly"
	exec := status.NewExecution(&cfg, 2, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, exec.Transition(status.StatusRunning, exec.StartedAt))
	exec.Summary.Add(status.Summary{StoresProcessed: 1, Errors: 1})
	require.NoError(t, exec.Transition(status.StatusCompleted, exec.StartedAt.Add(time.Minute)))
	return NewReport(exec)
}

func TestDispatcher_Webhook(t *testing.T) {
	t.Parallel()

	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	d := NewDispatcher([]config.NotificationChannelConfig{
		{ID: "ops", Type: config.ChannelTypeWebhook, URL: server.URL},
	}, httpclient.NewDefaultClient(time.Second))

	report := testReport(t)
	require.NoError(t, d.Notify(context.Background(), "ops", report))

	assert.Equal(t, report.ExecutionID.String(), received["execution_id"])
	assert.Equal(t, "nightly", received["sync_config_id"])
	assert.Equal(t, "completed", received["status"])
	summary := received["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["errors"])
	assert.Equal(t, float64(2), summary["total_stores"])
}

func TestDispatcher_Errors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	d := NewDispatcher([]config.NotificationChannelConfig{
		{ID: "broken", Type: config.ChannelTypeWebhook, URL: server.URL},
		{ID: "audit", Type: config.ChannelTypeLog},
		{ID: "sms", Type: "sms"},
	}, httpclient.NewDefaultClient(time.Second))
	report := testReport(t)

	err := d.Notify(context.Background(), "missing", report)
	require.ErrorIs(t, err, ErrUnknownChannel)

	err = d.Notify(context.Background(), "broken", report)
	var httpErr *httpclient.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)

	require.NoError(t, d.Notify(context.Background(), "audit", report))
	assert.ErrorContains(t, d.Notify(context.Background(), "sms", report), "unsupported type")
}
