package slack_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchtop-io/benchd/dataset"
	"github.com/benchtop-io/benchd/internal/resilience"
	"github.com/benchtop-io/benchd/notify/slack"
)

type capture struct {
	method      string
	contentType string
	body        map[string]string
}

func webhookServer(t *testing.T, status int, got *capture) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte("no_service"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNotifyPostsJSON(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var got capture
	srv := webhookServer(t, http.StatusOK, &got)

	n, err := slack.New(slack.Options{WebhookURL: srv.URL, Client: srv.Client()})
	require.NoError(t, err)

	require.NoError(t, n.Notify(ctx, "sweep done"))
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, map[string]string{"text": "sweep done"}, got.body)
}

func TestNotifyRunComplete(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var got capture
	srv := webhookServer(t, http.StatusOK, &got)

	n, err := slack.New(slack.Options{WebhookURL: srv.URL, Client: srv.Client()})
	require.NoError(t, err)

	run := &dataset.Run{
		Name:     "iv_curve",
		Status:   dataset.StatusCompleted,
		RowCount: 300,
		GUID:     "0000000a-0199-c0ff-ee00-0000aa00beef",
	}
	require.NoError(t, n.NotifyRunComplete(ctx, run))

	text := got.body["text"]
	assert.Contains(t, text, `"iv_curve"`)
	assert.Contains(t, text, "completed")
	assert.Contains(t, text, "300 rows")
	assert.Contains(t, text, run.GUID)

	require.ErrorContains(t, n.NotifyRunComplete(ctx, nil), "nil run")
}

func TestNotifySurfacesWebhookErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var got capture
	srv := webhookServer(t, http.StatusGone, &got)

	n, err := slack.New(slack.Options{WebhookURL: srv.URL, Client: srv.Client()})
	require.NoError(t, err)

	err = n.Notify(ctx, "sweep done")
	require.ErrorContains(t, err, "webhook returned 410")
	require.ErrorContains(t, err, "no_service")
}

func TestNotifyRequiresText(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var got capture
	srv := webhookServer(t, http.StatusOK, &got)

	n, err := slack.New(slack.Options{WebhookURL: srv.URL, Client: srv.Client()})
	require.NoError(t, err)
	require.ErrorContains(t, n.Notify(ctx, ""), "empty notification text")
}

func TestNotifyRoutesToChannel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var got capture
	srv := webhookServer(t, http.StatusOK, &got)

	n, err := slack.New(slack.Options{WebhookURL: srv.URL, Channel: "#bench-alerts", Client: srv.Client()})
	require.NoError(t, err)

	require.NoError(t, n.Notify(ctx, "smu back online"))
	assert.Equal(t, "#bench-alerts", got.body["channel"])
	assert.Equal(t, "smu back online", got.body["text"])
}

func TestNotifyDropsWhileBreakerOpen(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var hits int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	n, err := slack.New(slack.Options{WebhookURL: srv.URL, Client: srv.Client()})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.ErrorContains(t, n.Notify(ctx, "still failing"), "webhook returned 502")
	}

	// Breaker is open now: the next message never reaches the wire.
	err = n.Notify(ctx, "one more")
	require.ErrorContains(t, err, "notification dropped")
	require.ErrorIs(t, err, resilience.ErrOpen)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestNewRejectsBadURLs(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{name: "empty", url: "", wantErr: "webhook url empty"},
		{name: "plain_http", url: "http://hooks.slack.com/services/T/B/X", wantErr: "must use https"},
		{name: "credentials", url: "https://user:pw@hooks.slack.com/services", wantErr: "credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := slack.New(slack.Options{WebhookURL: tt.url})
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
