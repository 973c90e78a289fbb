package agentclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BearBump/RekaTrack/internal/apperr"
	"github.com/BearBump/RekaTrack/internal/integrations/location"
	"github.com/stretchr/testify/require"
)

func TestClient_TaskLifecycle(t *testing.T) {
	started := false
	var gotOpts location.UpdateOptions

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tasks/"+location.TaskName, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
		case http.MethodPut:
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotOpts))
			started = true
		case http.MethodDelete:
			started = false
		}
		_ = json.NewEncoder(w).Encode(taskState{Name: location.TaskName, Started: started})
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	ok, err := c.HasStarted(ctx, location.TaskName)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Start(ctx, location.TaskName, location.TrackingOptions()))
	require.Equal(t, 100.0, gotOpts.DistanceIntervalMeters)
	require.Equal(t, int64(60000), gotOpts.DeferredIntervalMs)
	require.True(t, gotOpts.ShowsBackgroundLocationIndicator)
	require.Equal(t, "Rekatrack Tracking Aktif", gotOpts.ForegroundService.NotificationTitle)

	ok, err = c.HasStarted(ctx, location.TaskName)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Stop(ctx, location.TaskName))
	ok, _ = c.HasStarted(ctx, location.TaskName)
	require.False(t, ok)
}

func TestClient_AgentDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	u := srv.URL
	srv.Close()

	_, err := New(u).HasStarted(context.Background(), location.TaskName)
	require.True(t, apperr.Is(err, apperr.KindNetwork))
}
