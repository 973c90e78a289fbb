package updater

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/RekaTrack/internal/integrations/location"
	"github.com/BearBump/RekaTrack/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// walkingSampler moves ~222 m north on every read.
type walkingSampler struct {
	mu    sync.Mutex
	reads int
	err   error
}

func (s *walkingSampler) CurrentPosition(ctx context.Context, _ location.Accuracy) (models.Coordinates, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.Coordinates{}, s.err
	}
	lat := -7.25 + 0.002*float64(s.reads)
	s.reads++
	return models.Coordinates{Latitude: lat, Longitude: 112.75}, nil
}

type memTaskStore struct {
	mu    sync.Mutex
	tasks map[string]location.UpdateOptions
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: map[string]location.UpdateOptions{}}
}

func (s *memTaskStore) SaveTask(ctx context.Context, name string, opts location.UpdateOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[name] = opts
	return nil
}

func (s *memTaskStore) DeleteTask(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, name)
	return nil
}

func (s *memTaskStore) LoadTasks(ctx context.Context) (map[string]location.UpdateOptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]location.UpdateOptions, len(s.tasks))
	for k, v := range s.tasks {
		out[k] = v
	}
	return out, nil
}

func batchRecorder() (Handler, <-chan []models.LocationSample) {
	ch := make(chan []models.LocationSample, 16)
	return func(ctx context.Context, task string, samples []models.LocationSample) error {
		ch <- samples
		return nil
	}, ch
}

func slowOptions() location.UpdateOptions {
	opts := location.TrackingOptions()
	opts.DeferredIntervalMs = int64(time.Hour / time.Millisecond)
	return opts
}

func waitBatch(t *testing.T, ch <-chan []models.LocationSample) []models.LocationSample {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
		return nil
	}
}

func TestManager_StartDeliversFirstSampleAndIsIdempotent(t *testing.T) {
	m := New(&walkingSampler{}, nil).WithSampleInterval(time.Hour)
	t.Cleanup(m.shutdown)
	h, batches := batchRecorder()
	m.Register(location.TaskName, h)
	ctx := context.Background()

	started, err := m.HasStarted(ctx, location.TaskName)
	require.NoError(t, err)
	require.False(t, started)

	require.NoError(t, m.Start(ctx, location.TaskName, slowOptions()))
	require.NoError(t, m.Start(ctx, location.TaskName, slowOptions()))

	b := waitBatch(t, batches)
	require.Len(t, b, 1)
	require.InDelta(t, -7.25, b[0].Latitude, 1e-9)

	started, _ = m.HasStarted(ctx, location.TaskName)
	require.True(t, started)
	require.Len(t, m.Tasks(), 1)
	require.Equal(t, 1, m.Stats().Running)

	select {
	case <-batches:
		t.Fatal("second start must not spawn another loop")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_StartUnknownTask(t *testing.T) {
	m := New(&walkingSampler{}, nil)
	t.Cleanup(m.shutdown)
	err := m.Start(context.Background(), "nope", slowOptions())
	require.ErrorIs(t, err, ErrUnknownTask)
}

func TestManager_TriggerForcesFlush(t *testing.T) {
	m := New(&walkingSampler{}, nil).WithSampleInterval(time.Hour)
	t.Cleanup(m.shutdown)
	h, batches := batchRecorder()
	m.Register(location.TaskName, h)

	require.False(t, m.Trigger(location.TaskName))
	require.NoError(t, m.Start(context.Background(), location.TaskName, slowOptions()))
	waitBatch(t, batches)

	require.True(t, m.Trigger(location.TaskName))
	b := waitBatch(t, batches)
	require.Len(t, b, 1)
	require.InDelta(t, -7.248, b[0].Latitude, 1e-9)

	st := m.Stats()
	require.NotNil(t, st.LastTriggerAt)
	require.Equal(t, int64(2), st.TotalFlushes)
}

func TestManager_HandlerMayStopItsOwnTask(t *testing.T) {
	m := New(&walkingSampler{}, nil).WithSampleInterval(time.Hour)
	t.Cleanup(m.shutdown)
	stopped := make(chan struct{})
	m.Register(location.TaskName, func(ctx context.Context, task string, _ []models.LocationSample) error {
		err := m.Stop(ctx, task)
		close(stopped)
		return err
	})

	require.NoError(t, m.Start(context.Background(), location.TaskName, slowOptions()))
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not run")
	}
	started, _ := m.HasStarted(context.Background(), location.TaskName)
	require.False(t, started)

	require.NoError(t, m.Stop(context.Background(), location.TaskName))
}

func TestManager_SamplerErrorsAreCounted(t *testing.T) {
	m := New(&walkingSampler{err: errors.New("gps off")}, nil).WithSampleInterval(5 * time.Millisecond)
	t.Cleanup(m.shutdown)
	h, _ := batchRecorder()
	m.Register(location.TaskName, h)
	require.NoError(t, m.Start(context.Background(), location.TaskName, slowOptions()))

	require.Eventually(t, func() bool {
		return m.Stats().TotalErrors >= 2
	}, 2*time.Second, 5*time.Millisecond)
	require.Contains(t, m.Stats().LastError, "gps off")
}

func TestManager_PersistsAndRestoresTasks(t *testing.T) {
	store := newMemTaskStore()
	ctx := context.Background()

	m := New(&walkingSampler{}, store).WithSampleInterval(time.Hour)
	h, _ := batchRecorder()
	m.Register(location.TaskName, h)
	require.NoError(t, m.Start(ctx, location.TaskName, slowOptions()))
	saved, _ := store.LoadTasks(ctx)
	require.Contains(t, saved, location.TaskName)
	m.shutdown()

	restarted := New(&walkingSampler{}, store).WithSampleInterval(time.Hour)
	t.Cleanup(restarted.shutdown)
	h2, batches := batchRecorder()
	restarted.Register(location.TaskName, h2)
	require.NoError(t, restarted.Restore(ctx))
	waitBatch(t, batches)

	started, _ := restarted.HasStarted(ctx, location.TaskName)
	require.True(t, started)

	require.NoError(t, restarted.Stop(ctx, location.TaskName))
	saved, _ = store.LoadTasks(ctx)
	require.NotContains(t, saved, location.TaskName)
}

func TestManager_Run_StopsOnContextCancel(t *testing.T) {
	m := New(&walkingSampler{}, nil).WithSampleInterval(5 * time.Millisecond)
	h, _ := batchRecorder()
	m.Register(location.TaskName, h)
	require.NoError(t, m.Start(context.Background(), location.TaskName, location.TrackingOptions()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := m.Run(ctx)
	require.Error(t, err)
	require.GreaterOrEqual(t, m.Stats().TotalSamples, int64(1))
	require.Error(t, m.Start(context.Background(), location.TaskName, location.TrackingOptions()))
}
