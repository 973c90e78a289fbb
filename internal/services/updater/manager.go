// Package updater runs named background location tasks: each started task
// samples the device position on a ticker, filters and batches the samples
// and hands every batch to the handler registered for the task name.
package updater

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/RekaTrack/internal/integrations/location"
	"github.com/BearBump/RekaTrack/internal/models"
	"github.com/pkg/errors"
)

var ErrUnknownTask = errors.New("no handler registered for task")

type Sampler interface {
	CurrentPosition(ctx context.Context, acc location.Accuracy) (models.Coordinates, error)
}

// Handler receives one flushed batch, oldest sample first.
type Handler func(ctx context.Context, task string, samples []models.LocationSample) error

// TaskStore persists running tasks so a restarted agent resumes them.
type TaskStore interface {
	SaveTask(ctx context.Context, name string, opts location.UpdateOptions) error
	DeleteTask(ctx context.Context, name string) error
	LoadTasks(ctx context.Context) (map[string]location.UpdateOptions, error)
}

type runningTask struct {
	name      string
	opts      location.UpdateOptions
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	triggerCh chan struct{}
	pending   atomic.Int64
}

type Manager struct {
	sampler Sampler
	store   TaskStore

	sampleInterval time.Duration

	base       context.Context
	cancelBase context.CancelFunc

	mu       sync.Mutex
	handlers map[string]Handler
	tasks    map[string]*runningTask
	wg       sync.WaitGroup

	startedAtUnixNano   int64
	lastFlushUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalSamples        atomic.Int64
	totalAccepted       atomic.Int64
	totalFlushes        atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(sampler Sampler, store TaskStore) *Manager {
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		sampler:           sampler,
		store:             store,
		sampleInterval:    5 * time.Second,
		base:              base,
		cancelBase:        cancel,
		handlers:          make(map[string]Handler),
		tasks:             make(map[string]*runningTask),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (m *Manager) WithSampleInterval(d time.Duration) *Manager {
	if d > 0 {
		m.sampleInterval = d
	}
	return m
}

// Register binds a handler to a task name. Tasks without a handler cannot start.
func (m *Manager) Register(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = h
}

func (m *Manager) HasStarted(ctx context.Context, task string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[task]
	return ok, nil
}

// Start is a no-op for a task that is already running.
func (m *Manager) Start(ctx context.Context, task string, opts location.UpdateOptions) error {
	if err := m.start(task, opts); err != nil {
		return err
	}
	if m.store != nil {
		if err := m.store.SaveTask(ctx, task, opts); err != nil {
			slog.Error("save task", "task", task, "error", err.Error())
		}
	}
	return nil
}

func (m *Manager) start(task string, opts location.UpdateOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.base.Err() != nil {
		return errors.New("updater is shut down")
	}
	h, ok := m.handlers[task]
	if !ok {
		return errors.Wrap(ErrUnknownTask, task)
	}
	if _, running := m.tasks[task]; running {
		return nil
	}

	ctx, cancel := context.WithCancel(m.base)
	rt := &runningTask{
		name:      task,
		opts:      opts,
		startedAt: time.Now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
		triggerCh: make(chan struct{}, 1),
	}
	m.tasks[task] = rt
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.loop(ctx, rt, h)
	}()

	slog.Info("background task started", "task", task,
		"distance_interval", opts.DistanceIntervalMeters, "deferred_interval_ms", opts.DeferredIntervalMs)
	return nil
}

// Stop does not wait for the task loop, so a handler may stop its own task.
// Stopping a task that is not running is a no-op.
func (m *Manager) Stop(ctx context.Context, task string) error {
	m.mu.Lock()
	rt, ok := m.tasks[task]
	if ok {
		delete(m.tasks, task)
	}
	m.mu.Unlock()

	if ok {
		rt.cancel()
		slog.Info("background task stopped", "task", task)
	}
	if m.store != nil {
		if err := m.store.DeleteTask(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// Trigger forces an immediate sample and flush (best-effort, non-blocking).
func (m *Manager) Trigger(task string) bool {
	m.mu.Lock()
	rt, ok := m.tasks[task]
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case rt.triggerCh <- struct{}{}:
	default:
	}
	return true
}

// Restore restarts the tasks saved in the store.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	saved, err := m.store.LoadTasks(ctx)
	if err != nil {
		return err
	}
	for name, opts := range saved {
		if err := m.start(name, opts); err != nil {
			slog.Warn("restore task", "task", name, "error", err.Error())
			continue
		}
	}
	return nil
}

// Run blocks until ctx is done, then stops every task and waits for the loops.
func (m *Manager) Run(ctx context.Context) error {
	<-ctx.Done()
	m.shutdown()
	return ctx.Err()
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	m.cancelBase()
	m.tasks = make(map[string]*runningTask)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) loop(ctx context.Context, rt *runningTask, h Handler) {
	defer close(rt.done)

	f := NewFilter(FilterConfigFrom(rt.opts))
	t := time.NewTicker(m.sampleInterval)
	defer t.Stop()

	m.sample(ctx, rt, f, h, false)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.sample(ctx, rt, f, h, false)
		case <-rt.triggerCh:
			m.sample(ctx, rt, f, h, true)
		}
	}
}

func (m *Manager) sample(ctx context.Context, rt *runningTask, f *Filter, h Handler, force bool) {
	pos, err := m.sampler.CurrentPosition(ctx, rt.opts.Accuracy)
	if err != nil {
		if ctx.Err() == nil {
			m.recordError(rt.name, errors.Wrap(err, "current position"))
		}
		return
	}
	m.totalSamples.Add(1)

	now := time.Now().UTC()
	s := models.LocationSample{Coordinates: pos, Timestamp: now}
	if force {
		f.Force(s)
		m.totalAccepted.Add(1)
	} else if f.Accept(s) {
		m.totalAccepted.Add(1)
	}
	rt.pending.Store(int64(f.Pending()))

	if !force && !f.Due(now) {
		return
	}
	batch := f.Flush(now)
	rt.pending.Store(0)
	if len(batch) == 0 {
		return
	}

	m.totalFlushes.Add(1)
	m.lastFlushUnixNano.Store(now.UnixNano())
	if err := h(ctx, rt.name, batch); err != nil && ctx.Err() == nil {
		m.recordError(rt.name, err)
	}
}

func (m *Manager) recordError(task string, err error) {
	m.totalErrors.Add(1)
	m.lastErrorMu.Lock()
	m.lastError = err.Error()
	m.lastErrorMu.Unlock()
	slog.Error("background task", "task", task, "error", err.Error())
}

type TaskInfo struct {
	Name      string                 `json:"name"`
	StartedAt time.Time              `json:"startedAt"`
	Pending   int64                  `json:"pending"`
	Options   location.UpdateOptions `json:"options"`
}

func (m *Manager) Tasks() []TaskInfo {
	m.mu.Lock()
	out := make([]TaskInfo, 0, len(m.tasks))
	for _, rt := range m.tasks {
		out = append(out, TaskInfo{Name: rt.name, StartedAt: rt.startedAt, Pending: rt.pending.Load(), Options: rt.opts})
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastFlushAt   *time.Time `json:"lastFlushAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	Running       int        `json:"running"`
	TotalSamples  int64      `json:"totalSamples"`
	TotalAccepted int64      `json:"totalAccepted"`
	TotalFlushes  int64      `json:"totalFlushes"`
	TotalErrors   int64      `json:"totalErrors"`
	LastError     string     `json:"lastError,omitempty"`
}

func (m *Manager) Stats() Stats {
	st := Stats{
		StartedAt:     time.Unix(0, m.startedAtUnixNano).UTC(),
		TotalSamples:  m.totalSamples.Load(),
		TotalAccepted: m.totalAccepted.Load(),
		TotalFlushes:  m.totalFlushes.Load(),
		TotalErrors:   m.totalErrors.Load(),
	}
	if n := m.lastFlushUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastFlushAt = &t
	}
	if n := m.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	m.mu.Lock()
	st.Running = len(m.tasks)
	m.mu.Unlock()
	m.lastErrorMu.Lock()
	st.LastError = m.lastError
	m.lastErrorMu.Unlock()
	return st
}
