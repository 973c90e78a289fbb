package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/RekaTrack/config"
	"github.com/BearBump/RekaTrack/internal/apiclient"
	"github.com/BearBump/RekaTrack/internal/broker/kafka"
	"github.com/BearBump/RekaTrack/internal/broker/messages"
	"github.com/BearBump/RekaTrack/internal/cache/rediscache"
	"github.com/BearBump/RekaTrack/internal/integrations/location"
	"github.com/BearBump/RekaTrack/internal/integrations/location/fake"
	"github.com/BearBump/RekaTrack/internal/integrations/rekatrack"
	"github.com/BearBump/RekaTrack/internal/models"
	"github.com/BearBump/RekaTrack/internal/services/tracer"
	"github.com/BearBump/RekaTrack/internal/services/updater"
	"github.com/BearBump/RekaTrack/internal/storage/pgjournal"
	"github.com/BearBump/RekaTrack/internal/storage/redisstate"
	"golang.org/x/sync/errgroup"
)

// agentState is what the agent needs from the courier's persisted state.
type agentState interface {
	tracer.MarkerReader
	updater.TaskStore
	apiclient.TokenStore
}

type agentFactories struct {
	newState       func(cfg *config.Config) (st agentState, closeFn func(), err error)
	newProvider    func(cfg *config.Config) location.Provider
	newReporter    func(cfg *config.Config, tokens apiclient.TokenStore) tracer.Reporter
	newProducer    func(cfg *config.Config) (p messages.Producer, closeFn func())
	newJournal     func(cfg *config.Config) (j tracer.Journal, closeFn func(), err error)
	newRateLimiter func(cfg *config.Config) tracer.RateLimiter
}

func defaultAgentFactories() agentFactories {
	return agentFactories{
		newState: func(cfg *config.Config) (agentState, func(), error) {
			st := redisstate.New(cfg.RedisAddr(), cfg.Redis.KeyPrefix)
			return st, func() { _ = st.Close() }, nil
		},
		newProvider: func(cfg *config.Config) location.Provider {
			return newDeviceProvider(cfg.Device)
		},
		newReporter: func(cfg *config.Config, tokens apiclient.TokenStore) tracer.Reporter {
			timeout := time.Duration(cfg.RekaTrack.RequestTimeoutMs) * time.Millisecond
			return rekatrack.New(apiclient.New(cfg.RekaTrack.APIBaseURL, tokens, apiclient.WithTimeout(timeout)))
		},
		newProducer: func(cfg *config.Config) (messages.Producer, func()) {
			brokers := cfg.KafkaBrokers()
			if len(brokers) == 0 {
				return nil, nil
			}
			p := kafka.NewProducer(brokers)
			return p, func() { _ = p.Close() }
		},
		newJournal: func(cfg *config.Config) (tracer.Journal, func(), error) {
			dsn := cfg.PostgresDSN()
			if dsn == "" {
				return nil, nil, nil
			}
			st, err := pgjournal.New(dsn)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newRateLimiter: func(cfg *config.Config) tracer.RateLimiter {
			return rediscache.NewRateLimiter(cfg.RedisAddr())
		},
	}
}

func newDeviceProvider(d config.DeviceConfig) *fake.FakeProvider {
	return fake.New(fake.Config{
		Foreground: location.PermissionStatus(strings.ToLower(d.ForegroundPermission)),
		Background: location.PermissionStatus(strings.ToLower(d.BackgroundPermission)),
		Origin:     models.Coordinates{Latitude: d.Latitude, Longitude: d.Longitude},
		StepMeters: d.StepMeters,
		Seed:       "tracer-agent",
	})
}

func RunTracerAgent(ctx context.Context, cfg *config.Config, f agentFactories, httpOpts agentHTTPOpts) error {
	sampleInterval := time.Duration(cfg.Agent.SampleIntervalSeconds) * time.Second
	if sampleInterval <= 0 {
		sampleInterval = 5 * time.Second
	}
	rlPerMin := int64(cfg.RekaTrack.ReportRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 30
	}

	st, closeState, err := f.newState(cfg)
	if err != nil {
		return err
	}
	if closeState != nil {
		defer closeState()
	}

	producer, closeProducer := f.newProducer(cfg)
	if closeProducer != nil {
		defer closeProducer()
	}
	events := messages.NewPublisher(producer, cfg.Kafka.CourierEventsTopicName)

	journal, closeJournal, err := f.newJournal(cfg)
	if err != nil {
		return err
	}
	if closeJournal != nil {
		defer closeJournal()
	}

	m := updater.New(f.newProvider(cfg), st).WithSampleInterval(sampleInterval)
	task := tracer.NewTask(st, m, f.newReporter(cfg, st)).
		WithRateLimit(f.newRateLimiter(cfg), rlPerMin).
		WithJournal(journal).
		WithEvents(events)
	m.Register(location.TaskName, task.Handle)

	if err := m.Restore(ctx); err != nil {
		slog.Warn("restore background tasks", "error", err.Error())
	}

	httpOpts.updates = m
	httpOpts.cfg = cfg

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.Run(gctx) })
	g.Go(func() error { return runAgentHTTPServer(gctx, httpOpts) })
	return g.Wait()
}
