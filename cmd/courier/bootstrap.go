package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BearBump/RekaTrack/config"
	"github.com/BearBump/RekaTrack/internal/apiclient"
	"github.com/BearBump/RekaTrack/internal/apperr"
	"github.com/BearBump/RekaTrack/internal/broker/kafka"
	"github.com/BearBump/RekaTrack/internal/broker/messages"
	"github.com/BearBump/RekaTrack/internal/cache/rediscache"
	"github.com/BearBump/RekaTrack/internal/integrations/location"
	"github.com/BearBump/RekaTrack/internal/integrations/location/agentclient"
	"github.com/BearBump/RekaTrack/internal/integrations/location/fake"
	"github.com/BearBump/RekaTrack/internal/integrations/rekatrack"
	"github.com/BearBump/RekaTrack/internal/logging"
	"github.com/BearBump/RekaTrack/internal/models"
	"github.com/BearBump/RekaTrack/internal/services/completion"
	"github.com/BearBump/RekaTrack/internal/services/shipments"
	"github.com/BearBump/RekaTrack/internal/services/tracer"
	"github.com/BearBump/RekaTrack/internal/storage/pgjournal"
	"github.com/BearBump/RekaTrack/internal/storage/redisstate"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultConfigPath = "config.yaml"

// resolveConfigPath: flag, then the configPath env var, then ./config.yaml.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("configPath"); v != "" {
		return v
	}
	return defaultConfigPath
}

// courierApp is everything one CLI invocation needs, built from config.
type courierApp struct {
	cfg *config.Config

	rdb       *redis.Client
	state     *redisstate.Store
	backend   *rekatrack.Client
	shipments *shipments.Service
	provider  location.Provider
	updates   location.Updates
	events    *messages.Publisher
	journal   *pgjournal.Storage

	closers []func()
}

func openApp(configPath string, logOut io.Writer) (*courierApp, error) {
	cfg, err := config.LoadConfig(resolveConfigPath(configPath))
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Log, logOut)

	a := &courierApp{cfg: cfg}

	a.rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
	a.closers = append(a.closers, func() { _ = a.rdb.Close() })
	a.state = redisstate.NewWithClient(a.rdb, cfg.Redis.KeyPrefix)

	timeout := time.Duration(cfg.RekaTrack.RequestTimeoutMs) * time.Millisecond
	a.backend = rekatrack.New(apiclient.New(cfg.RekaTrack.APIBaseURL, a.state, apiclient.WithTimeout(timeout)))

	ttl := 60 * time.Second
	if cfg.RekaTrack.DetailCacheTTLSeconds > 0 {
		ttl = time.Duration(cfg.RekaTrack.DetailCacheTTLSeconds) * time.Second
	}
	a.shipments = shipments.New(a.backend, rediscache.NewWithClient(a.rdb, cfg.Redis.KeyPrefix), ttl)

	a.provider = newDeviceProvider(cfg.Device)
	a.updates = agentclient.New(cfg.Agent.BaseURL)

	var producer messages.Producer
	if brokers := cfg.KafkaBrokers(); len(brokers) > 0 {
		p := kafka.NewProducer(brokers)
		a.closers = append(a.closers, func() { _ = p.Close() })
		producer = p
	}
	a.events = messages.NewPublisher(producer, cfg.Kafka.CourierEventsTopicName)

	if dsn := cfg.PostgresDSN(); dsn != "" {
		j, err := pgjournal.New(dsn)
		if err != nil {
			// журнал не обязателен для сценариев курьера
			slog.Warn("journal unavailable", "error", err.Error())
		} else {
			a.journal = j
			a.closers = append(a.closers, j.Close)
		}
	}
	return a, nil
}

func (a *courierApp) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *courierApp) activation() *tracer.Activation {
	return tracer.NewActivation(a.provider, a.updates, a.backend, a.state, a.events)
}

func (a *courierApp) completion() *completion.Flow {
	f := completion.New(a.provider, a.updates, a.backend, a.state).WithEvents(a.events)
	if a.journal != nil {
		f = f.WithJournal(a.journal)
	}
	if s := a.cfg.RekaTrack.CompletionTimeoutSeconds; s > 0 {
		f = f.WithHardTimeout(time.Duration(s) * time.Second)
	}
	return f
}

func newDeviceProvider(d config.DeviceConfig) *fake.FakeProvider {
	return fake.New(fake.Config{
		Foreground: location.PermissionStatus(strings.ToLower(d.ForegroundPermission)),
		Background: location.PermissionStatus(strings.ToLower(d.BackgroundPermission)),
		Origin:     models.Coordinates{Latitude: d.Latitude, Longitude: d.Longitude},
		StepMeters: d.StepMeters,
		Seed:       "courier",
	})
}

// userError turns err into the message the courier sees; details go to the log.
func userError(err error) error {
	if err == nil {
		return nil
	}
	slog.Debug("command failed", "error", err.Error())
	return errors.New(apperr.UserMessage(err, ""))
}
