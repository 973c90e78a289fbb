package fake

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/BearBump/RekaTrack/internal/integrations/location"
	"github.com/BearBump/RekaTrack/internal/models"
)

const metersPerDegreeLat = 111320.0

type Config struct {
	Foreground location.PermissionStatus
	Background location.PermissionStatus
	Origin     models.Coordinates
	// StepMeters is how far the device "moves" between two position reads.
	StepMeters float64
	// Seed выбирает направление движения; при одинаковом seed маршрут тот же.
	Seed string
}

// FakeProvider: устройство без GPS: разрешения из конфига и детерминированный
// маршрут от стартовой точки.
type FakeProvider struct {
	mu      sync.Mutex
	cfg     Config
	heading float64
	reads   int
}

func New(cfg Config) *FakeProvider {
	if cfg.Foreground == "" {
		cfg.Foreground = location.PermissionGranted
	}
	if cfg.Background == "" {
		cfg.Background = location.PermissionGranted
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(cfg.Seed))
	heading := float64(h.Sum32()%360) * math.Pi / 180

	return &FakeProvider{cfg: cfg, heading: heading}
}

func (f *FakeProvider) RequestForeground(ctx context.Context) (location.PermissionStatus, error) {
	return f.cfg.Foreground, nil
}

func (f *FakeProvider) RequestBackground(ctx context.Context) (location.PermissionStatus, error) {
	return f.cfg.Background, nil
}

func (f *FakeProvider) CurrentPosition(ctx context.Context, _ location.Accuracy) (models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinates{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	d := f.cfg.StepMeters * float64(f.reads)
	f.reads++

	dLat := d * math.Cos(f.heading) / metersPerDegreeLat
	cosLat := math.Cos(f.cfg.Origin.Latitude * math.Pi / 180)
	dLon := 0.0
	if cosLat > 1e-9 {
		dLon = d * math.Sin(f.heading) / (metersPerDegreeLat * cosLat)
	}
	return models.Coordinates{
		Latitude:  f.cfg.Origin.Latitude + dLat,
		Longitude: f.cfg.Origin.Longitude + dLon,
	}, nil
}
