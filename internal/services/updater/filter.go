package updater

import (
	"time"

	"github.com/BearBump/RekaTrack/internal/integrations/location"
	"github.com/BearBump/RekaTrack/internal/models"
)

type FilterConfig struct {
	// DistanceInterval: минимальное смещение от последней принятой точки.
	DistanceInterval float64
	// DeferredDistance и DeferredInterval должны набраться оба, прежде чем
	// накопленные точки уйдут обработчику.
	DeferredDistance float64
	DeferredInterval time.Duration
}

func FilterConfigFrom(opts location.UpdateOptions) FilterConfig {
	return FilterConfig{
		DistanceInterval: opts.DistanceIntervalMeters,
		DeferredDistance: opts.DeferredDistanceMeters,
		DeferredInterval: opts.DeferredInterval(),
	}
}

// Filter drops samples that moved too little and batches the rest.
// It is not safe for concurrent use; each task loop owns one.
type Filter struct {
	cfg FilterConfig

	last        *models.LocationSample
	flushedAt   time.Time
	flushedPos  *models.Coordinates
	pending     []models.LocationSample
	everFlushed bool
}

func NewFilter(cfg FilterConfig) *Filter {
	if cfg.DistanceInterval < 0 {
		cfg.DistanceInterval = 0
	}
	if cfg.DeferredDistance < 0 {
		cfg.DeferredDistance = 0
	}
	if cfg.DeferredInterval < 0 {
		cfg.DeferredInterval = 0
	}
	return &Filter{cfg: cfg}
}

// Accept buffers s unless it is closer than DistanceInterval to the last
// accepted sample.
func (f *Filter) Accept(s models.LocationSample) bool {
	if f.last != nil && models.DistanceMeters(f.last.Coordinates, s.Coordinates) < f.cfg.DistanceInterval {
		return false
	}
	f.push(s)
	return true
}

// Force buffers s without the distance check.
func (f *Filter) Force(s models.LocationSample) {
	f.push(s)
}

func (f *Filter) push(s models.LocationSample) {
	cp := s
	f.last = &cp
	f.pending = append(f.pending, s)
}

func (f *Filter) Pending() int {
	return len(f.pending)
}

// Due reports whether the buffered samples should be delivered now.
// The very first batch is delivered immediately.
func (f *Filter) Due(now time.Time) bool {
	if len(f.pending) == 0 {
		return false
	}
	if !f.everFlushed {
		return true
	}
	if now.Sub(f.flushedAt) < f.cfg.DeferredInterval {
		return false
	}
	newest := f.pending[len(f.pending)-1].Coordinates
	return models.DistanceMeters(*f.flushedPos, newest) >= f.cfg.DeferredDistance
}

// Flush returns the buffered samples (oldest first) and resets the buffer.
func (f *Filter) Flush(now time.Time) []models.LocationSample {
	if len(f.pending) == 0 {
		return nil
	}
	out := f.pending
	f.pending = nil

	pos := out[len(out)-1].Coordinates
	f.flushedPos = &pos
	f.flushedAt = now
	f.everFlushed = true
	return out
}
