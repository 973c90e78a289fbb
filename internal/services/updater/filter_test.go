package updater

import (
	"testing"
	"time"

	"github.com/BearBump/RekaTrack/internal/integrations/location"
	"github.com/BearBump/RekaTrack/internal/models"
	"github.com/stretchr/testify/suite"
)

// ~111 m per 0.001 degree of latitude.
func sampleAt(lat float64, ts time.Time) models.LocationSample {
	return models.LocationSample{
		Coordinates: models.Coordinates{Latitude: lat, Longitude: 112.75},
		Timestamp:   ts,
	}
}

type FilterSuite struct {
	suite.Suite
	t0 time.Time
	f  *Filter
}

func (s *FilterSuite) SetupTest() {
	s.t0 = time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	s.f = NewFilter(FilterConfigFrom(location.TrackingOptions()))
}

func (s *FilterSuite) TestFirstSampleFlushesImmediately() {
	s.True(s.f.Accept(sampleAt(0, s.t0)))
	s.True(s.f.Due(s.t0))
	s.Len(s.f.Flush(s.t0), 1)
	s.False(s.f.Due(s.t0))
	s.Nil(s.f.Flush(s.t0))
}

func (s *FilterSuite) TestDistanceIntervalDropsSmallMoves() {
	s.True(s.f.Accept(sampleAt(0, s.t0)))
	s.False(s.f.Accept(sampleAt(0.0005, s.t0.Add(time.Second))))
	s.True(s.f.Accept(sampleAt(0.001, s.t0.Add(2*time.Second))))
	s.Equal(2, s.f.Pending())
}

func (s *FilterSuite) TestDeferredNeedsBothIntervalAndDistance() {
	s.f.Accept(sampleAt(0, s.t0))
	s.f.Flush(s.t0)

	s.True(s.f.Accept(sampleAt(0.002, s.t0.Add(10*time.Second))))
	s.False(s.f.Due(s.t0.Add(10*time.Second)), "interval not elapsed")
	s.True(s.f.Due(s.t0.Add(61*time.Second)))

	batch := s.f.Flush(s.t0.Add(61 * time.Second))
	s.Len(batch, 1)
	s.InDelta(0.002, batch[0].Latitude, 1e-9)
}

func (s *FilterSuite) TestDeferredDistanceFromLastFlush() {
	f := NewFilter(FilterConfig{DistanceInterval: 0, DeferredDistance: 100, DeferredInterval: time.Minute})
	f.Accept(sampleAt(0, s.t0))
	f.Flush(s.t0)

	f.Accept(sampleAt(0.0003, s.t0.Add(2*time.Minute)))
	s.False(f.Due(s.t0.Add(2*time.Minute)), "moved ~33 m only")
	f.Accept(sampleAt(0.001, s.t0.Add(3*time.Minute)))
	s.True(f.Due(s.t0.Add(3 * time.Minute)))
	s.Len(f.Flush(s.t0.Add(3*time.Minute)), 2)
}

func (s *FilterSuite) TestForceSkipsDistanceCheck() {
	s.f.Accept(sampleAt(0, s.t0))
	s.f.Force(sampleAt(0, s.t0.Add(time.Second)))
	s.Equal(2, s.f.Pending())
}

func TestFilterSuite(t *testing.T) {
	suite.Run(t, new(FilterSuite))
}
