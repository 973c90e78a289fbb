package models

import (
	"math"
	"time"
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type LocationSample struct {
	Coordinates
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Marker is the active-tracking slot: the one shipment under background tracking.
type Marker struct {
	ShipmentID int64
}

type LocationReport struct {
	ID         uint64
	ShipmentID int64
	Position   Coordinates
	ReportedAt time.Time
	Error      *string
}

const earthRadiusMeters = 6371000.0

// DistanceMeters returns the haversine distance between a and b.
func DistanceMeters(a, b Coordinates) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
