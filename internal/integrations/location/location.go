package location

import (
	"context"
	"time"

	"github.com/BearBump/RekaTrack/internal/models"
)

// TaskName is the background task shared by activation, teardown and the agent.
const TaskName = "rekatrack-background-location"

type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

type Accuracy string

const (
	AccuracyBalanced Accuracy = "balanced"
	AccuracyHigh     Accuracy = "high"
)

// Provider is the device's one-shot location capability.
type Provider interface {
	RequestForeground(ctx context.Context) (PermissionStatus, error)
	RequestBackground(ctx context.Context) (PermissionStatus, error)
	CurrentPosition(ctx context.Context, acc Accuracy) (models.Coordinates, error)
}

type ForegroundService struct {
	NotificationTitle string `json:"notificationTitle"`
	NotificationBody  string `json:"notificationBody"`
}

type UpdateOptions struct {
	Accuracy                         Accuracy          `json:"accuracy"`
	DistanceIntervalMeters           float64           `json:"distanceInterval"`
	DeferredDistanceMeters           float64           `json:"deferredUpdatesDistance"`
	DeferredIntervalMs               int64             `json:"deferredUpdatesInterval"`
	PausesUpdatesAutomatically       bool              `json:"pausesUpdatesAutomatically"`
	ShowsBackgroundLocationIndicator bool              `json:"showsBackgroundLocationIndicator"`
	ForegroundService                ForegroundService `json:"foregroundService"`
}

func (o UpdateOptions) DeferredInterval() time.Duration {
	return time.Duration(o.DeferredIntervalMs) * time.Millisecond
}

// TrackingOptions are the parameters tracking is started with.
func TrackingOptions() UpdateOptions {
	return UpdateOptions{
		Accuracy:                         AccuracyHigh,
		DistanceIntervalMeters:           100,
		DeferredDistanceMeters:           100,
		DeferredIntervalMs:               60000,
		PausesUpdatesAutomatically:       false,
		ShowsBackgroundLocationIndicator: true,
		ForegroundService: ForegroundService{
			NotificationTitle: "Rekatrack Tracking Aktif",
			NotificationBody:  "Tracking pengiriman sedang berjalan di background",
		},
	}
}

// Updates is the background location-updates subsystem, keyed by task name.
type Updates interface {
	HasStarted(ctx context.Context, task string) (bool, error)
	Start(ctx context.Context, task string, opts UpdateOptions) error
	Stop(ctx context.Context, task string) error
}
