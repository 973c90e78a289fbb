package tracer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/RekaTrack/internal/apperr"
	"github.com/BearBump/RekaTrack/internal/broker/messages"
	"github.com/BearBump/RekaTrack/internal/models"
)

type MarkerReader interface {
	Current(ctx context.Context) (models.Marker, bool, error)
}

type TaskStopper interface {
	Stop(ctx context.Context, task string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Journal interface {
	RecordLocationReport(ctx context.Context, r models.LocationReport) error
}

// Task is the handler behind the background location task.
type Task struct {
	marker   MarkerReader
	stopper  TaskStopper
	reporter Reporter

	rl                 RateLimiter
	rateLimitPerMinute int64
	journal            Journal
	events             EventPublisher
}

func NewTask(marker MarkerReader, stopper TaskStopper, reporter Reporter) *Task {
	return &Task{
		marker:             marker,
		stopper:            stopper,
		reporter:           reporter,
		rateLimitPerMinute: 30,
	}
}

func (t *Task) WithRateLimit(rl RateLimiter, perMinute int64) *Task {
	t.rl = rl
	if perMinute > 0 {
		t.rateLimitPerMinute = perMinute
	}
	return t
}

func (t *Task) WithJournal(j Journal) *Task {
	t.journal = j
	return t
}

func (t *Task) WithEvents(p EventPublisher) *Task {
	t.events = p
	return t
}

// Handle reports the newest sample of a batch for the marked shipment.
// Without a marker the task is residual and stops itself.
func (t *Task) Handle(ctx context.Context, task string, samples []models.LocationSample) error {
	if len(samples) == 0 {
		return nil
	}

	m, held, err := t.marker.Current(ctx)
	if err != nil {
		return err
	}
	if !held {
		slog.Info("no active shipment, stopping residual task", "task", task)
		return t.stopper.Stop(ctx, task)
	}

	if t.rl != nil && t.rateLimitPerMinute > 0 {
		key := fmt.Sprintf("ratelimit:send-location:%d", m.ShipmentID)
		allowed, n, err := t.rl.Allow(ctx, key, t.rateLimitPerMinute, time.Minute)
		if err != nil {
			return err
		}
		if !allowed {
			slog.Warn("rate limit exceeded, batch skipped", "shipment_id", m.ShipmentID, "count", n)
			return nil
		}
	}

	newest := samples[len(samples)-1]
	sendErr := t.reporter.SendLocation(ctx, m.ShipmentID, newest.Coordinates)

	rep := models.LocationReport{
		ShipmentID: m.ShipmentID,
		Position:   newest.Coordinates,
		ReportedAt: newest.Timestamp,
	}
	if sendErr != nil {
		msg := apperr.UserMessage(sendErr, "")
		rep.Error = &msg
	}
	if t.journal != nil {
		if err := t.journal.RecordLocationReport(ctx, rep); err != nil {
			slog.Error("journal location report", "shipment_id", m.ShipmentID, "error", err.Error())
		}
	}
	if sendErr != nil {
		return sendErr
	}

	slog.Info("location reported", "shipment_id", m.ShipmentID, "samples", len(samples))
	if t.events != nil {
		t.events.Publish(ctx, messages.NewCourierEvent(messages.EventLocationReported, m.ShipmentID).
			WithPosition(newest.Latitude, newest.Longitude))
	}
	return nil
}
