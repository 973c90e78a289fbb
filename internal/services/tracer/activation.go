// Package tracer owns the tracer lifecycle: activating background location
// reporting for one shipment and the handler the background task runs.
package tracer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BearBump/RekaTrack/internal/apperr"
	"github.com/BearBump/RekaTrack/internal/broker/messages"
	"github.com/BearBump/RekaTrack/internal/integrations/location"
	"github.com/BearBump/RekaTrack/internal/models"
	"github.com/pkg/errors"
)

const (
	MsgForegroundRequired = "Izin lokasi diperlukan"
	MsgTrackingForeground = "Izin lokasi foreground diperlukan."
	MsgBackgroundRequired = "Aktifkan izin 'Always' agar tracking tetap berjalan saat aplikasi di background."
)

var (
	ErrActivationInProgress = errors.New("tracer activation already in progress")
	ErrAlreadyActive        = errors.New("tracer already active")
	ErrOtherShipmentActive  = errors.New("another shipment is being tracked")
)

type State string

const (
	StateInactive   State = "inactive"
	StateActivating State = "activating"
	StateActive     State = "active"
)

type Reporter interface {
	SendLocation(ctx context.Context, id int64, pos models.Coordinates) error
}

type Marker interface {
	Current(ctx context.Context) (models.Marker, bool, error)
	Claim(ctx context.Context, id int64) (bool, error)
	Release(ctx context.Context) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev messages.CourierEvent)
}

type Activation struct {
	provider location.Provider
	updates  location.Updates
	reporter Reporter
	marker   Marker
	events   EventPublisher

	mu         sync.Mutex
	state      State
	shipmentID int64
}

// NewActivation: events may be nil.
func NewActivation(provider location.Provider, updates location.Updates, reporter Reporter, marker Marker, events EventPublisher) *Activation {
	return &Activation{
		provider: provider,
		updates:  updates,
		reporter: reporter,
		marker:   marker,
		events:   events,
		state:    StateInactive,
	}
}

func (a *Activation) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Activation) ShipmentID() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shipmentID
}

// enter moves inactive -> next. Any other state is rejected without side effects.
func (a *Activation) enter(id int64, next State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case StateActivating:
		return ErrActivationInProgress
	case StateActive:
		return errors.Wrapf(ErrAlreadyActive, "shipment %d", a.shipmentID)
	}
	a.state = next
	a.shipmentID = id
	return nil
}

func (a *Activation) set(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Activate reports the current position for shipment id and starts
// background tracking. On failure the state is back to inactive.
func (a *Activation) Activate(ctx context.Context, id int64) (err error) {
	if err := a.enter(id, StateActivating); err != nil {
		return err
	}
	optimistic := false
	defer func() {
		if err == nil {
			return
		}
		a.set(StateInactive)
		if optimistic {
			a.rollback(ctx, id, err)
		}
	}()

	if err := a.ensureSlotFree(ctx, id); err != nil {
		return err
	}

	fg, err := a.provider.RequestForeground(ctx)
	if err != nil {
		return errors.Wrap(err, "request foreground permission")
	}
	if fg != location.PermissionGranted {
		return apperr.PermissionDenied(apperr.PermissionForeground, MsgForegroundRequired)
	}

	pos, err := a.provider.CurrentPosition(ctx, location.AccuracyHigh)
	if err != nil {
		return errors.Wrap(err, "current position")
	}
	if err := a.reporter.SendLocation(ctx, id, pos); err != nil {
		return err
	}

	// сервер принял точку: показываем "активно" до подтверждения фоновых прав
	a.set(StateActive)
	optimistic = true

	if err := a.StartBackground(ctx, id); err != nil {
		return err
	}

	slog.Info("tracer activated", "shipment_id", id)
	a.publish(ctx, messages.NewCourierEvent(messages.EventTracerActivated, id).WithPosition(pos.Latitude, pos.Longitude))
	return nil
}

// SyncBackground marks an already in-transit shipment active and makes sure
// its background task runs.
func (a *Activation) SyncBackground(ctx context.Context, id int64) error {
	a.mu.Lock()
	if a.state == StateActive && a.shipmentID == id {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	if err := a.enter(id, StateActive); err != nil {
		return err
	}
	if err := a.StartBackground(ctx, id); err != nil {
		a.set(StateInactive)
		a.rollback(ctx, id, err)
		return err
	}
	return nil
}

// StartBackground checks both location grants, claims the marker and starts
// the background task unless it is already running.
func (a *Activation) StartBackground(ctx context.Context, id int64) error {
	fg, err := a.provider.RequestForeground(ctx)
	if err != nil {
		return errors.Wrap(err, "request foreground permission")
	}
	if fg != location.PermissionGranted {
		return apperr.PermissionDenied(apperr.PermissionForeground, MsgTrackingForeground)
	}
	bg, err := a.provider.RequestBackground(ctx)
	if err != nil {
		return errors.Wrap(err, "request background permission")
	}
	if bg != location.PermissionGranted {
		return apperr.PermissionDenied(apperr.PermissionBackground, MsgBackgroundRequired)
	}

	claimed, err := a.marker.Claim(ctx, id)
	if err != nil {
		return err
	}

	started, err := a.updates.HasStarted(ctx, location.TaskName)
	if err == nil && !started {
		err = a.updates.Start(ctx, location.TaskName, location.TrackingOptions())
	}
	if err != nil && claimed {
		// маркер без задачи никто не снимет; чужой (уже стоявший) не трогаем
		if rerr := a.marker.Release(context.WithoutCancel(ctx)); rerr != nil {
			slog.Error("release marker", "shipment_id", id, "error", rerr.Error())
		}
		return err
	}
	return nil
}

func (a *Activation) ensureSlotFree(ctx context.Context, id int64) error {
	cur, held, err := a.marker.Current(ctx)
	if err != nil {
		return err
	}
	if held && cur.ShipmentID != id {
		return errors.Wrapf(ErrOtherShipmentActive, "shipment %d", cur.ShipmentID)
	}
	return nil
}

// rollback: the server is not told, it already got a position for id.
func (a *Activation) rollback(ctx context.Context, id int64, cause error) {
	slog.Warn("tracer activation rolled back", "shipment_id", id, "error", cause.Error())
	ev := messages.NewCourierEvent(messages.EventTracerRolledBack, id)
	ev.Reason = apperr.UserMessage(cause, "")
	a.publish(context.WithoutCancel(ctx), ev)
}

func (a *Activation) publish(ctx context.Context, ev messages.CourierEvent) {
	if a.events != nil {
		a.events.Publish(ctx, ev)
	}
}
