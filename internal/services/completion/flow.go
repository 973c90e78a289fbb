// Package completion confirms a delivery: proof photos are uploaded, the
// completion record is submitted and background tracking is torn down.
package completion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/BearBump/RekaTrack/internal/apperr"
	"github.com/BearBump/RekaTrack/internal/broker/messages"
	"github.com/BearBump/RekaTrack/internal/integrations/location"
	"github.com/BearBump/RekaTrack/internal/integrations/rekatrack"
	"github.com/BearBump/RekaTrack/internal/models"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultHardTimeout = 25 * time.Second

	MsgReceiverRequired = "Nama penerima wajib diisi"
	MsgPhotoRequired    = "Foto bukti penerimaan wajib diunggah"
	MsgLocationDenied   = "Izin lokasi ditolak"
	MsgTooLong          = "Proses terlalu lama. Coba lagi."
	MsgFailed           = "Gagal menyelesaikan pengiriman"
	MsgCompleted        = "Pengiriman berhasil diselesaikan!"
)

var ErrInProgress = errors.New("delivery completion already in progress")

type Backend interface {
	UploadDeliveryPhoto(ctx context.Context, fileName string, content io.Reader) (string, error)
	CompleteTracking(ctx context.Context, req rekatrack.CompleteTrackingRequest) error
}

type Marker interface {
	Release(ctx context.Context) error
}

type Journal interface {
	RecordCompletion(ctx context.Context, c models.Completion) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev messages.CourierEvent)
}

type Request struct {
	ShipmentID   int64
	ReceiverName string
	ReceivedAt   time.Time
	Note         string
	// Photos are local JPEG files.
	Photos []string
}

type Flow struct {
	provider location.Provider
	updates  location.Updates
	backend  Backend
	marker   Marker

	journal Journal
	events  EventPublisher

	hardTimeout time.Duration
	loading     atomic.Bool
}

func New(provider location.Provider, updates location.Updates, backend Backend, marker Marker) *Flow {
	return &Flow{
		provider:    provider,
		updates:     updates,
		backend:     backend,
		marker:      marker,
		hardTimeout: DefaultHardTimeout,
	}
}

func (f *Flow) WithJournal(j Journal) *Flow {
	f.journal = j
	return f
}

func (f *Flow) WithEvents(p EventPublisher) *Flow {
	f.events = p
	return f
}

func (f *Flow) WithHardTimeout(d time.Duration) *Flow {
	if d > 0 {
		f.hardTimeout = d
	}
	return f
}

// Loading reports whether a Complete call is in flight.
func (f *Flow) Loading() bool {
	return f.loading.Load()
}

func Validate(req Request) error {
	if strings.TrimSpace(req.ReceiverName) == "" {
		return apperr.Validation("receiver_name", MsgReceiverRequired)
	}
	if len(req.Photos) == 0 {
		return apperr.Validation("photos", MsgPhotoRequired)
	}
	return nil
}

type result struct {
	c   models.Completion
	err error
}

// Complete runs the whole sequence under the hard timeout. When the timeout
// fires the caller gets a Timeout error right away, even if a step is stuck.
func (f *Flow) Complete(ctx context.Context, req Request) (models.Completion, error) {
	if err := Validate(req); err != nil {
		return models.Completion{}, err
	}
	if !f.loading.CompareAndSwap(false, true) {
		return models.Completion{}, ErrInProgress
	}
	defer f.loading.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, f.hardTimeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		c, err := f.run(runCtx, req)
		done <- result{c: c, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return models.Completion{}, f.timedOut(req)
		}
		return r.c, r.err
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return models.Completion{}, f.timedOut(req)
		}
		return models.Completion{}, apperr.Network(runCtx.Err())
	}
}

func (f *Flow) timedOut(req Request) error {
	slog.Warn("delivery completion timed out", "shipment_id", req.ShipmentID, "timeout", f.hardTimeout)
	return apperr.Timeout(MsgTooLong)
}

func (f *Flow) run(ctx context.Context, req Request) (models.Completion, error) {
	pos, err := f.position(ctx)
	if err != nil {
		return models.Completion{}, err
	}

	paths, err := f.uploadPhotos(ctx, dedupe(req.Photos))
	if err != nil {
		return models.Completion{}, err
	}

	c := models.Completion{
		ShipmentID:   req.ShipmentID,
		ReceiverName: req.ReceiverName,
		ReceivedAt:   req.ReceivedAt,
		Note:         req.Note,
		PhotoPaths:   paths,
		Position:     pos,
		CreatedAt:    time.Now().UTC(),
	}
	if c.ReceivedAt.IsZero() {
		c.ReceivedAt = c.CreatedAt
	}
	if err := f.backend.CompleteTracking(ctx, rekatrack.NewCompleteTrackingRequest(c)); err != nil {
		return models.Completion{}, err
	}

	if err := f.teardown(ctx); err != nil {
		return models.Completion{}, err
	}

	slog.Info("delivery completed", "shipment_id", c.ShipmentID, "photos", len(paths))
	if f.journal != nil {
		if err := f.journal.RecordCompletion(ctx, c); err != nil {
			slog.Error("journal completion", "shipment_id", c.ShipmentID, "error", err.Error())
		}
	}
	if f.events != nil {
		ev := messages.NewCourierEvent(messages.EventDeliveryCompleted, c.ShipmentID).WithPosition(pos.Latitude, pos.Longitude)
		ev.ReceiverName = c.ReceiverName
		ev.PhotoPaths = paths
		f.events.Publish(ctx, ev)
	}
	return c, nil
}

func (f *Flow) position(ctx context.Context) (models.Coordinates, error) {
	st, err := f.provider.RequestForeground(ctx)
	if err != nil {
		return models.Coordinates{}, errors.Wrap(err, "request foreground permission")
	}
	if st != location.PermissionGranted {
		return models.Coordinates{}, apperr.PermissionDenied(apperr.PermissionForeground, MsgLocationDenied)
	}
	pos, err := f.provider.CurrentPosition(ctx, location.AccuracyBalanced)
	if err != nil {
		return models.Coordinates{}, errors.Wrap(err, "current position")
	}
	return pos, nil
}

// uploadPhotos uploads all photos concurrently; the first failure cancels
// the rest and fails the batch. Paths keep the order of photos.
func (f *Flow) uploadPhotos(ctx context.Context, photos []photo) ([]string, error) {
	paths := make([]string, len(photos))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range photos {
		i, p := i, p
		g.Go(func() error {
			path, err := f.uploadOne(gctx, p.ordinal, p.path)
			if err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (f *Flow) uploadOne(ctx context.Context, ordinal int, path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() || fi.Size() <= 0 {
		return "", apperr.FileInvalid(ordinal, err)
	}
	file, err := os.Open(path)
	if err != nil {
		return "", apperr.FileInvalid(ordinal, err)
	}
	defer file.Close()

	name := filepath.Base(path)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = fmt.Sprintf("delivery-%d-%d.jpg", time.Now().UnixMilli(), ordinal)
	}
	return f.backend.UploadDeliveryPhoto(ctx, name, file)
}

// teardown stops the background task if it runs, then clears the marker.
func (f *Flow) teardown(ctx context.Context) error {
	running, err := f.updates.HasStarted(ctx, location.TaskName)
	if err != nil {
		return err
	}
	if running {
		if err := f.updates.Stop(ctx, location.TaskName); err != nil {
			return err
		}
	}
	return f.marker.Release(ctx)
}

// photo keeps its 1-based position from the request.
type photo struct {
	path    string
	ordinal int
}

func dedupe(photos []string) []photo {
	seen := make(map[string]struct{}, len(photos))
	out := make([]photo, 0, len(photos))
	for i, p := range photos {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, photo{path: p, ordinal: i + 1})
	}
	return out
}
