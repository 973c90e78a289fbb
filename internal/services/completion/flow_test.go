package completion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/RekaTrack/internal/apiclient"
	"github.com/BearBump/RekaTrack/internal/apperr"
	"github.com/BearBump/RekaTrack/internal/broker/messages"
	"github.com/BearBump/RekaTrack/internal/integrations/location"
	"github.com/BearBump/RekaTrack/internal/integrations/location/fake"
	"github.com/BearBump/RekaTrack/internal/integrations/rekatrack"
	"github.com/BearBump/RekaTrack/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) UploadDeliveryPhoto(ctx context.Context, fileName string, content io.Reader) (string, error) {
	args := m.Called(ctx, fileName)
	return args.String(0), args.Error(1)
}

func (m *mockBackend) CompleteTracking(ctx context.Context, req rekatrack.CompleteTrackingRequest) error {
	return m.Called(ctx, req).Error(0)
}

type mockUpdates struct {
	mock.Mock
}

func (m *mockUpdates) HasStarted(ctx context.Context, task string) (bool, error) {
	args := m.Called(ctx, task)
	return args.Bool(0), args.Error(1)
}

func (m *mockUpdates) Start(ctx context.Context, task string, opts location.UpdateOptions) error {
	return m.Called(ctx, task, opts).Error(0)
}

func (m *mockUpdates) Stop(ctx context.Context, task string) error {
	return m.Called(ctx, task).Error(0)
}

type memMarker struct {
	mu   sync.Mutex
	held bool
}

func (m *memMarker) Release(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held = false
	return nil
}

func (m *memMarker) isHeld() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

type memJournal struct {
	mu   sync.Mutex
	recs []models.Completion
}

func (j *memJournal) RecordCompletion(ctx context.Context, c models.Completion) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs = append(j.recs, c)
	return nil
}

type recEvents struct {
	mu     sync.Mutex
	events []messages.CourierEvent
}

func (r *recEvents) Publish(ctx context.Context, ev messages.CourierEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func device() *fake.FakeProvider {
	return fake.New(fake.Config{Origin: models.Coordinates{Latitude: -6.2, Longitude: 106.8}})
}

func writePhotos(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var out []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("jpeg:"+n), 0o600))
		out = append(out, p)
	}
	return out
}

func TestComplete_NoPhotos_NoNetwork(t *testing.T) {
	be := &mockBackend{}
	upd := &mockUpdates{}
	f := New(device(), upd, be, &memMarker{held: true})

	_, err := f.Complete(context.Background(), Request{ShipmentID: 1, ReceiverName: "Budi"})
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindValidation, e.Kind)
	require.Equal(t, "photos", e.Field)
	require.Equal(t, MsgPhotoRequired, e.Message)

	be.AssertNotCalled(t, "UploadDeliveryPhoto", mock.Anything, mock.Anything)
	be.AssertNotCalled(t, "CompleteTracking", mock.Anything, mock.Anything)
	require.False(t, f.Loading())
}

func TestComplete_BlankReceiver(t *testing.T) {
	f := New(device(), &mockUpdates{}, &mockBackend{}, &memMarker{})
	_, err := f.Complete(context.Background(), Request{ReceiverName: "   ", Photos: []string{"a.jpg"}})
	require.Equal(t, MsgReceiverRequired, apperr.UserMessage(err, ""))
}

func TestComplete_LocationDenied(t *testing.T) {
	be := &mockBackend{}
	p := fake.New(fake.Config{Foreground: location.PermissionDenied})
	f := New(p, &mockUpdates{}, be, &memMarker{})

	_, err := f.Complete(context.Background(), Request{ShipmentID: 1, ReceiverName: "Budi", Photos: writePhotos(t, "a.jpg")})
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.PermissionForeground, e.Permission)
	require.Equal(t, MsgLocationDenied, e.Message)
	be.AssertNotCalled(t, "UploadDeliveryPhoto", mock.Anything, mock.Anything)
}

func TestComplete_SecondUploadFails_NoSubmitNoTeardown(t *testing.T) {
	photos := writePhotos(t, "a.jpg", "b.jpg", "c.jpg")
	be := &mockBackend{}
	be.On("UploadDeliveryPhoto", mock.Anything, "a.jpg").Return("/uploads/a.jpg", nil).Maybe()
	be.On("UploadDeliveryPhoto", mock.Anything, "b.jpg").Return("", apperr.Server(500, "", nil))
	be.On("UploadDeliveryPhoto", mock.Anything, "c.jpg").Return("/uploads/c.jpg", nil).Maybe()
	upd := &mockUpdates{}
	marker := &memMarker{held: true}

	f := New(device(), upd, be, marker)
	_, err := f.Complete(context.Background(), Request{ShipmentID: 5, ReceiverName: "Budi", Photos: photos})
	require.True(t, apperr.Is(err, apperr.KindServer))

	be.AssertNotCalled(t, "CompleteTracking", mock.Anything, mock.Anything)
	upd.AssertNotCalled(t, "HasStarted", mock.Anything, mock.Anything)
	upd.AssertNotCalled(t, "Stop", mock.Anything, mock.Anything)
	require.True(t, marker.isHeld())
	require.False(t, f.Loading())
}

func TestComplete_ZeroByteFile_OrdinalMessage(t *testing.T) {
	photos := writePhotos(t, "a.jpg")
	empty := filepath.Join(t.TempDir(), "empty.jpg")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	photos = append(photos, empty)

	be := &mockBackend{}
	be.On("UploadDeliveryPhoto", mock.Anything, "a.jpg").Return("/uploads/a.jpg", nil).Maybe()

	f := New(device(), &mockUpdates{}, be, &memMarker{held: true})
	_, err := f.Complete(context.Background(), Request{ShipmentID: 5, ReceiverName: "Budi", Photos: photos})

	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindFileInvalid, e.Kind)
	require.Equal(t, 2, e.Index)
	require.Equal(t, "File foto ke-2 tidak valid. Coba ambil ulang foto.", e.Message)
	be.AssertNotCalled(t, "UploadDeliveryPhoto", mock.Anything, "empty.jpg")
}

func TestComplete_DuplicatePhoto_KeepsRequestOrdinal(t *testing.T) {
	photos := writePhotos(t, "a.jpg")
	empty := filepath.Join(t.TempDir(), "empty.jpg")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	// a.jpg выбрали дважды, битый файл третий по счёту
	photos = []string{photos[0], photos[0], empty}

	be := &mockBackend{}
	be.On("UploadDeliveryPhoto", mock.Anything, "a.jpg").Return("/uploads/a.jpg", nil).Maybe()

	f := New(device(), &mockUpdates{}, be, &memMarker{held: true})
	_, err := f.Complete(context.Background(), Request{ShipmentID: 5, ReceiverName: "Budi", Photos: photos})

	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindFileInvalid, e.Kind)
	require.Equal(t, 3, e.Index)
	require.Contains(t, e.Message, "ke-3")
	be.AssertNotCalled(t, "UploadDeliveryPhoto", mock.Anything, "empty.jpg")
}

func TestDedupe_KeepsFirstOrdinal(t *testing.T) {
	got := dedupe([]string{"a", "b", "a", "c"})
	require.Equal(t, []photo{{path: "a", ordinal: 1}, {path: "b", ordinal: 2}, {path: "c", ordinal: 4}}, got)
}

func TestComplete_HardTimeout(t *testing.T) {
	be := &mockBackend{}
	// upload hangs until the flow gives up on it
	be.On("UploadDeliveryPhoto", mock.Anything, "a.jpg").
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return("", context.DeadlineExceeded)

	f := New(device(), &mockUpdates{}, be, &memMarker{held: true}).WithHardTimeout(50 * time.Millisecond)

	start := time.Now()
	_, err := f.Complete(context.Background(), Request{ShipmentID: 1, ReceiverName: "Budi", Photos: writePhotos(t, "a.jpg")})
	require.Less(t, time.Since(start), 2*time.Second)

	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindTimeout, e.Kind)
	require.Equal(t, 408, e.Status)
	require.Equal(t, MsgTooLong, e.Message)
	require.False(t, f.Loading())
	be.AssertNotCalled(t, "CompleteTracking", mock.Anything, mock.Anything)
}

func TestComplete_ReentrantCallRejected(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	be := &mockBackend{}
	be.On("UploadDeliveryPhoto", mock.Anything, "a.jpg").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return("/uploads/a.jpg", nil).Once()
	be.On("CompleteTracking", mock.Anything, mock.Anything).Return(nil).Once()
	upd := &mockUpdates{}
	upd.On("HasStarted", mock.Anything, location.TaskName).Return(false, nil)

	f := New(device(), upd, be, &memMarker{held: true})
	req := Request{ShipmentID: 1, ReceiverName: "Budi", Photos: writePhotos(t, "a.jpg")}

	first := make(chan error, 1)
	go func() {
		_, err := f.Complete(context.Background(), req)
		first <- err
	}()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("upload not started")
	}
	require.True(t, f.Loading())

	_, err := f.Complete(context.Background(), req)
	require.ErrorIs(t, err, ErrInProgress)

	close(release)
	require.NoError(t, <-first)
	require.False(t, f.Loading())
	be.AssertNumberOfCalls(t, "CompleteTracking", 1)
}

func TestComplete_EndToEnd(t *testing.T) {
	var (
		mu       sync.Mutex
		uploads  []string
		complete rekatrack.CompleteTrackingRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/upload-delivery-photo":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			name := r.MultipartForm.File["photo"][0].Filename
			mu.Lock()
			uploads = append(uploads, name)
			mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]string{"photo_path": "/uploads/" + name})
		case "/complete-tracking":
			mu.Lock()
			err := json.NewDecoder(r.Body).Decode(&complete)
			mu.Unlock()
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"message":"ok"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	upd := &mockUpdates{}
	upd.On("HasStarted", mock.Anything, location.TaskName).Return(true, nil).Once()
	upd.On("Stop", mock.Anything, location.TaskName).Return(nil).Once()
	marker := &memMarker{held: true}
	journal := &memJournal{}
	ev := &recEvents{}

	backend := rekatrack.New(apiclient.New(srv.URL, nil))
	f := New(device(), upd, backend, marker).WithJournal(journal).WithEvents(ev)

	photos := writePhotos(t, "a.jpg", "b.jpg")
	photos = append(photos, photos[0])
	receivedAt := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

	c, err := f.Complete(context.Background(), Request{
		ShipmentID:   123,
		ReceiverName: "Budi",
		ReceivedAt:   receivedAt,
		Note:         "titip satpam",
		Photos:       photos,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"/uploads/a.jpg", "/uploads/b.jpg"}, c.PhotoPaths)

	require.ElementsMatch(t, []string{"a.jpg", "b.jpg"}, uploads)
	require.Equal(t, []int64{123}, complete.TravelDocumentID)
	require.Equal(t, "Budi", complete.ReceiverName)
	require.Equal(t, "2026-05-04T09:30:00.000Z", complete.ReceivedAt)
	require.Equal(t, "titip satpam", complete.Note)
	require.Equal(t, "/uploads/a.jpg", complete.PhotoPath)
	require.Equal(t, []string{"/uploads/a.jpg", "/uploads/b.jpg"}, complete.PhotoPaths)
	require.Equal(t, -6.2, complete.Latitude)

	upd.AssertExpectations(t)
	require.False(t, marker.isHeld())
	require.Len(t, journal.recs, 1)
	require.Len(t, ev.events, 1)
	require.Equal(t, messages.EventDeliveryCompleted, ev.events[0].Type)
}

func TestComplete_TeardownFailureIsReported(t *testing.T) {
	be := &mockBackend{}
	be.On("UploadDeliveryPhoto", mock.Anything, "a.jpg").Return("/uploads/a.jpg", nil)
	be.On("CompleteTracking", mock.Anything, mock.Anything).Return(nil)
	upd := &mockUpdates{}
	upd.On("HasStarted", mock.Anything, location.TaskName).Return(true, nil)
	upd.On("Stop", mock.Anything, location.TaskName).Return(errors.New("agent unreachable"))
	marker := &memMarker{held: true}

	f := New(device(), upd, be, marker)
	_, err := f.Complete(context.Background(), Request{ShipmentID: 1, ReceiverName: "Budi", Photos: writePhotos(t, "a.jpg")})
	require.Error(t, err)
	require.Equal(t, MsgFailed, apperr.UserMessage(err, MsgFailed))
	require.True(t, marker.isHeld())
}
