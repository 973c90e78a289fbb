package rekatrack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/RekaTrack/internal/apiclient"
	"github.com/BearBump/RekaTrack/internal/apperr"
	"github.com/BearBump/RekaTrack/internal/models"
	"github.com/stretchr/testify/require"
)

func TestClient_GetTravelDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/travel-document/123":
			_, _ = w.Write([]byte(`{"data":{"id":123,"no_travel_document":"SJN/001","send_to":"Surabaya","status":"Sedang dikirim","project":"LRT"}}`))
		default:
			_, _ = w.Write([]byte(`{"message":"ok"}`))
		}
	}))
	defer srv.Close()

	c := New(apiclient.New(srv.URL, nil))
	sh, err := c.GetTravelDocument(context.Background(), 123)
	require.NoError(t, err)
	require.Equal(t, int64(123), sh.ID)
	require.Equal(t, "SJN/001", sh.NoTravelDocument)
	require.Equal(t, models.ShipmentStatusInTransit, sh.Status)
	require.Equal(t, "LRT", sh.Project)

	_, err = c.GetTravelDocument(context.Background(), 9)
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindServer, e.Kind)
	require.Equal(t, "Gagal memuat detail pengiriman", e.Message)
}

func TestClient_SendLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/send-location", r.URL.Path)
		var in SendLocationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Equal(t, []int64{5}, in.TravelDocumentID)
		require.Equal(t, -7.25, in.Latitude)
		require.Equal(t, 112.75, in.Longitude)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(apiclient.New(srv.URL, nil))
	require.NoError(t, c.SendLocation(context.Background(), 5, models.Coordinates{Latitude: -7.25, Longitude: 112.75}))
}

func TestClient_UploadDeliveryPhoto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, fh, err := r.FormFile("photo")
		require.NoError(t, err)
		b, _ := io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		if string(b) == "empty-response" {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{"photo_path":"/uploads/` + fh.Filename + `"}`))
	}))
	defer srv.Close()

	c := New(apiclient.New(srv.URL, nil))
	p, err := c.UploadDeliveryPhoto(context.Background(), "a.jpg", strings.NewReader("jpeg"))
	require.NoError(t, err)
	require.Equal(t, "/uploads/a.jpg", p)

	_, err = c.UploadDeliveryPhoto(context.Background(), "b.jpg", strings.NewReader("empty-response"))
	require.True(t, apperr.Is(err, apperr.KindServer))
	require.Contains(t, apperr.UserMessage(err, ""), "photo_path")
}

func TestNewCompleteTrackingRequest(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 8_000_000, time.FixedZone("WIB", 7*3600))
	req := NewCompleteTrackingRequest(models.Completion{
		ShipmentID:   123,
		ReceiverName: "Budi",
		ReceivedAt:   at,
		Note:         "",
		PhotoPaths:   []string{"/uploads/a.jpg"},
		Position:     models.Coordinates{Latitude: 1, Longitude: 2},
	})

	b, err := json.Marshal(req)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	require.Equal(t, []any{float64(123)}, m["travel_document_id"])
	require.Equal(t, "/uploads/a.jpg", m["photo_path"])
	require.Equal(t, []any{"/uploads/a.jpg"}, m["photo_paths"])
	require.Equal(t, "2025-03-03T22:06:07.008Z", m["received_at"])
	require.Equal(t, "", m["note"])
	require.Equal(t, "Budi", m["receiver_name"])
}
