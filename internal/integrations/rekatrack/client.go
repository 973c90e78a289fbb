// Package rekatrack is the typed surface of the RekaTrack backend endpoints
// the courier app consumes.
package rekatrack

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BearBump/RekaTrack/internal/apiclient"
	"github.com/BearBump/RekaTrack/internal/apperr"
	"github.com/BearBump/RekaTrack/internal/models"
)

const (
	pathTravelDocument = "/travel-document/%d"
	pathSendLocation   = "/send-location"
	pathUploadPhoto    = "/upload-delivery-photo"
	pathComplete       = "/complete-tracking"

	photoField       = "photo"
	photoContentType = "image/jpeg"
)

// ISOTimeLayout matches JavaScript's Date.toISOString.
const ISOTimeLayout = "2006-01-02T15:04:05.000Z07:00"

type Doer interface {
	Do(ctx context.Context, req apiclient.Request) (apiclient.Body, error)
}

type Client struct {
	api Doer
}

func New(api Doer) *Client {
	return &Client{api: api}
}

type SendLocationRequest struct {
	TravelDocumentID []int64 `json:"travel_document_id"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
}

type CompleteTrackingRequest struct {
	TravelDocumentID []int64  `json:"travel_document_id"`
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	ReceiverName     string   `json:"receiver_name"`
	ReceivedAt       string   `json:"received_at"`
	Note             string   `json:"note"`
	PhotoPath        string   `json:"photo_path"`
	PhotoPaths       []string `json:"photo_paths"`
}

// NewCompleteTrackingRequest builds the completion record; photo_path
// duplicates the first path for older backends.
func NewCompleteTrackingRequest(c models.Completion) CompleteTrackingRequest {
	first := ""
	if len(c.PhotoPaths) > 0 {
		first = c.PhotoPaths[0]
	}
	return CompleteTrackingRequest{
		TravelDocumentID: []int64{c.ShipmentID},
		Latitude:         c.Position.Latitude,
		Longitude:        c.Position.Longitude,
		ReceiverName:     c.ReceiverName,
		ReceivedAt:       FormatISO(c.ReceivedAt),
		Note:             c.Note,
		PhotoPath:        first,
		PhotoPaths:       c.PhotoPaths,
	}
}

func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOTimeLayout)
}

func (c *Client) GetTravelDocument(ctx context.Context, id int64) (models.Shipment, error) {
	body, err := c.api.Do(ctx, apiclient.Request{
		Method:   http.MethodGet,
		Endpoint: fmt.Sprintf(pathTravelDocument, id),
	})
	if err != nil {
		return models.Shipment{}, err
	}

	var resp struct {
		Data *models.Shipment `json:"data"`
	}
	if !body.IsJSON() || body.Decode(&resp) != nil || resp.Data == nil {
		return models.Shipment{}, apperr.Server(http.StatusOK, "Gagal memuat detail pengiriman", body.Value())
	}
	return *resp.Data, nil
}

func (c *Client) SendLocation(ctx context.Context, id int64, pos models.Coordinates) error {
	_, err := c.api.Do(ctx, apiclient.Request{
		Method:   http.MethodPost,
		Endpoint: pathSendLocation,
		Body: apiclient.JSONBody{Value: SendLocationRequest{
			TravelDocumentID: []int64{id},
			Latitude:         pos.Latitude,
			Longitude:        pos.Longitude,
		}},
	})
	return err
}

// UploadDeliveryPhoto returns the server-assigned photo path.
func (c *Client) UploadDeliveryPhoto(ctx context.Context, fileName string, content io.Reader) (string, error) {
	body, err := c.api.Do(ctx, apiclient.Request{
		Method:   http.MethodPost,
		Endpoint: pathUploadPhoto,
		Body: apiclient.MultipartBody{Files: []apiclient.MultipartFile{{
			Field:       photoField,
			FileName:    fileName,
			ContentType: photoContentType,
			Content:     content,
		}}},
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		PhotoPath string `json:"photo_path"`
	}
	if !body.IsJSON() || body.Decode(&resp) != nil || resp.PhotoPath == "" {
		return "", apperr.Server(http.StatusOK, "Response upload tidak mengandung photo_path", body.Value())
	}
	return resp.PhotoPath, nil
}

func (c *Client) CompleteTracking(ctx context.Context, req CompleteTrackingRequest) error {
	_, err := c.api.Do(ctx, apiclient.Request{
		Method:   http.MethodPost,
		Endpoint: pathComplete,
		Body:     apiclient.JSONBody{Value: req},
	})
	return err
}
