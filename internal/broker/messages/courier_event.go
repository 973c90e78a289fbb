package messages

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTracerActivated   = "tracer.activated"
	EventTracerRolledBack  = "tracer.rolled_back"
	EventLocationReported  = "location.reported"
	EventDeliveryCompleted = "delivery.completed"
)

type CourierEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ShipmentID int64     `json:"shipment_id"`
	At         time.Time `json:"at"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	ReceiverName string   `json:"receiver_name,omitempty"`
	PhotoPaths   []string `json:"photo_paths,omitempty"`

	Reason string `json:"reason,omitempty"`
}

func NewCourierEvent(typ string, shipmentID int64) CourierEvent {
	return CourierEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		ShipmentID: shipmentID,
		At:         time.Now().UTC(),
	}
}

func (e CourierEvent) WithPosition(lat, lon float64) CourierEvent {
	e.Latitude, e.Longitude = &lat, &lon
	return e
}
