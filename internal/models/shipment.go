package models

import "time"

// Статусы travel document, как их отдаёт бэкенд.
const (
	ShipmentStatusDelivered = "Terkirim"
	ShipmentStatusInTransit = "Sedang dikirim"
)

// Статусы для отображения курьеру.
const (
	DisplayStatusDelivered = "Terkirim"
	DisplayStatusActive    = "Aktif"
	DisplayStatusInactive  = "Belum Aktif"
)

// Shipment is the travel document as served by GET /travel-document/{id}.
type Shipment struct {
	ID                   int64  `json:"id"`
	NoTravelDocument     string `json:"no_travel_document"`
	SendTo               string `json:"send_to"`
	Status               string `json:"status"`
	Project              string `json:"project,omitempty"`
	DateNoTravelDocument string `json:"date_no_travel_document,omitempty"`
	PONumber             string `json:"po_number,omitempty"`
	ReferenceNumber      string `json:"reference_number,omitempty"`
}

// ShipmentView is what the scan screen shows for a shipment.
type ShipmentView struct {
	Shipment      Shipment
	DisplayStatus string
	TracerActive  bool
}

type Completion struct {
	ShipmentID   int64
	ReceiverName string
	ReceivedAt   time.Time
	Note         string
	PhotoPaths   []string
	Position     Coordinates
	CreatedAt    time.Time
}
