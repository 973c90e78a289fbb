package messages

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
)

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Publisher отправляет события курьера; ошибки только логируются,
// на исход сценария они не влияют. Nil-publisher ничего не делает.
type Publisher struct {
	producer Producer
	topic    string
}

func NewPublisher(p Producer, topic string) *Publisher {
	if topic == "" {
		topic = "courier.events"
	}
	return &Publisher{producer: p, topic: topic}
}

func (p *Publisher) Publish(ctx context.Context, ev CourierEvent) {
	if p == nil || p.producer == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal courier event", "type", ev.Type, "error", err.Error())
		return
	}
	key := []byte(strconv.FormatInt(ev.ShipmentID, 10))
	if err := p.producer.Publish(ctx, p.topic, key, b); err != nil {
		slog.Warn("publish courier event", "type", ev.Type, "shipment_id", ev.ShipmentID, "error", err.Error())
	}
}
