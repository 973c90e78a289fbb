package pgjournal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/RekaTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) RecordCompletion(ctx context.Context, c models.Completion) error {
	paths := c.PhotoPaths
	if paths == nil {
		paths = []string{}
	}
	b, err := json.Marshal(paths)
	if err != nil {
		return errors.Wrap(err, "marshal photo paths")
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.Exec(ctx, `
INSERT INTO delivery_completions (
  shipment_id, receiver_name, received_at, note, photo_paths, latitude, longitude, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, c.ShipmentID, c.ReceiverName, c.ReceivedAt.UTC(), c.Note, string(b),
		c.Position.Latitude, c.Position.Longitude, createdAt.UTC())
	return errors.Wrap(err, "insert delivery completion")
}

// LastCompletion returns the newest completion for a shipment, if any.
func (s *Storage) LastCompletion(ctx context.Context, shipmentID int64) (*models.Completion, error) {
	var c models.Completion
	var paths []byte
	err := s.db.QueryRow(ctx, `
SELECT shipment_id, receiver_name, received_at, note, photo_paths, latitude, longitude, created_at
FROM delivery_completions
WHERE shipment_id = $1
ORDER BY created_at DESC, id DESC
LIMIT 1
`, shipmentID).Scan(
		&c.ShipmentID, &c.ReceiverName, &c.ReceivedAt, &c.Note, &paths,
		&c.Position.Latitude, &c.Position.Longitude, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select delivery completion")
	}
	if err := json.Unmarshal(paths, &c.PhotoPaths); err != nil {
		return nil, errors.Wrap(err, "unmarshal photo paths")
	}
	return &c, nil
}
