package pgjournal

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS location_reports (
  id BIGSERIAL PRIMARY KEY,
  shipment_id BIGINT NOT NULL,
  latitude DOUBLE PRECISION NOT NULL,
  longitude DOUBLE PRECISION NOT NULL,
  reported_at TIMESTAMPTZ NOT NULL,
  error TEXT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_location_reports_shipment_reported_at ON location_reports(shipment_id, reported_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS delivery_completions (
  id BIGSERIAL PRIMARY KEY,
  shipment_id BIGINT NOT NULL,
  receiver_name TEXT NOT NULL,
  received_at TIMESTAMPTZ NOT NULL,
  note TEXT NOT NULL DEFAULT '',
  photo_paths JSONB NOT NULL DEFAULT '[]'::jsonb,
  latitude DOUBLE PRECISION NOT NULL,
  longitude DOUBLE PRECISION NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_completions_shipment ON delivery_completions(shipment_id)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
