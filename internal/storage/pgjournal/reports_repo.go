package pgjournal

import (
	"context"
	"time"

	"github.com/BearBump/RekaTrack/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) RecordLocationReport(ctx context.Context, r models.LocationReport) error {
	reportedAt := r.ReportedAt
	if reportedAt.IsZero() {
		reportedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO location_reports (shipment_id, latitude, longitude, reported_at, error)
VALUES ($1,$2,$3,$4,$5)
`, r.ShipmentID, r.Position.Latitude, r.Position.Longitude, reportedAt.UTC(), r.Error)
	return errors.Wrap(err, "insert location report")
}

func (s *Storage) ListLocationReports(ctx context.Context, shipmentID int64, limit, offset int) ([]*models.LocationReport, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, shipment_id, latitude, longitude, reported_at, error
FROM location_reports
WHERE shipment_id = $1
ORDER BY reported_at DESC
LIMIT $2 OFFSET $3
`, shipmentID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select location reports")
	}
	defer rows.Close()

	var out []*models.LocationReport
	for rows.Next() {
		var r models.LocationReport
		var reportErr *string
		if err := rows.Scan(
			&r.ID, &r.ShipmentID, &r.Position.Latitude, &r.Position.Longitude, &r.ReportedAt, &reportErr,
		); err != nil {
			return nil, errors.Wrap(err, "scan location report")
		}
		r.Error = reportErr
		out = append(out, &r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
