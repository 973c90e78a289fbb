package shipments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/RekaTrack/internal/apperr"
	"github.com/BearBump/RekaTrack/internal/cache"
	"github.com/BearBump/RekaTrack/internal/models"
)

const (
	CodePrefix = "SJNID:"

	MsgInvalidScan = "Data scan tidak valid"
	MsgInvalidCode = "Format code tidak valid"
)

type Client interface {
	GetTravelDocument(ctx context.Context, id int64) (models.Shipment, error)
}

type Service struct {
	client    Client
	cache     cache.BytesCache
	detailTTL time.Duration
}

// New: c may be nil, a non-positive ttl disables caching.
func New(client Client, c cache.BytesCache, detailTTL time.Duration) *Service {
	return &Service{client: client, cache: c, detailTTL: detailTTL}
}

// ResolveCode extracts the shipment id from a scanned "SJNID:<id>" code.
// Like parseInt, trailing garbage after the digits is ignored.
func ResolveCode(code string) (int64, error) {
	if !strings.HasPrefix(code, CodePrefix) {
		return 0, apperr.Validation("code", MsgInvalidScan)
	}
	rest := strings.TrimLeft(code[len(CodePrefix):], " \t")

	end := 0
	if end < len(rest) && (rest[end] == '+' || rest[end] == '-') {
		end++
	}
	digits := end
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, apperr.Validation("code", MsgInvalidCode)
	}
	id, err := strconv.ParseInt(rest[:end], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("code", MsgInvalidCode)
	}
	return id, nil
}

// DisplayStatus maps a backend status to what the courier sees and whether
// the tracer is already running for it.
func DisplayStatus(status string) (string, bool) {
	switch status {
	case models.ShipmentStatusDelivered:
		return models.DisplayStatusDelivered, false
	case models.ShipmentStatusInTransit:
		return models.DisplayStatusActive, true
	default:
		return models.DisplayStatusInactive, false
	}
}

// Detail fetches the travel document. refresh skips the cached copy.
func (s *Service) Detail(ctx context.Context, id int64, refresh bool) (models.Shipment, error) {
	caching := s.cache != nil && s.detailTTL > 0
	key := detailKey(id)

	if caching && !refresh {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var sh models.Shipment
			if json.Unmarshal(b, &sh) == nil {
				return sh, nil
			}
		} else if err != nil {
			slog.Warn("detail cache get", "shipment_id", id, "error", err.Error())
		}
	}

	sh, err := s.client.GetTravelDocument(ctx, id)
	if err != nil {
		return models.Shipment{}, err
	}

	if caching {
		b, _ := json.Marshal(sh)
		if err := s.cache.Set(ctx, key, b, s.detailTTL); err != nil {
			slog.Warn("detail cache set", "shipment_id", id, "error", err.Error())
		}
	}
	return sh, nil
}

// Scan resolves a code and loads the shipment view.
func (s *Service) Scan(ctx context.Context, code string, refresh bool) (models.ShipmentView, error) {
	id, err := ResolveCode(code)
	if err != nil {
		return models.ShipmentView{}, err
	}
	sh, err := s.Detail(ctx, id, refresh)
	if err != nil {
		return models.ShipmentView{}, err
	}
	display, active := DisplayStatus(sh.Status)
	return models.ShipmentView{Shipment: sh, DisplayStatus: display, TracerActive: active}, nil
}

func detailKey(id int64) string {
	return fmt.Sprintf("travel-document:%d", id)
}
