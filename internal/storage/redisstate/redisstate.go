// Package redisstate keeps the courier's small persisted state in Redis:
// the session token and the active-tracking marker.
package redisstate

import (
	"context"
	"strconv"

	"github.com/BearBump/RekaTrack/internal/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	TokenKey  = "token"
	MarkerKey = "ACTIVE_SJN_ID"
)

// ErrMarkerOccupied is returned by Claim when another shipment holds the slot.
var ErrMarkerOccupied = errors.New("another shipment is already being tracked")

type Store struct {
	c      *redis.Client
	prefix string
}

func New(addr, prefix string) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr}), prefix)
}

func NewWithClient(c *redis.Client, prefix string) *Store {
	return &Store{c: c, prefix: prefix}
}

func (s *Store) Close() error {
	return s.c.Close()
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Token returns "" when no session token is stored.
func (s *Store) Token(ctx context.Context) (string, error) {
	v, err := s.c.Get(ctx, s.key(TokenKey)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "redis get token")
	}
	return v, nil
}

func (s *Store) SetToken(ctx context.Context, token string) error {
	return errors.Wrap(s.c.Set(ctx, s.key(TokenKey), token, 0).Err(), "redis set token")
}

func (s *Store) ClearToken(ctx context.Context) error {
	return errors.Wrap(s.c.Del(ctx, s.key(TokenKey)).Err(), "redis del token")
}

// Current returns the marker and whether the slot is occupied.
func (s *Store) Current(ctx context.Context) (models.Marker, bool, error) {
	v, err := s.c.Get(ctx, s.key(MarkerKey)).Result()
	if err == redis.Nil {
		return models.Marker{}, false, nil
	}
	if err != nil {
		return models.Marker{}, false, errors.Wrap(err, "redis get marker")
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return models.Marker{}, false, errors.Wrapf(err, "parse marker %q", v)
	}
	return models.Marker{ShipmentID: id}, true, nil
}

// Claim occupies the slot for id. claimed is true only when this call set
// the key; a slot already held by the same id is reported as (false, nil),
// a different id gets ErrMarkerOccupied.
func (s *Store) Claim(ctx context.Context, id int64) (claimed bool, err error) {
	val := strconv.FormatInt(id, 10)
	ok, err := s.c.SetNX(ctx, s.key(MarkerKey), val, 0).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis setnx marker")
	}
	if ok {
		return true, nil
	}

	cur, held, err := s.Current(ctx)
	if err != nil {
		return false, err
	}
	if held && cur.ShipmentID == id {
		return false, nil
	}
	if !held {
		// слот освободили между SETNX и GET, пробуем ещё раз
		return s.Claim(ctx, id)
	}
	return false, errors.Wrapf(ErrMarkerOccupied, "shipment %d", cur.ShipmentID)
}

func (s *Store) Release(ctx context.Context) error {
	return errors.Wrap(s.c.Del(ctx, s.key(MarkerKey)).Err(), "redis del marker")
}
