package redisstate

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/BearBump/RekaTrack/internal/integrations/location"
	"github.com/pkg/errors"
)

// TasksKey is a hash task name -> start options of running background tasks.
const TasksKey = "background-tasks"

func (s *Store) SaveTask(ctx context.Context, name string, opts location.UpdateOptions) error {
	b, err := json.Marshal(opts)
	if err != nil {
		return errors.Wrap(err, "marshal task options")
	}
	return errors.Wrap(s.c.HSet(ctx, s.key(TasksKey), name, b).Err(), "redis hset task")
}

func (s *Store) DeleteTask(ctx context.Context, name string) error {
	return errors.Wrap(s.c.HDel(ctx, s.key(TasksKey), name).Err(), "redis hdel task")
}

// LoadTasks skips entries that no longer decode.
func (s *Store) LoadTasks(ctx context.Context) (map[string]location.UpdateOptions, error) {
	raw, err := s.c.HGetAll(ctx, s.key(TasksKey)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis hgetall tasks")
	}
	out := make(map[string]location.UpdateOptions, len(raw))
	for name, v := range raw {
		var opts location.UpdateOptions
		if err := json.Unmarshal([]byte(v), &opts); err != nil {
			slog.Warn("skip broken task entry", "task", name, "error", err.Error())
			continue
		}
		out[name] = opts
	}
	return out, nil
}
