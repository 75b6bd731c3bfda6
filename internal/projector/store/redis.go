package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const redisCheckpointKeyPrefix = "projection:checkpoint:"

// Redis keeps the checkpoint in a hash with cursor and snapshot fields.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis constructs a Redis checkpoint store for the named projection.
func NewRedis(client *redis.Client, name string) *Redis {
	return &Redis{client: client, key: redisCheckpointKeyPrefix + name}
}

func (s *Redis) Load(ctx context.Context) (*Checkpoint, error) {
	fields, err := s.client.HMGet(ctx, s.key, "cursor", "snapshot").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	rawCursor, ok := fields[0].(string)
	if !ok {
		return nil, ErrNotFound
	}
	snapshot, ok := fields[1].(string)
	if !ok {
		return nil, ErrNotFound
	}
	cursor, err := strconv.ParseUint(rawCursor, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode checkpoint cursor: %w", err)
	}
	return &Checkpoint{Cursor: cursor, Snapshot: []byte(snapshot)}, nil
}

func (s *Redis) Save(ctx context.Context, cp Checkpoint) error {
	err := s.client.HSet(ctx, s.key,
		"cursor", strconv.FormatUint(cp.Cursor, 10),
		"snapshot", cp.Snapshot,
	).Err()
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *Redis) Invalidate(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("invalidate checkpoint: %w", err)
	}
	return nil
}

var _ Store = (*Redis)(nil)
