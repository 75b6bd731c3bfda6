package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	ledger "credpass/internal/ledger/models"
)

const (
	redisIntentKeyPrefix = "issuance:intent:"
	redisPendingKey      = "issuance:pending"
)

// Redis stores each intent as JSON under issuance:intent:<requestId>. The
// claim is a SETNX, so concurrent bridges on different hosts agree on one
// winner. Unsettled request ids are tracked in a set.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedis constructs a Redis-backed intent store.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

func intentKey(requestID ledger.RequestID) string {
	return redisIntentKeyPrefix + requestID.String()
}

func (s *Redis) Claim(ctx context.Context, intent Intent) (bool, error) {
	data, err := json.Marshal(intent)
	if err != nil {
		return false, fmt.Errorf("encode intent: %w", err)
	}
	won, err := s.client.SetNX(ctx, intentKey(intent.RequestID), data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("claim intent: %w", err)
	}
	if won {
		if err := s.client.SAdd(ctx, redisPendingKey, intent.RequestID.String()).Err(); err != nil {
			return true, fmt.Errorf("track pending intent: %w", err)
		}
	}
	return won, nil
}

func (s *Redis) Get(ctx context.Context, requestID ledger.RequestID) (*Intent, error) {
	data, err := s.client.Get(ctx, intentKey(requestID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get intent: %w", err)
	}
	var intent Intent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}
	return &intent, nil
}

func (s *Redis) MarkSubmitted(ctx context.Context, requestID ledger.RequestID, tx common.Hash) error {
	return s.update(ctx, requestID, func(intent *Intent) {
		intent.State = StateSubmitted
		intent.TxHash = &tx
	})
}

func (s *Redis) MarkSettled(ctx context.Context, requestID ledger.RequestID, tokenID ledger.TokenID) error {
	if err := s.update(ctx, requestID, func(intent *Intent) {
		intent.State = StateSettled
		intent.TokenID = &tokenID
	}); err != nil {
		return err
	}
	if err := s.client.SRem(ctx, redisPendingKey, requestID.String()).Err(); err != nil {
		return fmt.Errorf("untrack settled intent: %w", err)
	}
	return nil
}

func (s *Redis) MarkFailed(ctx context.Context, requestID ledger.RequestID, reason string) error {
	return s.update(ctx, requestID, func(intent *Intent) {
		intent.State = StateFailed
		intent.LastError = reason
	})
}

// update rewrites an existing intent. SET XX keeps a concurrent Release from
// being undone.
func (s *Redis) update(ctx context.Context, requestID ledger.RequestID, fn func(*Intent)) error {
	intent, err := s.Get(ctx, requestID)
	if err != nil {
		return err
	}
	fn(intent)
	intent.UpdatedAt = s.now()
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	ok, err := s.client.SetXX(ctx, intentKey(requestID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("update intent: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Redis) Release(ctx context.Context, requestID ledger.RequestID) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, intentKey(requestID))
	pipe.SRem(ctx, redisPendingKey, requestID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("release intent: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Redis) Pending(ctx context.Context) ([]Intent, error) {
	ids, err := s.client.SMembers(ctx, redisPendingKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending intents: %w", err)
	}
	out := make([]Intent, 0, len(ids))
	for _, raw := range ids {
		id, err := ledger.ParseRequestID(raw)
		if err != nil {
			continue
		}
		intent, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if intent.State != StateSettled {
			out = append(out, *intent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	return out, nil
}

var _ Store = (*Redis)(nil)
