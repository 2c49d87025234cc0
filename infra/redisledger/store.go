// Package redisledger backs the ledger with Redis: balances live under
// "<user>:balance" as floats, positions under "<user>:<symbol>" as
// integers, and the optimistic check-and-mutate primitive maps onto
// WATCH / MULTI / EXEC.
package redisledger

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"helios/ledger"
)

// Store implements ledger.Store on a Redis client.
type Store struct {
	client *redis.Client
	log    *zap.Logger
}

// New wraps an already-connected client.
func New(client *redis.Client, log *zap.Logger) *Store {
	return &Store{client: client, log: log}
}

// Exists implements ledger.Store.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Apply implements ledger.Store. The changes ride one MULTI/EXEC so a
// multi-key credit lands atomically, but nothing is watched: credits
// need no bound check.
func (s *Store) Apply(ctx context.Context, changes ...ledger.Change) error {
	pipe := s.client.TxPipeline()
	queue(ctx, pipe, changes)
	_, err := pipe.Exec(ctx)
	return err
}

// Update implements ledger.Store: WATCH key, read inside the
// transaction, queue the attempt's changes under MULTI, and EXEC. A
// concurrent write to key fails the EXEC and the attempt reruns from a
// fresh read, up to ledger.MaxAttempts.
func (s *Store) Update(ctx context.Context, key string, attempt ledger.AttemptFunc) error {
	for i := 0; i < ledger.MaxAttempts; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			changes, err := attempt(ctx, txReader{tx})
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				queue(ctx, pipe, changes)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.log.Debug("retrying after write conflict", zap.String("key", key))
			continue
		}
		return err
	}
	return ledger.ErrContention
}

func queue(ctx context.Context, pipe redis.Pipeliner, changes []ledger.Change) {
	for _, ch := range changes {
		if ch.IsFloat {
			pipe.IncrByFloat(ctx, ch.Key, ch.ByFloat)
		} else {
			pipe.IncrBy(ctx, ch.Key, ch.ByInt)
		}
	}
}

// txReader reads through the watched connection so every value a bound
// check sees belongs to the current attempt.
type txReader struct{ tx *redis.Tx }

func (r txReader) Float(ctx context.Context, key string) (float64, bool, error) {
	v, err := r.tx.Get(ctx, key).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (r txReader) Int(ctx context.Context, key string) (int64, bool, error) {
	v, err := r.tx.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
