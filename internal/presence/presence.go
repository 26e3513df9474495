// Package presence implements the Presence Store (C2): a keyed key-value
// store with hashes and sets, grounded on internal/middleware/ratelimit.go's
// go-redis usage and original_source/src/proxy.rs's SADD/SREM bookkeeping on
// the "usuarios_online" set.
package presence

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Store is the C2 Presence Store. Required operations per spec.md §4.2:
// hset, hset_multi, hget, hgetall, del, sadd, srem, smembers, keys(pattern).
type Store struct {
	rdb *redis.Client
}

// New wraps an already-connected *redis.Client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// HSet sets one field of a hash key.
func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	return s.rdb.HSet(ctx, key, field, value).Err()
}

// HSetMulti sets several fields of a hash key atomically (single HSET call).
func (s *Store) HSetMulti(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return s.rdb.HSet(ctx, key, args...).Err()
}

// HGet reads one field of a hash key.
func (s *Store) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := s.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

// HGetAll reads every field of a hash key.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, key).Result()
}

// Del deletes one or more keys.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// SAdd adds a member to a set.
func (s *Store) SAdd(ctx context.Context, key, member string) error {
	return s.rdb.SAdd(ctx, key, member).Err()
}

// SRem removes a member from a set.
func (s *Store) SRem(ctx context.Context, key, member string) error {
	return s.rdb.SRem(ctx, key, member).Err()
}

// SMembers lists every member of a set.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.rdb.SMembers(ctx, key).Result()
}

// Keys lists every key matching pattern.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.rdb.Keys(ctx, pattern).Result()
}
