package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "gymhrv||"

// RedisStore keeps one redis hash per collection; a record is one field.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{
		rdb: rdb,
	}
}

func collectionKey(collection string) string {
	return redisKeyPrefix + collection
}

func (s *RedisStore) Get(ctx context.Context, collection, key string) (*Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	data, err := s.rdb.HGet(ctx, collectionKey(collection), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis hget %s/%s: %w", collection, key, err)
	}
	return &Record{Key: key, Data: data}, nil
}

func (s *RedisStore) GetAll(ctx context.Context, collection string) ([]Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	fields, err := s.rdb.HGetAll(ctx, collectionKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", collection, err)
	}

	records := make([]Record, 0, len(fields))
	for key, data := range fields {
		records = append(records, Record{Key: key, Data: []byte(data)})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})
	return records, nil
}

func (s *RedisStore) Put(ctx context.Context, collection string, record Record) (string, error) {
	if err := validateCollection(collection); err != nil {
		return "", err
	}

	key := record.Key
	if key == "" {
		key = newKey()
	}

	if err := s.rdb.HSet(ctx, collectionKey(collection), key, []byte(record.Data)).Err(); err != nil {
		return "", fmt.Errorf("redis hset %s/%s: %w", collection, key, err)
	}
	return key, nil
}

func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}

	removed, err := s.rdb.HDel(ctx, collectionKey(collection), key).Result()
	if err != nil {
		return fmt.Errorf("redis hdel %s/%s: %w", collection, key, err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}
