// Package redisdb keeps the session slots in Redis, namespaced by a key prefix.
package redisdb

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/patric-chuzhbe/sanasto/internal/db/storage"
)

var (
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not answer ping")
)

// Config describes how to reach Redis.
type Config struct {
	ConnectionURL  string
	KeyPrefix      string
	RetryAttempts  int
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
}

// RedisDB is a key-value store backed by plain Redis strings.
type RedisDB struct {
	client    redis.UniversalClient
	keyPrefix string
}

// Connect dials Redis, retrying RetryAttempts times with RetryInterval between tries.
func Connect(ctx context.Context, cfg Config) (*RedisDB, error) {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	redisConnOpt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	for range max(cfg.RetryAttempts, 1) {
		redisClient := redis.NewClient(redisConnOpt)

		if err := redisClient.Ping(ctx).Err(); err == nil {
			return New(redisClient, cfg.KeyPrefix), nil
		}

		_ = redisClient.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, ErrRedisNotReady
}

// New wraps an existing client.
func New(client redis.UniversalClient, keyPrefix string) *RedisDB {
	return &RedisDB{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (db *RedisDB) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, storage.ErrEmptyKey
	}

	value, err := db.client.Get(ctx, db.keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}

	return value, true, nil
}

// Set stores value without expiry: a session lasts until logout.
func (db *RedisDB) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	return db.client.Set(ctx, db.keyPrefix+key, value, 0).Err()
}

func (db *RedisDB) Remove(ctx context.Context, key string) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	return db.client.Del(ctx, db.keyPrefix+key).Err()
}

func (db *RedisDB) Ping(ctx context.Context) error {
	return db.client.Ping(ctx).Err()
}

func (db *RedisDB) Close() error {
	return db.client.Close()
}
