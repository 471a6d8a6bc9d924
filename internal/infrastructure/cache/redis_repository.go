package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/repository"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKey = "isinflow:records:snapshot"

// RedisRepository implements the SnapshotCache interface using Redis as the backend.
// It keeps the last known-good canonical collection so a restart can serve it
// before the first refresh completes.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(addr, password string, db int, ttl time.Duration) *RedisRepository {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisRepository{client: client, ttl: ttl}
}

// Ensure RedisRepository implements the SnapshotCache interface
var _ repository.SnapshotCache = (*RedisRepository)(nil)

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// SnapshotCache interface implementation
func (r *RedisRepository) SaveSnapshot(ctx context.Context, records []model.BondRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return r.client.Set(ctx, snapshotKey, data, r.ttl).Err()
}

// LoadSnapshot returns nil without error when no snapshot is stored.
func (r *RedisRepository) LoadSnapshot(ctx context.Context) ([]model.BondRecord, error) {
	data, err := r.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var records []model.BondRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return records, nil
}
