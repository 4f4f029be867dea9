package currency

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRateStoreKey = "partsearch:currency:rates:v1"

// RedisRateStore keeps the last fetched snapshot so a restart does not fall
// back to the hardcoded table while the feed is unreachable.
type RedisRateStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisRateStore(client redis.UniversalClient, key string) *RedisRateStore {
	if client == nil {
		return nil
	}
	storeKey := strings.TrimSpace(key)
	if storeKey == "" {
		storeKey = defaultRateStoreKey
	}
	return &RedisRateStore{client: client, key: storeKey}
}

func (s *RedisRateStore) Load(ctx context.Context) (Snapshot, bool, error) {
	if s == nil || s.client == nil {
		return Snapshot{}, false, nil
	}
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, err
	}
	if len(snapshot.Rates) == 0 {
		return Snapshot{}, false, nil
	}
	return snapshot, true, nil
}

func (s *RedisRateStore) Save(ctx context.Context, snapshot Snapshot) error {
	if s == nil || s.client == nil {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, data, 0).Err()
}
