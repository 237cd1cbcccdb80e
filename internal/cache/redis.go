package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"teaser/internal/state/model"
)

type Config struct {
	Addr string        `envconfig:"TEASER_REDIS_ADDR"`
	TTL  time.Duration `envconfig:"TEASER_REDIS_TTL" default:"1h"`
}

// Cache mirrors session snapshots into redis so read replicas can
// answer state queries. Disabled when no address is configured.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(ctx context.Context, cfg *Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &Cache{client: client, ttl: cfg.TTL}, nil
}

func key(sessionID string) string {
	return fmt.Sprintf("teaser:session:%s", sessionID)
}

func (c *Cache) SetSnapshot(ctx context.Context, snapshot model.Snapshot) error {
	bytes, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key(snapshot.SessionID), bytes, c.ttl).Err(); err != nil {
		return fmt.Errorf("unable to set snapshot for session %s: %w", snapshot.SessionID, err)
	}
	return nil
}

func (c *Cache) Snapshot(ctx context.Context, sessionID string) (model.Snapshot, bool, error) {
	var snapshot model.Snapshot
	bytes, err := c.client.Get(ctx, key(sessionID)).Bytes()
	if err == redis.Nil {
		return snapshot, false, nil
	}
	if err != nil {
		return snapshot, false, fmt.Errorf("unable to get snapshot for session %s: %w", sessionID, err)
	}
	if err := json.Unmarshal(bytes, &snapshot); err != nil {
		return snapshot, false, err
	}
	return snapshot, true, nil
}

func (c *Cache) Delete(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("unable to delete snapshot for session %s: %w", sessionID, err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}
