package presets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	presetKeyPrefix = "presets:item:"
	presetOrderKey  = "presets:order"
)

// RedisStore implements Store using a Redis list for MRU order and one
// string key per preset.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStoreWithClient creates a store using an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func presetKey(id string) string {
	return presetKeyPrefix + id
}

// Save inserts or replaces a preset at the front, trimming the list to
// MaxPresets and dropping evicted entries.
func (s *RedisStore) Save(ctx context.Context, p *Preset) (*Preset, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	saved := *p
	if saved.ID == "" {
		saved.ID = uuid.New().String()
	}
	saved.SavedAt = time.Now().UTC()

	data, err := json.Marshal(&saved)
	if err != nil {
		return nil, fmt.Errorf("marshal preset: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, presetKey(saved.ID), data, 0)
	pipe.LRem(ctx, presetOrderKey, 0, saved.ID)
	pipe.LPush(ctx, presetOrderKey, saved.ID)
	evicted := pipe.LRange(ctx, presetOrderKey, MaxPresets, -1)
	pipe.LTrim(ctx, presetOrderKey, 0, MaxPresets-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("save preset: %w", err)
	}

	if ids := evicted.Val(); len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = presetKey(id)
		}
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return nil, fmt.Errorf("evict presets: %w", err)
		}
	}

	return &saved, nil
}

// List returns presets, most recent first.
func (s *RedisStore) List(ctx context.Context, nodeType string) ([]*Preset, error) {
	ids, err := s.client.LRange(ctx, presetOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	if len(ids) == 0 {
		return []*Preset{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = presetKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}

	out := make([]*Preset, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var p Preset
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("unmarshal preset: %w", err)
		}
		if nodeType != "" && p.NodeType != nodeType {
			continue
		}
		out = append(out, &p)
	}
	return out, nil
}

// Delete removes a preset.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	removed := pipe.LRem(ctx, presetOrderKey, 0, id)
	pipe.Del(ctx, presetKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete preset: %w", err)
	}
	if removed.Val() == 0 {
		return ErrPresetNotFound
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
