package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

const (
	// Key patterns for Redis storage
	metaKeyPrefix     = "nodemeta:"
	metaIndexKey      = "nodemeta:all"
	metaGenerationKey = "nodemeta:generation"
)

// RedisRegistry implements Registry using Redis for persistence.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistryFromClient creates a registry from an existing Redis client.
func NewRedisRegistryFromClient(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func metaKey(nodeType string) string {
	return metaKeyPrefix + "type:" + nodeType
}

// Register stores or replaces an entry.
func (r *RedisRegistry) Register(ctx context.Context, meta *types.NodeMetadata) error {
	return r.RegisterMany(ctx, []*types.NodeMetadata{meta})
}

// RegisterMany stores a batch of entries in one transaction.
func (r *RedisRegistry) RegisterMany(ctx context.Context, metas []*types.NodeMetadata) error {
	for _, m := range metas {
		if err := Validate(m); err != nil {
			return err
		}
	}
	if len(metas) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, m := range metas {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		pipe.Set(ctx, metaKey(m.NodeType), data, 0)
		pipe.SAdd(ctx, metaIndexKey, m.NodeType)
	}
	pipe.Incr(ctx, metaGenerationKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register metadata: %w", err)
	}
	return nil
}

// Replace swaps the catalog for metas in one transaction. The index is
// watched so a concurrent write aborts the swap.
func (r *RedisRegistry) Replace(ctx context.Context, metas []*types.NodeMetadata) error {
	payloads := make(map[string][]byte, len(metas))
	for _, m := range metas {
		if err := Validate(m); err != nil {
			return err
		}
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		payloads[m.NodeType] = data
	}

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.SMembers(ctx, metaIndexKey).Result()
		if err != nil {
			return fmt.Errorf("list metadata ids: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, nodeType := range current {
				if _, keep := payloads[nodeType]; !keep {
					pipe.Del(ctx, metaKey(nodeType))
					pipe.SRem(ctx, metaIndexKey, nodeType)
				}
			}
			for nodeType, data := range payloads {
				pipe.Set(ctx, metaKey(nodeType), data, 0)
				pipe.SAdd(ctx, metaIndexKey, nodeType)
			}
			pipe.Incr(ctx, metaGenerationKey)
			return nil
		})
		return err
	}, metaIndexKey)
	if err != nil {
		return fmt.Errorf("replace metadata: %w", err)
	}
	return nil
}

// Get retrieves an entry by node type.
func (r *RedisRegistry) Get(ctx context.Context, nodeType string) (*types.NodeMetadata, error) {
	data, err := r.client.Get(ctx, metaKey(nodeType)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMetadataNotFound
		}
		return nil, fmt.Errorf("get metadata: %w", err)
	}

	var meta types.NodeMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &meta, nil
}

// Delete removes an entry.
func (r *RedisRegistry) Delete(ctx context.Context, nodeType string) error {
	key := metaKey(nodeType)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists == 0 {
		return ErrMetadataNotFound
	}

	// Delete entry, remove from index and bump the generation atomically
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, metaIndexKey, nodeType)
	pipe.Incr(ctx, metaGenerationKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	return nil
}

// List returns entries matching the options, sorted by node type.
func (r *RedisRegistry) List(ctx context.Context, opts *ListOptions) ([]*types.NodeMetadata, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	metas := make([]*types.NodeMetadata, 0, len(all))
	for _, meta := range all {
		if matchesNamespace(meta, opts.Namespace) {
			metas = append(metas, meta)
		}
	}
	return paginate(metas, opts), nil
}

// Snapshot returns an immutable catalog of all entries. The generation is
// read before the entries so a concurrent write can only make the snapshot
// look older than it is.
func (r *RedisRegistry) Snapshot(ctx context.Context) (*Catalog, error) {
	gen, err := r.Generation(ctx)
	if err != nil {
		return nil, err
	}
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	return NewCatalog(gen, all), nil
}

// Generation returns the current generation.
func (r *RedisRegistry) Generation(ctx context.Context) (int64, error) {
	gen, err := r.client.Get(ctx, metaGenerationKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("get generation: %w", err)
	}
	return gen, nil
}

// Close releases Redis connection resources.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

func (r *RedisRegistry) loadAll(ctx context.Context) ([]*types.NodeMetadata, error) {
	ids, err := r.client.SMembers(ctx, metaIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list metadata ids: %w", err)
	}
	if len(ids) == 0 {
		return []*types.NodeMetadata{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = metaKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}

	metas := make([]*types.NodeMetadata, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Clean up stale index entry
			r.client.SRem(ctx, metaIndexKey, ids[i])
			continue
		}
		var meta types.NodeMetadata
		if err := json.Unmarshal([]byte(s), &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata %s: %w", ids[i], err)
		}
		metas = append(metas, &meta)
	}
	return metas, nil
}
