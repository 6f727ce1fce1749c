package registry

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

// newTestRedisRegistry connects to WORKBENCH_TEST_REDIS_ADDR on a scratch
// database, skipping the test when no server is configured.
func newTestRedisRegistry(t *testing.T) *RedisRegistry {
	t.Helper()
	addr := os.Getenv("WORKBENCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WORKBENCH_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("FlushDB failed: %v", err)
	}

	reg := NewRedisRegistryFromClient(client)
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		reg.Close()
	})
	return reg
}

func TestRedisRegistry(t *testing.T) {
	reg := newTestRedisRegistry(t)
	ctx := context.Background()

	if err := reg.RegisterMany(ctx, []*types.NodeMetadata{chatMeta(), {NodeType: "nodetool.text.Split"}}); err != nil {
		t.Fatalf("RegisterMany failed: %v", err)
	}

	meta, err := reg.Get(ctx, "openai.text.Chat")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if meta.Outputs[0].Name != "output" {
		t.Errorf("expected output slot to round-trip, got %+v", meta.Outputs)
	}

	list, err := reg.List(ctx, &ListOptions{Namespace: "nodetool"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].NodeType != "nodetool.text.Split" {
		t.Errorf("unexpected list %+v", list)
	}

	gen, _ := reg.Generation(ctx)
	snap, err := reg.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Len() != 2 || snap.Generation() != gen {
		t.Errorf("unexpected snapshot len=%d gen=%d (want gen %d)", snap.Len(), snap.Generation(), gen)
	}

	if err := reg.Delete(ctx, "openai.text.Chat"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := reg.Get(ctx, "openai.text.Chat"); !errors.Is(err, ErrMetadataNotFound) {
		t.Errorf("expected ErrMetadataNotFound, got %v", err)
	}
	if err := reg.Delete(ctx, "openai.text.Chat"); !errors.Is(err, ErrMetadataNotFound) {
		t.Errorf("expected ErrMetadataNotFound on second delete, got %v", err)
	}
	if next, _ := reg.Generation(ctx); next <= gen {
		t.Errorf("expected generation to increase past %d, got %d", gen, next)
	}
}

func TestRedisRegistry_Replace(t *testing.T) {
	reg := newTestRedisRegistry(t)
	ctx := context.Background()

	if err := reg.RegisterMany(ctx, []*types.NodeMetadata{chatMeta(), {NodeType: "nodetool.text.Split"}}); err != nil {
		t.Fatalf("RegisterMany failed: %v", err)
	}
	gen, _ := reg.Generation(ctx)

	if err := reg.Replace(ctx, []*types.NodeMetadata{{NodeType: "nodetool.text.Split"}, {NodeType: "nodetool.text.Join"}}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	if _, err := reg.Get(ctx, "openai.text.Chat"); !errors.Is(err, ErrMetadataNotFound) {
		t.Errorf("expected dropped entry to be gone, got %v", err)
	}
	snap, err := reg.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", snap.Len())
	}
	if snap.Generation() != gen+1 {
		t.Errorf("expected one generation bump from %d, got %d", gen, snap.Generation())
	}
}
