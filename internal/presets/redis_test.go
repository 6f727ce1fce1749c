package presets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("WORKBENCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WORKBENCH_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 13})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("FlushDB failed: %v", err)
	}

	store := NewRedisStoreWithClient(client)
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		store.Close()
	})
	return store
}

func TestRedisStore_MRUOrder(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Save(ctx, &Preset{ID: id, Name: id, NodeType: "n.T"}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	store.Save(ctx, &Preset{ID: "a", Name: "a2", NodeType: "n.T"})

	list, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	got := make([]string, len(list))
	for i, p := range list {
		got[i] = p.ID
	}
	want := []string{"a", "c", "b"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected order %v, got %v", want, got)
	}
	if list[0].Name != "a2" {
		t.Errorf("expected replaced preset, got name %q", list[0].Name)
	}
}

func TestRedisStore_Eviction(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	for i := 0; i < MaxPresets+5; i++ {
		if _, err := store.Save(ctx, &Preset{ID: fmt.Sprintf("p%d", i), Name: "p", NodeType: "n.T"}); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}

	list, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != MaxPresets {
		t.Fatalf("expected %d presets, got %d", MaxPresets, len(list))
	}
	if list[0].ID != fmt.Sprintf("p%d", MaxPresets+4) {
		t.Errorf("expected newest first, got %q", list[0].ID)
	}
	if list[len(list)-1].ID != "p5" {
		t.Errorf("expected oldest survivors to start at p5, got %q", list[len(list)-1].ID)
	}

	if n := store.client.LLen(ctx, presetOrderKey).Val(); n != MaxPresets {
		t.Errorf("expected order list trimmed to %d, got %d", MaxPresets, n)
	}
	for i := 0; i < 5; i++ {
		key := presetKey(fmt.Sprintf("p%d", i))
		if n := store.client.Exists(ctx, key).Val(); n != 0 {
			t.Errorf("expected evicted key %s to be deleted", key)
		}
	}
}

func TestRedisStore_Delete(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	store.Save(ctx, &Preset{ID: "1", Name: "x", NodeType: "a.A"})
	store.Save(ctx, &Preset{ID: "2", Name: "y", NodeType: "b.B"})

	if list, _ := store.List(ctx, "b.B"); len(list) != 1 || list[0].ID != "2" {
		t.Errorf("expected only preset 2, got %+v", list)
	}

	if err := store.Delete(ctx, "1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "1"); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("expected ErrPresetNotFound, got %v", err)
	}
}
