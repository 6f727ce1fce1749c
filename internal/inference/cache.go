package inference

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

// DefaultCacheSize is the number of schemas kept by NewCache(0).
const DefaultCacheSize = 512

// GraphHash returns a stable SHA-256 hash of the graph's JSON form.
// encoding/json sorts map keys, so payload key order does not matter.
func GraphHash(g *types.Graph) (string, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("marshal graph: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Cache memoizes InferOutputSchema by graph structure and catalog generation.
// Safe for concurrent use. Cached schemas are shared and must not be mutated.
type Cache struct {
	mu      sync.Mutex
	max     int
	ll      *list.List
	entries map[string]*list.Element
	hits    uint64
	misses  uint64
}

type cacheEntry struct {
	key    string
	schema *types.InferredOutputSchema
}

// NewCache creates a cache holding at most size schemas (LRU eviction).
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		max:     size,
		ll:      list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Infer returns the cached schema for g at the given catalog generation,
// computing and storing it on a miss. hit reports whether the cache served it.
func (c *Cache) Infer(g *types.Graph, lookup MetadataLookup, generation int64) (schema *types.InferredOutputSchema, hit bool, err error) {
	hash, err := GraphHash(g)
	if err != nil {
		return nil, false, err
	}
	key := hash + "@" + strconv.FormatInt(generation, 10)

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.ll.MoveToFront(el)
		c.hits++
		c.mu.Unlock()
		return el.Value.(*cacheEntry).schema, true, nil
	}
	c.misses++
	c.mu.Unlock()

	schema = InferOutputSchema(g, lookup)

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(*cacheEntry).schema, false, nil
	}
	c.entries[key] = c.ll.PushFront(&cacheEntry{key: key, schema: schema})
	for c.ll.Len() > c.max {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	return schema, false, nil
}

// Len returns the number of cached schemas.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
