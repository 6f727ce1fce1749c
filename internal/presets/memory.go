package presets

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu    sync.Mutex
	items []*Preset // most recent first
	limit int
}

// NewMemoryStore creates a store that keeps at most MaxPresets entries.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{limit: MaxPresets}
}

// Save inserts or replaces a preset at the front.
func (s *MemoryStore) Save(ctx context.Context, p *Preset) (*Preset, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	saved := *p
	if saved.ID == "" {
		saved.ID = uuid.New().String()
	}
	saved.SavedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]*Preset, 0, len(s.items)+1)
	items = append(items, &saved)
	for _, it := range s.items {
		if it.ID != saved.ID {
			items = append(items, it)
		}
	}
	if len(items) > s.limit {
		items = items[:s.limit]
	}
	s.items = items

	out := saved
	return &out, nil
}

// List returns presets, most recent first.
func (s *MemoryStore) List(ctx context.Context, nodeType string) ([]*Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Preset, 0, len(s.items))
	for _, it := range s.items {
		if nodeType != "" && it.NodeType != nodeType {
			continue
		}
		c := *it
		out = append(out, &c)
	}
	return out, nil
}

// Delete removes a preset.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, it := range s.items {
		if it.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return ErrPresetNotFound
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
