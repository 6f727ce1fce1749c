// Package presets stores reusable node property presets in most recently
// used order.
package presets

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxPresets is the number of presets kept; saving beyond it evicts the
// least recently used.
const MaxPresets = 20

// Common errors returned by Store implementations.
var (
	ErrPresetNotFound = errors.New("preset not found")
	ErrInvalidPreset  = errors.New("invalid preset")
)

// Preset is a named set of property values for one node type.
type Preset struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	NodeType   string         `json:"node_type"`
	Properties map[string]any `json:"properties,omitempty"`
	SavedAt    time.Time      `json:"saved_at"`
}

// Validate checks that p can be stored.
func (p *Preset) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPreset)
	}
	if p.NodeType == "" {
		return fmt.Errorf("%w: node_type is required", ErrInvalidPreset)
	}
	return nil
}

// Store defines the interface for preset persistence.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save inserts or replaces a preset and moves it to the front. An empty
	// ID is generated.
	Save(ctx context.Context, p *Preset) (*Preset, error)

	// List returns presets, most recently saved first. nodeType filters when set.
	List(ctx context.Context, nodeType string) ([]*Preset, error)

	// Delete removes a preset. Returns ErrPresetNotFound if missing.
	Delete(ctx context.Context, id string) error

	// Close releases any resources.
	Close() error
}
