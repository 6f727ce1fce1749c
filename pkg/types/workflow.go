package types

import "time"

// Workflow is a saved, versioned workflow definition.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Graph       Graph          `json:"graph"`
	Version     int            `json:"version"`
	Thumbnail   string         `json:"thumbnail,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedBy   string         `json:"created_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// WorkflowVersion is an immutable snapshot of a workflow at a given version.
type WorkflowVersion struct {
	WorkflowID  string    `json:"workflow_id"`
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Graph       Graph     `json:"graph"`
	SavedAt     time.Time `json:"saved_at"`
}
