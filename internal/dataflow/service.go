// Package dataflow moves workflow documents and catalogs in and out of
// artifact storage.
package dataflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

// Common errors returned by backends.
var (
	ErrArtifactNotFound    = errors.New("artifact not found")
	ErrUnsupportedURI      = errors.New("unsupported artifact uri")
	ErrPresignNotSupported = errors.New("presigned URLs not supported")
)

// maxDocumentSize bounds documents read back from storage.
const maxDocumentSize = 32 << 20

// ArtifactRef represents a reference to an artifact in storage.
type ArtifactRef struct {
	// URI is the full artifact path (e.g., "s3://bucket/workflows/abc/v3.json")
	URI string `json:"uri"`

	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`

	// Checksum is the hex SHA-256 of the content
	Checksum string `json:"checksum,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Backend defines the storage backend interface.
type Backend interface {
	// Put stores data and returns an artifact reference
	Put(ctx context.Context, path string, data io.Reader, contentType string) (*ArtifactRef, error)

	// Get retrieves data for an artifact. Returns ErrArtifactNotFound if missing.
	Get(ctx context.Context, ref *ArtifactRef) (io.ReadCloser, error)

	// Delete removes an artifact
	Delete(ctx context.Context, ref *ArtifactRef) error

	// List lists artifacts with a prefix
	List(ctx context.Context, prefix string) ([]*ArtifactRef, error)

	// PresignGet generates a presigned URL for download
	PresignGet(ctx context.Context, ref *ArtifactRef, expiry time.Duration) (string, error)

	// Owns reports whether uri addresses this backend.
	Owns(uri string) bool
}

// Config holds dataflow service configuration.
type Config struct {
	// Backend type: "memory", "s3", "minio"
	Type string

	// S3/MinIO configuration
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool

	// Path prefix for all artifacts
	PathPrefix string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Type:       "memory",
		PathPrefix: "workbench",
	}
}

// Service exports and imports workflow documents.
type Service struct {
	backend Backend
}

// New creates a new dataflow service.
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var backend Backend
	switch cfg.Type {
	case "memory", "":
		backend = NewMemoryBackend()
	case "s3", "minio":
		s3Backend, err := NewS3Backend(&S3Config{
			Endpoint:        cfg.Endpoint,
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UseSSL:          cfg.UseSSL,
			PathPrefix:      cfg.PathPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 backend: %w", err)
		}
		backend = s3Backend
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}

	return &Service{backend: backend}, nil
}

// NewWithBackend creates a service over an existing backend.
func NewWithBackend(b Backend) *Service {
	return &Service{backend: b}
}

// ExportPath returns the storage path for a workflow version.
func ExportPath(workflowID string, version int) string {
	return fmt.Sprintf("workflows/%s/v%d.json", workflowID, version)
}

// ExportWorkflow stores wf as JSON at its versioned export path.
func (s *Service) ExportWorkflow(ctx context.Context, wf *types.Workflow) (*ArtifactRef, error) {
	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal workflow: %w", err)
	}
	ref, err := s.backend.Put(ctx, ExportPath(wf.ID, wf.Version), bytes.NewReader(data), "application/json")
	if err != nil {
		return nil, fmt.Errorf("export workflow %s: %w", wf.ID, err)
	}
	return ref, nil
}

// ListExports lists the exported versions of a workflow.
func (s *Service) ListExports(ctx context.Context, workflowID string) ([]*ArtifactRef, error) {
	return s.backend.List(ctx, fmt.Sprintf("workflows/%s/", workflowID))
}

// DeleteExports removes every exported version of a workflow.
func (s *Service) DeleteExports(ctx context.Context, workflowID string) error {
	refs, err := s.ListExports(ctx, workflowID)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := s.backend.Delete(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}

// LoadDocument reads the artifact at uri.
func (s *Service) LoadDocument(ctx context.Context, uri string) ([]byte, error) {
	if !s.backend.Owns(uri) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedURI, uri)
	}

	rc, err := s.backend.Get(ctx, &ArtifactRef{URI: uri})
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("artifact %s exceeds %d bytes", uri, maxDocumentSize)
	}
	return data, nil
}

// ImportWorkflow reads a workflow document previously written by
// ExportWorkflow, or any document with the same shape.
func (s *Service) ImportWorkflow(ctx context.Context, uri string) (*types.Workflow, error) {
	data, err := s.LoadDocument(ctx, uri)
	if err != nil {
		return nil, err
	}
	var wf types.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", uri, err)
	}
	return &wf, nil
}

// GetDownloadURL generates a presigned download URL.
func (s *Service) GetDownloadURL(ctx context.Context, ref *ArtifactRef, expiry time.Duration) (string, error) {
	return s.backend.PresignGet(ctx, ref, expiry)
}

// schemePath splits "scheme://rest" and reports whether scheme matched.
func schemePath(uri, scheme string) (string, bool) {
	prefix := scheme + "://"
	if !strings.HasPrefix(uri, prefix) {
		return "", false
	}
	return strings.TrimPrefix(uri, prefix), true
}
