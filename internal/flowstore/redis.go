package flowstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

const (
	workflowKeyPrefix = "workflow:"
	workflowListKey   = "workflows"
)

// RedisStore implements Store using Redis. Each workflow is a JSON string
// key; its versions are a list of JSON snapshots, oldest first.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStoreWithClient creates a store using an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) workflowKey(id string) string {
	return workflowKeyPrefix + id
}

func (s *RedisStore) versionsKey(id string) string {
	return workflowKeyPrefix + id + ":versions"
}

// Create saves a new workflow as version 1.
func (s *RedisStore) Create(ctx context.Context, req *CreateWorkflowRequest) (*types.Workflow, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	wf := newWorkflow(id, req)
	data, err := json.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow: %w", err)
	}
	version, err := json.Marshal(snapshot(wf))
	if err != nil {
		return nil, fmt.Errorf("marshal version: %w", err)
	}

	// SETNX guards against a concurrent create with the same id
	created, err := s.client.SetNX(ctx, s.workflowKey(id), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("save workflow: %w", err)
	}
	if !created {
		return nil, ErrWorkflowExists
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, workflowListKey, id)
	pipe.Del(ctx, s.versionsKey(id))
	pipe.RPush(ctx, s.versionsKey(id), version)
	if _, err := pipe.Exec(ctx); err != nil {
		// Release the id so the create can be retried.
		if delErr := s.client.Del(ctx, s.workflowKey(id), s.versionsKey(id)).Err(); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return nil, fmt.Errorf("save workflow: %w", err)
	}

	return wf, nil
}

// Get retrieves a workflow by ID.
func (s *RedisStore) Get(ctx context.Context, id string) (*types.Workflow, error) {
	data, err := s.client.Get(ctx, s.workflowKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}

	var wf types.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("unmarshal workflow: %w", err)
	}

	return &wf, nil
}

// Update modifies an existing workflow. The workflow key is watched so a
// concurrent update causes a retry instead of a lost version.
func (s *RedisStore) Update(ctx context.Context, id string, req *UpdateWorkflowRequest) (*types.Workflow, error) {
	var updated *types.Workflow

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, s.workflowKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrWorkflowNotFound
		}
		if err != nil {
			return fmt.Errorf("get workflow: %w", err)
		}

		var wf types.Workflow
		if err := json.Unmarshal(data, &wf); err != nil {
			return fmt.Errorf("unmarshal workflow: %w", err)
		}

		newVersion := applyUpdate(&wf, req)

		wfData, err := json.Marshal(&wf)
		if err != nil {
			return fmt.Errorf("marshal workflow: %w", err)
		}
		version, err := json.Marshal(snapshot(&wf))
		if err != nil {
			return fmt.Errorf("marshal version: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.workflowKey(id), wfData, 0)
			if newVersion {
				pipe.RPush(ctx, s.versionsKey(id), version)
			} else {
				pipe.LSet(ctx, s.versionsKey(id), -1, version)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("save workflow: %w", err)
		}

		updated = &wf
		return nil
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := s.client.Watch(ctx, txf, s.workflowKey(id))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("update workflow %s: too much contention", id)
}

// Delete removes a workflow and its versions.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	// Check if exists
	exists, err := s.client.Exists(ctx, s.workflowKey(id)).Result()
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists == 0 {
		return ErrWorkflowNotFound
	}

	// Use transaction to delete workflow, history and index entry
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.workflowKey(id), s.versionsKey(id))
	pipe.SRem(ctx, workflowListKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}

	return nil
}

// List returns workflows matching the options.
func (s *RedisStore) List(ctx context.Context, opts *ListOptions) ([]*types.Workflow, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	// Get all workflow IDs
	ids, err := s.client.SMembers(ctx, workflowListKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list workflow ids: %w", err)
	}

	wfs := make([]*types.Workflow, 0, len(ids))
	for _, id := range ids {
		wf, err := s.Get(ctx, id)
		if errors.Is(err, ErrWorkflowNotFound) {
			// Stale reference, clean up
			s.client.SRem(ctx, workflowListKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}

		if !matches(wf, opts) {
			continue
		}
		wfs = append(wfs, wf)
	}

	return paginate(wfs, opts), nil
}

// ListVersions returns the version history, oldest first.
func (s *RedisStore) ListVersions(ctx context.Context, id string) ([]*types.WorkflowVersion, error) {
	exists, err := s.client.Exists(ctx, s.workflowKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("check exists: %w", err)
	}
	if exists == 0 {
		return nil, ErrWorkflowNotFound
	}

	raw, err := s.client.LRange(ctx, s.versionsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	versions := make([]*types.WorkflowVersion, 0, len(raw))
	for _, r := range raw {
		var v types.WorkflowVersion
		if err := json.Unmarshal([]byte(r), &v); err != nil {
			return nil, fmt.Errorf("unmarshal version: %w", err)
		}
		versions = append(versions, &v)
	}
	return versions, nil
}

// GetVersion returns one version of a workflow.
func (s *RedisStore) GetVersion(ctx context.Context, id string, version int) (*types.WorkflowVersion, error) {
	versions, err := s.ListVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.Version == version {
			return v, nil
		}
	}
	return nil, ErrVersionNotFound
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
