// Package store implements the Pipeline Store (C2): durable, per-user
// persistence of pipelines keyed by user id and pipeline id. The store
// never interprets the pipeline body — it is a keyed durable map.
package store

import (
	"github.com/google/uuid"

	"github.com/orbitengine/pipeline/internal/model"
)

// Store is the Pipeline Store interface. Implementations MUST give
// read-your-writes within the same caller; there is no cross-user
// isolation requirement beyond correct key scoping.
type Store interface {
	// Save upserts a pipeline under (userID, pipeline.ID).
	Save(userID string, pipeline *model.Pipeline) error

	// Load reads one pipeline. It returns (nil, nil) if not found —
	// callers distinguish "not found" from a store failure themselves,
	// matching the wallet gateway's storage interface convention.
	Load(userID string, pipelineID uuid.UUID) (*model.Pipeline, error)

	// List enumerates every pipeline owned by a user.
	List(userID string) ([]*model.Pipeline, error)

	// Delete removes a pipeline. Deleting a non-existent key is a no-op.
	Delete(userID string, pipelineID uuid.UUID) error
}

func key(userID string, pipelineID uuid.UUID) string {
	return userID + "/" + pipelineID.String()
}
