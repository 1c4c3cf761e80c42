package validate

import (
	"context"

	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/schema"
)

// ModificationValidator approves or rejects a CREATE or UPDATE mutation,
// per spec.md §4.6's "validate_modification(is_new, row, parent_row, schema,
// idl)" — m.Op distinguishes CREATE (is_new) from UPDATE, and m.Body
// carries the request's staged values (see Mutation).
type ModificationValidator func(ctx context.Context, m Mutation, s *schema.Schema, db *idl.DB) error

// DeletionValidator approves or rejects a DELETE mutation, per spec.md
// §4.6's "validate_deletion(row, parent_row, schema, idl)".
type DeletionValidator func(ctx context.Context, m Mutation, s *schema.Schema, db *idl.DB) error

// Registry is the pluggable per-table validator map: tables register their
// own modification/deletion validators by name, mirroring the callback
// registry shape of the teacher's job-handler map.
type Registry struct {
	modification map[string][]ModificationValidator
	deletion     map[string][]DeletionValidator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modification: make(map[string][]ModificationValidator),
		deletion:     make(map[string][]DeletionValidator),
	}
}

// RegisterModification adds v to the validators run for every CREATE/UPDATE
// on tableName.
func (r *Registry) RegisterModification(tableName string, v ModificationValidator) {
	r.modification[tableName] = append(r.modification[tableName], v)
}

// RegisterDeletion adds v to the validators run for every DELETE on
// tableName.
func (r *Registry) RegisterDeletion(tableName string, v DeletionValidator) {
	r.deletion[tableName] = append(r.deletion[tableName], v)
}
