// Package graph defines the query interface the lifecycle manager consumes.
// The backing store is an external collaborator; the manager depends only
// on this shape (lookup by id, name-containment search newest first, and
// create/merge), never on the engine behind it.
package graph

import (
	"context"
	"errors"

	"lendline/internal/domain"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store is the graph-shaped query capability the lifecycle manager needs.
type Store interface {
	// GetApplication finds an application by id.
	GetApplication(ctx context.Context, id string) (domain.Application, error)

	// FindLatestApplicationByName finds the most recently created
	// application whose applicant_name or primary_applicant contains name.
	FindLatestApplicationByName(ctx context.Context, name string) (domain.Application, error)

	// CreateApplication persists a new application node.
	CreateApplication(ctx context.Context, app domain.Application, actorID string) error

	// FindOrCreateApplicationExclusive runs the containment search and the
	// create as one atomic unit, for the single-writer creation mode. The
	// returned bool is true when a new application was created.
	FindOrCreateApplicationExclusive(ctx context.Context, name string, app domain.Application, actorID string) (domain.Application, bool, error)

	// UpdateApplicationPhase unconditionally writes a new phase value.
	UpdateApplicationPhase(ctx context.Context, id string, phase domain.ApplicationPhase, actorID string) error

	// MergeConversationLink links a thread to an application with merge
	// semantics: repeated calls leave exactly one link per thread.
	MergeConversationLink(ctx context.Context, threadID, applicationID, actorID string) error
}
