// Package lifecycle holds the creation and placement rules shared by every
// registrable resource type. Entity packages (sensor, platform,
// permanenthost, deployment) build their services on these helpers so the
// retry and validation semantics stay identical across collections.
package lifecycle

import (
	"context"
	"encoding/json"

	"github.com/urbanfield/deployment-core/internal/apperr"
	"github.com/urbanfield/deployment-core/internal/document"
	"github.com/urbanfield/deployment-core/internal/idgen"
)

// CreateOptions controls how a resource is created.
type CreateOptions struct {
	// ExplicitID is a caller-supplied id. When set, a collision is
	// surfaced directly with no retry.
	ExplicitID string

	// Name seeds the derived id when ExplicitID is empty. An empty name
	// yields a fully random id.
	Name string

	// IssueKey controls whether a registration key is generated. Keys are
	// issued at creation time only; they cannot be added later.
	IssueKey bool
}

// Create inserts a document, deriving the id when the caller did not supply
// one. A derived id that collides with a live resource is retried exactly
// once with a fresh random suffix appended; a second collision, or any
// collision on an explicit id, is surfaced as a Conflict.
func Create(ctx context.Context, col *document.Collection, opts CreateOptions, doc json.RawMessage) (*document.Record, error) {
	rec := document.Record{Doc: doc}
	if opts.IssueKey {
		rec.RegistrationKey = idgen.RegistrationKey()
	}

	if opts.ExplicitID != "" {
		rec.ID = opts.ExplicitID
		return col.Insert(ctx, rec)
	}

	rec.ID = idgen.DeriveID(opts.Name)
	created, err := col.Insert(ctx, rec)
	if !apperr.HasKind(err, apperr.KindConflict) {
		return created, err
	}

	// Single retry with a disambiguating suffix.
	rec.ID = rec.ID + "-" + idgen.Suffix()
	return col.Insert(ctx, rec)
}
