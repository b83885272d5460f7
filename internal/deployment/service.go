package deployment

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/urbanfield/deployment-core/internal/apperr"
	"github.com/urbanfield/deployment-core/internal/document"
	"github.com/urbanfield/deployment-core/internal/infrastructure/logging"
	"github.com/urbanfield/deployment-core/internal/lifecycle"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 500
)

// UpdatableFields lists the document fields a deployment update may touch.
var UpdatableFields = []string{"name", "description", "public"}

// Unhoster clears the hosting of sensors that ride a deployment's
// platforms without belonging to the deployment. The sensor service
// satisfies it.
type Unhoster interface {
	UnhostByDeployment(ctx context.Context, deploymentID string) (int64, error)
}

// Service implements the deployment lifecycle.
type Service struct {
	col     *document.Collection
	sensors Unhoster
	log     *logging.Logger
}

// NewService creates a deployment service.
func NewService(db *sql.DB, sensors Unhoster, log *logging.Logger) *Service {
	return &Service{
		col:     document.NewCollection(db, "deployments", "deployment"),
		sensors: sensors,
		log:     log.With("component", "deployment"),
	}
}

// CreateParams are the caller-supplied fields for a new deployment.
type CreateParams struct {
	ID          string
	Name        string
	Description string
	Public      bool
}

// Create adds a deployment, deriving the id from the name when absent and
// retrying once with a suffix on collision. Deployments are not
// device-registrable, so no registration key is issued.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Deployment, error) {
	if p.Name == "" {
		return nil, apperr.BadRequest("deployment name is required")
	}
	if len(p.Name) > maxNameLength {
		return nil, apperr.BadRequest("deployment name exceeds %d characters", maxNameLength)
	}
	if len(p.Description) > maxDescriptionLength {
		return nil, apperr.BadRequest("deployment description exceeds %d characters", maxDescriptionLength)
	}

	body, err := json.Marshal(doc{
		Name:        p.Name,
		Description: p.Description,
		Public:      p.Public,
	})
	if err != nil {
		return nil, apperr.BadRequest("deployment is not encodable: %v", err)
	}

	rec, err := lifecycle.Create(ctx, s.col, lifecycle.CreateOptions{
		ExplicitID: p.ID,
		Name:       p.Name,
	}, body)
	if err != nil {
		return nil, err
	}

	s.log.Info("deployment created", "id", rec.ID, "public", p.Public)
	return fromRecord(rec)
}

// Get retrieves a deployment by id.
func (s *Service) Get(ctx context.Context, id string, includeDeleted bool) (*Deployment, error) {
	var opts []document.Option
	if includeDeleted {
		opts = append(opts, document.IncludeDeleted())
	}
	rec, err := s.col.GetByID(ctx, id, opts...)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// List returns live deployments ordered by id.
func (s *Service) List(ctx context.Context, page document.Page) ([]Deployment, error) {
	recs, err := s.col.Find(ctx, nil, page)
	if err != nil {
		return nil, err
	}

	deployments := make([]Deployment, 0, len(recs))
	for i := range recs {
		d, err := fromRecord(&recs[i])
		if err != nil {
			return nil, apperr.Database("corrupt deployment document", err)
		}
		deployments = append(deployments, *d)
	}
	return deployments, nil
}

// Update applies a patch to a live deployment. A transition from public to
// private triggers the cascading unhost: sensors hosted on this
// deployment's platforms that do not belong to the deployment lose their
// hosting reference, in one bulk conditional statement.
func (s *Service) Update(ctx context.Context, id string, patch document.Patch) (*Deployment, error) {
	allowed := make(map[string]bool, len(UpdatableFields))
	for _, f := range UpdatableFields {
		allowed[f] = true
	}
	for name := range patch {
		if !allowed[name] {
			return nil, apperr.BadRequest("field %q cannot be updated", name)
		}
	}

	cur, err := s.Get(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if f, present := patch["name"]; present && f.IsUnset() {
		return nil, apperr.BadRequest("deployment name cannot be removed")
	}

	goesPrivate := cur.Public && !lifecycle.ResolveBool(patch, "public", cur.Public)

	rec, err := s.col.UpdateByID(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	if goesPrivate {
		if _, err := s.sensors.UnhostByDeployment(ctx, id); err != nil {
			return nil, err
		}
	}

	return fromRecord(rec)
}

// Delete soft-deletes a deployment and runs the cascading unhost: a
// deleted deployment no longer lends its platforms to outside sensors.
// Platforms and member sensors are not deleted; they observe the deletion
// through IsDeleted on their next deployment lookup.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.col.SoftDelete(ctx, id); err != nil {
		return err
	}
	if _, err := s.sensors.UnhostByDeployment(ctx, id); err != nil {
		return err
	}
	s.log.Info("deployment deleted", "id", id)
	return nil
}

// Live reports whether a deployment exists and is not deleted.
func (s *Service) Live(ctx context.Context, id string) error {
	_, err := s.col.GetByID(ctx, id)
	return err
}
