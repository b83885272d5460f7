package platform

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"

	"github.com/urbanfield/deployment-core/internal/apperr"
	"github.com/urbanfield/deployment-core/internal/document"
	"github.com/urbanfield/deployment-core/internal/infrastructure/logging"
	"github.com/urbanfield/deployment-core/internal/lifecycle"
)

// Validation constants.
const (
	maxNameLength        = 100
	maxDescriptionLength = 500
	maxIDLength          = 64
)

var idPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// UpdatableFields lists the document fields a platform update may touch.
var UpdatableFields = []string{
	"name", "description", "static", "updateLocationWithSensor", "hasDeployment",
}

// LocationSource verifies that a live sensor is hosted on a platform. The
// sensor service satisfies it.
type LocationSource interface {
	HostedOn(ctx context.Context, sensorID, platformID string) error
}

// Service implements the platform lifecycle.
type Service struct {
	col     *document.Collection
	sensors LocationSource
	log     *logging.Logger
}

// NewService creates a platform service.
func NewService(db *sql.DB, sensors LocationSource, log *logging.Logger) *Service {
	return &Service{
		col:     document.NewCollection(db, "platforms", "platform"),
		sensors: sensors,
		log:     log.With("component", "platform"),
	}
}

// CreateParams are the caller-supplied fields for a new platform.
type CreateParams struct {
	ID            string
	Name          string
	Description   string
	Static        bool
	HasDeployment *string
}

// Create adds a platform, deriving the id from the name when absent and
// retrying once with a suffix on collision. A registration key is always
// issued.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Platform, error) {
	if p.Name == "" {
		return nil, apperr.BadRequest("platform name is required")
	}
	if len(p.Name) > maxNameLength {
		return nil, apperr.BadRequest("platform name exceeds %d characters", maxNameLength)
	}
	if len(p.Description) > maxDescriptionLength {
		return nil, apperr.BadRequest("platform description exceeds %d characters", maxDescriptionLength)
	}
	if p.ID != "" {
		if len(p.ID) > maxIDLength || !idPattern.MatchString(p.ID) {
			return nil, apperr.BadRequest("platform id must be lowercase alphanumeric with hyphens")
		}
	}

	body, err := json.Marshal(doc{
		Name:          p.Name,
		Description:   p.Description,
		Static:        p.Static,
		HasDeployment: p.HasDeployment,
	})
	if err != nil {
		return nil, apperr.BadRequest("platform is not encodable: %v", err)
	}

	rec, err := lifecycle.Create(ctx, s.col, lifecycle.CreateOptions{
		ExplicitID: p.ID,
		Name:       p.Name,
		IssueKey:   true,
	}, body)
	if err != nil {
		return nil, err
	}

	s.log.Info("platform created", "id", rec.ID)
	return fromRecord(rec)
}

// Get retrieves a platform by id.
func (s *Service) Get(ctx context.Context, id string, includeDeleted bool) (*Platform, error) {
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

// GetByKey retrieves a live platform by its registration key.
func (s *Service) GetByKey(ctx context.Context, key string) (*Platform, error) {
	rec, err := s.col.GetByRegistrationKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// List returns live platforms, optionally narrowed to one deployment.
func (s *Service) List(ctx context.Context, deployment *string, page document.Page) ([]Platform, error) {
	filter := document.Filter{}
	if deployment != nil {
		filter["hasDeployment"] = *deployment
	}

	recs, err := s.col.Find(ctx, filter, page)
	if err != nil {
		return nil, err
	}

	platforms := make([]Platform, 0, len(recs))
	for i := range recs {
		p, err := fromRecord(&recs[i])
		if err != nil {
			return nil, apperr.Database("corrupt platform document", err)
		}
		platforms = append(platforms, *p)
	}
	return platforms, nil
}

// Update applies a patch to a live platform. A static platform may not
// carry a location-source sensor; a newly referenced location-source
// sensor must exist, be live, and be hosted on this platform.
func (s *Service) Update(ctx context.Context, id string, patch document.Patch) (*Platform, error) {
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

	if err := lifecycle.CheckPlacement(patch, cur.Static, cur.UpdateLocationWithSensor); err != nil {
		return nil, err
	}

	if sensorID, ok := lifecycle.PatchSetsRef(patch, lifecycle.FieldLocationSensor); ok {
		if err := s.sensors.HostedOn(ctx, sensorID, id); err != nil {
			return nil, apperr.Forbidden(
				"sensor %q cannot drive the location of platform %q: %s",
				sensorID, id, apperr.From(err).Public)
		}
	}

	rec, err := s.col.UpdateByID(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// Register claims the platform holding the given registration key.
func (s *Service) Register(ctx context.Context, key, registeredAs string) (*Platform, error) {
	if registeredAs == "" {
		return nil, apperr.BadRequest("registration target is required")
	}
	rec, err := s.col.ClaimRegistration(ctx, key, registeredAs)
	if err != nil {
		return nil, err
	}
	s.log.Info("platform registered", "id", rec.ID, "registeredAs", registeredAs)
	return fromRecord(rec)
}

// Deregister clears the platform's registration claim; idempotent when
// already unregistered.
func (s *Service) Deregister(ctx context.Context, id string) error {
	return s.col.ClearRegistration(ctx, id)
}

// Delete soft-deletes a platform, clearing its location-source reference.
// Sensors hosted on it are not touched; they observe the deletion through
// the IsDeleted error on their next host lookup.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.col.SoftDelete(ctx, id, lifecycle.FieldLocationSensor); err != nil {
		return err
	}
	s.log.Info("platform deleted", "id", id)
	return nil
}

// Live reports whether a platform exists and is not deleted, satisfying
// the sensor service's Directory contract.
func (s *Service) Live(ctx context.Context, id string) error {
	_, err := s.col.GetByID(ctx, id)
	return err
}
