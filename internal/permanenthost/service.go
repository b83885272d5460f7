package permanenthost

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/urbanfield/deployment-core/internal/apperr"
	"github.com/urbanfield/deployment-core/internal/document"
	"github.com/urbanfield/deployment-core/internal/idgen"
	"github.com/urbanfield/deployment-core/internal/infrastructure/logging"
	"github.com/urbanfield/deployment-core/internal/lifecycle"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 500

	// idPrefix is the first path segment of generated host ids.
	idPrefix = "host"
)

// UpdatableFields lists the document fields a host update may touch.
var UpdatableFields = []string{
	"name", "description", "static", "updateLocationWithSensor",
}

// Carrier verifies that a live sensor is permanently attached to a host.
// The sensor service satisfies it.
type Carrier interface {
	CarriedBy(ctx context.Context, sensorID, hostID string) error
}

// Service implements the permanent host lifecycle.
type Service struct {
	col     *document.Collection
	sensors Carrier
	log     *logging.Logger
}

// NewService creates a permanent host service.
func NewService(db *sql.DB, sensors Carrier, log *logging.Logger) *Service {
	return &Service{
		col:     document.NewCollection(db, "permanent_hosts", "permanent host"),
		sensors: sensors,
		log:     log.With("component", "permanenthost"),
	}
}

// CreateParams are the caller-supplied fields for a new permanent host.
type CreateParams struct {
	ID          string
	Name        string
	Description string
	Static      bool
}

// Create adds a permanent host. Generated ids carry the "host" prefix and
// stay under the bounded length regardless of the name; a collision on a
// generated id is retried once. A registration key is always issued.
func (s *Service) Create(ctx context.Context, p CreateParams) (*PermanentHost, error) {
	if p.Name == "" {
		return nil, apperr.BadRequest("permanent host name is required")
	}
	if len(p.Name) > maxNameLength {
		return nil, apperr.BadRequest("permanent host name exceeds %d characters", maxNameLength)
	}
	if len(p.Description) > maxDescriptionLength {
		return nil, apperr.BadRequest("permanent host description exceeds %d characters", maxDescriptionLength)
	}

	body, err := json.Marshal(doc{
		Name:        p.Name,
		Description: p.Description,
		Static:      p.Static,
	})
	if err != nil {
		return nil, apperr.BadRequest("permanent host is not encodable: %v", err)
	}

	rec := document.Record{Doc: body, RegistrationKey: idgen.RegistrationKey()}
	if p.ID != "" {
		rec.ID = p.ID
		created, err := s.col.Insert(ctx, rec)
		if err != nil {
			return nil, err
		}
		s.log.Info("permanent host created", "id", created.ID)
		return fromRecord(created)
	}

	// Host ids are suffixed by construction, so a collision means the
	// suffix itself collided; one fresh draw is enough.
	rec.ID = idgen.ResourceID(idPrefix, p.Name)
	created, err := s.col.Insert(ctx, rec)
	if apperr.HasKind(err, apperr.KindConflict) {
		rec.ID = idgen.ResourceID(idPrefix, p.Name)
		created, err = s.col.Insert(ctx, rec)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("permanent host created", "id", created.ID)
	return fromRecord(created)
}

// Get retrieves a permanent host by id.
func (s *Service) Get(ctx context.Context, id string, includeDeleted bool) (*PermanentHost, error) {
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

// GetByKey retrieves a live permanent host by its registration key.
func (s *Service) GetByKey(ctx context.Context, key string) (*PermanentHost, error) {
	rec, err := s.col.GetByRegistrationKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// List returns live permanent hosts ordered by id.
func (s *Service) List(ctx context.Context, page document.Page) ([]PermanentHost, error) {
	recs, err := s.col.Find(ctx, nil, page)
	if err != nil {
		return nil, err
	}

	hosts := make([]PermanentHost, 0, len(recs))
	for i := range recs {
		h, err := fromRecord(&recs[i])
		if err != nil {
			return nil, apperr.Database("corrupt permanent host document", err)
		}
		hosts = append(hosts, *h)
	}
	return hosts, nil
}

// Update applies a patch to a live host. A static host may not carry a
// location-source sensor; a newly referenced location-source sensor must
// exist, be live, and be attached to this host.
func (s *Service) Update(ctx context.Context, id string, patch document.Patch) (*PermanentHost, error) {
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
		if err := s.sensors.CarriedBy(ctx, sensorID, id); err != nil {
			return nil, apperr.Forbidden(
				"sensor %q cannot drive the location of host %q: %s",
				sensorID, id, apperr.From(err).Public)
		}
	}

	rec, err := s.col.UpdateByID(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// Register claims the host holding the given registration key into a
// deployment. Write-once until deregistered.
func (s *Service) Register(ctx context.Context, key, registeredAs string) (*PermanentHost, error) {
	if registeredAs == "" {
		return nil, apperr.BadRequest("registration target is required")
	}
	rec, err := s.col.ClaimRegistration(ctx, key, registeredAs)
	if err != nil {
		return nil, err
	}
	s.log.Info("permanent host registered", "id", rec.ID, "registeredAs", registeredAs)
	return fromRecord(rec)
}

// Deregister clears the host's registration claim; idempotent when already
// unregistered.
func (s *Service) Deregister(ctx context.Context, id string) error {
	return s.col.ClearRegistration(ctx, id)
}

// Delete soft-deletes a permanent host, clearing its location-source
// reference. Attached sensors are not touched; they observe the deletion
// through the IsDeleted error on their next host lookup.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.col.SoftDelete(ctx, id, lifecycle.FieldLocationSensor); err != nil {
		return err
	}
	s.log.Info("permanent host deleted", "id", id)
	return nil
}

// Live reports whether a host exists and is not deleted, satisfying the
// sensor service's Directory contract.
func (s *Service) Live(ctx context.Context, id string) error {
	_, err := s.col.GetByID(ctx, id)
	return err
}
