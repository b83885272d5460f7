package sensor

import (
	"context"
	"encoding/json"

	"github.com/urbanfield/deployment-core/internal/apperr"
	"github.com/urbanfield/deployment-core/internal/document"
	"github.com/urbanfield/deployment-core/internal/infrastructure/logging"
	"github.com/urbanfield/deployment-core/internal/lifecycle"
)

// UpdatableFields lists the document fields a sensor update may touch.
var UpdatableFields = []string{
	"name", "description", "isHostedBy", "permanentHost", "hasDeployment",
}

// Directory reports whether a resource in another collection exists and is
// live. Platform and permanent host services satisfy it; wiring happens in
// main so the entity packages stay free of each other's types.
type Directory interface {
	Live(ctx context.Context, id string) error
}

// Service implements the sensor lifecycle.
type Service struct {
	store     *Store
	platforms Directory
	hosts     Directory
	log       *logging.Logger
}

// NewService creates a sensor service. platforms and hosts are used to
// validate placement references and may be nil in tests that do not
// exercise placement.
func NewService(store *Store, platforms, hosts Directory, log *logging.Logger) *Service {
	return &Service{
		store:     store,
		platforms: platforms,
		hosts:     hosts,
		log:       log.With("component", "sensor"),
	}
}

// CreateParams are the caller-supplied fields for a new sensor.
type CreateParams struct {
	ID            string
	Name          string
	Description   string
	IsHostedBy    *string
	PermanentHost *string
	HasDeployment *string
}

// Create adds a sensor. When no id is supplied one is derived from the
// name, retrying once with a random suffix on collision. A registration
// key is always issued.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Sensor, error) {
	if err := validateName(p.Name); err != nil {
		return nil, err
	}
	if err := validateDescription(p.Description); err != nil {
		return nil, err
	}
	if p.ID != "" {
		if err := validateExplicitID(p.ID); err != nil {
			return nil, err
		}
	}
	if p.PermanentHost != nil && p.IsHostedBy != nil {
		return nil, apperr.Forbidden(
			"a sensor with a permanent host cannot be hosted on a platform directly")
	}
	if p.IsHostedBy != nil {
		if err := s.platforms.Live(ctx, *p.IsHostedBy); err != nil {
			return nil, err
		}
	}
	if p.PermanentHost != nil {
		if err := s.hosts.Live(ctx, *p.PermanentHost); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(doc{
		Name:          p.Name,
		Description:   p.Description,
		IsHostedBy:    p.IsHostedBy,
		PermanentHost: p.PermanentHost,
		HasDeployment: p.HasDeployment,
	})
	if err != nil {
		return nil, apperr.BadRequest("sensor is not encodable: %v", err)
	}

	rec, err := lifecycle.Create(ctx, s.store.Collection, lifecycle.CreateOptions{
		ExplicitID: p.ID,
		Name:       p.Name,
		IssueKey:   true,
	}, body)
	if err != nil {
		return nil, err
	}

	s.log.Info("sensor created", "id", rec.ID)
	return fromRecord(rec)
}

// Get retrieves a sensor by id. A soft-deleted sensor is reported as
// IsDeleted unless includeDeleted is set.
func (s *Service) Get(ctx context.Context, id string, includeDeleted bool) (*Sensor, error) {
	var opts []document.Option
	if includeDeleted {
		opts = append(opts, document.IncludeDeleted())
	}
	rec, err := s.store.GetByID(ctx, id, opts...)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// GetByKey retrieves a live sensor by its registration key.
func (s *Service) GetByKey(ctx context.Context, key string) (*Sensor, error) {
	rec, err := s.store.GetByRegistrationKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// ListFilter narrows a sensor listing.
type ListFilter struct {
	IsHostedBy    *string
	PermanentHost *string
	HasDeployment *string
}

// List returns live sensors matching the filter, ordered by id.
func (s *Service) List(ctx context.Context, f ListFilter, page document.Page) ([]Sensor, error) {
	filter := document.Filter{}
	if f.IsHostedBy != nil {
		filter["isHostedBy"] = *f.IsHostedBy
	}
	if f.PermanentHost != nil {
		filter["permanentHost"] = *f.PermanentHost
	}
	if f.HasDeployment != nil {
		filter["hasDeployment"] = *f.HasDeployment
	}

	recs, err := s.store.Find(ctx, filter, page)
	if err != nil {
		return nil, err
	}

	sensors := make([]Sensor, 0, len(recs))
	for i := range recs {
		sen, err := fromRecord(&recs[i])
		if err != nil {
			return nil, apperr.Database("corrupt sensor document", err)
		}
		sensors = append(sensors, *sen)
	}
	return sensors, nil
}

// Update applies a patch to a live sensor. The patch is validated against
// the sensor's current state: the two placement mechanisms stay mutually
// exclusive, and a newly referenced platform or host must be live.
func (s *Service) Update(ctx context.Context, id string, patch document.Patch) (*Sensor, error) {
	if err := checkAllowed(patch); err != nil {
		return nil, err
	}

	cur, err := s.Get(ctx, id, false)
	if err != nil {
		return nil, err
	}

	if name, ok := lifecycle.PatchSetsRef(patch, "name"); ok {
		if err := validateName(name); err != nil {
			return nil, err
		}
	} else if f, present := patch["name"]; present && f.IsUnset() {
		return nil, apperr.BadRequest("sensor name cannot be removed")
	}

	host := lifecycle.ResolveRef(patch, "permanentHost", cur.PermanentHost)
	platform := lifecycle.ResolveRef(patch, "isHostedBy", cur.IsHostedBy)
	if host != nil && platform != nil {
		return nil, apperr.Forbidden(
			"a sensor with a permanent host cannot be hosted on a platform directly")
	}

	if pid, ok := lifecycle.PatchSetsRef(patch, "isHostedBy"); ok {
		if err := s.platforms.Live(ctx, pid); err != nil {
			return nil, err
		}
	}
	if hid, ok := lifecycle.PatchSetsRef(patch, "permanentHost"); ok {
		if err := s.hosts.Live(ctx, hid); err != nil {
			return nil, err
		}
	}

	rec, err := s.store.UpdateByID(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// Host places a sensor on a platform.
func (s *Service) Host(ctx context.Context, sensorID, platformID string) (*Sensor, error) {
	return s.Update(ctx, sensorID, document.Patch{
		"isHostedBy": document.Set(platformID),
	})
}

// Unhost removes a sensor's hosting reference. Unhosting an unhosted
// sensor is a no-op.
func (s *Service) Unhost(ctx context.Context, sensorID string) (*Sensor, error) {
	rec, err := s.store.UpdateByID(ctx, sensorID, document.Patch{
		"isHostedBy": document.Unset(),
	})
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// Register claims the sensor holding the given registration key as the
// entity named by registeredAs. The claim is write-once: a second claim is
// Forbidden even with an identical value.
func (s *Service) Register(ctx context.Context, key, registeredAs string) (*Sensor, error) {
	if registeredAs == "" {
		return nil, apperr.BadRequest("registration target is required")
	}
	rec, err := s.store.ClaimRegistration(ctx, key, registeredAs)
	if err != nil {
		return nil, err
	}
	s.log.Info("sensor registered", "id", rec.ID, "registeredAs", registeredAs)
	return fromRecord(rec)
}

// Deregister clears the sensor's registration claim. Deregistering an
// already-unregistered sensor is a no-op, not an error.
func (s *Service) Deregister(ctx context.Context, id string) error {
	return s.store.ClearRegistration(ctx, id)
}

// Delete soft-deletes a sensor, clearing its placement references so the
// tombstone never dangles.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.SoftDelete(ctx, id, "isHostedBy", "permanentHost"); err != nil {
		return err
	}
	s.log.Info("sensor deleted", "id", id)
	return nil
}

// UnhostByDeployment clears the hosting reference of sensors hosted on the
// deployment's platforms but not belonging to the deployment. Used when a
// deployment goes private or is deleted.
func (s *Service) UnhostByDeployment(ctx context.Context, deploymentID string) (int64, error) {
	n, err := s.store.UnhostByDeployment(ctx, deploymentID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("sensors unhosted", "deployment", deploymentID, "count", n)
	}
	return n, nil
}

// Live reports whether a sensor exists and is not deleted, satisfying the
// Directory contract for other services.
func (s *Service) Live(ctx context.Context, id string) error {
	_, err := s.store.GetByID(ctx, id)
	return err
}

// HostedOn verifies that a live sensor is hosted on the given platform.
func (s *Service) HostedOn(ctx context.Context, sensorID, platformID string) error {
	sen, err := s.Get(ctx, sensorID, false)
	if err != nil {
		return err
	}
	if sen.IsHostedBy == nil || *sen.IsHostedBy != platformID {
		return apperr.Forbidden("sensor %q is not hosted on %q", sensorID, platformID)
	}
	return nil
}

// CarriedBy verifies that a live sensor rides the given permanent host.
func (s *Service) CarriedBy(ctx context.Context, sensorID, hostID string) error {
	sen, err := s.Get(ctx, sensorID, false)
	if err != nil {
		return err
	}
	if sen.PermanentHost == nil || *sen.PermanentHost != hostID {
		return apperr.Forbidden("sensor %q is not carried by %q", sensorID, hostID)
	}
	return nil
}

// checkAllowed rejects patches touching fields outside the updatable set.
func checkAllowed(patch document.Patch) error {
	allowed := make(map[string]bool, len(UpdatableFields))
	for _, f := range UpdatableFields {
		allowed[f] = true
	}
	for name := range patch {
		if !allowed[name] {
			return apperr.BadRequest("field %q cannot be updated", name)
		}
	}
	return nil
}
