package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/urbanfield/deployment-core/internal/apperr"
	"github.com/urbanfield/deployment-core/internal/audit"
	"github.com/urbanfield/deployment-core/internal/deployment"
	"github.com/urbanfield/deployment-core/internal/document"
	"github.com/urbanfield/deployment-core/internal/location"
	"github.com/urbanfield/deployment-core/internal/permanenthost"
	"github.com/urbanfield/deployment-core/internal/platform"
	"github.com/urbanfield/deployment-core/internal/sensor"
)

// Bus resource segments. These appear in request and error topics and are
// stable once published.
const (
	ResourceSensors     = "sensors"
	ResourcePlatforms   = "platforms"
	ResourceHosts       = "permanent-hosts"
	ResourceDeployments = "deployments"
	ResourceLocations   = "locations"
)

// Services bundles the entity services the bus exposes.
type Services struct {
	Sensors     *sensor.Service
	Platforms   *platform.Service
	Hosts       *permanenthost.Service
	Deployments *deployment.Service
	Locations   *location.Store
}

// decode unmarshals a request body strictly: unknown fields are rejected
// so typos fail loudly instead of being silently ignored.
func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.BadRequest("invalid request body: %v", err)
	}
	return nil
}

// ack is the minimal reply body for operations whose only outcome is
// "it happened to this resource".
type ack struct {
	ID string `json:"id"`
}

// idRequest addresses a single resource.
type idRequest struct {
	ID             string `json:"id"`
	IncludeDeleted bool   `json:"includeDeleted,omitempty"`
}

type keyRequest struct {
	RegistrationKey string `json:"registrationKey"`
}

type registerRequest struct {
	RegistrationKey string `json:"registrationKey"`
	RegisteredAs    string `json:"registeredAs"`
}

type pageRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

type updateRequest struct {
	ID     string          `json:"id"`
	Fields json.RawMessage `json:"fields"`
}

// RegisterAll declares every bus operation on the manager, in a fixed
// order. Declaration order is the startup registration order.
func RegisterAll(d *Dispatcher, mgr *Manager, svc Services) {
	registerSensors(d, mgr, svc.Sensors)
	registerPlatforms(d, mgr, svc.Platforms)
	registerHosts(d, mgr, svc.Hosts)
	registerDeployments(d, mgr, svc.Deployments)
	registerLocations(d, mgr, svc.Locations)
}

func registerSensors(d *Dispatcher, mgr *Manager, svc *sensor.Service) {
	d.Route(mgr, ResourceSensors, "create", audit.ActionCreated,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req struct {
				ID            string  `json:"id,omitempty"`
				Name          string  `json:"name"`
				Description   string  `json:"description,omitempty"`
				IsHostedBy    *string `json:"isHostedBy,omitempty"`
				PermanentHost *string `json:"permanentHost,omitempty"`
				HasDeployment *string `json:"hasDeployment,omitempty"`
			}
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			s, err := svc.Create(ctx, sensor.CreateParams{
				ID:            req.ID,
				Name:          req.Name,
				Description:   req.Description,
				IsHostedBy:    req.IsHostedBy,
				PermanentHost: req.PermanentHost,
				HasDeployment: req.HasDeployment,
			})
			if err != nil {
				return nil, err
			}
			return &Result{Body: s, ResourceID: s.ID}, nil
		})

	d.Route(mgr, ResourceSensors, "get", "",
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req idRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			s, err := svc.Get(ctx, req.ID, req.IncludeDeleted)
			if err != nil {
				return nil, err
			}
			return &Result{Body: s, ResourceID: s.ID}, nil
		})

	d.Route(mgr, ResourceSensors, "get-by-key", "",
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req keyRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			s, err := svc.GetByKey(ctx, req.RegistrationKey)
			if err != nil {
				return nil, err
			}
			return &Result{Body: s, ResourceID: s.ID}, nil
		})

	d.Route(mgr, ResourceSensors, "list", "",
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req struct {
				IsHostedBy    *string `json:"isHostedBy,omitempty"`
				PermanentHost *string `json:"permanentHost,omitempty"`
				HasDeployment *string `json:"hasDeployment,omitempty"`
				pageRequest
			}
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			list, err := svc.List(ctx, sensor.ListFilter{
				IsHostedBy:    req.IsHostedBy,
				PermanentHost: req.PermanentHost,
				HasDeployment: req.HasDeployment,
			}, document.Page{Limit: req.Limit, Offset: req.Offset})
			if err != nil {
				return nil, err
			}
			return &Result{Body: list}, nil
		})

	d.Route(mgr, ResourceSensors, "update", audit.ActionUpdated,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req updateRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			patch, err := document.ParsePatch(req.Fields, sensor.UpdatableFields)
			if err != nil {
				return nil, err
			}
			s, err := svc.Update(ctx, req.ID, patch)
			if err != nil {
				return nil, err
			}
			return &Result{Body: s, ResourceID: s.ID}, nil
		})

	d.Route(mgr, ResourceSensors, "host", audit.ActionUpdated,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req struct {
				SensorID   string `json:"sensorId"`
				PlatformID string `json:"platformId"`
			}
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			s, err := svc.Host(ctx, req.SensorID, req.PlatformID)
			if err != nil {
				return nil, err
			}
			return &Result{Body: s, ResourceID: s.ID}, nil
		})

	d.Route(mgr, ResourceSensors, "unhost", audit.ActionUnhosted,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req idRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			s, err := svc.Unhost(ctx, req.ID)
			if err != nil {
				return nil, err
			}
			return &Result{Body: s, ResourceID: s.ID}, nil
		})

	d.Route(mgr, ResourceSensors, "register", audit.ActionRegistered,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req registerRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			s, err := svc.Register(ctx, req.RegistrationKey, req.RegisteredAs)
			if err != nil {
				return nil, err
			}
			return &Result{Body: s, ResourceID: s.ID}, nil
		})

	d.Route(mgr, ResourceSensors, "deregister", audit.ActionDeregistered,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req idRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			if err := svc.Deregister(ctx, req.ID); err != nil {
				return nil, err
			}
			return &Result{Body: ack{ID: req.ID}, ResourceID: req.ID}, nil
		})

	d.Route(mgr, ResourceSensors, "delete", audit.ActionDeleted,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req idRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			if err := svc.Delete(ctx, req.ID); err != nil {
				return nil, err
			}
			return &Result{Body: ack{ID: req.ID}, ResourceID: req.ID}, nil
		})
}

func registerPlatforms(d *Dispatcher, mgr *Manager, svc *platform.Service) {
	d.Route(mgr, ResourcePlatforms, "create", audit.ActionCreated,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req struct {
				ID            string  `json:"id,omitempty"`
				Name          string  `json:"name"`
				Description   string  `json:"description,omitempty"`
				Static        bool    `json:"static,omitempty"`
				HasDeployment *string `json:"hasDeployment,omitempty"`
			}
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			p, err := svc.Create(ctx, platform.CreateParams{
				ID:            req.ID,
				Name:          req.Name,
				Description:   req.Description,
				Static:        req.Static,
				HasDeployment: req.HasDeployment,
			})
			if err != nil {
				return nil, err
			}
			return &Result{Body: p, ResourceID: p.ID}, nil
		})

	d.Route(mgr, ResourcePlatforms, "get", "",
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req idRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			p, err := svc.Get(ctx, req.ID, req.IncludeDeleted)
			if err != nil {
				return nil, err
			}
			return &Result{Body: p, ResourceID: p.ID}, nil
		})

	d.Route(mgr, ResourcePlatforms, "get-by-key", "",
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req keyRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			p, err := svc.GetByKey(ctx, req.RegistrationKey)
			if err != nil {
				return nil, err
			}
			return &Result{Body: p, ResourceID: p.ID}, nil
		})

	d.Route(mgr, ResourcePlatforms, "list", "",
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req struct {
				HasDeployment *string `json:"hasDeployment,omitempty"`
				pageRequest
			}
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			list, err := svc.List(ctx, req.HasDeployment,
				document.Page{Limit: req.Limit, Offset: req.Offset})
			if err != nil {
				return nil, err
			}
			return &Result{Body: list}, nil
		})

	d.Route(mgr, ResourcePlatforms, "update", audit.ActionUpdated,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req updateRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			patch, err := document.ParsePatch(req.Fields, platform.UpdatableFields)
			if err != nil {
				return nil, err
			}
			p, err := svc.Update(ctx, req.ID, patch)
			if err != nil {
				return nil, err
			}
			return &Result{Body: p, ResourceID: p.ID}, nil
		})

	d.Route(mgr, ResourcePlatforms, "register", audit.ActionRegistered,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req registerRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			p, err := svc.Register(ctx, req.RegistrationKey, req.RegisteredAs)
			if err != nil {
				return nil, err
			}
			return &Result{Body: p, ResourceID: p.ID}, nil
		})

	d.Route(mgr, ResourcePlatforms, "deregister", audit.ActionDeregistered,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req idRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			if err := svc.Deregister(ctx, req.ID); err != nil {
				return nil, err
			}
			return &Result{Body: ack{ID: req.ID}, ResourceID: req.ID}, nil
		})

	d.Route(mgr, ResourcePlatforms, "delete", audit.ActionDeleted,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req idRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			if err := svc.Delete(ctx, req.ID); err != nil {
				return nil, err
			}
			return &Result{Body: ack{ID: req.ID}, ResourceID: req.ID}, nil
		})
}

func registerHosts(d *Dispatcher, mgr *Manager, svc *permanenthost.Service) {
	d.Route(mgr, ResourceHosts, "create", audit.ActionCreated,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req struct {
				ID          string `json:"id,omitempty"`
				Name        string `json:"name"`
				Description string `json:"description,omitempty"`
				Static      bool   `json:"static,omitempty"`
			}
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			h, err := svc.Create(ctx, permanenthost.CreateParams{
				ID:          req.ID,
				Name:        req.Name,
				Description: req.Description,
				Static:      req.Static,
			})
			if err != nil {
				return nil, err
			}
			return &Result{Body: h, ResourceID: h.ID}, nil
		})

	d.Route(mgr, ResourceHosts, "get", "",
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req idRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			h, err := svc.Get(ctx, req.ID, req.IncludeDeleted)
			if err != nil {
				return nil, err
			}
			return &Result{Body: h, ResourceID: h.ID}, nil
		})

	d.Route(mgr, ResourceHosts, "get-by-key", "",
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req keyRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			h, err := svc.GetByKey(ctx, req.RegistrationKey)
			if err != nil {
				return nil, err
			}
			return &Result{Body: h, ResourceID: h.ID}, nil
		})

	d.Route(mgr, ResourceHosts, "list", "",
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req pageRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			list, err := svc.List(ctx, document.Page{Limit: req.Limit, Offset: req.Offset})
			if err != nil {
				return nil, err
			}
			return &Result{Body: list}, nil
		})

	d.Route(mgr, ResourceHosts, "update", audit.ActionUpdated,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req updateRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			patch, err := document.ParsePatch(req.Fields, permanenthost.UpdatableFields)
			if err != nil {
				return nil, err
			}
			h, err := svc.Update(ctx, req.ID, patch)
			if err != nil {
				return nil, err
			}
			return &Result{Body: h, ResourceID: h.ID}, nil
		})

	d.Route(mgr, ResourceHosts, "register", audit.ActionRegistered,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req registerRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			h, err := svc.Register(ctx, req.RegistrationKey, req.RegisteredAs)
			if err != nil {
				return nil, err
			}
			return &Result{Body: h, ResourceID: h.ID}, nil
		})

	d.Route(mgr, ResourceHosts, "deregister", audit.ActionDeregistered,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req idRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			if err := svc.Deregister(ctx, req.ID); err != nil {
				return nil, err
			}
			return &Result{Body: ack{ID: req.ID}, ResourceID: req.ID}, nil
		})

	d.Route(mgr, ResourceHosts, "delete", audit.ActionDeleted,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req idRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			if err := svc.Delete(ctx, req.ID); err != nil {
				return nil, err
			}
			return &Result{Body: ack{ID: req.ID}, ResourceID: req.ID}, nil
		})
}

func registerDeployments(d *Dispatcher, mgr *Manager, svc *deployment.Service) {
	d.Route(mgr, ResourceDeployments, "create", audit.ActionCreated,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req struct {
				ID          string `json:"id,omitempty"`
				Name        string `json:"name"`
				Description string `json:"description,omitempty"`
				Public      bool   `json:"public,omitempty"`
			}
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			dep, err := svc.Create(ctx, deployment.CreateParams{
				ID:          req.ID,
				Name:        req.Name,
				Description: req.Description,
				Public:      req.Public,
			})
			if err != nil {
				return nil, err
			}
			return &Result{Body: dep, ResourceID: dep.ID}, nil
		})

	d.Route(mgr, ResourceDeployments, "get", "",
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req idRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			dep, err := svc.Get(ctx, req.ID, req.IncludeDeleted)
			if err != nil {
				return nil, err
			}
			return &Result{Body: dep, ResourceID: dep.ID}, nil
		})

	d.Route(mgr, ResourceDeployments, "list", "",
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req pageRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			list, err := svc.List(ctx, document.Page{Limit: req.Limit, Offset: req.Offset})
			if err != nil {
				return nil, err
			}
			return &Result{Body: list}, nil
		})

	d.Route(mgr, ResourceDeployments, "update", audit.ActionUpdated,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req updateRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			patch, err := document.ParsePatch(req.Fields, deployment.UpdatableFields)
			if err != nil {
				return nil, err
			}
			dep, err := svc.Update(ctx, req.ID, patch)
			if err != nil {
				return nil, err
			}
			return &Result{Body: dep, ResourceID: dep.ID}, nil
		})

	d.Route(mgr, ResourceDeployments, "delete", audit.ActionDeleted,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req idRequest
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			if err := svc.Delete(ctx, req.ID); err != nil {
				return nil, err
			}
			return &Result{Body: ack{ID: req.ID}, ResourceID: req.ID}, nil
		})
}

func registerLocations(d *Dispatcher, mgr *Manager, svc *location.Store) {
	d.Route(mgr, ResourceLocations, "set", audit.ActionCreated,
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req struct {
				OwnerID   string          `json:"ownerId"`
				Geometry  json.RawMessage `json:"geometry"`
				StartDate time.Time       `json:"startDate,omitempty"`
			}
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			loc, err := svc.Create(ctx, location.CreateParams{
				OwnerID:   req.OwnerID,
				Geometry:  req.Geometry,
				StartDate: req.StartDate,
			})
			if err != nil {
				return nil, err
			}
			return &Result{Body: loc, ResourceID: loc.OwnerID}, nil
		})

	d.Route(mgr, ResourceLocations, "current", "",
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req struct {
				OwnerID string `json:"ownerId"`
			}
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			loc, err := svc.Current(ctx, req.OwnerID)
			if err != nil {
				return nil, err
			}
			return &Result{Body: loc, ResourceID: loc.OwnerID}, nil
		})

	d.Route(mgr, ResourceLocations, "history", "",
		func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			var req struct {
				OwnerID string `json:"ownerId"`
				pageRequest
			}
			if err := decode(raw, &req); err != nil {
				return nil, err
			}
			list, err := svc.History(ctx, req.OwnerID, req.Limit, req.Offset)
			if err != nil {
				return nil, err
			}
			return &Result{Body: list}, nil
		})
}
