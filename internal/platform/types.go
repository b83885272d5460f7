package platform

import (
	"encoding/json"
	"time"

	"github.com/urbanfield/deployment-core/internal/document"
)

// Platform is a structure that carries sensors: a buoy, a mast, a vehicle.
// A mobile platform may keep its own location current by following one of
// its hosted sensors; a static platform declares a fixed position and may
// not carry such a reference.
type Platform struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	RegistrationKey string  `json:"registrationKey,omitempty"`
	RegisteredAs    *string `json:"registeredAs,omitempty"`

	// Static marks a platform that never moves. Incompatible with
	// UpdateLocationWithSensor.
	Static bool `json:"static"`

	// UpdateLocationWithSensor names a hosted sensor whose location
	// observations drive this platform's location.
	UpdateLocationWithSensor *string `json:"updateLocationWithSensor,omitempty"`

	// HasDeployment is the deployment this platform belongs to.
	HasDeployment *string `json:"hasDeployment,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

type doc struct {
	Name                     string  `json:"name"`
	Description              string  `json:"description,omitempty"`
	RegisteredAs             *string `json:"registeredAs,omitempty"`
	Static                   bool    `json:"static"`
	UpdateLocationWithSensor *string `json:"updateLocationWithSensor,omitempty"`
	HasDeployment            *string `json:"hasDeployment,omitempty"`
}

func fromRecord(rec *document.Record) (*Platform, error) {
	var d doc
	if err := json.Unmarshal(rec.Doc, &d); err != nil {
		return nil, err
	}
	return &Platform{
		ID:                       rec.ID,
		Name:                     d.Name,
		Description:              d.Description,
		RegistrationKey:          rec.RegistrationKey,
		RegisteredAs:             d.RegisteredAs,
		Static:                   d.Static,
		UpdateLocationWithSensor: d.UpdateLocationWithSensor,
		HasDeployment:            d.HasDeployment,
		CreatedAt:                rec.CreatedAt,
		UpdatedAt:                rec.UpdatedAt,
		DeletedAt:                rec.DeletedAt,
	}, nil
}
