package permanenthost

import (
	"encoding/json"
	"time"

	"github.com/urbanfield/deployment-core/internal/document"
)

// PermanentHost is a physical device identity (a van, a reusable logger
// chassis) that sensors attach to permanently. It can be registered into
// at most one deployment at a time via its registration key.
type PermanentHost struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	RegistrationKey string  `json:"registrationKey,omitempty"`
	RegisteredAs    *string `json:"registeredAs,omitempty"`

	// Static marks a host that never moves. Incompatible with
	// UpdateLocationWithSensor.
	Static bool `json:"static"`

	// UpdateLocationWithSensor names an attached sensor whose location
	// observations drive this host's location.
	UpdateLocationWithSensor *string `json:"updateLocationWithSensor,omitempty"`

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
}

func fromRecord(rec *document.Record) (*PermanentHost, error) {
	var d doc
	if err := json.Unmarshal(rec.Doc, &d); err != nil {
		return nil, err
	}
	return &PermanentHost{
		ID:                       rec.ID,
		Name:                     d.Name,
		Description:              d.Description,
		RegistrationKey:          rec.RegistrationKey,
		RegisteredAs:             d.RegisteredAs,
		Static:                   d.Static,
		UpdateLocationWithSensor: d.UpdateLocationWithSensor,
		CreatedAt:                rec.CreatedAt,
		UpdatedAt:                rec.UpdatedAt,
		DeletedAt:                rec.DeletedAt,
	}, nil
}
