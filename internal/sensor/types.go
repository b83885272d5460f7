package sensor

import (
	"encoding/json"
	"time"

	"github.com/urbanfield/deployment-core/internal/document"
)

// Sensor is an observing device. It is placed either by being hosted on a
// platform (isHostedBy) or by riding a permanent host (permanentHost);
// the two placement mechanisms are mutually exclusive.
type Sensor struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	RegistrationKey string  `json:"registrationKey,omitempty"`
	RegisteredAs    *string `json:"registeredAs,omitempty"`

	// IsHostedBy is the platform currently carrying this sensor.
	IsHostedBy *string `json:"isHostedBy,omitempty"`

	// PermanentHost is the physical device identity this sensor is
	// permanently attached to. When set, IsHostedBy may only follow the
	// host's own hosting state, never be set independently.
	PermanentHost *string `json:"permanentHost,omitempty"`

	// HasDeployment is the deployment this sensor belongs to.
	HasDeployment *string `json:"hasDeployment,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// doc is the subset of Sensor stored in the document body. The envelope
// columns (id, key, timestamps) live outside it.
type doc struct {
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	RegisteredAs  *string `json:"registeredAs,omitempty"`
	IsHostedBy    *string `json:"isHostedBy,omitempty"`
	PermanentHost *string `json:"permanentHost,omitempty"`
	HasDeployment *string `json:"hasDeployment,omitempty"`
}

// fromRecord rehydrates a Sensor from its storage envelope.
func fromRecord(rec *document.Record) (*Sensor, error) {
	var d doc
	if err := json.Unmarshal(rec.Doc, &d); err != nil {
		return nil, err
	}
	return &Sensor{
		ID:              rec.ID,
		Name:            d.Name,
		Description:     d.Description,
		RegistrationKey: rec.RegistrationKey,
		RegisteredAs:    d.RegisteredAs,
		IsHostedBy:      d.IsHostedBy,
		PermanentHost:   d.PermanentHost,
		HasDeployment:   d.HasDeployment,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
		DeletedAt:       rec.DeletedAt,
	}, nil
}
