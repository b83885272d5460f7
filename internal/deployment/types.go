package deployment

import (
	"encoding/json"
	"time"

	"github.com/urbanfield/deployment-core/internal/document"
)

// Deployment is a named campaign that platforms and sensors belong to.
// Visibility matters to the lifecycle core: when a deployment goes private
// or is deleted, sensors that piggyback on its platforms without belonging
// to it lose their hosting.
type Deployment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Public      bool   `json:"public"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

type doc struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Public      bool   `json:"public"`
}

func fromRecord(rec *document.Record) (*Deployment, error) {
	var d doc
	if err := json.Unmarshal(rec.Doc, &d); err != nil {
		return nil, err
	}
	return &Deployment{
		ID:          rec.ID,
		Name:        d.Name,
		Description: d.Description,
		Public:      d.Public,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		DeletedAt:   rec.DeletedAt,
	}, nil
}
