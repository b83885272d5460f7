// Package location stores immutable time-ranged location facts for
// platforms and permanent hosts. A record is never edited; movement is
// expressed by closing the current record and opening a new one, and the
// two steps happen in one transaction per owner so at most one record per
// owner is ever open.
package location

import (
	"encoding/json"
	"time"
)

// Location is one time-ranged location fact. EndDate nil means the record
// is current.
type Location struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"ownerId"`
	Geometry  json.RawMessage `json:"geometry"`
	StartDate time.Time       `json:"startDate"`
	EndDate   *time.Time      `json:"endDate,omitempty"`
}

// CreateParams describe a new current location for an owner.
type CreateParams struct {
	OwnerID  string
	Geometry json.RawMessage

	// StartDate defaults to now when zero. It also becomes the EndDate of
	// the previous current record.
	StartDate time.Time
}
