package audit

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Lifecycle actions recorded by the service. Values are stable; dashboards
// and retention policies key on them.
const (
	ActionCreated      = "created"
	ActionUpdated      = "updated"
	ActionDeleted      = "deleted"
	ActionRegistered   = "registered"
	ActionDeregistered = "deregistered"
	ActionUnhosted     = "unhosted"
)

// Event is a single lifecycle transition on a resource.
type Event struct {
	// ResourceType is the collection the resource belongs to
	// (sensor, platform, permanent_host, deployment).
	ResourceType string

	// ResourceID is the resource's identifier.
	ResourceID string

	// Action is one of the Action* constants.
	Action string

	// CorrelationID ties the event back to the bus request that caused it.
	CorrelationID string
}

// Record writes a lifecycle event as a point in the lifecycle_events
// measurement. The write is non-blocking; when the recorder is
// disconnected the event is dropped silently (the service log still
// carries it).
func (r *Recorder) Record(ev Event) {
	if !r.IsConnected() {
		return
	}

	point := write.NewPoint(
		"lifecycle_events",
		map[string]string{
			"resource_type": ev.ResourceType,
			"action":        ev.Action,
		},
		map[string]interface{}{
			"resource_id":    ev.ResourceID,
			"correlation_id": ev.CorrelationID,
		},
		time.Now(),
	)

	r.writeAPI.WritePoint(point)
}

// RecordFailure writes a failed operation as a point in the
// operation_failures measurement, tagged with the error kind so
// operators can alert on unexpected failure classes.
func (r *Recorder) RecordFailure(ev Event, kind string) {
	if !r.IsConnected() {
		return
	}

	point := write.NewPoint(
		"operation_failures",
		map[string]string{
			"resource_type": ev.ResourceType,
			"action":        ev.Action,
			"kind":          kind,
		},
		map[string]interface{}{
			"resource_id":    ev.ResourceID,
			"correlation_id": ev.CorrelationID,
		},
		time.Now(),
	)

	r.writeAPI.WritePoint(point)
}
