package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/urbanfield/deployment-core/internal/apperr"
	"github.com/urbanfield/deployment-core/internal/audit"
	"github.com/urbanfield/deployment-core/internal/infrastructure/logging"
	"github.com/urbanfield/deployment-core/internal/infrastructure/mqtt"
)

// Bus is the slice of the message bus the dispatcher needs. *mqtt.Client
// satisfies it; tests substitute an in-memory fake.
type Bus interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Envelope is the wire shape of a request. Payload carries the
// operation-specific body untouched.
type Envelope struct {
	CorrelationID string          `json:"correlationId"`
	ReplyTo       string          `json:"replyTo,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Reply is the wire shape of a response published to the envelope's
// ReplyTo topic.
type Reply struct {
	CorrelationID string          `json:"correlationId"`
	OK            bool            `json:"ok"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Error         *WireError      `json:"error,omitempty"`
}

// WireError is the external form of a failed operation. It carries only
// the censored error: kind, public message, status, and the deletion
// timestamp when the target was soft-deleted. Private diagnostic detail
// never appears here.
type WireError struct {
	Kind      string     `json:"kind"`
	Message   string     `json:"message"`
	Status    int        `json:"status"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// errorReport is the uncensored form published to the operator-facing
// error topic. Unlike WireError it includes the private detail, so the
// error topic must not be exposed to external callers.
type errorReport struct {
	CorrelationID string `json:"correlationId"`
	Resource      string `json:"resource"`
	Operation     string `json:"operation"`
	Kind          string `json:"kind"`
	Message       string `json:"message"`
	Detail        string `json:"detail,omitempty"`
	Status        int    `json:"status"`
}

// Result is a successful handler outcome. Body becomes the reply payload;
// ResourceID feeds the audit trail for mutating operations.
type Result struct {
	Body       any
	ResourceID string
}

// HandlerFunc executes one operation against a service.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (*Result, error)

// Dispatcher routes bus requests to handlers and owns the reply, error
// publication, and audit concerns so the entity services stay free of
// transport detail.
type Dispatcher struct {
	bus   Bus
	audit *audit.Recorder
	qos   byte
	log   *logging.Logger

	baseCtx context.Context
}

// NewDispatcher creates a dispatcher. rec may be nil or disconnected;
// audit writes then become no-ops.
func NewDispatcher(ctx context.Context, bus Bus, rec *audit.Recorder, qos byte, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		bus:     bus,
		audit:   rec,
		qos:     qos,
		log:     log.With("component", "dispatch"),
		baseCtx: ctx,
	}
}

// Route declares the subscription for one operation on the manager. action
// is the audit action recorded on success, or empty for read operations,
// which are not audited.
func (d *Dispatcher) Route(mgr *Manager, resource, op, action string, h HandlerFunc) {
	name := resource + "/" + op
	topic := mqtt.Topics{}.Request(resource, op)
	mgr.Declare(name, func() error {
		return d.bus.Subscribe(topic, d.qos, d.handle(resource, op, action, h))
	})
}

// handle wraps a HandlerFunc into a bus message handler: decode the
// envelope, run the operation, reply, and record the outcome.
func (d *Dispatcher) handle(resource, op, action string, h HandlerFunc) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			appErr := apperr.BadRequest("malformed request envelope")
			appErr.Private = err.Error()
			d.fail(env, resource, op, action, "", appErr)
			return nil
		}
		if env.CorrelationID == "" {
			env.CorrelationID = uuid.NewString()
		}

		res, err := h(d.baseCtx, env.Payload)
		if err != nil {
			d.fail(env, resource, op, action, "", apperr.From(err))
			return nil
		}

		d.succeed(env, resource, op, action, res)
		return nil
	}
}

// succeed replies with the result body and records the audit event for
// mutating operations.
func (d *Dispatcher) succeed(env Envelope, resource, op, action string, res *Result) {
	if action != "" && d.audit != nil {
		d.audit.Record(audit.Event{
			ResourceType:  resource,
			ResourceID:    res.ResourceID,
			Action:        action,
			CorrelationID: env.CorrelationID,
		})
	}

	if env.ReplyTo == "" {
		return
	}

	body, err := json.Marshal(res.Body)
	if err != nil {
		d.log.Error("encoding reply body",
			"resource", resource, "op", op,
			"correlation_id", env.CorrelationID, "error", err)
		return
	}

	d.reply(env.ReplyTo, Reply{
		CorrelationID: env.CorrelationID,
		OK:            true,
		Payload:       body,
	})
}

// fail logs the full error, publishes the uncensored report to the error
// topic, records the failure, and replies with the censored form.
func (d *Dispatcher) fail(env Envelope, resource, op, action, resourceID string, appErr *apperr.Error) {
	d.log.Warn("operation failed",
		"resource", resource, "op", op,
		"correlation_id", env.CorrelationID,
		"kind", appErr.Kind.String(), "error", appErr)

	report, err := json.Marshal(errorReport{
		CorrelationID: env.CorrelationID,
		Resource:      resource,
		Operation:     op,
		Kind:          appErr.Kind.String(),
		Message:       appErr.Public,
		Detail:        appErr.Private,
		Status:        appErr.Status,
	})
	if err == nil {
		if perr := d.bus.Publish(mqtt.Topics{}.Errors(resource), report, d.qos, false); perr != nil {
			d.log.Warn("publishing error report", "resource", resource, "error", perr)
		}
	}

	if action != "" && d.audit != nil {
		d.audit.RecordFailure(audit.Event{
			ResourceType:  resource,
			ResourceID:    resourceID,
			Action:        action,
			CorrelationID: env.CorrelationID,
		}, appErr.Kind.String())
	}

	if env.ReplyTo == "" {
		return
	}

	censored := appErr.Censor()
	d.reply(env.ReplyTo, Reply{
		CorrelationID: env.CorrelationID,
		OK:            false,
		Error: &WireError{
			Kind:      censored.Kind.String(),
			Message:   censored.Public,
			Status:    censored.Status,
			DeletedAt: censored.DeletedAt,
		},
	})
}

func (d *Dispatcher) reply(topic string, r Reply) {
	buf, err := json.Marshal(r)
	if err != nil {
		d.log.Error("encoding reply", "topic", topic, "error", err)
		return
	}
	if err := d.bus.Publish(topic, buf, d.qos, false); err != nil {
		d.log.Warn("publishing reply", "topic", topic, "error", err)
	}
}
