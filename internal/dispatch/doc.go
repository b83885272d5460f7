// Package dispatch connects the message bus to the entity services.
//
// A Manager holds the ordered set of logical subscriptions and keeps them
// alive across broker disconnects: registrations that fail while the bus
// is unreachable stay Pending and are retried on reconnect, and active
// ones are suspended and restored rather than dropped.
//
// A Dispatcher wraps each operation handler with the request envelope
// protocol: it decodes the envelope, runs the handler, publishes the
// censored reply, reports the uncensored failure on the operator error
// topic, and records the audit event. Entity services never see transport
// or correlation detail.
package dispatch
