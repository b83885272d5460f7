package mqtt

import "fmt"

// Topic prefixes for the deployment service.
//
// All request/response traffic uses the scheme:
//
//	deployd/request/{resource}/{operation}
//
// Replies go to the caller-supplied reply topic in the request envelope.
// Uncensored error detail is published to deployd/errors/{event} for
// operators with access to the private error stream.
const (
	// TopicPrefix is the base for all deployment service topics.
	TopicPrefix = "deployd"

	// TopicPrefixRequest is the base for inbound request topics.
	TopicPrefixRequest = "deployd/request"

	// TopicPrefixErrors is the base for uncensored error detail topics.
	TopicPrefixErrors = "deployd/errors"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "deployd/system"
)

// Topics provides builders for deployment service MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	reqTopic := topics.Request("sensor", "create")
//	// Returns: "deployd/request/sensor/create"
type Topics struct{}

// Request returns the topic a caller publishes to for a resource operation.
//
// Example: deployd/request/sensor/create
func (Topics) Request(resource, operation string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixRequest, resource, operation)
}

// AllRequests returns a pattern matching every request topic for a resource.
//
// Pattern: deployd/request/sensor/+
func (Topics) AllRequests(resource string) string {
	return fmt.Sprintf("%s/%s/+", TopicPrefixRequest, resource)
}

// Errors returns the topic for uncensored error detail on a failed event.
// Subscribers to this topic are trusted operators; the reply sent to the
// caller carries only the censored public message.
//
// Example: deployd/errors/created
func (Topics) Errors(event string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixErrors, event)
}

// AllErrors returns a pattern matching all error detail topics.
//
// Pattern: deployd/errors/+
func (Topics) AllErrors() string {
	return fmt.Sprintf("%s/+", TopicPrefixErrors)
}

// SystemStatus returns the retained service status topic. The broker
// publishes the Last Will here if the service dies without saying goodbye.
//
// Example: deployd/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: deployd/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// AllTopics returns a pattern matching all deployment service topics.
// Use with caution, this receives ALL traffic.
//
// Pattern: deployd/#
func (Topics) AllTopics() string {
	return fmt.Sprintf("%s/#", TopicPrefix)
}
