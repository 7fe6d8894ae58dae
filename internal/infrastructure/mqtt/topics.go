package mqtt

import "fmt"

// TopicPrefix is the root of every topic this service uses.
const TopicPrefix = "graylogic/irlearn"

// Topics provides builders for IR Learn MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.LearnCommand("remote.living_room")
//	// Returns: "graylogic/irlearn/command/remote.living_room"
type Topics struct{}

// =============================================================================
// Teaching service
// =============================================================================

// LearnCommand returns the topic learn/delete directives are published on.
//
// Example: graylogic/irlearn/command/remote.living_room
func (Topics) LearnCommand(controller string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, controller)
}

// LearnAck returns the topic the teaching service acknowledges on.
//
// Example: graylogic/irlearn/ack/remote.living_room
func (Topics) LearnAck(controller string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, controller)
}

// AllLearnAcks matches acknowledgements for every controller.
//
// Pattern: graylogic/irlearn/ack/+
func (Topics) AllLearnAcks() string {
	return fmt.Sprintf("%s/ack/+", TopicPrefix)
}

// =============================================================================
// Control plane
// =============================================================================

// Request returns the topic a control request for action arrives on.
//
// Example: graylogic/irlearn/request/capture
func (Topics) Request(action string) string {
	return fmt.Sprintf("%s/request/%s", TopicPrefix, action)
}

// AllRequests matches every control request.
//
// Pattern: graylogic/irlearn/request/+
func (Topics) AllRequests() string {
	return fmt.Sprintf("%s/request/+", TopicPrefix)
}

// Response returns the topic the reply to requestID is published on.
//
// Example: graylogic/irlearn/response/req-abc123
func (Topics) Response(requestID string) string {
	return fmt.Sprintf("%s/response/%s", TopicPrefix, requestID)
}

// =============================================================================
// Events
// =============================================================================

// Event returns the topic for capture lifecycle events.
//
// Example: graylogic/irlearn/event/resolved
func (Topics) Event(kind string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, kind)
}

// Status returns the retained service status topic (online/offline, LWT).
//
// Example: graylogic/irlearn/status
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// LastSegment returns the final path element of topic, e.g. the controller
// of an ack topic or the action of a request topic.
func LastSegment(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return topic
}
