package eventbus

import (
	"fmt"
	"strings"

	"github.com/amirasaad/treasury/pkg/domain/events"
)

// nameFor maps "Comp.SettlementRequested" under prefix "treasury" to
// "treasury:comp:settlementrequested".
func nameFor(prefix string, eventType events.EventType) string {
	parts := strings.Split(eventType.String(), ".")
	if len(parts) == 2 {
		return fmt.Sprintf(
			"%s:%s:%s",
			prefix,
			strings.ToLower(parts[0]),
			strings.ToLower(parts[1]))
	}
	return fmt.Sprintf("%s:%s", prefix, strings.ToLower(eventType.String()))
}

func streamNameFor(prefix string, eventType events.EventType) string {
	return nameFor(prefix+":events", eventType)
}

func dlqStreamName(prefix string, eventType events.EventType) string {
	return nameFor(prefix+":dlq", eventType)
}

func groupNameFor(prefix string, eventType events.EventType) string {
	return nameFor(prefix+":group", eventType)
}

func topicNameFor(prefix string, eventType events.EventType) string {
	return fmt.Sprintf("%s.events.%s", prefix, strings.ToLower(eventType.String()))
}

func dlqTopicNameFor(prefix string, eventType events.EventType) string {
	return fmt.Sprintf("%s.dlq.%s", prefix, strings.ToLower(eventType.String()))
}
