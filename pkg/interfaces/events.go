package interfaces

import (
	"time"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// EventType enumerates the lifecycle events exposed to external consumers
type EventType string

const (
	EventOpportunityFound   EventType = "opportunityFound"
	EventExecutionStarted   EventType = "executionStarted"
	EventExecutionCompleted EventType = "executionCompleted"
	EventExecutionFailed    EventType = "executionFailed"
	EventBundleCreated      EventType = "bundleCreated"
	EventBundleSubmitted    EventType = "bundleSubmitted"
	EventBundleIncluded     EventType = "bundleIncluded"
	EventBundleLanded       EventType = "bundleLanded"
	EventBundleFailed       EventType = "bundleFailed"
	EventError              EventType = "error"
)

// Event is one discrete lifecycle message. Exactly one of the payload fields
// is set depending on the event type.
type Event struct {
	Type        EventType                  `json:"type"`
	Chain       types.Chain                `json:"chain,omitempty"`
	Timestamp   time.Time                  `json:"timestamp"`
	Opportunity *types.SandwichOpportunity `json:"opportunity,omitempty"`
	Bundle      *types.Bundle              `json:"bundle,omitempty"`
	Result      *types.ExecutionResult     `json:"result,omitempty"`
	Err         string                     `json:"error,omitempty"`
}

// EventPublisher emits lifecycle events to all registered subscribers
type EventPublisher interface {
	Publish(event Event)
}

// EventBus is the full pub/sub surface: publishing plus subscriber management
type EventBus interface {
	EventPublisher
	Subscribe(buffer int) (<-chan Event, func())
}
