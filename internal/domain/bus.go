package domain

import "context"

// EventBus defines the interface for event-driven communication.
// Backed by Go channels (Community) or NATS (Pro).
// All methods require orgID for strict multi-org isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, orgID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, orgID string, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, orgID string, topic string, payload []byte) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	OrgID     string            `json:"orgId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// Standard topic names for the scoring pipeline.
const (
	// TopicScoreRequested carries record references queued for async scoring.
	TopicScoreRequested = "kestrel.score.requested"

	// TopicAssessmentCompleted carries every finished assessment.
	TopicAssessmentCompleted = "kestrel.assessment.completed"

	// TopicAssessmentFlagged carries only assessments with raised flags.
	TopicAssessmentFlagged = "kestrel.assessment.flagged"

	// TopicConfigUpdated signals that rules or scoring config changed and
	// cached snapshots should be discarded.
	TopicConfigUpdated = "kestrel.config.updated"
)
