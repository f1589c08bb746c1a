package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Backed by Go channels (community) or NATS (pro).
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `koanf:"type" validate:"omitempty,oneof=channel nats"`

	ChannelBufferSize int `koanf:"channel_buffer_size"`

	NATSUrl           string `koanf:"nats_url"`
	NATSToken         string `koanf:"nats_token"`
	NATSMaxReconnects int    `koanf:"nats_max_reconnects"`
	NATSReconnectWait int    `koanf:"nats_reconnect_wait"` // seconds

	// NATSQueueGroup load-balances subscriptions across replicas when set.
	NATSQueueGroup string `koanf:"nats_queue_group"`
}

// Topics published by the service. NATS subjects are
// "chainflow.<tenant>.<topic>".
const (
	TopicRouteOptimized        = "route.optimized"
	TopicVerificationRequested = "verification.requested"
	TopicVerificationCompleted = "verification.completed"
	TopicVerificationRejected  = "verification.rejected"
	TopicShipmentUpdated       = "shipment.updated"
)
