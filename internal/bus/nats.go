package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/nats-io/nats.go"
)

// SubjectPrefix namespaces every subject published by ChainFlow.
const SubjectPrefix = "chainflow"

// Subject builds the tenant-scoped NATS subject for a topic.
func Subject(tenantID, topic string) string {
	return SubjectPrefix + "." + tenantID + "." + topic
}

var errTenantRequired = errors.New("tenantID is required")

// NATSBus carries events over NATS core subjects. When a queue group is
// configured, replicas subscribing to the same subject share its messages,
// so each verification request is processed once per cluster.
type NATSBus struct {
	conn       *nats.Conn
	queueGroup string
}

type natsSubscription struct {
	topic string
	sub   *nats.Subscription
}

// NewNATSBus dials NATS, retrying the initial connection up to
// NATSMaxReconnects times.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	attempts := cfg.NATSMaxReconnects
	if attempts <= 0 {
		attempts = 10
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if wait <= 0 {
		wait = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name("chainflow"),
		nats.MaxReconnects(attempts),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			var subject string
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("nats async error", "subject", subject, "error", err)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	var (
		conn *nats.Conn
		err  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		if conn, err = nats.Connect(url, opts...); err == nil {
			break
		}
		slog.Warn("nats connect failed", "attempt", attempt, "max_attempts", attempts, "error", err)
		if attempt < attempts {
			time.Sleep(wait)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", attempts, err)
	}

	slog.Info("nats connected",
		"url", conn.ConnectedUrl(),
		"server_id", conn.ConnectedServerId(),
		"queue_group", cfg.NATSQueueGroup,
	)

	return &NATSBus{
		conn:       conn,
		queueGroup: cfg.NATSQueueGroup,
	}, nil
}

func (b *NATSBus) encode(tenantID, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, errTenantRequired
	}
	data, err := json.Marshal(newMessage(tenantID, topic, payload))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

// Publish sends an enveloped message on the tenant's subject for topic.
func (b *NATSBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	data, err := b.encode(tenantID, topic, payload)
	if err != nil {
		return err
	}
	return b.conn.Publish(Subject(tenantID, topic), data)
}

// Subscribe attaches handler to the tenant's subject for topic. Handler
// errors are logged; NATS core has no redelivery.
func (b *NATSBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, errTenantRequired
	}

	cb := func(m *nats.Msg) {
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			slog.Error("dropping undecodable nats message", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(ctx, &msg); err != nil {
			slog.Error("handler error", "subject", m.Subject, "message_id", msg.ID, "error", err)
			return
		}
		if m.Reply != "" {
			// Request callers get the handled message back as acknowledgement.
			if err := m.Respond(m.Data); err != nil {
				slog.Warn("failed to respond", "subject", m.Subject, "error", err)
			}
		}
	}

	subject := Subject(tenantID, topic)
	var (
		ns  *nats.Subscription
		err error
	)
	if b.queueGroup != "" {
		ns, err = b.conn.QueueSubscribe(subject, b.queueGroup, cb)
	} else {
		ns, err = b.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	return &natsSubscription{topic: topic, sub: ns}, nil
}

// Request publishes and waits for the first reply. ChainFlow subscribers
// reply by echoing the message once their handler succeeds, so the returned
// payload is the request payload. Without a context deadline the wait is
// bounded at 30s.
func (b *NATSBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	data, err := b.encode(tenantID, topic, payload)
	if err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	reply, err := b.conn.RequestWithContext(ctx, Subject(tenantID, topic), data)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	var msg domain.Message
	if err := json.Unmarshal(reply.Data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reply: %w", err)
	}
	return msg.Payload, nil
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats not connected: %s", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains subscriptions so in-flight handlers finish, then closes the
// connection.
func (b *NATSBus) Close() error {
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("failed to drain nats connection: %w", err)
	}
	return nil
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Topic() string {
	return s.topic
}
