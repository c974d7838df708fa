package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/qwerty-development/tableflow/internal/domain"
)

// NotificationSink delivers emitted notifications to staff.
type NotificationSink interface {
	Deliver(ctx context.Context, ns []domain.Notification) error
}

// Publisher publishes JSON messages to a topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewPublisher dials the broker and declares the exchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// PublishJSON publishes v as a persistent JSON message.
func (p *Publisher) PublishJSON(ctx context.Context, key, messageID string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Body:         b,
	})
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// AMQPSink publishes each notification with key conflict.<threshold>.
type AMQPSink struct {
	pub *Publisher
}

// NewAMQPSink wraps a publisher.
func NewAMQPSink(pub *Publisher) *AMQPSink { return &AMQPSink{pub: pub} }

// Deliver publishes every notification, continuing past failures.
func (s *AMQPSink) Deliver(ctx context.Context, ns []domain.Notification) error {
	var errs []error
	for _, n := range ns {
		if err := s.pub.PublishJSON(ctx, NotificationKey(n), n.ID, n); err != nil {
			errs = append(errs, fmt.Errorf("publish notification %s: %w", n.ID, err))
		}
	}
	return errors.Join(errs...)
}

// ChangePublisher announces engine-side transitions on the change
// exchange so other services see them.
type ChangePublisher struct {
	pub *Publisher
}

// NewChangePublisher wraps a publisher bound to the change exchange.
func NewChangePublisher(pub *Publisher) *ChangePublisher { return &ChangePublisher{pub: pub} }

// Publish sends ev under its routing key.
func (c *ChangePublisher) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	key, err := RoutingKey(ev.Type)
	if err != nil {
		return err
	}
	return c.pub.PublishJSON(ctx, key, "", ev)
}

// LogSink writes notifications to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver logs each notification at warn level.
func (s LogSink) Deliver(_ context.Context, ns []domain.Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, n := range ns {
		logger.Warn(n.Title,
			"event", "notification",
			"restaurant_id", n.RestaurantID,
			"conflict_id", n.ConflictID,
			"notification_id", n.ID,
			"threshold", n.Threshold,
			"tables", n.TableNumbers,
			"message", n.Message,
		)
	}
	return nil
}

// MultiSink fans out to every sink and joins their errors.
type MultiSink []NotificationSink

// Deliver implements NotificationSink.
func (m MultiSink) Deliver(ctx context.Context, ns []domain.Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, ns); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink records deliveries in memory.
type MemorySink struct {
	mu        sync.Mutex
	delivered []domain.Notification
}

// Deliver implements NotificationSink.
func (m *MemorySink) Deliver(_ context.Context, ns []domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, ns...)
	return nil
}

// Delivered returns a copy of everything delivered so far.
func (m *MemorySink) Delivered() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Notification(nil), m.delivered...)
}
