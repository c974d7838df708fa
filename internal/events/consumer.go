package events

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/qwerty-development/tableflow/internal/domain"
)

// Handler receives decoded change events. Returning an error requeues the
// delivery.
type Handler func(ctx context.Context, ev domain.ChangeEvent) error

// ConsumerConfig configures the change-event consumer.
type ConsumerConfig struct {
	URL      string
	Exchange string
	Queue    string
	Bindings []string
	Prefetch int
	Tag      string
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.Exchange == "" {
		c.Exchange = DefaultChangeExchange
	}
	if c.Queue == "" {
		c.Queue = DefaultQueue
	}
	if len(c.Bindings) == 0 {
		c.Bindings = DefaultBindings
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 8
	}
	if c.Tag == "" {
		c.Tag = "tableflow"
	}
	return c
}

// Consumer reads change events from a durable queue bound to the change
// exchange.
type Consumer struct {
	cfg    ConsumerConfig
	logger *slog.Logger

	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewConsumer creates an unconnected consumer.
func NewConsumer(cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg.withDefaults(), logger: logger}
}

// Connect dials the broker and declares the exchange, queue and bindings.
func (c *Consumer) Connect() error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	fail := func(format string, err error, args ...any) error {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf(format, append(args, err)...)
	}

	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange %s: %w", err, c.cfg.Exchange)
	}
	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fail("declare queue %s: %w", err, c.cfg.Queue)
	}
	for _, key := range c.cfg.Bindings {
		if err := ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			return fail("bind %s: %w", err, key)
		}
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fail("set qos: %w", err)
	}

	c.conn = conn
	c.ch = ch
	return nil
}

// Close closes the channel and connection.
func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Run consumes until ctx is done or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	if c.ch == nil {
		return fmt.Errorf("consumer not connected")
	}
	msgs, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.dispatch(ctx, d, handle)
		}
	}
}

// dispatch decodes one delivery and acknowledges it according to outcome.
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery, handle Handler) {
	ev, err := Decode(d.RoutingKey, d.Body)
	if err != nil {
		c.logger.Warn("change event rejected",
			"event", "change_rejected",
			"routing_key", d.RoutingKey,
			"error", err,
		)
		_ = d.Nack(false, false)
		return
	}
	if err := handle(ctx, ev); err != nil {
		c.logger.Error("change event handler failed",
			"event", "change_requeued",
			"routing_key", d.RoutingKey,
			"restaurant_id", ev.RestaurantID,
			"booking_id", ev.BookingID,
			"error", err,
		)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}
