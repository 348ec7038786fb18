package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/config"
	"github.com/media-pipelines/media-pipelines-go/internal/retry"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

const (
	confirmTimeout = 5 * time.Second

	// bindingKey routes every pipeline event into the notification queue.
	bindingKey = "pipeline.#"
)

// RabbitNotifier publishes notifications to a topic exchange with publisher
// confirms. A broken connection is re-established on the next attempt.
type RabbitNotifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  config.RabbitMQConfig
	invoker *retry.Invoker
	mu      sync.Mutex
}

// NewRabbitNotifier connects to the broker and declares the topology.
func NewRabbitNotifier(cfg config.RabbitMQConfig, invoker *retry.Invoker) (*RabbitNotifier, error) {
	rn := &RabbitNotifier{
		config:  cfg,
		invoker: invoker,
	}

	rn.mu.Lock()
	defer rn.mu.Unlock()
	if err := rn.connect(); err != nil {
		return nil, err
	}
	return rn, nil
}

// connect must be called with mu held.
func (rn *RabbitNotifier) connect() error {
	conn, err := amqp.Dial(rn.config.URL())
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	if err := ch.ExchangeDeclare(
		rn.config.Exchange, // name
		"topic",            // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		rn.config.Queue, // name
		true,            // durable
		false,           // delete when unused
		false,           // exclusive
		false,           // no-wait
		amqp.Table{
			"x-message-ttl": 7 * 24 * 3600 * 1000, // 7 days
			"x-max-length":  10000,
		},
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(rn.config.Queue, bindingKey, rn.config.Exchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	rn.conn = conn
	rn.channel = ch

	logger.Log.Info("Connected to RabbitMQ",
		zap.String("exchange", rn.config.Exchange),
		zap.String("queue", rn.config.Queue),
	)
	return nil
}

// Notify publishes n and waits for the broker's confirmation.
func (rn *RabbitNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	logger.Log.Info("Sending pipeline notification",
		zap.String("subject", n.Subject()),
		zap.String("routing_key", n.RoutingKey()),
	)

	return rn.invoker.Run(ctx, "rabbitmq.Publish", func(ctx context.Context) error {
		return rn.publish(ctx, n, body)
	})
}

func (rn *RabbitNotifier) publish(ctx context.Context, n Notification, body []byte) error {
	rn.mu.Lock()
	defer rn.mu.Unlock()

	if !rn.healthy() {
		rn.closeLocked()
		if err := rn.connect(); err != nil {
			return &retry.TransientError{Op: "rabbitmq connect", Err: err}
		}
	}

	// Each publish carries its own confirmation; nothing is registered on the
	// channel that could outlive the call.
	confirm, err := rn.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		rn.config.Exchange, // exchange
		n.RoutingKey(),     // routing key
		false,              // mandatory
		false,              // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Type:         "pipeline.notification",
			Headers:      amqp.Table{"subject": n.Subject()},
		},
	)
	if err != nil {
		return &retry.TransientError{Op: "rabbitmq publish", Err: err}
	}

	waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	acked, err := confirm.WaitContext(waitCtx)
	switch {
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		return &retry.TransientError{Op: "rabbitmq publish", Err: errors.New("timeout waiting for publish confirmation")}
	case !acked:
		// A closed channel nacks every pending confirmation.
		return &retry.TransientError{Op: "rabbitmq publish", Err: errors.New("message was not acknowledged by broker")}
	}

	logger.Log.Debug("Published notification", zap.String("routing_key", n.RoutingKey()))
	return nil
}

// Close shuts the channel and connection.
func (rn *RabbitNotifier) Close() error {
	rn.mu.Lock()
	defer rn.mu.Unlock()

	if err := rn.closeLocked(); err != nil {
		return fmt.Errorf("errors closing notifier: %w", err)
	}
	logger.Log.Info("RabbitMQ notifier closed")
	return nil
}

func (rn *RabbitNotifier) closeLocked() error {
	var errs []error
	if rn.channel != nil && !rn.channel.IsClosed() {
		errs = append(errs, rn.channel.Close())
	}
	if rn.conn != nil && !rn.conn.IsClosed() {
		errs = append(errs, rn.conn.Close())
	}
	rn.channel = nil
	rn.conn = nil
	return errors.Join(errs...)
}

// IsHealthy reports whether the connection is open.
func (rn *RabbitNotifier) IsHealthy() bool {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.healthy()
}

func (rn *RabbitNotifier) healthy() bool {
	return rn.conn != nil && !rn.conn.IsClosed() && rn.channel != nil && !rn.channel.IsClosed()
}
