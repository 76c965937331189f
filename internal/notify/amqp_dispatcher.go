package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const notificationQueueName = "session.notifications"

// AMQPDispatcher publishes notifications to a durable queue. The channel
// is re-dialed lazily after a broker failure; a publish that still fails
// is logged and dropped, never surfaced to the caller's request flow.
type AMQPDispatcher struct {
	url    string
	logger *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPDispatcher(url string, logger *zap.Logger) *AMQPDispatcher {
	return &AMQPDispatcher{url: url, logger: logger}
}

func (d *AMQPDispatcher) Send(ctx context.Context, notification Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		d.logger.Error("notify: marshal notification", zap.Error(err))
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ch, err := d.channel()
	if err != nil {
		d.logger.Error("notify: broker unavailable",
			zap.String("type", notification.Type), zap.Error(err))
		return err
	}

	err = ch.PublishWithContext(ctx,
		"",
		notificationQueueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		d.reset()
		d.logger.Error("notify: publish failed",
			zap.String("type", notification.Type), zap.Error(err))
		return err
	}
	return nil
}

func (d *AMQPDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

func (d *AMQPDispatcher) channel() (*amqp.Channel, error) {
	if d.ch != nil && !d.ch.IsClosed() {
		return d.ch, nil
	}
	d.reset()

	conn, err := amqp.Dial(d.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(notificationQueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	d.conn = conn
	d.ch = ch
	return ch, nil
}

func (d *AMQPDispatcher) reset() {
	if d.ch != nil {
		_ = d.ch.Close()
		d.ch = nil
	}
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
}
