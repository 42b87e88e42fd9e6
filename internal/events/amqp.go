package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange is the topic exchange order events are published to. Routing keys
// are order.<action>.<branch id>.
const Exchange = "orders_topic"

type amqpChannel interface {
	GetNextPublishSeqNo() uint64
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes persistent JSON messages with publisher confirms.
type AMQPPublisher struct {
	conn *amqp.Connection
	ch   amqpChannel
	acks <-chan amqp.Confirmation
	mu   sync.Mutex // confirms arrive in publish order
}

func DialAMQP(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return &AMQPPublisher{conn: conn, ch: ch, acks: acks}, nil
}

// RoutingKey maps order.paid for branch B to order.paid.B.
func RoutingKey(ev Event) string {
	return strings.Join([]string{ev.Type, ev.BranchID.String()}, ".")
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tag := p.ch.GetNextPublishSeqNo()
	if err := p.ch.PublishWithContext(ctx, Exchange, RoutingKey(ev), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    ev.OrderID.String(),
		Timestamp:    time.Now(),
		Body:         body,
	}); err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}

	// Confirms for earlier publishes that timed out may still be queued.
	for {
		select {
		case conf, ok := <-p.acks:
			if !ok {
				return errors.New("amqp channel closed before confirm")
			}
			if conf.DeliveryTag < tag {
				continue
			}
			if !conf.Ack {
				return errors.New("publish NACK from broker")
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *AMQPPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
