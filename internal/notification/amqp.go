package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"parking-reservation-backend/config"
)

const publishTimeout = 5 * time.Second

// Publisher is the subset of *amqp.Channel the producer needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPProducer publishes email notifications to a RabbitMQ exchange for the
// mail worker to consume.
type AMQPProducer struct {
	pub        Publisher
	exchange   string
	routingKey string
}

func NewAMQPProducer(pub Publisher, exchange, routingKey string) *AMQPProducer {
	return &AMQPProducer{pub: pub, exchange: exchange, routingKey: routingKey}
}

// DialAMQP connects to the broker and declares the exchange, the queue and
// their binding. The returned close function releases the channel and the
// connection.
func DialAMQP(cfg config.AMQPConfig) (*AMQPProducer, func(), error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	closeAll := func() {
		ch.Close()
		conn.Close()
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	q, err := ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("failed to bind queue %s: %w", q.Name, err)
	}

	return NewAMQPProducer(ch, cfg.Exchange, cfg.RoutingKey), closeAll, nil
}

// emailType maps a kind to the message type the mail worker understands.
func emailType(kind Kind) string {
	return "reservation_" + string(kind)
}

func (p *AMQPProducer) Enqueue(ctx context.Context, kind Kind, recipient string, payload map[string]string) {
	msg := make(map[string]string, len(payload)+2)
	for k, v := range payload {
		msg[k] = v
	}
	msg["type"] = emailType(kind)
	msg["email"] = recipient

	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to encode %s notification for %s: %v", kind, recipient, err)
		return
	}

	// The reservation operation must not wait on the broker longer than this,
	// nor be cancelled with the request once it has already committed.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = p.pub.PublishWithContext(pubCtx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		log.Printf("Failed to publish %s notification for %s: %v", kind, recipient, err)
		return
	}
	log.Printf("Queued %s email for %s", kind, recipient)
}
