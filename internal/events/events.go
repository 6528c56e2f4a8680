package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type MessageProcessed struct {
	Type           string    `json:"type"`
	TenantID       string    `json:"tenantId"`
	ConversationID string    `json:"conversationId"`
	TicketID       string    `json:"ticketId"`
	MessageID      string    `json:"messageId"`
	Source         string    `json:"source"`
	Intent         string    `json:"intent"`
	Confidence     float64   `json:"confidence"`
	AutopilotSent  bool      `json:"autopilotSent"`
	OccurredAt     time.Time `json:"occurredAt"`
}

const TypeMessageProcessed = "message.processed"

type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, eventType string, payload any) error { return nil }
func (NopPublisher) Close() error                                                   { return nil }

// RabbitPublisher publishes JSON to a durable queue on the default exchange.
type RabbitPublisher struct {
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger zerolog.Logger
}

func NewRabbitPublisher(url, queue string, logger zerolog.Logger) (*RabbitPublisher, error) {
	if url == "" {
		return nil, errors.New("RABBITMQ_URL is not set")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	logger.Info().Str("queue", queue).Msg("rabbitmq publisher ready")
	return &RabbitPublisher{conn: conn, ch: ch, queue: queue, logger: logger}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return err
	}
	p.logger.Debug().Str("queue", p.queue).Str("event_type", eventType).Msg("published event")
	return nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	chErr := p.ch.Close()
	connErr := p.conn.Close()
	return errors.Join(chErr, connErr)
}
