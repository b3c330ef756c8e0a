package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Dan9191/card-payments/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// TransactionProcessedEvent is the message body published for every recorded transaction.
// It carries no card data beyond the stored card id.
type TransactionProcessedEvent struct {
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id"`
	CardID        string    `json:"card_id"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	Description   string    `json:"description,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

const eventTypeTransactionProcessed = "transaction.processed"

// NewTransactionProcessedEvent builds the event for a transaction record
func NewTransactionProcessedEvent(tx *models.TransactionRecord) TransactionProcessedEvent {
	return TransactionProcessedEvent{
		EventType:     eventTypeTransactionProcessed,
		TransactionID: tx.ID,
		CardID:        tx.CardID,
		Amount:        tx.Amount.StringFixed(2),
		Status:        string(tx.Status),
		Description:   tx.Description,
		OccurredAt:    tx.CreatedAt,
	}
}

// RabbitMQPublisher publishes transaction events to a topic exchange
type RabbitMQPublisher struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	log        *logrus.Logger
}

// NewRabbitMQPublisher connects to RabbitMQ and declares the exchange
func NewRabbitMQPublisher(url, exchange, routingKey string, log *logrus.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Infof("RabbitMQ publisher initialized: exchange=%s, routing_key=%s", exchange, routingKey)

	return &RabbitMQPublisher{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
		log:        log,
	}, nil
}

// PublishTransactionProcessed publishes a persistent JSON message for tx
func (p *RabbitMQPublisher) PublishTransactionProcessed(ctx context.Context, tx *models.TransactionRecord) error {
	body, err := json.Marshal(NewTransactionProcessedEvent(tx))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    tx.ID,
			Timestamp:    tx.CreatedAt,
			Type:         eventTypeTransactionProcessed,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.log.WithField("transaction_id", tx.ID).Debug("Transaction event published")
	return nil
}

// Close closes the channel and connection
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return fmt.Errorf("failed to close channel: %w", err)
	}
	return p.conn.Close()
}
