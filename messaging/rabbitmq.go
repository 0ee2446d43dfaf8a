package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/cafe-orders/models"
	"github.com/yeremiapane/cafe-orders/utils"
)

// Routing keys on the order events exchange
const (
	KeyNewOrder     = "orders.new"
	KeyStatusChange = "orders.status"
	KeyRefresh      = "orders.refresh"
)

const (
	defaultExchange = "cafe.orders"
	defaultBuffer   = 256
	publishTimeout  = 5 * time.Second
)

var ErrPublisherClosed = errors.New("publisher is closed")

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	Event      string      `json:"event"`
	OccurredAt time.Time   `json:"occurredAt"`
	Data       interface{} `json:"data,omitempty"`
}

type outgoing struct {
	key      string
	envelope Envelope
}

// Publisher forwards order events to a topic exchange for downstream
// consumers. Publishing happens on its own goroutine so callers never wait
// on the broker; events are dropped when the buffer is full.
type Publisher struct {
	ch       Channel
	conn     *amqp.Connection
	exchange string
	queue    chan outgoing
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

// Dial connects to the broker and returns a publisher on a fresh channel.
func Dial(url, exchange string, buffer int) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	p, err := NewPublisher(ch, exchange, buffer)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func NewPublisher(ch Channel, exchange string, buffer int) (*Publisher, error) {
	if exchange == "" {
		exchange = defaultExchange
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	p := &Publisher{
		ch:       ch,
		exchange: exchange,
		queue:    make(chan outgoing, buffer),
		done:     make(chan struct{}),
	}
	go p.run()
	return p, nil
}

func (p *Publisher) PublishNewOrder(order models.OrderSnapshot) {
	p.enqueue(KeyNewOrder, order)
}

func (p *Publisher) PublishStatusChanged(order models.OrderSnapshot) {
	p.enqueue(KeyStatusChange, order)
}

func (p *Publisher) PublishRefreshHint() {
	p.enqueue(KeyRefresh, nil)
}

func (p *Publisher) enqueue(key string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	msg := outgoing{key: key, envelope: Envelope{Event: key, OccurredAt: time.Now().UTC(), Data: data}}
	select {
	case p.queue <- msg:
	default:
		utils.InfoLogger.WithField("routing_key", key).Warn("RabbitMQ publish buffer full, event dropped")
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		if err := p.publish(msg); err != nil {
			utils.ErrorLogger.WithError(err).WithFields(logrus.Fields{
				"exchange":    p.exchange,
				"routing_key": msg.key,
			}).Error("Failed to publish order event")
		}
	}
}

func (p *Publisher) publish(msg outgoing) error {
	body, err := json.Marshal(msg.envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return p.ch.PublishWithContext(ctx, p.exchange, msg.key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Timestamp:    msg.envelope.OccurredAt,
		Body:         body,
	})
}

// Close drains queued events and closes the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	err := p.ch.Close()
	if p.conn != nil && !p.conn.IsClosed() {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
