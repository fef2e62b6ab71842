// Package events publishes cart and checkout domain events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/logging"
)

const (
	DefaultTopic = "cart_events"
	// publishTimeout bounds the time a request waits on the broker, metadata lookups included.
	publishTimeout = 500 * time.Millisecond
)

const (
	ItemAdded         = "item_added"
	QuantityChanged   = "quantity_changed"
	ItemRemoved       = "item_removed"
	CartCleared       = "cart_cleared"
	CartReplaced      = "cart_replaced"
	CheckoutCommitted = "checkout_committed"
	CartHandoff       = "cart_handoff"
)

type Event struct {
	Type       string    `json:"type"`
	Owner      string    `json:"owner"`
	ProductID  int       `json:"product_id,omitempty"`
	Quantity   int       `json:"quantity,omitempty"`
	Total      float64   `json:"total,omitempty"`
	Policy     string    `json:"policy,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func New(eventType string, owner cart.Owner) Event {
	return Event{Type: eventType, Owner: OwnerKey(owner), OccurredAt: time.Now().UTC()}
}

// OwnerKey partitions events per cart owner.
func OwnerKey(o cart.Owner) string {
	if o.Authenticated() {
		return "account:" + strconv.FormatUint(uint64(o.AccountID), 10)
	}
	return "guest:" + o.GuestToken
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             logDelivery,
	}}
}

// logDelivery reports batches the async writer failed to deliver.
func logDelivery(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	slog.Default().Warn("event_delivery_failed",
		slog.Int("messages", len(messages)),
		slog.Any("error", err))
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := message(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write failed: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func message(e Event) (kafka.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.Owner),
		Value: data,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}, nil
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Emit hands e to the publisher with a short timeout. Failures are logged and never reach the caller:
// a cart change is not undone because the event bus is down.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.Publish(ctx, e); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed",
			slog.String("type", e.Type),
			slog.String("owner", e.Owner),
			slog.Any("error", err))
	}
}
