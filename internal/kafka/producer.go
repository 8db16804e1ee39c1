package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ktu-bizconnect/internal/config"
	"ktu-bizconnect/internal/logger"
	"ktu-bizconnect/internal/models"
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// originHeader carries the instance that produced a message so its own relay can skip it.
const originHeader = "origin"

type Producer struct {
	Writer MessageWriter
	Topics config.TopicConfig
	Origin string
	Logger *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, origin string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Topics: topics, Origin: origin, Logger: log}
}

// Publish writes one message; the key keeps all events of a sale on one partition.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}
	if p.Origin != "" {
		msg.Headers = []kafka.Header{{Key: originHeader, Value: []byte(p.Origin)}}
	}
	return p.Writer.WriteMessages(ctx, msg)
}

// PublishSaleEvent streams a sale lifecycle event to the topic for its type
func (p *Producer) PublishSaleEvent(ctx context.Context, event models.SaleEvent) error {
	topic, ok := p.topicFor(event.Type)
	if !ok {
		return fmt.Errorf("no topic for event type %q", event.Type)
	}

	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := p.Publish(ctx, topic, event.SaleID, msgBytes); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("%s for sale %s", event.Type, event.SaleID))
	return nil
}

func (p *Producer) topicFor(t models.SaleEventType) (string, bool) {
	switch t {
	case models.EventSaleCreated:
		return p.Topics.SaleCreated, true
	case models.EventBidPlaced:
		return p.Topics.BidPlaced, true
	case models.EventSaleFinalized:
		return p.Topics.SaleFinalized, true
	case models.EventSaleUpdated:
		return p.Topics.SaleUpdated, true
	case models.EventSaleDeleted:
		return p.Topics.SaleDeleted, true
	}
	return "", false
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NoopProducer is used when Kafka is disabled.
type NoopProducer struct{}

func (NoopProducer) PublishSaleEvent(context.Context, models.SaleEvent) error { return nil }
func (NoopProducer) Close() error                                            { return nil }
