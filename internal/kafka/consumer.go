package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ktu-bizconnect/internal/config"
	"ktu-bizconnect/internal/logger"
	"ktu-bizconnect/internal/models"
)

// MessageReader is the part of *kafka.Reader the relay uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Emitter interface {
	Emit(event models.SaleEvent)
}

// Relay replays sale events produced by other instances into the local SSE emitter, so
// watchers see bids regardless of which instance accepted them.
type Relay struct {
	Reader  MessageReader
	Origin  string
	Emitter Emitter
	Logger  *logger.Logger
}

// NewRelay joins a consumer group of its own, so every instance receives every event.
func NewRelay(brokers []string, topics config.TopicConfig, origin string, emitter Emitter, log *logger.Logger) *Relay {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "quicksale-relay-" + origin,
		GroupTopics: TopicNames(topics),
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
	})
	return &Relay{Reader: reader, Origin: origin, Emitter: emitter, Logger: log}
}

// Run consumes until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.Logger.LogKafka("RELAY", "all", fmt.Sprintf("Relaying sale events for instance %s", r.Origin))

	for {
		msg, err := r.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			r.Logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		r.handle(msg)
	}
}

func (r *Relay) handle(msg kafka.Message) {
	if r.fromSelf(msg) {
		return
	}

	var event models.SaleEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		r.Logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal message on %s: %v", msg.Topic, err))
		return
	}
	if event.SaleID == "" {
		return
	}

	r.Logger.Debug("KAFKA", fmt.Sprintf("Relayed %s for sale %s", event.Type, event.SaleID))
	r.Emitter.Emit(event.Public())
}

func (r *Relay) fromSelf(msg kafka.Message) bool {
	for _, h := range msg.Headers {
		if h.Key == originHeader {
			return bytes.Equal(h.Value, []byte(r.Origin))
		}
	}
	return false
}

// Close gracefully shuts down the Kafka reader
func (r *Relay) Close() error {
	return r.Reader.Close()
}
