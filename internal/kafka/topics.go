package kafka

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"ktu-bizconnect/internal/config"
	"ktu-bizconnect/internal/logger"
)

// TopicNames lists every topic the service publishes to.
func TopicNames(t config.TopicConfig) []string {
	return []string{t.SaleCreated, t.BidPlaced, t.SaleFinalized, t.SaleUpdated, t.SaleDeleted}
}

// EnsureTopicsExist creates the quick-sale topics on the cluster controller if they are missing.
func EnsureTopicsExist(brokers []string, topics []string, log *logger.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		})
	}

	if err := controllerConn.CreateTopics(configs...); err != nil {
		if errors.Is(err, kafka.TopicAlreadyExists) {
			log.LogKafka("TOPICS", "all", "already exist")
			return nil
		}
		return fmt.Errorf("create topics: %w", err)
	}

	for _, topic := range topics {
		log.LogKafka("TOPICS", topic, "ensured")
	}
	return nil
}
