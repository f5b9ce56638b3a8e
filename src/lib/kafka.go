package lib

import (
	"context"
	"fmt"
	"log"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

func GetKafkaProducerConfig(broker, clientId string) kafka.ConfigMap {
	return kafka.ConfigMap{
		"bootstrap.servers":  broker,
		"client.id":          clientId,
		"acks":               "all",
		"enable.idempotence": true,
	}
}

// NewKafkaProducer connects a producer and logs the errors it reports outside
// of per-message delivery reports.
func NewKafkaProducer(broker, clientId string) (*kafka.Producer, error) {
	cfg := GetKafkaProducerConfig(broker, clientId)
	p, err := kafka.NewProducer(&cfg)
	if err != nil {
		log.Printf("[kafka] Error on producer: %s\n", err.Error())
		return nil, err
	}
	go func() {
		for ev := range p.Events() {
			if e, ok := ev.(kafka.Error); ok {
				log.Printf("[kafka] Producer error: %v\n", e)
			}
		}
	}()
	return p, nil
}

func KafkaCreateTopics(ctx context.Context, broker string, topics ...string) ([]kafka.TopicResult, error) {
	a, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": broker,
	})
	if err != nil {
		log.Printf("[kafka] Error on AdminClient: %s\n", err.Error())
		return nil, err
	}
	defer a.Close()
	topicsDef := []kafka.TopicSpecification{}
	for _, topic := range topics {
		topicsDef = append(topicsDef, kafka.TopicSpecification{
			Topic:             topic,
			NumPartitions:     10,
			ReplicationFactor: 1,
		})
	}
	result, err := a.CreateTopics(ctx, topicsDef)
	if err != nil {
		return nil, fmt.Errorf("create topics: %w", err)
	}
	for _, r := range result {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			log.Printf("[kafka] Topic %s: %s\n", r.Topic, r.Error.String())
		}
	}
	return result, nil
}
