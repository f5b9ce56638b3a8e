package events

import (
	"context"
	"fmt"
	"log"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
}

// KafkaPublisher writes events keyed by booking id so every event of one
// booking lands on the same partition, in order.
type KafkaPublisher struct {
	producer producer
	topic    string
}

func NewKafkaPublisher(p producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic}
}

func (k *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := k.message(e)
	if err != nil {
		return err
	}
	delivery := make(chan kafka.Event, 1)
	if err := k.producer.Produce(msg, delivery); err != nil {
		return fmt.Errorf("kafka produce: %w", err)
	}
	select {
	case ev := <-delivery:
		if m, ok := ev.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return fmt.Errorf("kafka delivery: %w", m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		log.Printf("[kafka] Delivery report for %s not received: %s\n", e.ID, ctx.Err())
		return ctx.Err()
	}
}

func (k *KafkaPublisher) message(e Event) (*kafka.Message, error) {
	value, err := e.Marshal()
	if err != nil {
		return nil, err
	}
	topic := k.topic
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(e.BookingID),
		Value:          value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
	}, nil
}
