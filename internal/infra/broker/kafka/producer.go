package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"chatlink/internal/app/events"
)

type Producer struct {
	sync sarama.SyncProducer
}

func NewProducer(brokers []string, cfg *sarama.Config) (*Producer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1
	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Producer{sync: sync}, nil
}

func (p *Producer) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	var hs []sarama.RecordHeader
	for k, v := range headers {
		hs = append(hs, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(payload),
		Headers: hs,
	}
	_, _, err := p.sync.SendMessage(msg)
	return err
}

func (p *Producer) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}

// EventPublisher maps chat lifecycle events onto Kafka topics. The event
// name becomes the topic (dots swapped for the prefix convention) and the
// event key the partition key, so one chat's events stay ordered.
type EventPublisher struct {
	Producer    *Producer
	TopicPrefix string
}

func (p *EventPublisher) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Producer.Publish(ctx, p.topic(event.Name), event.Key, payload, map[string]string{
		"occurred_at": event.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
}

func (p *EventPublisher) topic(name string) string {
	topic := strings.ReplaceAll(name, ".", "-")
	if p.TopicPrefix != "" {
		topic = p.TopicPrefix + "." + topic
	}
	return topic
}
