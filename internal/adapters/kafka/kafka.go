package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"engagement-service/internal/config"
	"engagement-service/internal/websocket"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// NewProducerConfig returns the sarama settings the publisher relies on:
// acks from all replicas and hash partitioning so one session's messages
// stay ordered on one partition.
func NewProducerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_0_0_0
	config.ClientID = clientID
	config.Producer.MaxMessageBytes = 1000000
	return config
}

func InitKafkaProducer(brokers []string, clientID string) (sarama.SyncProducer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// Publisher writes alerts and engagement updates to their topics, keyed by
// session id.
type Publisher struct {
	producer        sarama.SyncProducer
	alertTopic      string
	engagementTopic string
}

var _ websocket.EventPublisher = (*Publisher)(nil)

func NewPublisher(producer sarama.SyncProducer, cfg config.KafkaConfig) *Publisher {
	return &Publisher{
		producer:        producer,
		alertTopic:      cfg.AlertTopic,
		engagementTopic: cfg.EngagementTopic,
	}
}

func (p *Publisher) PublishAlert(ctx context.Context, alert *websocket.AlertMessage) error {
	return p.send(ctx, p.alertTopic, alert.SessionID, websocket.MessageTypeAlert, alert)
}

func (p *Publisher) PublishEngagement(ctx context.Context, update *websocket.EngagementUpdateMessage) error {
	return p.send(ctx, p.engagementTopic, update.SessionID, websocket.MessageTypeEngagementUpdate, update)
}

func (p *Publisher) send(ctx context.Context, topic, sessionID string, msgType websocket.MessageType, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(sessionID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message-id"), Value: []byte(uuid.NewString())},
			{Key: []byte("type"), Value: []byte(msgType)},
		},
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
