package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
)

// KafkaBus publishes events to Kafka topics as JSON.
type KafkaBus struct {
	producer sarama.SyncProducer
	client   sarama.Client

	mu     sync.RWMutex
	closed bool
}

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	Brokers  []string      // Kafka broker addresses
	ClientID string        // Client identifier
	Version  string        // Kafka version (e.g., "2.8.0")
	Timeout  time.Duration // Network timeout (default: 10s)
}

// NewKafkaConfig builds the sarama producer configuration for cfg.
func NewKafkaConfig(cfg KafkaConfig) (*sarama.Config, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "rice-letor"
	}
	if cfg.Version == "" {
		cfg.Version = "2.8.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfig, "invalid kafka version", err)
	}

	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Version = version
	kafkaConfig.ClientID = cfg.ClientID
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Return.Errors = true
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	kafkaConfig.Net.DialTimeout = cfg.Timeout
	kafkaConfig.Net.ReadTimeout = cfg.Timeout
	kafkaConfig.Net.WriteTimeout = cfg.Timeout
	return kafkaConfig, nil
}

// NewKafkaBus connects to the brokers and creates a synchronous producer.
func NewKafkaBus(cfg KafkaConfig) (*KafkaBus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, apperrors.ConfigError("kafka brokers cannot be empty")
	}
	kafkaConfig, err := NewKafkaConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewClient(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, apperrors.BackendError("failed to create kafka client", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, apperrors.BackendError("failed to create kafka producer", err)
	}

	return &KafkaBus{producer: producer, client: client}, nil
}

// NewKafkaBusWithProducer wraps an existing producer.
func NewKafkaBusWithProducer(producer sarama.SyncProducer) *KafkaBus {
	return &KafkaBus{producer: producer}
}

// Publish publishes an event to a Kafka topic, keyed by event.Key or event.ID.
func (b *KafkaBus) Publish(_ context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return apperrors.New(apperrors.CodeBackend, "bus is closed")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return apperrors.InternalError("failed to marshal event", err)
	}

	key := event.Key
	if key == "" {
		key = event.ID
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	if _, _, err := b.producer.SendMessage(msg); err != nil {
		return apperrors.BackendError("failed to publish to kafka", err)
	}
	return nil
}

// Close closes the producer and client. Safe to call more than once.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close producer: %w", err))
	}
	if b.client != nil && !b.client.Closed() {
		if err := b.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close client: %w", err))
		}
	}
	return errors.Join(errs...)
}
