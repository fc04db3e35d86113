// Package events delivers committed ledger events to Kafka or Redis.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/bankroll/pkg/bankroll"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Backend names accepted by the daemon configuration.
const (
	BackendNone  = "none"
	BackendKafka = "kafka"
	BackendRedis = "redis"
)

const (
	defaultTopic        = "bankroll.ledger-events"
	defaultChannel      = "bankroll:ledger-events"
	defaultWriteTimeout = 5 * time.Second
)

var (
	ErrUnknownBackend = errors.New("events: unknown backend")
	ErrMissingAddress = errors.New("events: missing broker address")
)

// Config selects and configures the publisher backend.
type Config struct {
	Backend      string
	KafkaBrokers []string
	KafkaTopic   string
	RedisAddr    string
	RedisChannel string
	// QueueSize bounds the events waiting for the broker; zero uses the default.
	QueueSize int
	Logger    *zap.Logger
}

// Publisher is a bankroll.EventPublisher that owns its connection.
type Publisher interface {
	bankroll.EventPublisher
	Close() error
}

// New builds the configured publisher behind an AsyncPublisher.
// The none backend returns a nil Publisher.
func New(cfg Config) (Publisher, error) {
	var backend Publisher
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendNone:
		return nil, nil
	case BackendKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("%w: kafka brokers", ErrMissingAddress)
		}
		backend = NewKafkaPublisher(NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
	case BackendRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("%w: redis address", ErrMissingAddress)
		}
		backend = NewRedisPublisher(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.RedisChannel)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	return NewAsyncPublisher(backend, cfg.Logger, cfg.QueueSize, defaultWriteTimeout), nil
}

// NewKafkaWriter returns a writer balancing by key so one user's events stay ordered.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if strings.TrimSpace(topic) == "" {
		topic = defaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           defaultWriteTimeout,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, messages ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes ledger events as JSON keyed by user id.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher wraps a kafka writer.
func NewKafkaPublisher(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// PublishLedgerEvent implements bankroll.EventPublisher.
func (publisher *KafkaPublisher) PublishLedgerEvent(ctx context.Context, event bankroll.LedgerEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	message := kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}
	if err := publisher.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("events: kafka write: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (publisher *KafkaPublisher) Close() error {
	return publisher.writer.Close()
}

type channelPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisPublisher broadcasts ledger events on a pub/sub channel.
type RedisPublisher struct {
	client  channelPublisher
	channel string
}

// NewRedisPublisher wraps a redis client.
func NewRedisPublisher(client channelPublisher, channel string) *RedisPublisher {
	if strings.TrimSpace(channel) == "" {
		channel = defaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// PublishLedgerEvent implements bankroll.EventPublisher.
func (publisher *RedisPublisher) PublishLedgerEvent(ctx context.Context, event bankroll.LedgerEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	if err := publisher.client.Publish(ctx, publisher.channel, payload).Err(); err != nil {
		return fmt.Errorf("events: redis publish: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (publisher *RedisPublisher) Close() error {
	return publisher.client.Close()
}
