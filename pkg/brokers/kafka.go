package brokers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka публикует сообщения в topic
type Kafka struct {
	config Config
	writer *kafka.Writer
}

func NewKafka(cfg Config) (*Kafka, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic name is required for Kafka")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required for Kafka")
	}
	return &Kafka{config: cfg}, nil
}

// Connect создает writer и проверяет topic
func (k *Kafka) Connect(ctx context.Context) error {
	k.writer = &kafka.Writer{
		Addr:         kafka.TCP(k.config.Brokers...),
		Topic:        k.config.Topic,
		Balancer:     &kafka.Hash{}, // один отчет - одна партиция
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}
	return k.Ping(ctx)
}

func (k *Kafka) Close() error {
	if k.writer == nil {
		return nil
	}
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

func (k *Kafka) Publish(ctx context.Context, key string, message []byte) error {
	if k.writer == nil {
		return errors.New("not connected to Kafka")
	}
	if err := k.writer.WriteMessages(ctx, kafkaMessage(key, message, time.Now())); err != nil {
		return fmt.Errorf("write message to Kafka: %w", err)
	}
	return nil
}

func kafkaMessage(key string, message []byte, at time.Time) kafka.Message {
	return kafka.Message{
		Key:   []byte(key),
		Value: message,
		Time:  at,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte(ContentType)},
			{Key: "producer", Value: []byte("sqlassist")},
		},
	}
}

// Ping читает партиции topic через первый broker
func (k *Kafka) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", k.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("dial Kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(k.config.Topic); err != nil {
		return fmt.Errorf("read topic partitions: %w", err)
	}
	return nil
}

func (k *Kafka) Type() string {
	return "kafka"
}

// Stats возвращает статистику writer
func (k *Kafka) Stats() kafka.WriterStats {
	if k.writer == nil {
		return kafka.WriterStats{}
	}
	return k.writer.Stats()
}
