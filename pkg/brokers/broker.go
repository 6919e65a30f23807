// Package brokers delivers finished report runs to a message broker.
package brokers

import (
	"context"
	"fmt"
)

// Publisher - доставка сообщений в очередь/топик
type Publisher interface {
	// Connect устанавливает соединение и проверяет доступность
	Connect(ctx context.Context) error

	// Publish отправляет одно сообщение. key используется для партиционирования
	// (Kafka) и пишется в заголовок message-key (RabbitMQ).
	Publish(ctx context.Context, key string, message []byte) error

	Ping(ctx context.Context) error
	Close() error

	// Type возвращает kafka или rabbitmq
	Type() string
}

// Config содержит параметры подключения к брокеру
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Type    string `yaml:"type"` // rabbitmq, kafka

	// RabbitMQ
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	User       string `yaml:"user,omitempty"`
	Password   string `yaml:"password,omitempty"`
	VHost      string `yaml:"vhost,omitempty"`
	UseTLS     bool   `yaml:"use_tls,omitempty"`
	Queue      string `yaml:"queue,omitempty"`
	Exchange   string `yaml:"exchange,omitempty"`    // пусто = default exchange
	RoutingKey string `yaml:"routing_key,omitempty"` // пусто = имя очереди
	// параметры очереди должны совпадать с уже существующей
	Durable    bool `yaml:"durable,omitempty"`
	AutoDelete bool `yaml:"auto_delete,omitempty"`

	// Kafka
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
}

// ContentType of every published report message.
const ContentType = "application/json"

// New создает Publisher по конфигурации. Соединение открывает Connect.
func New(cfg Config) (Publisher, error) {
	switch cfg.Type {
	case "rabbitmq":
		return NewRabbitMQ(cfg)
	case "kafka":
		return NewKafka(cfg)
	default:
		return nil, fmt.Errorf("unsupported broker type: %q (supported: rabbitmq, kafka)", cfg.Type)
	}
}
