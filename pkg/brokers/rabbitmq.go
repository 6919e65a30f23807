package brokers

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ публикует сообщения в очередь (через exchange, если задан)
type RabbitMQ struct {
	config  Config
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQ(cfg Config) (*RabbitMQ, error) {
	if cfg.Queue == "" {
		return nil, fmt.Errorf("queue name is required for RabbitMQ")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 5672
		if cfg.UseTLS {
			cfg.Port = 5671
		}
	}
	if cfg.VHost == "" {
		cfg.VHost = "/"
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = cfg.Queue
	}
	return &RabbitMQ{config: cfg}, nil
}

// amqpURL: amqp[s]://user:password@host:port/vhost
func amqpURL(cfg Config) string {
	scheme := "amqp"
	if cfg.UseTLS {
		scheme = "amqps"
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s", scheme,
		url.UserPassword(cfg.User, cfg.Password).String(), cfg.Host, cfg.Port, url.PathEscape(cfg.VHost))
}

func (r *RabbitMQ) Connect(ctx context.Context) error {
	var err error
	if r.config.UseTLS {
		r.conn, err = amqp.DialTLS(amqpURL(r.config), &tls.Config{
			ServerName: r.config.Host,
			MinVersion: tls.VersionTLS12,
		})
	} else {
		r.conn, err = amqp.Dial(amqpURL(r.config))
	}
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	r.channel, err = r.conn.Channel()
	if err != nil {
		r.conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	// идемпотентно; параметры должны совпадать с существующей очередью
	if _, err := r.channel.QueueDeclare(r.config.Queue, r.config.Durable, r.config.AutoDelete, false, false, nil); err != nil {
		r.channel.Close()
		r.conn.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if r.config.Exchange != "" {
		if err := r.channel.QueueBind(r.config.Queue, r.config.RoutingKey, r.config.Exchange, false, nil); err != nil {
			r.channel.Close()
			r.conn.Close()
			return fmt.Errorf("bind queue: %w", err)
		}
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			return fmt.Errorf("close channel: %w", err)
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
	}
	return nil
}

func (r *RabbitMQ) Publish(ctx context.Context, key string, message []byte) error {
	if r.channel == nil {
		return errors.New("not connected to RabbitMQ")
	}

	err := r.channel.PublishWithContext(ctx, r.config.Exchange, r.config.RoutingKey, false, false,
		amqpPublishing(key, message, time.Now()))
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func amqpPublishing(key string, message []byte, at time.Time) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  ContentType,
		Body:         message,
		DeliveryMode: amqp.Persistent,
		Timestamp:    at,
		MessageId:    key,
		Headers:      amqp.Table{"message-key": key},
	}
}

func (r *RabbitMQ) Ping(ctx context.Context) error {
	if r.conn == nil || r.conn.IsClosed() {
		return errors.New("not connected to RabbitMQ")
	}
	if r.channel == nil || r.channel.IsClosed() {
		return errors.New("channel not open")
	}
	return nil
}

func (r *RabbitMQ) Type() string {
	return "rabbitmq"
}
