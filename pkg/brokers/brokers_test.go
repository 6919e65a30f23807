package brokers

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantType string
		wantErr  string
	}{
		{"kafka", Config{Type: "kafka", Brokers: []string{"localhost:9092"}, Topic: "reports"}, "kafka", ""},
		{"rabbitmq", Config{Type: "rabbitmq", Queue: "reports"}, "rabbitmq", ""},
		{"kafka without topic", Config{Type: "kafka", Brokers: []string{"localhost:9092"}}, "", "topic"},
		{"kafka without brokers", Config{Type: "kafka", Topic: "reports"}, "", "broker address"},
		{"rabbitmq without queue", Config{Type: "rabbitmq"}, "", "queue"},
		{"msmq", Config{Type: "msmq"}, "", "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.Type() != tt.wantType {
				t.Errorf("Type() = %s, want %s", p.Type(), tt.wantType)
			}
		})
	}
}

func TestRabbitMQ_Defaults(t *testing.T) {
	r, err := NewRabbitMQ(Config{Queue: "reports", UseTLS: true})
	if err != nil {
		t.Fatal(err)
	}
	if r.config.Host != "localhost" || r.config.Port != 5671 || r.config.VHost != "/" || r.config.RoutingKey != "reports" {
		t.Errorf("config = %+v", r.config)
	}
}

func TestAmqpURL(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{User: "guest", Password: "guest", Host: "mq", Port: 5672, VHost: "/"}, "amqp://guest:guest@mq:5672/%2F"},
		{Config{User: "u", Password: "p@ss", Host: "mq", Port: 5671, VHost: "reports", UseTLS: true}, "amqps://u:p%40ss@mq:5671/reports"},
	}
	for _, tt := range tests {
		if got := amqpURL(tt.cfg); got != tt.want {
			t.Errorf("amqpURL = %q, want %q", got, tt.want)
		}
	}
}

func TestPublishWithoutConnect(t *testing.T) {
	k, _ := NewKafka(Config{Brokers: []string{"localhost:9092"}, Topic: "reports"})
	if err := k.Publish(context.Background(), "k", []byte("{}")); err == nil {
		t.Error("kafka: expected error before Connect")
	}
	r, _ := NewRabbitMQ(Config{Queue: "reports"})
	if err := r.Publish(context.Background(), "k", []byte("{}")); err == nil {
		t.Error("rabbitmq: expected error before Connect")
	}
	if err := r.Ping(context.Background()); err == nil {
		t.Error("rabbitmq: expected ping error before Connect")
	}
}

func TestMessageEnvelopes(t *testing.T) {
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	km := kafkaMessage("report-7", []byte(`{"ok":true}`), at)
	if string(km.Key) != "report-7" || !km.Time.Equal(at) || string(km.Headers[0].Value) != ContentType {
		t.Errorf("kafka message = %+v", km)
	}

	pub := amqpPublishing("report-7", []byte(`{"ok":true}`), at)
	if pub.ContentType != ContentType || pub.MessageId != "report-7" || pub.Headers["message-key"] != "report-7" {
		t.Errorf("amqp publishing = %+v", pub)
	}
}

// Требует Kafka на localhost:9092
func TestKafkaIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Kafka integration test in short mode")
	}

	k, err := NewKafka(Config{Brokers: []string{"localhost:9092"}, Topic: "sqlassist-test-reports"})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := k.Connect(ctx); err != nil {
		t.Skipf("Kafka not available: %v", err)
	}
	defer k.Close()

	if err := k.Publish(ctx, "report-1", []byte(`{"report_id":1}`)); err != nil {
		t.Errorf("Publish: %v", err)
	}
}
