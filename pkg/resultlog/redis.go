package resultlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config - параметры публикации состояния отчетов
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
	TTL     int    `yaml:"ttl"` // секунды
}

// RunResult представляет состояние запуска отчета, публикуемое в Redis
// после завершения (успешного или с ошибкой).
//
// Redis-ключи:
//
//	SET  <prefix>:report:<id>:state  <JSON>  EX <ttl>  для опроса
//	PUB  <prefix>:report:<id>                        для подписки
type RunResult struct {
	ReportID   int64     `json:"report_id"`
	ReportName string    `json:"report_name"`
	Source     string    `json:"source"`
	Status     string    `json:"status"` // "success" | "failed"
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
	RowCount   int       `json:"row_count"`
	Checksum   string    `json:"checksum,omitempty"`
	Error      *string   `json:"error,omitempty"`
}

// RedisPublisher публикует результат запуска отчета в Redis
type RedisPublisher struct {
	client *redis.Client
	config Config
}

// NewRedisPublisher создает publisher поверх общего клиента
func NewRedisPublisher(client *redis.Client, config Config) *RedisPublisher {
	if config.Prefix == "" {
		config.Prefix = "sqlassist"
	}
	if config.TTL <= 0 {
		config.TTL = 86400
	}
	return &RedisPublisher{client: client, config: config}
}

// StateKey - ключ последнего состояния отчета
func (p *RedisPublisher) StateKey(reportID int64) string {
	return fmt.Sprintf("%s:report:%d:state", p.config.Prefix, reportID)
}

// Channel - канал событий отчета
func (p *RedisPublisher) Channel(reportID int64) string {
	return fmt.Sprintf("%s:report:%d", p.config.Prefix, reportID)
}

// Publish публикует результат запуска. execErr == nil означает успех.
// Вызывается независимо от результата выполнения.
func (p *RedisPublisher) Publish(ctx context.Context, result RunResult, execErr error) error {
	result.DurationMs = result.FinishedAt.Sub(result.StartedAt).Milliseconds()
	if execErr != nil {
		result.Status = "failed"
		errStr := execErr.Error()
		result.Error = &errStr
	} else {
		result.Status = "success"
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	ttl := time.Duration(p.config.TTL) * time.Second
	if err := p.client.Set(ctx, p.StateKey(result.ReportID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(result.ReportID), payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}
	return nil
}

// Last читает последнее опубликованное состояние; redis.Nil если его нет
func (p *RedisPublisher) Last(ctx context.Context, reportID int64) (*RunResult, error) {
	raw, err := p.client.Get(ctx, p.StateKey(reportID)).Bytes()
	if err != nil {
		return nil, err
	}
	var out RunResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &out, nil
}
