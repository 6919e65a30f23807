// Package audit records one entry per answered question, direct execution
// and report run. Entries go to any number of appenders, synchronously or
// through a buffered channel.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Appender - интерфейс для записи audit логов
type Appender interface {
	Append(ctx context.Context, entry *Entry) error
	Close() error
}

// Logger - интерфейс аудита для потребителей
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	Close() error
}

// LoggerConfig - конфигурация логгера
type LoggerConfig struct {
	AsyncMode   bool
	BufferSize  int
	DefaultUser string
	OnError     func(error)
}

// AuditLogger - основной логгер аудита
type AuditLogger struct {
	appenders []Appender
	config    LoggerConfig
	entries   chan *Entry
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
}

// NewLogger - создать новый audit logger
func NewLogger(config LoggerConfig, appenders ...Appender) *AuditLogger {
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	l := &AuditLogger{
		appenders: appenders,
		config:    config,
		closed:    make(chan struct{}),
	}
	if config.AsyncMode {
		l.entries = make(chan *Entry, config.BufferSize)
		l.wg.Add(1)
		go l.process()
	}
	return l
}

// Log записывает entry. В асинхронном режиме при полном буфере
// запись выполняется синхронно.
func (l *AuditLogger) Log(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry is nil")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.User == "" {
		entry.User = l.config.DefaultUser
	}

	select {
	case <-l.closed:
		return fmt.Errorf("audit logger is closed")
	default:
	}

	if l.entries != nil {
		select {
		case l.entries <- entry:
			return nil
		default:
		}
	}
	return l.write(ctx, entry)
}

func (l *AuditLogger) write(ctx context.Context, entry *Entry) error {
	var firstErr error
	for _, a := range l.appenders {
		if err := a.Append(ctx, entry); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			l.handleError(fmt.Errorf("appender failed: %w", err))
		}
	}
	return firstErr
}

func (l *AuditLogger) process() {
	defer l.wg.Done()
	for {
		select {
		case entry := <-l.entries:
			l.write(context.Background(), entry)
		case <-l.closed:
			for {
				select {
				case entry := <-l.entries:
					l.write(context.Background(), entry)
				default:
					return
				}
			}
		}
	}
}

// Close drains pending entries and closes every appender.
func (l *AuditLogger) Close() error {
	var firstErr error
	l.closeOnce.Do(func() {
		close(l.closed)
		l.wg.Wait()
		for _, a := range l.appenders {
			if err := a.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

func (l *AuditLogger) handleError(err error) {
	if l.config.OnError != nil {
		l.config.OnError(err)
	}
}

// NullLogger - пустой logger
type NullLogger struct{}

func (NullLogger) Log(ctx context.Context, entry *Entry) error { return nil }
func (NullLogger) Close() error                                { return nil }
