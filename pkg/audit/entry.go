package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operation - тип операции
type Operation string

const (
	OpAnswer    Operation = "answer"     // вопрос через конвейер
	OpExecute   Operation = "execute"    // прямой запрос к источнику
	OpSchedule  Operation = "schedule"   // регистрация отчета
	OpReportRun Operation = "report_run" // запуск отчета
	OpFeedback  Operation = "feedback"
)

// Status - статус выполнения операции
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusPartial Status = "partial" // ответ есть, но без пояснения или диаграммы
)

// Entry - запись в audit логе
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Operation Operation      `json:"operation"`
	Status    Status         `json:"status"`
	User      string         `json:"user,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Source    string         `json:"source,omitempty"`
	Resource  string         `json:"resource,omitempty"` // вопрос, запрос или имя отчета
	Records   int64          `json:"records,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewEntry - создать новую audit запись
func NewEntry(operation Operation, status Status) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Operation: operation,
		Status:    status,
	}
}

func (e *Entry) WithUser(user string) *Entry {
	e.User = user
	return e
}

func (e *Entry) WithSession(id string) *Entry {
	e.SessionID = id
	return e
}

func (e *Entry) WithSource(source string) *Entry {
	e.Source = source
	return e
}

func (e *Entry) WithResource(resource string) *Entry {
	e.Resource = resource
	return e
}

func (e *Entry) WithRecords(n int) *Entry {
	e.Records = int64(n)
	return e
}

func (e *Entry) WithDuration(d time.Duration) *Entry {
	e.Duration = d
	return e
}

// WithError marks the entry failed. kind is the failure kind, if known.
func (e *Entry) WithError(kind string, err error) *Entry {
	if err != nil {
		e.Status = StatusFailure
		e.ErrorKind = kind
		e.Error = err.Error()
	}
	return e
}

func (e *Entry) WithMetadata(key string, value any) *Entry {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// String - строковое представление
func (e *Entry) String() string {
	return fmt.Sprintf("[%s] %s %s source=%s records=%d duration=%v",
		e.Timestamp.Format(time.RFC3339), e.Operation, e.Status, e.Source, e.Records, e.Duration)
}

func (e *Entry) metadataJSON() (string, error) {
	if len(e.Metadata) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(e.Metadata)
	return string(raw), err
}
