package retry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ruslano69/sqlassist/pkg/failure"
)

// Entry - запуск, исчерпавший попытки
type Entry struct {
	ID          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	Attempts    int          `json:"attempts"`
	LastError   string       `json:"last_error"`
	Kind        failure.Kind `json:"kind,omitempty"`
	FailureType string       `json:"failure_type"` // max_attempts_exceeded, context_cancelled
	Data        any          `json:"data,omitempty"`
}

// DLQ хранит записи в JSON файле и сохраняет его после каждого изменения
type DLQ struct {
	mu      sync.RWMutex
	config  DLQConfig
	entries []Entry
}

// OpenDLQ загружает существующий файл, если он есть
func OpenDLQ(config DLQConfig) (*DLQ, error) {
	d := &DLQ{config: config}

	data, err := os.ReadFile(config.FilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return d, nil
	case err != nil:
		return nil, fmt.Errorf("read dlq file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &d.entries); err != nil {
			return nil, fmt.Errorf("decode dlq file: %w", err)
		}
	}
	return d, nil
}

// Add assigns an ID, trims the oldest entries past MaxSize and saves.
func (d *DLQ) Add(entry Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry.ID = uuid.NewString()
	d.entries = append(d.entries, entry)
	if d.config.MaxSize > 0 && len(d.entries) > d.config.MaxSize {
		d.entries = d.entries[len(d.entries)-d.config.MaxSize:]
	}
	return d.save()
}

// Entries возвращает копию записей
func (d *DLQ) Entries() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Entry(nil), d.entries...)
}

// Remove удаляет запись по ID
func (d *DLQ) Remove(id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, e := range d.entries {
		if e.ID == id {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return true, d.save()
		}
	}
	return false, nil
}

// CleanupOld удаляет записи старше Retention и возвращает их число
func (d *DLQ) CleanupOld(now time.Time) (int, error) {
	if d.config.Retention == 0 {
		return 0, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := now.Add(-d.config.Retention)
	kept := d.entries[:0]
	for _, e := range d.entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(d.entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	d.entries = kept
	return removed, d.save()
}

// Size возвращает количество записей
func (d *DLQ) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Save сохраняет DLQ в файл
func (d *DLQ) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.save()
}

// save вызывается под блокировкой
func (d *DLQ) save() error {
	data, err := json.MarshalIndent(d.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dlq: %w", err)
	}
	if err := os.WriteFile(d.config.FilePath, data, 0o644); err != nil {
		return fmt.Errorf("write dlq file: %w", err)
	}
	return nil
}
