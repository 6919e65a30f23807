package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileAppenderConfig - параметры JSON lines журнала
type FileAppenderConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int64  `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// FileAppender appends one JSON object per line. When the next line would
// push the file past maxSize, the file becomes path.1 and older backups
// shift up; path.MaxBackups is dropped.
type FileAppender struct {
	mu         sync.Mutex
	path       string
	maxSize    int64
	maxBackups int
	f          *os.File
	size       int64
}

// NewFileAppender opens (or creates) cfg.Path for appending.
func NewFileAppender(cfg FileAppenderConfig) (*FileAppender, error) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 100
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("audit dir: %w", err)
	}

	fa := &FileAppender{
		path:       cfg.Path,
		maxSize:    cfg.MaxSizeMB << 20,
		maxBackups: cfg.MaxBackups,
	}
	if err := fa.open(); err != nil {
		return nil, err
	}
	return fa, nil
}

func (fa *FileAppender) open() error {
	f, err := os.OpenFile(fa.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit file: %w", err)
	}
	fa.f, fa.size = f, info.Size()
	return nil
}

func (fa *FileAppender) backup(n int) string {
	return fmt.Sprintf("%s.%d", fa.path, n)
}

// Append writes entry as a single line.
func (fa *FileAppender) Append(_ context.Context, entry *Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	line = append(line, '\n')

	fa.mu.Lock()
	defer fa.mu.Unlock()
	if fa.f == nil {
		return errors.New("audit file closed")
	}

	if fa.size > 0 && fa.size+int64(len(line)) > fa.maxSize {
		if err := fa.rotate(); err != nil {
			return fmt.Errorf("rotate audit file: %w", err)
		}
	}
	n, err := fa.f.Write(line)
	fa.size += int64(n)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// rotate вызывается под mu
func (fa *FileAppender) rotate() error {
	if err := fa.f.Close(); err != nil {
		return err
	}
	fa.f = nil

	if err := os.Remove(fa.backup(fa.maxBackups)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	for n := fa.maxBackups - 1; n >= 1; n-- {
		if err := os.Rename(fa.backup(n), fa.backup(n+1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := os.Rename(fa.path, fa.backup(1)); err != nil {
		return err
	}
	return fa.open()
}

// Close закрывает файл; повторный вызов ничего не делает
func (fa *FileAppender) Close() error {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	if fa.f == nil {
		return nil
	}
	err := fa.f.Close()
	fa.f = nil
	return err
}
