package audit

import (
	"fmt"

	"github.com/ruslano69/sqlassist/pkg/security"
)

// Config - секция audit в YAML
type Config struct {
	Enabled  bool               `yaml:"enabled"`
	Async    bool               `yaml:"async"`
	File     FileAppenderConfig `yaml:"file"`
	Database string             `yaml:"database"` // путь к SQLite
}

// Open builds a logger from cfg. A disabled config yields a NullLogger.
func Open(cfg Config) (Logger, error) {
	if !cfg.Enabled {
		return NullLogger{}, nil
	}

	var appenders []Appender
	if cfg.File.Path != "" {
		fa, err := NewFileAppender(cfg.File)
		if err != nil {
			return nil, err
		}
		appenders = append(appenders, fa)
	}
	if cfg.Database != "" {
		da, err := OpenDatabaseAppender(cfg.Database)
		if err != nil {
			for _, a := range appenders {
				a.Close()
			}
			return nil, err
		}
		appenders = append(appenders, da)
	}
	if len(appenders) == 0 {
		return nil, fmt.Errorf("audit enabled but neither file.path nor database is set")
	}

	return NewLogger(LoggerConfig{
		AsyncMode:   cfg.Async,
		DefaultUser: security.CurrentUser(),
	}, appenders...), nil
}
