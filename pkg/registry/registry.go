// Package registry maps source identifiers to connection parameters and
// schema documentation. A Registry is read-only once built.
package registry

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// SourceConfig описывает один источник данных в YAML конфигурации
type SourceConfig struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"` // postgres, mysql, mssql, sqlite, odbc
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database,omitempty"` // имя БД или путь к файлу SQLite
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	SSLMode  string `yaml:"sslmode,omitempty"` // только PostgreSQL
	DSN      string `yaml:"dsn,omitempty"`     // если задан, перекрывает host/port/...
	Schema   string `yaml:"schema,omitempty"`  // описание таблиц для генератора
	Timeout  int    `yaml:"timeout,omitempty"` // секунды, 0 = без ограничения
}

// ColumnRef points at one column of one table in one source.
type ColumnRef struct {
	Source string `yaml:"source"`
	Table  string `yaml:"table"`
	Column string `yaml:"column"`
}

func (c ColumnRef) String() string {
	return fmt.Sprintf("%s.%s.%s", c.Source, c.Table, c.Column)
}

// Relationship declares that From corresponds to To, possibly across sources.
// It is only ever evaluated in memory.
type Relationship struct {
	From ColumnRef `yaml:"from"`
	To   ColumnRef `yaml:"to"`
	Note string    `yaml:"note,omitempty"`
}

// SourceDescriptor is the resolved, immutable view of a configured source.
type SourceDescriptor struct {
	ID      string
	Type    string
	DSN     string
	Schema  string
	Timeout time.Duration
}

// Registry holds all sources in configuration order.
type Registry struct {
	sources       map[string]SourceDescriptor
	order         []string
	relationships []Relationship
	defaultID     string
}

// New validates the configuration and builds a Registry.
// defaultID falls back to the first configured source.
func New(sources []SourceConfig, relationships []Relationship, defaultID string) (*Registry, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}

	r := &Registry{
		sources: make(map[string]SourceDescriptor, len(sources)),
	}

	for i, src := range sources {
		if src.ID == "" {
			return nil, fmt.Errorf("source %d: id is required", i)
		}
		if _, dup := r.sources[src.ID]; dup {
			return nil, fmt.Errorf("source %q: duplicate id", src.ID)
		}
		dsn, err := BuildDSN(src)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", src.ID, err)
		}
		r.sources[src.ID] = SourceDescriptor{
			ID:      src.ID,
			Type:    src.Type,
			DSN:     dsn,
			Schema:  strings.TrimSpace(src.Schema),
			Timeout: time.Duration(src.Timeout) * time.Second,
		}
		r.order = append(r.order, src.ID)
	}

	for i, rel := range relationships {
		for _, ref := range []ColumnRef{rel.From, rel.To} {
			if _, ok := r.sources[ref.Source]; !ok {
				return nil, fmt.Errorf("relationship %d: unknown source %q", i, ref.Source)
			}
			if ref.Table == "" || ref.Column == "" {
				return nil, fmt.Errorf("relationship %d: table and column are required", i)
			}
		}
	}
	r.relationships = append([]Relationship(nil), relationships...)

	if defaultID == "" {
		defaultID = r.order[0]
	}
	if _, ok := r.sources[defaultID]; !ok {
		return nil, fmt.Errorf("default source %q is not configured", defaultID)
	}
	r.defaultID = defaultID

	return r, nil
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (SourceDescriptor, error) {
	d, ok := r.sources[id]
	if !ok {
		return SourceDescriptor{}, fmt.Errorf("unknown source %q (configured: %s)", id, strings.Join(r.IDs(), ", "))
	}
	return d, nil
}

// Has reports whether id is configured.
func (r *Registry) Has(id string) bool {
	_, ok := r.sources[id]
	return ok
}

// IDs returns the configured identifiers sorted alphabetically.
func (r *Registry) IDs() []string {
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}

// Default returns the identifier used when a plan names no source.
func (r *Registry) Default() string {
	return r.defaultID
}

// Relationships returns a copy of the declared relationships.
func (r *Registry) Relationships() []Relationship {
	return append([]Relationship(nil), r.relationships...)
}

// SchemaText renders the documentation of every source in configuration order,
// followed by the cross-source relationship notes.
func (r *Registry) SchemaText() string {
	var b strings.Builder
	b.WriteString("DATABASE SCHEMA:\n")

	for _, id := range r.order {
		d := r.sources[id]
		fmt.Fprintf(&b, "\nSource %s (%s):\n", d.ID, d.Type)
		if d.Schema == "" {
			b.WriteString("- no schema documentation\n")
			continue
		}
		b.WriteString(d.Schema)
		b.WriteString("\n")
	}

	if len(r.relationships) > 0 {
		b.WriteString("\nRELATIONSHIPS:\n")
		for _, rel := range r.relationships {
			fmt.Fprintf(&b, "- %s references %s", rel.From, rel.To)
			if rel.Note != "" {
				fmt.Fprintf(&b, " (%s)", rel.Note)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// BuildDSN returns the driver connection string for a source.
func BuildDSN(src SourceConfig) (string, error) {
	if src.DSN != "" {
		return src.DSN, nil
	}

	switch src.Type {
	case "postgres":
		port := src.Port
		if port == 0 {
			port = 5432
		}
		sslMode := src.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(src.User, src.Password),
			Host:     fmt.Sprintf("%s:%d", src.Host, port),
			Path:     "/" + src.Database,
			RawQuery: "sslmode=" + url.QueryEscape(sslMode),
		}
		return u.String(), nil

	case "mysql":
		port := src.Port
		if port == 0 {
			port = 3306
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", src.User, src.Password, src.Host, port, src.Database), nil

	case "mssql":
		port := src.Port
		if port == 0 {
			port = 1433
		}
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(src.User, src.Password),
			Host:     fmt.Sprintf("%s:%d", src.Host, port),
			RawQuery: "database=" + url.QueryEscape(src.Database),
		}
		return u.String(), nil

	case "sqlite":
		if src.Database == "" {
			return "", fmt.Errorf("sqlite source requires database (file path)")
		}
		return src.Database, nil

	case "odbc":
		return "", fmt.Errorf("odbc source requires an explicit dsn")

	case "":
		return "", fmt.Errorf("type is required")

	default:
		return "", fmt.Errorf("unsupported source type %q", src.Type)
	}
}
