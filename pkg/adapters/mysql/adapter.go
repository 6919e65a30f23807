package mysql

import (
	"context"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ruslano69/sqlassist/pkg/adapters"
	"github.com/ruslano69/sqlassist/pkg/adapters/base"
)

var _ adapters.Adapter = (*Adapter)(nil)

func init() {
	adapters.Register("mysql", func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter - адаптер MySQL / MariaDB
type Adapter struct {
	base.SQLAdapter
}

// Connect устанавливает подключение к MySQL
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	return a.Open(ctx, "mysql", "mysql", cfg)
}

// GetDatabaseVersion возвращает версию MySQL
func (a *Adapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	return a.QueryScalar(ctx, "SELECT VERSION()")
}
