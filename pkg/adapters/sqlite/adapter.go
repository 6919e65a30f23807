package sqlite

import (
	"context"
	"fmt"

	"github.com/ruslano69/sqlassist/pkg/adapters"
	"github.com/ruslano69/sqlassist/pkg/adapters/base"
	_ "modernc.org/sqlite"
)

const driverSqlite = "sqlite"

// Compile-time check: Adapter должен реализовывать интерфейс adapters.Adapter
var _ adapters.Adapter = (*Adapter)(nil)

// Регистрация типа источника sqlite
func init() {
	adapters.Register("sqlite", func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter представляет адаптер для работы с SQLite
type Adapter struct {
	base.SQLAdapter
}

// Connect открывает файл БД и применяет PRAGMA для чтения
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	if err := a.Open(ctx, driverSqlite, "sqlite", cfg); err != nil {
		return err
	}

	// busy_timeout нужен, когда файл параллельно пишет другой процесс
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := a.DB().ExecContext(ctx, pragma); err != nil {
			a.Close(ctx)
			return fmt.Errorf("%s failed: %w", pragma, err)
		}
	}

	return nil
}

// GetDatabaseVersion возвращает версию SQLite
func (a *Adapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	return a.QueryScalar(ctx, "SELECT sqlite_version()")
}
