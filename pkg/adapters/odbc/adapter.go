// Package odbc registers a generic ODBC source, for warehouses that only ship
// an ODBC driver. The DSN is passed to the driver manager unchanged.
package odbc

import (
	"context"

	_ "github.com/alexbrainman/odbc"
	"github.com/ruslano69/sqlassist/pkg/adapters"
	"github.com/ruslano69/sqlassist/pkg/adapters/base"
)

var _ adapters.Adapter = (*Adapter)(nil)

func init() {
	adapters.Register("odbc", func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter wraps database/sql over the odbc driver.
type Adapter struct {
	base.SQLAdapter
}

// Connect opens the ODBC connection string.
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	return a.Open(ctx, "odbc", "odbc", cfg)
}

// GetDatabaseVersion is not portable across ODBC drivers.
func (a *Adapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	return "odbc", nil
}
