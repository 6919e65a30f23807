package mssql

import (
	"context"

	_ "github.com/denisenkom/go-mssqldb"
	"github.com/ruslano69/sqlassist/pkg/adapters"
	"github.com/ruslano69/sqlassist/pkg/adapters/base"
)

// Compile-time check
var _ adapters.Adapter = (*Adapter)(nil)

// Register the mssql source type
func init() {
	adapters.Register("mssql", func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter implements adapters.Adapter for Microsoft SQL Server
type Adapter struct {
	base.SQLAdapter
}

// Connect opens a connection using a sqlserver:// DSN
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	return a.Open(ctx, "sqlserver", "mssql", cfg)
}

// GetDatabaseVersion returns SERVERPROPERTY(ProductVersion)
func (a *Adapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	return a.QueryScalar(ctx, "SELECT CAST(SERVERPROPERTY('ProductVersion') AS NVARCHAR(128))")
}
