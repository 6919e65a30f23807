// Package base содержит общую логику адаптеров поверх database/sql.
//
// SQLAdapter держит одно *sql.DB с MaxOpenConns = 1, поэтому каждый адаптер
// работает ровно на одном подключении. Драйверы встраивают SQLAdapter и
// добавляют только регистрацию типа и запрос версии:
//
//	type Adapter struct {
//	    base.SQLAdapter
//	}
//
//	func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
//	    return a.Open(ctx, "mysql", "mysql", cfg)
//	}
//
// ScanRows переводит *sql.Rows в rowset.RowSet, нормализуя значения драйвера.
package base
