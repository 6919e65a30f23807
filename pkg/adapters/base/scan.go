package base

import (
	"database/sql"
	"fmt"

	"github.com/ruslano69/sqlassist/pkg/rowset"
)

// ScanRows reads every row into a RowSet. A statement without a result set
// (no columns reported) yields an empty RowSet.
func ScanRows(rows *sql.Rows) (*rowset.RowSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	if len(columns) == 0 {
		return rowset.Empty(), nil
	}

	values := make([]any, len(columns))
	scanArgs := make([]any, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	result := &rowset.RowSet{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make([]any, len(columns))
		for i, v := range values {
			row[i] = rowset.Normalize(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return result, nil
}
