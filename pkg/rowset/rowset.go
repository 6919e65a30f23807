// Package rowset holds the tabular result shared by execution, reconciliation,
// formatting and charting.
package rowset

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// RowSet is an ordered list of column labels plus rows of scalar values.
// Every row has exactly len(Columns) elements.
type RowSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// New builds a RowSet and checks the row width invariant.
func New(columns []string, rows [][]any) (*RowSet, error) {
	rs := &RowSet{Columns: columns, Rows: rows}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Empty returns a RowSet with no columns and no rows (statements without a result set).
func Empty() *RowSet {
	return &RowSet{Columns: []string{}, Rows: [][]any{}}
}

// Validate checks that each row matches the column count.
func (rs *RowSet) Validate() error {
	for i, row := range rs.Rows {
		if len(row) != len(rs.Columns) {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(rs.Columns))
		}
	}
	return nil
}

// Len returns the number of rows.
func (rs *RowSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Width returns the number of columns.
func (rs *RowSet) Width() int {
	if rs == nil {
		return 0
	}
	return len(rs.Columns)
}

// ColumnIndex returns the position of a column label, or -1.
func (rs *RowSet) ColumnIndex(label string) int {
	for i, c := range rs.Columns {
		if c == label {
			return i
		}
	}
	return -1
}

// Column returns all values of one column.
func (rs *RowSet) Column(label string) ([]any, error) {
	idx := rs.ColumnIndex(label)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", label)
	}
	out := make([]any, len(rs.Rows))
	for i, row := range rs.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Normalize converts driver-specific values into plain Go scalars:
// []byte becomes string, big numeric types become float64 or string.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case int16:
		return int64(val)
	case int8:
		return int64(val)
	case uint32:
		return int64(val)
	case uint16:
		return int64(val)
	case uint8:
		return int64(val)
	case float32:
		return float64(val)
	case *big.Float:
		f, _ := val.Float64()
		return f
	case *big.Int:
		if val.IsInt64() {
			return val.Int64()
		}
		return val.String()
	case fmt.Stringer:
		if _, isTime := v.(time.Time); isTime {
			return v
		}
		return val.String()
	default:
		return v
	}
}

// String renders a value for display. nil renders as "None".
func String(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case string:
		return val
	case []byte:
		return string(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(val)
	}
}

// Key renders a value for equality comparison across engines:
// int64(1), "1" and float64(1) produce the same key.
func Key(v any) string {
	if f, ok := Float(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.TrimSpace(String(v))
}

// Float converts a numeric-looking value to float64.
func Float(v any) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Compare orders two values: numerically when both are numbers, otherwise by display string.
func Compare(a, b any) int {
	fa, okA := Float(a)
	fb, okB := Float(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(String(a), String(b))
}
