// Package resultfmt renders a RowSet as bounded plain text.
package resultfmt

import (
	"fmt"
	"strings"

	"github.com/ruslano69/sqlassist/pkg/rowset"
)

const (
	// NoResults is returned for a RowSet without rows.
	NoResults = "No results found."

	// MaxRows - сколько строк попадает в таблицу
	MaxRows = 20

	separator = "  |  "
)

// Format renders rs. Values are not escaped; the text is for display only.
func Format(rs *rowset.RowSet) string {
	return FormatLimit(rs, MaxRows)
}

// FormatLimit renders at most limit table rows.
func FormatLimit(rs *rowset.RowSet, limit int) string {
	if rs.Len() == 0 {
		return NoResults
	}
	if rs.Len() == 1 && rs.Width() == 1 {
		return "Result: " + rowset.String(rs.Rows[0][0])
	}

	var b strings.Builder
	header := "\n" + strings.Join(rs.Columns, separator) + "\n"
	b.WriteString(header)
	b.WriteString(strings.Repeat("-", len(header)))
	b.WriteString("\n")

	shown := rs.Rows
	if len(shown) > limit {
		shown = shown[:limit]
	}
	cells := make([]string, rs.Width())
	for _, row := range shown {
		for i, v := range row {
			cells[i] = rowset.String(v)
		}
		b.WriteString(strings.Join(cells[:len(row)], separator))
		b.WriteString("\n")
	}

	if rest := rs.Len() - len(shown); rest > 0 {
		fmt.Fprintf(&b, "\n... and %d more rows", rest)
	}
	return b.String()
}
