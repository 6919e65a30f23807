package reconcile

import (
	"fmt"

	"github.com/ruslano69/sqlassist/pkg/rowset"
)

// relation - промежуточный результат соединения: строки из сцепленных
// колонок нескольких извлечений и индекс "extraction.column" → позиция.
type relation struct {
	index   map[string]int
	members map[string]bool
	rows    [][]any
}

func newRelation(name string, rs *rowset.RowSet) *relation {
	rel := &relation{
		index:   make(map[string]int, len(rs.Columns)),
		members: map[string]bool{name: true},
		rows:    rs.Rows,
	}
	for i, col := range rs.Columns {
		rel.index[name+"."+col] = i
	}
	return rel
}

func (rel *relation) col(ref string) (int, error) {
	i, ok := rel.index[ref]
	if !ok {
		return 0, fmt.Errorf("column %s not found in extracted data", ref)
	}
	return i, nil
}

// innerJoin attaches extraction name on rel[leftRef] = rs[rightCol].
// Left row order is kept; a left row matching several right rows expands
// in right row order. NULL keys never match.
func (rel *relation) innerJoin(leftRef, name, rightCol string, rs *rowset.RowSet) error {
	li, err := rel.col(leftRef)
	if err != nil {
		return err
	}
	ri := rs.ColumnIndex(rightCol)
	if ri < 0 {
		return fmt.Errorf("column %s.%s not found in extracted data", name, rightCol)
	}

	lookup := make(map[string][]int, len(rs.Rows))
	for i, row := range rs.Rows {
		if row[ri] == nil {
			continue
		}
		k := rowset.Key(row[ri])
		lookup[k] = append(lookup[k], i)
	}

	width := len(rel.index)
	joined := make([][]any, 0, len(rel.rows))
	for _, left := range rel.rows {
		if left[li] == nil {
			continue
		}
		for _, ri := range lookup[rowset.Key(left[li])] {
			row := make([]any, 0, width+len(rs.Columns))
			row = append(row, left...)
			row = append(row, rs.Rows[ri]...)
			joined = append(joined, row)
		}
	}

	for i, col := range rs.Columns {
		rel.index[name+"."+col] = width + i
	}
	rel.members[name] = true
	rel.rows = joined
	return nil
}

// filter keeps rows where both already-joined columns are equal.
func (rel *relation) filter(leftRef, rightRef string) error {
	li, err := rel.col(leftRef)
	if err != nil {
		return err
	}
	ri, err := rel.col(rightRef)
	if err != nil {
		return err
	}
	kept := rel.rows[:0:0]
	for _, row := range rel.rows {
		if row[li] != nil && row[ri] != nil && rowset.Key(row[li]) == rowset.Key(row[ri]) {
			kept = append(kept, row)
		}
	}
	rel.rows = kept
	return nil
}

// joinAll соединяет извлечения начиная с первого. На каждом шаге берется
// первый join, ровно одна сторона которого уже в отношении.
func joinAll(extractions []Extraction, sets []*rowset.RowSet, joins []Join) (*relation, error) {
	byName := make(map[string]*rowset.RowSet, len(extractions))
	for i, ex := range extractions {
		byName[ex.Name] = sets[i]
	}

	rel := newRelation(extractions[0].Name, sets[0])
	pending := append([]Join(nil), joins...)

	for len(pending) > 0 {
		progressed := false
		for i, j := range pending {
			leftExt, _, err := splitRef(j.Left)
			if err != nil {
				return nil, err
			}
			rightExt, _, err := splitRef(j.Right)
			if err != nil {
				return nil, err
			}

			inLeft, inRight := rel.members[leftExt], rel.members[rightExt]
			switch {
			case inLeft && inRight:
				err = rel.filter(j.Left, j.Right)
			case inLeft:
				_, col, _ := splitRef(j.Right)
				err = rel.innerJoin(j.Left, rightExt, col, byName[rightExt])
			case inRight:
				_, col, _ := splitRef(j.Left)
				err = rel.innerJoin(j.Right, leftExt, col, byName[leftExt])
			default:
				continue
			}
			if err != nil {
				return nil, err
			}
			pending = append(pending[:i], pending[i+1:]...)
			progressed = true
			break
		}
		if !progressed {
			return nil, fmt.Errorf("joins %v are not connected to extraction %q", pending, extractions[0].Name)
		}
	}

	for _, ex := range extractions {
		if !rel.members[ex.Name] {
			return nil, fmt.Errorf("extraction %q is not joined", ex.Name)
		}
	}
	return rel, nil
}
