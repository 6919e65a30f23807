package processors

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ruslano69/sqlassist/pkg/rowset"
)

// MaskPattern определяет тип маскирования
type MaskPattern string

const (
	// MaskPartial: john.doe@example.com → j***@example.com, "Hello" → "H***o"
	MaskPartial MaskPattern = "partial"
	// MaskMiddle: +1 (555) 123-4567 → +1 (555) XXX-4567
	MaskMiddle MaskPattern = "middle"
	// MaskStars: все кроме разделителей → *
	MaskStars MaskPattern = "stars"
	// MaskFirst2Last2: 1234 567890 → 12** ****90
	MaskFirst2Last2 MaskPattern = "first2_last2"
)

var (
	emailRe    = regexp.MustCompile(`^([a-zA-Z0-9._%+-]+)@([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})$`)
	nonDigitRe = regexp.MustCompile(`\D`)
)

// Masker скрывает значения колонок результата перед доставкой наружу
type Masker struct {
	columns map[string]MaskPattern // column label -> pattern
}

// NewMasker validates the patterns.
func NewMasker(columns map[string]MaskPattern) (*Masker, error) {
	for col, p := range columns {
		switch p {
		case MaskPartial, MaskMiddle, MaskStars, MaskFirst2Last2:
		default:
			return nil, fmt.Errorf("invalid mask pattern %q for column %q", p, col)
		}
	}
	return &Masker{columns: columns}, nil
}

// Apply returns a masked copy of rs; rs itself is not modified.
// Masked cells become strings, nil stays nil.
func (m *Masker) Apply(rs *rowset.RowSet) *rowset.RowSet {
	if m == nil || len(m.columns) == 0 || rs == nil {
		return rs
	}

	idx := make(map[int]MaskPattern)
	for col, p := range m.columns {
		if i := rs.ColumnIndex(col); i >= 0 {
			idx[i] = p
		}
	}
	if len(idx) == 0 {
		return rs
	}

	out := &rowset.RowSet{Columns: append([]string(nil), rs.Columns...), Rows: make([][]any, len(rs.Rows))}
	for r, row := range rs.Rows {
		cp := append([]any(nil), row...)
		for i, p := range idx {
			if cp[i] != nil {
				cp[i] = maskValue(rowset.String(cp[i]), p)
			}
		}
		out.Rows[r] = cp
	}
	return out
}

func maskValue(v string, p MaskPattern) string {
	if v == "" {
		return v
	}
	switch p {
	case MaskPartial:
		return maskPartial(v)
	case MaskMiddle:
		return maskMiddle(v)
	case MaskFirst2Last2:
		return maskFirst2Last2(v)
	default:
		return maskStars(v)
	}
}

func maskPartial(v string) string {
	if m := emailRe.FindStringSubmatch(v); m != nil {
		return m[1][:1] + "***@" + m[2]
	}
	if len(v) <= 2 {
		return "***"
	}
	return v[:1] + "***" + v[len(v)-1:]
}

// maskMiddle оставляет по 4 цифры с краев (меньше для коротких значений)
func maskMiddle(v string) string {
	digits := len(nonDigitRe.ReplaceAllString(v, ""))
	if digits <= 4 {
		return strings.Repeat("X", len(v))
	}

	visible := 4
	if digits < 8 {
		visible = digits / 2
	}

	runes := []rune(v)
	seen := 0
	for i, r := range runes {
		if r >= '0' && r <= '9' {
			seen++
			if seen > visible && seen <= digits-visible {
				runes[i] = 'X'
			}
		}
	}
	return string(runes)
}

func maskStars(v string) string {
	runes := []rune(v)
	for i, r := range runes {
		if !strings.ContainsRune(" -()./", r) {
			runes[i] = '*'
		}
	}
	return string(runes)
}

// maskFirst2Last2 сохраняет пробелы на исходных позициях
func maskFirst2Last2(v string) string {
	cleaned := []rune(strings.ReplaceAll(v, " ", ""))
	if len(cleaned) <= 4 {
		return strings.Repeat("*", len([]rune(v)))
	}
	for i := 2; i < len(cleaned)-2; i++ {
		cleaned[i] = '*'
	}

	var b strings.Builder
	j := 0
	for _, r := range v {
		if r == ' ' {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(cleaned[j])
		j++
	}
	return b.String()
}
