// Package chart decides whether a result deserves a chart and, if so,
// describes it. Rendering is left to consumers such as pkg/xlsx.
package chart

// Kind is the bar orientation. Grouping is not a separate kind: a chart
// with GroupLabel set and one Series per group is the grouped form
// (top earners per department is a grouped horizontal-bar).
type Kind string

const (
	KindHorizontalBar Kind = "horizontal-bar"
	KindBar           Kind = "bar"
)

// Point - одна категория и ее значение
type Point struct {
	Category string  `json:"category"`
	Value    float64 `json:"value"`
}

// Series is one named group of points. Series order is significant.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Spec describes a chart independent of any renderer.
type Spec struct {
	Kind       Kind     `json:"kind"`
	Title      string   `json:"title"`
	XLabel     string   `json:"x_label"`
	YLabel     string   `json:"y_label"`
	GroupLabel string   `json:"group_label,omitempty"`
	Series     []Series `json:"series"`
}

// Categories returns the distinct categories across all series in first-seen order.
func (s *Spec) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, series := range s.Series {
		for _, p := range series.Points {
			if !seen[p.Category] {
				seen[p.Category] = true
				out = append(out, p.Category)
			}
		}
	}
	return out
}

// PointCount - общее число точек
func (s *Spec) PointCount() int {
	n := 0
	for _, series := range s.Series {
		n += len(series.Points)
	}
	return n
}
