package reconcile

import (
	"fmt"
	"strings"

	"github.com/ruslano69/sqlassist/pkg/registry"
)

// Extraction - фиксированный запрос к одной таблице одного источника
type Extraction struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Table  string `yaml:"table"`
	Query  string `yaml:"query"`
}

// Join связывает две колонки вида "extraction.column".
// Если список пуст, шаги выводятся из relationships реестра.
type Join struct {
	Left  string `yaml:"left"`
	Right string `yaml:"right"`
}

// Projection maps a joined column to its presentation label.
type Projection struct {
	Column string `yaml:"column"`
	Label  string `yaml:"label"`
}

// Config описывает кросс-источниковую сверку
type Config struct {
	Extractions []Extraction `yaml:"extractions"`
	Joins       []Join       `yaml:"joins"`
	Projection  []Projection `yaml:"projection"`

	// DedupKey - колонки "extraction.column", однозначно определяющие факт
	DedupKey []string `yaml:"dedup_key"`

	// Measure и Group - метки колонок после проекции
	Measure string `yaml:"measure"`
	Group   string `yaml:"group"`
	TopN    int    `yaml:"top_n"`

	// TopNWhen - все слова должны встретиться в вопросе
	TopNWhen []string `yaml:"top_n_when"`
}

// DefaultConfig returns the employees/departments/salaries layout.
func DefaultConfig() Config {
	return Config{
		Extractions: []Extraction{
			{Name: "employees", Source: "db1", Table: "employees", Query: "SELECT id, name, department_id FROM employees"},
			{Name: "departments", Source: "db1", Table: "departments", Query: "SELECT id, name FROM departments"},
			{Name: "salaries", Source: "db2", Table: "salaries", Query: "SELECT employee_id, amount FROM salaries"},
		},
		Projection: []Projection{
			{Column: "employees.name", Label: "Employee Name"},
			{Column: "departments.name", Label: "Department"},
			{Column: "salaries.amount", Label: "Salary"},
		},
		DedupKey: []string{"employees.id", "departments.id", "salaries.amount"},
		Measure:  "Salary",
		Group:    "Department",
		TopN:     3,
		TopNWhen: []string{"top", "department"},
	}
}

// SetDefaults заполняет пустые поля значениями DefaultConfig
func (c *Config) SetDefaults() {
	def := DefaultConfig()
	if len(c.Extractions) == 0 {
		c.Extractions = def.Extractions
		if len(c.Projection) == 0 {
			c.Projection = def.Projection
		}
		if len(c.DedupKey) == 0 {
			c.DedupKey = def.DedupKey
		}
		if c.Measure == "" {
			c.Measure = def.Measure
		}
		if c.Group == "" {
			c.Group = def.Group
		}
	}
	if c.TopN == 0 {
		c.TopN = def.TopN
	}
	if len(c.TopNWhen) == 0 {
		c.TopNWhen = def.TopNWhen
	}
	for i := range c.TopNWhen {
		c.TopNWhen[i] = strings.ToLower(c.TopNWhen[i])
	}
}

// Validate проверяет согласованность конфигурации с реестром
func (c *Config) Validate(reg *registry.Registry) error {
	if len(c.Extractions) == 0 {
		return fmt.Errorf("reconcile: no extractions configured")
	}

	names := make(map[string]bool, len(c.Extractions))
	for _, ex := range c.Extractions {
		if ex.Name == "" || ex.Query == "" {
			return fmt.Errorf("reconcile: extraction requires name and query")
		}
		if names[ex.Name] {
			return fmt.Errorf("reconcile: duplicate extraction %q", ex.Name)
		}
		names[ex.Name] = true
		if reg != nil && !reg.Has(ex.Source) {
			return fmt.Errorf("reconcile: extraction %q uses unknown source %q", ex.Name, ex.Source)
		}
	}

	checkRef := func(what, ref string) error {
		ext, _, err := splitRef(ref)
		if err != nil {
			return fmt.Errorf("reconcile: %s: %w", what, err)
		}
		if !names[ext] {
			return fmt.Errorf("reconcile: %s refers to unknown extraction %q", what, ext)
		}
		return nil
	}

	for _, j := range c.Joins {
		if err := checkRef("join", j.Left); err != nil {
			return err
		}
		if err := checkRef("join", j.Right); err != nil {
			return err
		}
	}
	if len(c.Projection) == 0 {
		return fmt.Errorf("reconcile: projection is empty")
	}
	labels := make(map[string]bool, len(c.Projection))
	for _, p := range c.Projection {
		if err := checkRef("projection", p.Column); err != nil {
			return err
		}
		labels[p.Label] = true
	}
	for _, k := range c.DedupKey {
		if err := checkRef("dedup_key", k); err != nil {
			return err
		}
	}
	if c.Measure != "" && !labels[c.Measure] {
		return fmt.Errorf("reconcile: measure %q is not a projected label", c.Measure)
	}
	if c.Group != "" && !labels[c.Group] {
		return fmt.Errorf("reconcile: group %q is not a projected label", c.Group)
	}
	if c.TopN < 0 {
		return fmt.Errorf("reconcile: top_n must not be negative")
	}
	return nil
}

// splitRef разбирает "extraction.column"
func splitRef(ref string) (string, string, error) {
	ext, col, ok := strings.Cut(ref, ".")
	if !ok || ext == "" || col == "" {
		return "", "", fmt.Errorf("invalid column reference %q (want extraction.column)", ref)
	}
	return ext, col, nil
}

// joinsFromRelationships matches each relationship endpoint to an extraction
// by (source, table). Relationships touching unextracted tables are skipped.
func joinsFromRelationships(extractions []Extraction, rels []registry.Relationship) []Join {
	byTable := make(map[[2]string]string, len(extractions))
	for _, ex := range extractions {
		byTable[[2]string{ex.Source, ex.Table}] = ex.Name
	}

	var joins []Join
	for _, rel := range rels {
		from, okFrom := byTable[[2]string{rel.From.Source, rel.From.Table}]
		to, okTo := byTable[[2]string{rel.To.Source, rel.To.Table}]
		if !okFrom || !okTo {
			continue
		}
		joins = append(joins, Join{
			Left:  from + "." + rel.From.Column,
			Right: to + "." + rel.To.Column,
		})
	}
	return joins
}
