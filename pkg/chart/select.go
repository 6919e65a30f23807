package chart

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/sqlassist/pkg/intent"
	"github.com/ruslano69/sqlassist/pkg/rowset"
)

// Selector picks the first matching rule and builds its chart.
type Selector struct {
	classifier *intent.Classifier
	rules      []Rule
}

// NewSelector uses DefaultRules when rules is empty.
func NewSelector(classifier *intent.Classifier, rules ...Rule) *Selector {
	if classifier == nil {
		classifier = intent.New()
	}
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Selector{classifier: classifier, rules: rules}
}

// Select returns a chart for the result or nil. It never fails: a rule
// that errors or panics just means no chart.
func (s *Selector) Select(question string, rs *rowset.RowSet) *Spec {
	if !s.classifier.Classify(question).WantsVisualization {
		return nil
	}
	if !intent.ShapeAllowsChart(rs.Len(), rs.Width()) {
		return nil
	}

	q := strings.ToLower(question)
	for _, rule := range s.rules {
		if !rule.Match(q, rs) {
			continue
		}
		spec, err := build(rule, rs)
		if err != nil {
			log.Debug().Err(err).Str("rule", rule.Name).Msg("chart skipped")
			return nil
		}
		return spec
	}
	return nil
}

func build(rule Rule, rs *rowset.RowSet) (spec *Spec, err error) {
	defer func() {
		if r := recover(); r != nil {
			spec, err = nil, fmt.Errorf("chart rule %s panicked: %v", rule.Name, r)
		}
	}()
	return rule.Build(rs)
}
