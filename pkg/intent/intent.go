// Package intent classifies a question by keyword heuristics.
//
// The heuristics are deliberately shallow: a paraphrase such as "compensation"
// instead of "salary" is not recognised. Rules are ordered tables so new
// patterns can be appended without touching existing ones.
package intent

import (
	"regexp"
	"strings"
)

// Intent is the classification of one question.
type Intent struct {
	SpansMultipleSources bool `json:"spans_multiple_sources"`
	WantsVisualization   bool `json:"wants_visualization"`
}

// Rule matches a lowercased question.
type Rule struct {
	Name  string
	Match func(q string) bool
}

// Contains matches when the question contains the substring.
func Contains(sub string) Rule {
	return Rule{Name: sub, Match: func(q string) bool { return strings.Contains(q, sub) }}
}

// Pattern matches when the regular expression finds a match.
func Pattern(expr string) Rule {
	re := regexp.MustCompile(expr)
	return Rule{Name: expr, Match: re.MatchString}
}

// AllOf matches when the question contains every substring.
func AllOf(subs ...string) Rule {
	return Rule{
		Name: strings.Join(subs, "+"),
		Match: func(q string) bool {
			for _, s := range subs {
				if !strings.Contains(q, s) {
					return false
				}
			}
			return true
		},
	}
}

// CrossSourceRules flag questions whose answer joins data held in several sources.
var CrossSourceRules = []Rule{
	Contains("top"),
	Contains("highest paid"),
	Contains("salary"),
	Contains("department"),
	Contains("join"),
	Pattern(`employee.*salary`),
	Pattern(`department.*salary`),
	Pattern(`highest.*department`),
}

// VisualizationRules flag questions that suggest a chart.
var VisualizationRules = []Rule{
	Contains("top"),
	Contains("highest"),
	Contains("salary"),
	Contains("department"),
	Contains("compare"),
	Contains("distribution"),
	Contains("chart"),
	Contains("graph"),
	Contains("plot"),
}

// Classifier evaluates rule tables against a question.
type Classifier struct {
	crossSource   []Rule
	visualization []Rule
}

// New returns a classifier with the default rule tables.
func New() *Classifier {
	return &Classifier{
		crossSource:   CrossSourceRules,
		visualization: VisualizationRules,
	}
}

// NewWithRules returns a classifier with custom tables.
func NewWithRules(crossSource, visualization []Rule) *Classifier {
	return &Classifier{crossSource: crossSource, visualization: visualization}
}

// Classify runs both checks on the lowercased question.
// WantsVisualization here is only the question-level pre-check;
// see ShapeAllowsChart for the result-level half.
func (c *Classifier) Classify(question string) Intent {
	q := strings.ToLower(question)
	return Intent{
		SpansMultipleSources: anyMatch(c.crossSource, q),
		WantsVisualization:   anyMatch(c.visualization, q),
	}
}

// MatchedRules returns the names of the cross-source rules that fired, for logging.
func (c *Classifier) MatchedRules(question string) []string {
	q := strings.ToLower(question)
	var names []string
	for _, r := range c.crossSource {
		if r.Match(q) {
			names = append(names, r.Name)
		}
	}
	return names
}

// ShapeAllowsChart is the post-execution half of the visualization check:
// more than one row and at least two columns.
func ShapeAllowsChart(rows, columns int) bool {
	return rows > 1 && columns >= 2
}

func anyMatch(rules []Rule, q string) bool {
	for _, r := range rules {
		if r.Match(q) {
			return true
		}
	}
	return false
}
