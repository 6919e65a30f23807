package planner

import (
	"errors"
	"regexp"
	"strings"
)

var (
	strictPattern   = regexp.MustCompile(`(?:DATABASE|SOURCE):(\w+)\|QUERY:(.+)`)
	fallbackPattern = regexp.MustCompile(`(?is)(SELECT.*?;)`)
	fencePattern    = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")
)

// ErrNoPlan - ответ генератора не содержит запроса
var ErrNoPlan = errors.New("no query found in generator response")

// Parse extracts a plan from generator output. The strict
// "DATABASE:<id>|QUERY:<sql>" form wins and its query ends at the line
// break, so trailing prose is ignored; otherwise the first "SELECT ... ;"
// span is taken with defaultSource.
func Parse(response, defaultSource string) (Plan, error) {
	text := strings.TrimSpace(fencePattern.ReplaceAllString(response, ""))

	if m := strictPattern.FindStringSubmatch(text); m != nil {
		query := strings.TrimSpace(m[2])
		if query != "" {
			return Plan{Source: m[1], Query: query}, nil
		}
	}

	if m := fallbackPattern.FindStringSubmatch(text); m != nil {
		return Plan{Source: defaultSource, Query: strings.TrimSpace(m[1])}, nil
	}

	return Plan{}, ErrNoPlan
}
