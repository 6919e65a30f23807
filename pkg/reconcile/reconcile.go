// Package reconcile answers cross-source questions: it runs a fixed set of
// extraction queries, joins the results in memory along declared
// relationships, removes duplicate facts and ranks what is left.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/sqlassist/pkg/failure"
	"github.com/ruslano69/sqlassist/pkg/intent"
	"github.com/ruslano69/sqlassist/pkg/registry"
	"github.com/ruslano69/sqlassist/pkg/rowset"
)

// Reconciler is safe for concurrent use; it holds no per-request state.
type Reconciler struct {
	executor Executor
	config   Config
	joins    []Join
	topN     intent.Rule
}

// New validates cfg against reg. Without explicit joins, the join chain is
// derived from reg's relationships.
func New(exec Executor, reg *registry.Registry, cfg Config) (*Reconciler, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(reg); err != nil {
		return nil, err
	}

	joins := cfg.Joins
	if len(joins) == 0 && reg != nil {
		joins = joinsFromRelationships(cfg.Extractions, reg.Relationships())
	}
	if len(cfg.Extractions) > 1 && len(joins) == 0 {
		return nil, fmt.Errorf("reconcile: no joins configured or derivable from relationships")
	}

	return &Reconciler{
		executor: exec,
		config:   cfg,
		joins:    joins,
		topN:     intent.AllOf(cfg.TopNWhen...),
	}, nil
}

// Config returns the effective configuration.
func (r *Reconciler) Config() Config {
	return r.config
}

// Reconcile produces the combined RowSet for question. Any failed extraction
// fails the whole call with PartialSourceFailure.
func (r *Reconciler) Reconcile(ctx context.Context, question string) (*rowset.RowSet, error) {
	start := time.Now()

	sets, err := r.extractAll(ctx)
	if err != nil {
		return nil, err
	}

	rel, err := joinAll(r.config.Extractions, sets, r.joins)
	if err != nil {
		return nil, failure.Wrap(failure.ExecutionError, err, "")
	}

	rows, err := r.dedup(rel)
	if err != nil {
		return nil, failure.Wrap(failure.ExecutionError, err, "")
	}

	out, err := r.project(rel, rows)
	if err != nil {
		return nil, failure.Wrap(failure.ExecutionError, err, "")
	}

	grouped := r.config.Group != "" && r.config.TopN > 0 && r.topN.Match(strings.ToLower(question))
	if grouped {
		out.Rows = TopNPerGroup(out, r.config.Group, r.config.Measure, r.config.TopN)
	} else {
		SortByMeasure(out, r.config.Measure)
	}

	log.Debug().
		Int("joined", len(rel.rows)).
		Int("unique", len(rows)).
		Int("rows", out.Len()).
		Bool("top_n", grouped).
		Dur("elapsed", time.Since(start)).
		Msg("reconciled")
	return out, nil
}

// dedup keeps the first row for each distinct key and then orders rows by
// key, so the result does not depend on extraction row order.
func (r *Reconciler) dedup(rel *relation) ([][]any, error) {
	idx := make([]int, len(r.config.DedupKey))
	for i, ref := range r.config.DedupKey {
		c, err := rel.col(ref)
		if err != nil {
			return nil, err
		}
		idx[i] = c
	}

	seen := make(map[string]bool, len(rel.rows))
	unique := make([][]any, 0, len(rel.rows))
	for _, row := range rel.rows {
		parts := make([]string, len(idx))
		for i, c := range idx {
			parts[i] = rowset.Key(row[c])
		}
		k := strings.Join(parts, "\x1f")
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, row)
	}

	sort.SliceStable(unique, func(a, b int) bool {
		for _, c := range idx {
			if cmp := rowset.Compare(unique[a][c], unique[b][c]); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	return unique, nil
}

func (r *Reconciler) project(rel *relation, rows [][]any) (*rowset.RowSet, error) {
	cols := make([]string, len(r.config.Projection))
	idx := make([]int, len(r.config.Projection))
	for i, p := range r.config.Projection {
		c, err := rel.col(p.Column)
		if err != nil {
			return nil, err
		}
		cols[i] = p.Label
		idx[i] = c
	}

	out := make([][]any, len(rows))
	for i, row := range rows {
		projected := make([]any, len(idx))
		for j, c := range idx {
			projected[j] = row[c]
		}
		out[i] = projected
	}
	return &rowset.RowSet{Columns: cols, Rows: out}, nil
}

// SortByMeasure stable-sorts rs by the measure column, largest first.
// A missing measure column leaves rs unchanged.
func SortByMeasure(rs *rowset.RowSet, measure string) {
	m := rs.ColumnIndex(measure)
	if m < 0 {
		return
	}
	sort.SliceStable(rs.Rows, func(a, b int) bool {
		return rowset.Compare(rs.Rows[a][m], rs.Rows[b][m]) > 0
	})
}

// TopNPerGroup returns at most n rows per group value. Groups come out in
// ascending group order; inside a group rows are stable-sorted by measure,
// largest first.
func TopNPerGroup(rs *rowset.RowSet, group, measure string, n int) [][]any {
	g, m := rs.ColumnIndex(group), rs.ColumnIndex(measure)
	if g < 0 || m < 0 {
		return rs.Rows
	}

	var order []string
	groups := make(map[string][][]any)
	values := make(map[string]any)
	for _, row := range rs.Rows {
		k := rowset.Key(row[g])
		if _, ok := groups[k]; !ok {
			order = append(order, k)
			values[k] = row[g]
		}
		groups[k] = append(groups[k], row)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rowset.Compare(values[order[a]], values[order[b]]) < 0
	})

	out := make([][]any, 0, len(rs.Rows))
	for _, k := range order {
		members := groups[k]
		sort.SliceStable(members, func(a, b int) bool {
			return rowset.Compare(members[a][m], members[b][m]) > 0
		})
		if len(members) > n {
			members = members[:n]
		}
		out = append(out, members...)
	}
	return out
}
