package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/sqlassist/pkg/failure"
	"github.com/ruslano69/sqlassist/pkg/rowset"
)

// Executor runs one query on one source.
type Executor interface {
	Execute(ctx context.Context, sourceID, query string) (*rowset.RowSet, error)
}

type extracted struct {
	index int
	rows  *rowset.RowSet
	err   error
}

// extractAll запускает все извлечения параллельно. Результаты раскладываются
// по индексу извлечения, поэтому порядок завершения не влияет на итог.
func (r *Reconciler) extractAll(ctx context.Context) ([]*rowset.RowSet, error) {
	results := make(chan extracted, len(r.config.Extractions))
	var wg sync.WaitGroup

	for i, ex := range r.config.Extractions {
		wg.Add(1)
		go func(i int, ex Extraction) {
			defer wg.Done()
			rs, err := r.executor.Execute(ctx, ex.Source, ex.Query)
			results <- extracted{index: i, rows: rs, err: err}
		}(i, ex)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	sets := make([]*rowset.RowSet, len(r.config.Extractions))
	errs := make([]error, len(r.config.Extractions))
	for res := range results {
		sets[res.index] = res.rows
		errs[res.index] = res.err
	}

	var sourceErrors []error
	failedSource := ""
	for i, err := range errs {
		if err == nil {
			continue
		}
		ex := r.config.Extractions[i]
		if failedSource == "" {
			failedSource = ex.Source
		}
		sourceErrors = append(sourceErrors, fmt.Errorf("extraction '%s': %w", ex.Name, err))
		log.Warn().Err(err).Str("extraction", ex.Name).Str("source", ex.Source).Msg("extraction failed")
	}
	if len(sourceErrors) > 0 {
		return nil, failure.Wrap(failure.PartialSourceFailure, errors.Join(sourceErrors...), "").WithSource(failedSource)
	}

	for i, rs := range sets {
		if rs == nil {
			sets[i] = rowset.Empty()
		}
	}
	return sets, nil
}
