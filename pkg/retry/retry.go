// Package retry re-runs failing operations with backoff and parks the ones
// that exhaust their attempts in a file-backed dead letter queue.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/sqlassist/pkg/failure"
)

// Func - повторяемая операция
type Func func(ctx context.Context) error

// Retryer выполняет retry логику
type Retryer struct {
	config Config
	dlq    *DLQ
}

// New создает Retryer; DLQ открывается, если включен
func New(config Config) (*Retryer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}

	r := &Retryer{config: config}
	if config.DLQ.Enabled {
		dlq, err := OpenDLQ(config.DLQ)
		if err != nil {
			return nil, fmt.Errorf("open dlq: %w", err)
		}
		r.dlq = dlq
	}
	return r, nil
}

// Do runs fn until it succeeds, returns a non-retryable error, or runs out of attempts.
func (r *Retryer) Do(ctx context.Context, fn Func) error {
	return r.do(ctx, fn, nil)
}

// DoWithData is Do that records data in the DLQ when attempts run out.
func (r *Retryer) DoWithData(ctx context.Context, fn Func, data any) error {
	return r.do(ctx, fn, data)
}

func (r *Retryer) do(ctx context.Context, fn Func, data any) error {
	if !r.config.Enabled {
		return fn(ctx)
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !r.Retryable(err) {
			return err
		}

		if r.config.MaxAttempts > 0 && attempt >= r.config.MaxAttempts {
			r.park(attempt, err, "max_attempts_exceeded", data)
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}
		log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			r.park(attempt, err, "context_cancelled", data)
			return fmt.Errorf("cancelled during retry: %w", errors.Join(ctx.Err(), err))
		}
	}
}

func (r *Retryer) park(attempts int, err error, reason string, data any) {
	if r.dlq == nil || data == nil {
		return
	}
	kind, _ := failure.KindOf(err)
	if dlqErr := r.dlq.Add(Entry{
		Timestamp:   time.Now().UTC(),
		Attempts:    attempts,
		LastError:   err.Error(),
		Kind:        kind,
		FailureType: reason,
		Data:        data,
	}); dlqErr != nil {
		log.Error().Err(dlqErr).Msg("dlq write failed")
	}
}

// delay - задержка перед попыткой attempt+1
func (r *Retryer) delay(attempt int) time.Duration {
	var d time.Duration

	switch r.config.Backoff {
	case BackoffLinear:
		d = r.config.InitialDelay * time.Duration(attempt)
	case BackoffExponential:
		d = time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1)))
	default:
		d = r.config.InitialDelay
	}

	if d > r.config.MaxDelay {
		d = r.config.MaxDelay
	}

	if r.config.Jitter > 0 {
		d += time.Duration(float64(d) * r.config.Jitter * (rand.Float64()*2 - 1))
		if d < 0 {
			d = r.config.InitialDelay
		}
	}
	return d
}

// Retryable reports whether err should be tried again. Context errors never are.
func (r *Retryer) Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if len(r.config.RetryOn) == 0 {
		return true
	}
	kind, ok := failure.KindOf(err)
	return ok && slices.Contains(r.config.RetryOn, kind)
}

// DLQ возвращает очередь или nil
func (r *Retryer) DLQ() *DLQ {
	return r.dlq
}

// Close сохраняет DLQ
func (r *Retryer) Close() error {
	if r.dlq != nil {
		return r.dlq.Save()
	}
	return nil
}
