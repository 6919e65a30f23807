// Package failure описывает типизированные ошибки конвейера ответа на вопрос.
//
// Каждая ошибка несёт Kind, по которому вызывающая сторона решает,
// является ли сбой фатальным для запроса и какой HTTP-статус вернуть.
package failure

import (
	"errors"
	"fmt"
)

// Kind - класс ошибки
type Kind string

const (
	// ConnectionError - не удалось подключиться к источнику
	ConnectionError Kind = "ConnectionError"

	// ExecutionError - запрос отклонён или упал при выполнении
	ExecutionError Kind = "ExecutionError"

	// PlanParseError - ответ генератора не удалось разобрать в план
	PlanParseError Kind = "PlanParseError"

	// PartialSourceFailure - одна из обязательных выборок не выполнилась
	PartialSourceFailure Kind = "PartialSourceFailure"

	// GenerationError - внешний генератор текста недоступен или вернул ошибку
	GenerationError Kind = "GenerationError"
)

// Fatal reports whether a failure of this kind ends the request.
func (k Kind) Fatal() bool {
	return k != GenerationError
}

// Failure is the structured error returned by every pipeline component.
type Failure struct {
	Kind   Kind   `json:"kind"`
	Source string `json:"source,omitempty"` // source identifier, empty when not applicable
	Detail string `json:"detail"`
	Err    error  `json:"-"`
}

// New creates a Failure without an underlying cause.
func New(kind Kind, detail string) *Failure {
	return &Failure{Kind: kind, Detail: detail}
}

// Wrap creates a Failure around err. The detail defaults to err's message.
func Wrap(kind Kind, err error, detail string) *Failure {
	if detail == "" && err != nil {
		detail = err.Error()
	}
	return &Failure{Kind: kind, Detail: detail, Err: err}
}

// WithSource sets the source identifier.
func (f *Failure) WithSource(source string) *Failure {
	f.Source = source
	return f
}

func (f *Failure) Error() string {
	if f.Source != "" {
		return fmt.Sprintf("%s [%s]: %s", f.Kind, f.Source, f.Detail)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches another *Failure by Kind, so errors.Is(err, failure.New(kind, "")) works.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	if !ok {
		return false
	}
	return t.Kind == f.Kind
}

// KindOf returns the Kind of the outermost Failure in err's chain.
func KindOf(err error) (Kind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries a Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
