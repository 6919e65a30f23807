// Package processors transforms stored report payloads block by block
// (checksum, zstd+base64 compression) and masks delivered columns.
package processors

import (
	"context"
	"fmt"
)

// BlockProcessor обрабатывает блок байт целиком
type BlockProcessor interface {
	ProcessBlock(ctx context.Context, input []byte) ([]byte, error)
}

// BlockFunc adapts a plain function to BlockProcessor.
type BlockFunc func(ctx context.Context, input []byte) ([]byte, error)

func (f BlockFunc) ProcessBlock(ctx context.Context, input []byte) ([]byte, error) {
	return f(ctx, input)
}

// Chain выполняет процессоры по порядку; выход одного - вход следующего
type Chain []BlockProcessor

// ProcessBlock stops at the first error or when ctx is done.
func (c Chain) ProcessBlock(ctx context.Context, input []byte) ([]byte, error) {
	out := input
	for i, p := range c {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		if out, err = p.ProcessBlock(ctx, out); err != nil {
			return nil, fmt.Errorf("processor %d (%T): %w", i, p, err)
		}
	}
	return out, nil
}
