package processors

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// EncodeAll/DecodeAll безопасны для параллельного вызова, поэтому
// кодеки создаются один раз и переиспользуются.
var (
	encoders sync.Map // zstd.EncoderLevel -> *zstd.Encoder

	sharedDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
)

func encoderFor(level int) (*zstd.Encoder, error) {
	key := zstd.EncoderLevelFromZstd(level)
	if enc, ok := encoders.Load(key); ok {
		return enc.(*zstd.Encoder), nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(key), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	actual, loaded := encoders.LoadOrStore(key, enc)
	if loaded {
		enc.Close()
	}
	return actual.(*zstd.Encoder), nil
}

// Zstd returns a processor producing base64(zstd(input)). level follows the
// zstd command line scale: 1 fast, 3 balanced, 19+ dense.
// Empty input yields nil.
func Zstd(level int) (BlockProcessor, error) {
	enc, err := encoderFor(level)
	if err != nil {
		return nil, err
	}
	return BlockFunc(func(_ context.Context, input []byte) ([]byte, error) {
		if len(input) == 0 {
			return nil, nil
		}
		packed := enc.EncodeAll(input, nil)
		return base64.StdEncoding.AppendEncode(nil, packed), nil
	}), nil
}

// Unzstd reverses Zstd.
func Unzstd() (BlockProcessor, error) {
	dec, err := sharedDecoder()
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return BlockFunc(func(_ context.Context, input []byte) ([]byte, error) {
		if len(input) == 0 {
			return nil, nil
		}
		packed, err := base64.StdEncoding.AppendDecode(nil, input)
		if err != nil {
			return nil, fmt.Errorf("decode base64: %w", err)
		}
		out, err := dec.DecodeAll(packed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress zstd: %w", err)
		}
		return out, nil
	}), nil
}

// Compress - разовое сжатие
func Compress(input []byte, level int) ([]byte, error) {
	p, err := Zstd(level)
	if err != nil {
		return nil, err
	}
	return p.ProcessBlock(context.Background(), input)
}

// Decompress - разовая распаковка
func Decompress(input []byte) ([]byte, error) {
	p, err := Unzstd()
	if err != nil {
		return nil, err
	}
	return p.ProcessBlock(context.Background(), input)
}

// CompressionStats - размеры до и после сжатия одного результата
type CompressionStats struct {
	OriginalSize   int           `json:"original_size"`
	CompressedSize int           `json:"compressed_size"`
	Ratio          float64       `json:"ratio"`
	Time           time.Duration `json:"time"`
}

func newCompressionStats(original, compressed int, elapsed time.Duration) CompressionStats {
	s := CompressionStats{OriginalSize: original, CompressedSize: compressed, Time: elapsed}
	if compressed > 0 {
		s.Ratio = float64(original) / float64(compressed)
	}
	return s
}
