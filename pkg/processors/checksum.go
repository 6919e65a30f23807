package processors

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/xxh3"
)

// ChecksumProcessor считает xxh3 блока и пропускает его дальше без изменений.
//
// С expected != "" проверяет совпадение, иначе отдает хеш в callback.
type ChecksumProcessor struct {
	expected string
	callback func(string)
}

func NewChecksumProcessor(expected string, callback func(string)) *ChecksumProcessor {
	return &ChecksumProcessor{expected: expected, callback: callback}
}

func (p *ChecksumProcessor) ProcessBlock(_ context.Context, input []byte) ([]byte, error) {
	actual := ComputeChecksum(input)
	if p.expected != "" && actual != p.expected {
		return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", p.expected, actual)
	}
	if p.callback != nil {
		p.callback(actual)
	}
	return input, nil
}

// ComputeChecksum returns the big-endian hex xxh3-64 of data.
func ComputeChecksum(data []byte) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], xxh3.Hash(data))
	return hex.EncodeToString(b[:])
}

// ValidateChecksum сравнивает хеш данных с ожидаемым
func ValidateChecksum(data []byte, expected string) error {
	if actual := ComputeChecksum(data); actual != expected {
		return fmt.Errorf("checksum validation failed: expected %s, got %s", expected, actual)
	}
	return nil
}
