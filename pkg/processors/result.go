package processors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ruslano69/sqlassist/pkg/rowset"
)

// DefaultLevel - уровень zstd для сохраненных результатов
const DefaultLevel = 3

// Encoded - сохраняемая форма результата отчета
type Encoded struct {
	Payload  string           // base64(zstd(json))
	Checksum string           // xxh3 от json до сжатия
	Stats    CompressionStats
}

type storedRowSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// EncodeRowSet serialises rs as JSON, checksums it and compresses it.
func EncodeRowSet(ctx context.Context, rs *rowset.RowSet, level int) (Encoded, error) {
	if rs == nil {
		rs = rowset.Empty()
	}
	raw, err := json.Marshal(storedRowSet{Columns: rs.Columns, Rows: rs.Rows})
	if err != nil {
		return Encoded{}, fmt.Errorf("encode rowset: %w", err)
	}

	comp, err := Zstd(level)
	if err != nil {
		return Encoded{}, err
	}

	var enc Encoded
	start := time.Now()
	payload, err := Chain{
		NewChecksumProcessor("", func(sum string) { enc.Checksum = sum }),
		comp,
	}.ProcessBlock(ctx, raw)
	if err != nil {
		return Encoded{}, err
	}
	enc.Payload = string(payload)
	enc.Stats = newCompressionStats(len(raw), len(payload), time.Since(start))
	return enc, nil
}

// DecodeRowSet reverses EncodeRowSet and verifies the checksum when one is given.
// Integral JSON numbers come back as int64, the rest as float64.
func DecodeRowSet(ctx context.Context, payload, checksum string) (*rowset.RowSet, error) {
	dec, err := Unzstd()
	if err != nil {
		return nil, err
	}

	raw, err := Chain{dec, NewChecksumProcessor(checksum, nil)}.ProcessBlock(ctx, []byte(payload))
	if err != nil {
		return nil, err
	}

	var stored storedRowSet
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	if err := d.Decode(&stored); err != nil {
		return nil, fmt.Errorf("decode rowset: %w", err)
	}
	for _, row := range stored.Rows {
		for i, v := range row {
			if n, ok := v.(json.Number); ok {
				row[i] = number(n)
			}
		}
	}
	return rowset.New(stored.Columns, stored.Rows)
}

func number(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
