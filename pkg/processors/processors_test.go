package processors

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ruslano69/sqlassist/pkg/rowset"
)

func TestCompressDecompress(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"small", []byte(`{"columns":["a"],"rows":[[1]]}`)},
		{"large", []byte(strings.Repeat("Engineering|90000\n", 2000))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed, err := Compress(tt.input, DefaultLevel)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if len(tt.input) == 0 {
				if packed != nil {
					t.Errorf("expected nil for empty input, got %d bytes", len(packed))
				}
				return
			}
			got, err := Decompress(packed)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if string(got) != string(tt.input) {
				t.Error("round trip mismatch")
			}
		})
	}
}

func TestDecompress_InvalidBase64(t *testing.T) {
	if _, err := Decompress([]byte("not base64!!")); err == nil {
		t.Error("expected error")
	}
}

func TestChain(t *testing.T) {
	upper := BlockFunc(func(_ context.Context, in []byte) ([]byte, error) {
		return bytes.ToUpper(in), nil
	})
	fail := BlockFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("boom")
	})

	out, err := Chain{upper, NewChecksumProcessor(ComputeChecksum([]byte("ABC")), nil)}.
		ProcessBlock(context.Background(), []byte("abc"))
	if err != nil || string(out) != "ABC" {
		t.Fatalf("chain = %q, %v", out, err)
	}

	if _, err := (Chain{upper, fail}).ProcessBlock(context.Background(), []byte("x")); err == nil ||
		!strings.Contains(err.Error(), "processor 1") {
		t.Errorf("error = %v, want failing processor index", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Chain{upper}).ProcessBlock(ctx, []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled chain: err = %v", err)
	}
}

func TestComputeChecksum(t *testing.T) {
	a := ComputeChecksum([]byte("hello"))
	if len(a) != 16 {
		t.Errorf("checksum length = %d, want 16 hex chars", len(a))
	}
	if a != ComputeChecksum([]byte("hello")) {
		t.Error("checksum is not deterministic")
	}
	if a == ComputeChecksum([]byte("hellp")) {
		t.Error("different input produced the same checksum")
	}
	if err := ValidateChecksum([]byte("hello"), a); err != nil {
		t.Errorf("ValidateChecksum: %v", err)
	}
	if err := ValidateChecksum([]byte("hellp"), a); err == nil {
		t.Error("expected mismatch")
	}
}

func TestEncodeDecodeRowSet(t *testing.T) {
	rs := &rowset.RowSet{
		Columns: []string{"Employee Name", "Department", "Salary", "Bonus"},
		Rows: [][]any{
			{"Charlie", "Engineering", int64(90000), 1.5},
			{"Heidi", nil, int64(50000), nil},
		},
	}
	ctx := context.Background()

	enc, err := EncodeRowSet(ctx, rs, DefaultLevel)
	if err != nil {
		t.Fatalf("EncodeRowSet: %v", err)
	}
	if enc.Payload == "" || enc.Checksum == "" {
		t.Fatalf("encoded = %+v", enc)
	}
	if enc.Stats.OriginalSize == 0 {
		t.Error("stats not filled")
	}

	got, err := DecodeRowSet(ctx, enc.Payload, enc.Checksum)
	if err != nil {
		t.Fatalf("DecodeRowSet: %v", err)
	}
	if !reflect.DeepEqual(got, rs) {
		t.Errorf("decoded = %+v, want %+v", got, rs)
	}

	if _, err := DecodeRowSet(ctx, enc.Payload, "0000000000000000"); err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("tampered checksum: err = %v", err)
	}
}

func TestMasker(t *testing.T) {
	tests := []struct {
		pattern MaskPattern
		in      string
		want    string
	}{
		{MaskPartial, "john.doe@example.com", "j***@example.com"},
		{MaskPartial, "Hello", "H***o"},
		{MaskPartial, "Hi", "***"},
		{MaskStars, "123-45-6789", "***-**-****"},
		{MaskMiddle, "1234 5678 9012 3456", "1234 XXXX XXXX 3456"},
		{MaskMiddle, "123", "XXX"},
		{MaskFirst2Last2, "1234 567890", "12** ****90"},
		{MaskFirst2Last2, "abcd", "****"},
	}
	for _, tt := range tests {
		t.Run(string(tt.pattern)+"/"+tt.in, func(t *testing.T) {
			if got := maskValue(tt.in, tt.pattern); got != tt.want {
				t.Errorf("maskValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMasker_Apply(t *testing.T) {
	m, err := NewMasker(map[string]MaskPattern{"Salary": MaskStars, "Missing": MaskStars})
	if err != nil {
		t.Fatal(err)
	}
	rs := &rowset.RowSet{
		Columns: []string{"Employee Name", "Salary"},
		Rows:    [][]any{{"Alice", int64(70000)}, {"Heidi", nil}},
	}

	got := m.Apply(rs)
	if got.Rows[0][1] != "*****" || got.Rows[1][1] != nil {
		t.Errorf("masked rows = %v", got.Rows)
	}
	if rs.Rows[0][1] != int64(70000) {
		t.Error("Apply modified its input")
	}

	if _, err := NewMasker(map[string]MaskPattern{"x": "rot13"}); err == nil {
		t.Error("expected invalid pattern error")
	}
}
