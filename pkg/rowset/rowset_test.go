package rowset

import (
	"testing"
	"time"
)

func TestNew_RowWidth(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		rows    [][]any
		wantErr bool
	}{
		{"matching width", []string{"a", "b"}, [][]any{{1, 2}, {3, 4}}, false},
		{"no rows", []string{"a"}, nil, false},
		{"short row", []string{"a", "b"}, [][]any{{1}}, true},
		{"long row", []string{"a"}, [][]any{{1, 2}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.columns, tt.rows)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEmpty(t *testing.T) {
	rs := Empty()
	if rs.Width() != 0 || rs.Len() != 0 {
		t.Errorf("expected empty rowset, got %d cols %d rows", rs.Width(), rs.Len())
	}
	var nilSet *RowSet
	if nilSet.Len() != 0 {
		t.Error("nil rowset should have zero length")
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize([]byte("Eng")); got != "Eng" {
		t.Errorf("Normalize([]byte) = %#v", got)
	}
	if got := Normalize(int32(7)); got != int64(7) {
		t.Errorf("Normalize(int32) = %#v", got)
	}
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := Normalize(ts); got != ts {
		t.Errorf("Normalize(time) = %#v", got)
	}
	if Normalize(nil) != nil {
		t.Error("Normalize(nil) should stay nil")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "None"},
		{"x", "x"},
		{int64(70000), "70000"},
		{float64(70000), "70000"},
		{72500.5, "72500.5"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := String(tt.in); got != tt.want {
			t.Errorf("String(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKey_CrossEngine(t *testing.T) {
	if Key(int64(1)) != Key("1") {
		t.Error("int64(1) and \"1\" should share a key")
	}
	if Key(float64(10)) != Key(int64(10)) {
		t.Error("float64(10) and int64(10) should share a key")
	}
	if Key("Alice") == Key("Bob") {
		t.Error("distinct strings must not collide")
	}
}

func TestCompare(t *testing.T) {
	if Compare(int64(9), "10") >= 0 {
		t.Error("9 should sort before 10 numerically")
	}
	if Compare("Eng", "HR") >= 0 {
		t.Error("Eng should sort before HR")
	}
	if Compare(int64(5), float64(5)) != 0 {
		t.Error("5 and 5.0 should compare equal")
	}
}
