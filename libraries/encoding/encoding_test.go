package encoding

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

type stringerName string

func (s stringerName) String() string { return string(s) }

func TestMaybeGetInt64(t *testing.T) {
	tests := []struct {
		name   string
		in     interface{}
		want   int64
		wantOK bool
	}{
		{"json number", json.Number("12345"), 12345, true},
		{"negative json number", json.Number("-20"), -20, true},
		{"json float", json.Number("1.5"), 0, false},
		{"json overflow", json.Number("9223372036854775808"), 0, false},
		{"string", "-1", -1, true},
		{"bad string", "abc", 0, false},
		{"int64", int64(7), 7, true},
		{"int", 8, 8, true},
		{"int32", int32(-9), -9, true},
		{"uint32", uint32(4294967295), 4294967295, true},
		{"uint64", uint64(10), 10, true},
		{"uint64 overflow", uint64(math.MaxUint64), 0, false},
		{"whole float", float64(100), 100, true},
		{"fractional float", 1.25, 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := MaybeGetInt64(tc.in)
			if ok != tc.wantOK || (ok && got != tc.want) {
				t.Errorf("MaybeGetInt64(%v) = %d, %v; want %d, %v", tc.in, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestMaybeGetUint64(t *testing.T) {
	if v, ok := MaybeGetUint64(json.Number("18446744073709551615")); !ok || v != math.MaxUint64 {
		t.Errorf("MaybeGetUint64(max) = %d, %v", v, ok)
	}
	if _, ok := MaybeGetUint64(int64(-1)); ok {
		t.Error("MaybeGetUint64(-1) should fail")
	}
	if v, ok := MaybeGetUint64(uint32(5)); !ok || v != 5 {
		t.Errorf("MaybeGetUint64(uint32) = %d, %v", v, ok)
	}
}

func TestMaybeGetString(t *testing.T) {
	if s, ok := MaybeGetString("alice"); !ok || s != "alice" {
		t.Errorf("MaybeGetString(string) = %q, %v", s, ok)
	}
	if s, ok := MaybeGetString(stringerName("enu.ram")); !ok || s != "enu.ram" {
		t.Errorf("MaybeGetString(Stringer) = %q, %v", s, ok)
	}
	if _, ok := MaybeGetString(42); ok {
		t.Error("MaybeGetString(int) should fail")
	}
}

func TestJSONiterUseNumber(t *testing.T) {
	var out map[string]interface{}
	if err := JSONiter.Unmarshal([]byte(`{"ram_quota": 8192, "name": "alice"}`), &out); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if _, ok := out["ram_quota"].(json.Number); !ok {
		t.Errorf("ram_quota decoded as %T, want json.Number", out["ram_quota"])
	}

	data, err := JSONiter.Marshal(map[string]interface{}{"b": 1, "a": "<x>"})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if got := string(data); !strings.HasPrefix(got, `{"a":"<x>"`) {
		t.Errorf("Marshal() = %s, want sorted keys and unescaped html", got)
	}
}
