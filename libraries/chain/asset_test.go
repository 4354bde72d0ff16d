package chain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSymbolCodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		code uint64
	}{
		{"", 0},
		{"ENU", 0x554E45},
		{"RAM", 0x4D4152},
		{"RAMCORE", 0x45524F434D4152},
	}

	for _, tc := range tests {
		if got := StringToSymbolCode(tc.name); got != tc.code {
			t.Errorf("StringToSymbolCode(%q) = %x, want %x", tc.name, got, tc.code)
		}
		if got := SymbolCodeToString(tc.code); got != tc.name {
			t.Errorf("SymbolCodeToString(%x) = %q, want %q", tc.code, got, tc.name)
		}
	}
}

func TestParseSymbol(t *testing.T) {
	tests := []struct {
		input    string
		wantPrec uint8
		wantCode string
		wantErr  bool
	}{
		{"4,ENU", 4, "ENU", false},
		{"0,RAM", 0, "RAM", false},
		{" 4,RAMCORE ", 4, "RAMCORE", false},
		{"4ENU", 0, "", true},
		{"x,ENU", 0, "", true},
		{"19,ENU", 0, "", true},
		{"4,enu", 0, "", true},
		{"4,TOOLONGX", 0, "", true},
		{"4,", 0, "", true},
	}

	for _, tc := range tests {
		got, err := ParseSymbol(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseSymbol(%q) expected error, got %s", tc.input, SymbolString(got))
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSymbol(%q) unexpected error: %v", tc.input, err)
			continue
		}
		if SymbolPrecision(got) != tc.wantPrec || SymbolCodeToString(SymbolCode(got)) != tc.wantCode {
			t.Errorf("ParseSymbol(%q) = %s", tc.input, SymbolString(got))
		}
	}

	if s := SymbolString(NewSymbolFromString(4, "ENU")); s != "4,ENU" {
		t.Errorf("SymbolString() = %q, want 4,ENU", s)
	}
}

func TestAssetString(t *testing.T) {
	tests := []struct {
		amount    int64
		precision uint8
		symbol    string
		want      string
	}{
		{2000000, 4, "ENU", "200.0000 ENU"},
		{10000, 4, "ENU", "1.0000 ENU"},
		{728, 4, "ENU", "0.0728 ENU"},
		{13672455, 0, "RAM", "13672455 RAM"},
		{0, 4, "ENU", "0.0000 ENU"},
		{-12345, 4, "ENU", "-1.2345 ENU"},
		{-1, 4, "ENU", "-0.0001 ENU"},
		{100000000000000, 4, "RAMCORE", "10000000000.0000 RAMCORE"},
	}

	for _, tc := range tests {
		asset := Asset{Amount: tc.amount, Symbol: NewSymbolFromString(tc.precision, tc.symbol)}
		if got := asset.String(); got != tc.want {
			t.Errorf("Asset{%d, %d, %s}.String() = %q, want %q",
				tc.amount, tc.precision, tc.symbol, got, tc.want)
		}
	}
}

func TestParseAsset(t *testing.T) {
	tests := []struct {
		input    string
		wantAmt  int64
		wantPrec uint8
		wantCode string
		wantErr  bool
	}{
		{"200.0000 ENU", 2000000, 4, "ENU", false},
		{"1000000 RAM", 1000000, 0, "RAM", false},
		{"-1.2345 ENU", -12345, 4, "ENU", false},
		{"0.0000 ENU", 0, 4, "ENU", false},
		{"invalid", 0, 0, "", true},
		{"1.0000 enu", 0, 0, "", true},
		{"1. ENU", 0, 0, "", true},
		{".5 ENU", 0, 0, "", true},
		{"not_a_number ENU", 0, 0, "", true},
		{"1.0000000000000000000 ENU", 0, 0, "", true},
		{"461168601842738.7903 ENU", 4611686018427387903, 4, "ENU", false},
		{"-461168601842738.7903 ENU", -4611686018427387903, 4, "ENU", false},
		{"461168601842738.7904 ENU", 0, 0, "", true},
		{"922337203685477.5807 ENU", 0, 0, "", true},
	}

	for _, tc := range tests {
		got, err := ParseAsset(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseAsset(%q) expected error, got nil", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAsset(%q) unexpected error: %v", tc.input, err)
			continue
		}
		if got.Amount != tc.wantAmt {
			t.Errorf("ParseAsset(%q).Amount = %d, want %d", tc.input, got.Amount, tc.wantAmt)
		}
		if SymbolPrecision(got.Symbol) != tc.wantPrec {
			t.Errorf("ParseAsset(%q) precision = %d, want %d", tc.input, SymbolPrecision(got.Symbol), tc.wantPrec)
		}
		if SymbolCodeToString(SymbolCode(got.Symbol)) != tc.wantCode {
			t.Errorf("ParseAsset(%q) code = %q, want %q", tc.input, SymbolCodeToString(SymbolCode(got.Symbol)), tc.wantCode)
		}
	}
}

func TestAssetArithmetic(t *testing.T) {
	enu := NewSymbolFromString(4, "ENU")
	ram := NewSymbolFromString(0, "RAM")

	sum, err := NewAsset(1990000, enu).Add(NewAsset(10000, enu))
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if sum.String() != "200.0000 ENU" {
		t.Errorf("Add() = %s, want 200.0000 ENU", sum)
	}

	diff, err := sum.Sub(NewAsset(2000000, enu))
	if err != nil || diff.Amount != 0 {
		t.Errorf("Sub() = %v, %v", diff, err)
	}

	if _, err := sum.Add(NewAsset(1, ram)); !errors.Is(err, ErrSymbolMismatch) {
		t.Errorf("Add() across symbols error = %v, want ErrSymbolMismatch", err)
	}
	if _, err := sum.Add(NewAsset(1, NewSymbolFromString(3, "ENU"))); !errors.Is(err, ErrSymbolMismatch) {
		t.Errorf("Add() across precisions error = %v, want ErrSymbolMismatch", err)
	}
}

func TestAssetJSON(t *testing.T) {
	in := NewAsset(728, NewSymbolFromString(4, "ENU"))
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(data) != `"0.0728 ENU"` {
		t.Errorf("Marshal() = %s", data)
	}

	var out Asset
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if out != in {
		t.Errorf("Unmarshal() = %v, want %v", out, in)
	}

	if err := json.Unmarshal([]byte(`728`), &out); err == nil {
		t.Error("Unmarshal() of a number should fail")
	}
}
