package market

import (
	"errors"
	"testing"

	"github.com/greymass/ramindex/libraries/chain"
	"github.com/greymass/ramindex/services/ramindex/internal/apierr"
)

var (
	ramcore = chain.NewSymbolFromString(4, "RAMCORE")
	ram     = chain.NewSymbolFromString(0, "RAM")
	enu     = chain.NewSymbolFromString(4, "ENU")
)

func testState() State {
	return State{
		Supply: chain.NewAsset(100000000000000, ramcore),
		Base:   Connector{Balance: chain.NewAsset(68719476736, ram), Weight: 500},
		Quote:  Connector{Balance: chain.NewAsset(10000000000, enu), Weight: 500},
	}
}

func TestFee(t *testing.T) {
	tests := []struct {
		amount, want int64
	}{
		{0, 0},
		{1, 1},
		{200, 1},
		{201, 2},
		{2000000, 10000},
		{145517, 728},
	}
	for _, tc := range tests {
		if got := Fee(tc.amount); got != tc.want {
			t.Errorf("Fee(%d) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}

func TestConvertTokenToRAM(t *testing.T) {
	s := testState()
	in := chain.NewAsset(2000000-Fee(2000000), enu)

	out, err := s.Convert(in, ram)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if out.Symbol != ram || out.Amount != 13672455 {
		t.Errorf("Convert() = %s, want 13672455 RAM", out)
	}
	if s.Quote.Balance.Amount != 10000000000+1990000 {
		t.Errorf("quote balance = %d", s.Quote.Balance.Amount)
	}
	if s.Base.Balance.Amount != 68719476736-13672455 {
		t.Errorf("base balance = %d", s.Base.Balance.Amount)
	}
	if s.Supply.Amount != 100000000000000 {
		t.Errorf("supply should return to start after a full route, got %d", s.Supply.Amount)
	}
}

func TestConvertRAMToToken(t *testing.T) {
	s := testState()
	out, err := s.Convert(chain.NewAsset(1000000, ram), enu)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	fee := Fee(out.Amount)
	if got := chain.NewAsset(out.Amount-fee, enu).String(); got != "14.4789 ENU" {
		t.Errorf("to = %s, want 14.4789 ENU", got)
	}
	if got := chain.NewAsset(fee, enu).String(); got != "0.0728 ENU" {
		t.Errorf("fee = %s, want 0.0728 ENU", got)
	}
}

func TestConvertAtTableWeight(t *testing.T) {
	// The market table stores weights as fractions (0.5). Truncation of the
	// issued shares depends on the scale, so both give different results.
	tests := []struct {
		weight  float64
		from    chain.Asset
		to      uint64
		wantOut int64
	}{
		{0.5, chain.NewAsset(1990000, enu), ram, 13672454},
		{500, chain.NewAsset(1990000, enu), ram, 13672455},
		{0.5, chain.NewAsset(199000000, ram), enu, 28874694},
		{500, chain.NewAsset(199000000, ram), enu, 28874695},
		{0.5, chain.NewAsset(12345678, enu), ram, 84734242},
	}
	for _, tc := range tests {
		s := testState()
		s.Base.Weight = tc.weight
		s.Quote.Weight = tc.weight
		out, err := s.Convert(tc.from, tc.to)
		if err != nil {
			t.Fatalf("Convert(%s) error = %v", tc.from, err)
		}
		if out.Amount != tc.wantOut {
			t.Errorf("Convert(%s) at weight %v = %d, want %d", tc.from, tc.weight, out.Amount, tc.wantOut)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, amount := range []int64{1, 100, 12345, 1000000, 987654321} {
		s := testState()
		bytes, err := s.Convert(chain.NewAsset(amount, enu), ram)
		if err != nil {
			t.Fatalf("buy %d: %v", amount, err)
		}
		back, err := s.Convert(bytes, enu)
		if err != nil {
			t.Fatalf("sell %d: %v", amount, err)
		}
		if diff := amount - back.Amount; diff < 0 || diff > 1 {
			t.Errorf("round trip %d -> %d RAM -> %d, diff %d", amount, bytes.Amount, back.Amount, diff)
		}
	}
}

func TestConvertInvalid(t *testing.T) {
	other := chain.NewSymbolFromString(4, "EOS")
	tests := []struct {
		name string
		from chain.Asset
		to   uint64
	}{
		{"unknown sell symbol", chain.NewAsset(10000, other), ram},
		{"unknown target from share", chain.NewAsset(10000, ramcore), other},
		{"share to share", chain.NewAsset(10000, ramcore), ramcore},
		{"connector to unknown", chain.NewAsset(10000, enu), other},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := testState()
			_, err := s.Convert(tc.from, tc.to)
			if !errors.Is(err, apierr.ErrInvalidConversion) {
				t.Errorf("Convert() error = %v, want invalid_conversion", err)
			}
		})
	}
}
