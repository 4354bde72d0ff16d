package chain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const MaxSymbolPrecision = 18

// MaxAssetAmount bounds the magnitude of any valid asset amount.
const MaxAssetAmount = 1<<62 - 1

var ErrSymbolMismatch = errors.New("asset symbol mismatch")

type Asset struct {
	Amount int64
	Symbol uint64
}

func SymbolPrecision(symbol uint64) uint8 {
	return uint8(symbol & 0xFF)
}

func SymbolCode(symbol uint64) uint64 {
	return symbol >> 8
}

func SymbolCodeToString(code uint64) string {
	if code == 0 {
		return ""
	}
	var buf [7]byte
	n := 0
	for code > 0 && n < 7 {
		buf[n] = byte(code & 0xFF)
		code >>= 8
		n++
	}
	return string(buf[:n])
}

func StringToSymbolCode(s string) uint64 {
	var code uint64
	for i := len(s) - 1; i >= 0; i-- {
		code <<= 8
		code |= uint64(s[i])
	}
	return code
}

func NewSymbol(precision uint8, code uint64) uint64 {
	return (code << 8) | uint64(precision)
}

func NewSymbolFromString(precision uint8, name string) uint64 {
	return NewSymbol(precision, StringToSymbolCode(name))
}

func validSymbolCode(name string) bool {
	if len(name) == 0 || len(name) > 7 {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 'A' || name[i] > 'Z' {
			return false
		}
	}
	return true
}

// ParseSymbol reads the "<precision>,<CODE>" form, e.g. "4,ENU".
func ParseSymbol(s string) (uint64, error) {
	precStr, code, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return 0, fmt.Errorf("invalid symbol %q: expected '<precision>,<code>'", s)
	}
	prec, err := strconv.ParseUint(precStr, 10, 8)
	if err != nil || prec > MaxSymbolPrecision {
		return 0, fmt.Errorf("invalid symbol precision in %q", s)
	}
	if !validSymbolCode(code) {
		return 0, fmt.Errorf("invalid symbol code in %q", s)
	}
	return NewSymbolFromString(uint8(prec), code), nil
}

func SymbolString(symbol uint64) string {
	return strconv.Itoa(int(SymbolPrecision(symbol))) + "," + SymbolCodeToString(SymbolCode(symbol))
}

func (a Asset) String() string {
	precision := SymbolPrecision(a.Symbol)
	symbolName := SymbolCodeToString(SymbolCode(a.Symbol))

	if precision == 0 {
		return strconv.FormatInt(a.Amount, 10) + " " + symbolName
	}

	negative := a.Amount < 0
	amount := uint64(a.Amount)
	if negative {
		amount = uint64(-a.Amount)
	}

	var divisor uint64 = 1
	for i := uint8(0); i < precision; i++ {
		divisor *= 10
	}

	fracStr := strconv.FormatUint(amount%divisor, 10)
	if pad := int(precision) - len(fracStr); pad > 0 {
		fracStr = strings.Repeat("0", pad) + fracStr
	}

	result := strconv.FormatUint(amount/divisor, 10) + "." + fracStr
	if negative {
		result = "-" + result
	}
	return result + " " + symbolName
}

// Add and Sub refuse to mix symbols; precision is part of the symbol.
func (a Asset) Add(b Asset) (Asset, error) {
	if a.Symbol != b.Symbol {
		return Asset{}, fmt.Errorf("%w: %s + %s", ErrSymbolMismatch, a, b)
	}
	return Asset{Amount: a.Amount + b.Amount, Symbol: a.Symbol}, nil
}

func (a Asset) Sub(b Asset) (Asset, error) {
	if a.Symbol != b.Symbol {
		return Asset{}, fmt.Errorf("%w: %s - %s", ErrSymbolMismatch, a, b)
	}
	return Asset{Amount: a.Amount - b.Amount, Symbol: a.Symbol}, nil
}

func (a Asset) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.String())), nil
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("asset must be a string: %w", err)
	}
	parsed, err := ParseAsset(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func ParseAsset(s string) (Asset, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return Asset{}, errors.New("invalid asset string: expected '<amount> <symbol>'")
	}

	amountStr := parts[0]
	symbolName := parts[1]
	if !validSymbolCode(symbolName) {
		return Asset{}, fmt.Errorf("invalid asset symbol %q", symbolName)
	}

	negative := false
	if strings.HasPrefix(amountStr, "-") {
		negative = true
		amountStr = amountStr[1:]
	}

	var precision int
	amountRaw := amountStr
	if whole, frac, found := strings.Cut(amountStr, "."); found {
		if whole == "" || frac == "" {
			return Asset{}, fmt.Errorf("invalid asset amount %q", parts[0])
		}
		precision = len(frac)
		amountRaw = whole + frac
	}
	if precision > MaxSymbolPrecision {
		return Asset{}, fmt.Errorf("asset precision %d exceeds %d", precision, MaxSymbolPrecision)
	}

	amount, err := strconv.ParseInt(amountRaw, 10, 64)
	if err != nil || amount < 0 {
		return Asset{}, fmt.Errorf("invalid asset amount %q", parts[0])
	}
	if amount > MaxAssetAmount {
		return Asset{}, fmt.Errorf("asset amount %q out of range", parts[0])
	}
	if negative {
		amount = -amount
	}

	return Asset{Amount: amount, Symbol: NewSymbolFromString(uint8(precision), symbolName)}, nil
}

func NewAsset(amount int64, symbol uint64) Asset {
	return Asset{Amount: amount, Symbol: symbol}
}
