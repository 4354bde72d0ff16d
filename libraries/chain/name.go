package chain

import (
	"fmt"
)

func charToSymbol(c byte) uint64 {
	if c >= 'a' && c <= 'z' {
		return uint64((c - 'a') + 6)
	}
	if c >= '1' && c <= '5' {
		return uint64((c - '1') + 1)
	}
	return uint64(0)
}

func symbolToChar(s byte) byte {
	if s >= 6 && s <= 31 {
		return byte(s - 6 + 'a')
	}
	if s > 0 && s <= 5 {
		return byte(s + '1' - 1)
	}
	return byte('.')
}

// StringToName packs an account or action name into its 64-bit form.
// Characters outside the name alphabet encode as '.'; use ParseName to reject them.
func StringToName(str string) uint64 {
	name := uint64(0)
	i := 0
	for ; i < 12 && len(str) > i; i++ {
		name |= (charToSymbol(str[i]) & 0x1F) << (64 - 5*(i+1))
	}
	if i == 12 && len(str) > 12 {
		name |= charToSymbol(str[12]) & 0x0F
	}
	return name
}

func NameToString(name uint64) string {
	buf := make([]byte, 0, 13)
	for i := 0; i < 12; i++ {
		shfname := (name >> (64 - 5*(i+1)))
		buf = append(buf, symbolToChar(byte(shfname&0x1F)))
	}
	buf = append(buf, symbolToChar(byte(name&0x0F)))

	for len(buf) > 0 && buf[len(buf)-1] == '.' {
		buf = buf[:len(buf)-1]
	}
	return string(buf)
}

// ParseName is the strict form of StringToName used on untrusted input.
func ParseName(str string) (uint64, error) {
	if len(str) > 13 {
		return 0, fmt.Errorf("name %q is longer than 13 characters", str)
	}
	for i := 0; i < len(str); i++ {
		c := str[i]
		if c == '.' || (c >= 'a' && c <= 'z') || (c >= '1' && c <= '5') {
			if i == 12 && c > 'j' {
				return 0, fmt.Errorf("name %q has invalid 13th character", str)
			}
			continue
		}
		return 0, fmt.Errorf("name %q contains invalid character %q", str, c)
	}
	name := StringToName(str)
	if NameToString(name) != trimDots(str) {
		return 0, fmt.Errorf("name %q is not normalized", str)
	}
	return name, nil
}

func trimDots(s string) string {
	for len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}
