package chain

import (
	"fmt"
	"time"
)

// MSINTERVAL is the block interval in milliseconds; block timestamps count slots of this size.
const MSINTERVAL = 500

const blockTimeLayout = "2006-01-02T15:04:05.000"

var blockEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

func Uint32ToTime(t uint32) string {
	d := blockEpoch.Add(time.Duration(uint64(t) * MSINTERVAL * uint64(time.Millisecond)))
	return d.Format(blockTimeLayout)
}

// ParseBlockTime converts a node timestamp ("2018-06-01T12:00:00.000", optional Z) into a slot.
func ParseBlockTime(t string) (uint32, error) {
	if t == "" {
		return 0, nil
	}
	if last := len(t) - 1; t[last] == 'Z' {
		t = t[:last]
	}
	pt, err := time.Parse(blockTimeLayout, t)
	if err != nil {
		pt, err = time.Parse("2006-01-02T15:04:05", t)
		if err != nil {
			return 0, fmt.Errorf("invalid block time %q: %w", t, err)
		}
	}
	ptd := pt.Sub(blockEpoch)
	if ptd < 0 {
		return 0, fmt.Errorf("block time %q precedes block epoch", t)
	}
	return uint32(ptd.Milliseconds() / MSINTERVAL), nil
}
