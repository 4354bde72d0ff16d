// Package query answers the read-only RAM market queries.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/greymass/ramindex/libraries/chain"
	"github.com/greymass/ramindex/libraries/querytrace"
	"github.com/greymass/ramindex/services/ramindex/internal/apierr"
	"github.com/greymass/ramindex/services/ramindex/internal/ledger"
	"github.com/greymass/ramindex/services/ramindex/internal/metrics"
)

const (
	DefaultPos         = -1
	DefaultOffset      = -20
	DefaultHistoryTime = 100 * time.Millisecond
)

// RecordSource is the committed action ledger.
type RecordSource interface {
	Size() uint64
	Get(id uint64) (ledger.Action, bool, error)
	AccountActions(account uint64) (*roaring64.Bitmap, error)
}

// ChainInfo reports chain metadata attached to every query result.
type ChainInfo interface {
	LastIrreversibleBlock(ctx context.Context) (uint32, error)
}

type History struct {
	src    RecordSource
	chain  ChainInfo
	budget time.Duration
	now    func() time.Time
}

func NewHistory(src RecordSource, ci ChainInfo, budget time.Duration) *History {
	if budget <= 0 {
		budget = DefaultHistoryTime
	}
	return &History{src: src, chain: ci, budget: budget, now: time.Now}
}

type GetActionsResult struct {
	Actions               []ledger.Action
	LastIrreversibleBlock uint32
	TimeLimitExceeded     bool

	// AccountSeqs holds the 1-based position of each action within the
	// account's history; set only by GetAccountActions.
	AccountSeqs []uint64
}

func (r GetActionsResult) ToVariant() map[string]any {
	actions := make([]map[string]any, len(r.Actions))
	for i, a := range r.Actions {
		actions[i] = a.ToVariant()
		if i < len(r.AccountSeqs) {
			actions[i]["account_action_seq"] = r.AccountSeqs[i]
		}
	}
	v := map[string]any{
		"actions":                 actions,
		"last_irreversible_block": r.LastIrreversibleBlock,
	}
	if r.TimeLimitExceeded {
		v["time_limit_exceeded_error"] = true
	}
	return v
}

// resolveRange maps (pos, offset) onto the half-open id range [start, end).
// A negative pos means "from the end"; a positive offset walks forward from
// pos and a non-positive one walks backward, ending before pos.
func resolveRange(pos, offset int64, size uint64) (start, end int64, err error) {
	if pos <= -1 {
		pos = int64(size)
	}
	if offset > 0 {
		start = pos
		end = start + offset
		if end >= int64(size) {
			end = int64(size)
		}
	} else {
		start = pos + offset
		if start < 0 {
			start = 0
		}
		end = pos
	}
	if end < start {
		return 0, 0, apierr.New(apierr.KindInvalidRange, "invalid range: pos %d offset %d resolves to [%d, %d)", pos, offset, start, end)
	}
	return start, end, nil
}

func rangeArgs(pos, offset *int32) (int64, int64) {
	p, o := int64(DefaultPos), int64(DefaultOffset)
	if pos != nil {
		p = int64(*pos)
	}
	if offset != nil {
		o = int64(*offset)
	}
	return p, o
}

// GetActions returns ledger entries in ascending sequence order. pos and
// offset default to -1 and -20 (the last twenty actions). The scan stops early
// at the first missing id or once the time budget is spent.
func (h *History) GetActions(ctx context.Context, pos, offset *int32, tr *querytrace.Tracer) (GetActionsResult, error) {
	if tr == nil {
		tr = &querytrace.Tracer{}
	}

	p, o := rangeArgs(pos, offset)
	size := h.src.Size()
	start, end, err := resolveRange(p, o, size)
	if err != nil {
		return GetActionsResult{}, err
	}
	tr.SetMetadata("range", fmt.Sprintf("[%d,%d)", start, end))
	tr.SetMetadata("size", size)

	return h.scan(ctx, start, end, func(i int64) (uint64, bool) { return uint64(i), true }, tr)
}

// GetAccountActions pages through the actions account took part in as payer
// or receiver. pos and offset index the account's own history and resolve
// exactly as in GetActions.
func (h *History) GetAccountActions(ctx context.Context, account uint64, pos, offset *int32, tr *querytrace.Tracer) (GetActionsResult, error) {
	if tr == nil {
		tr = &querytrace.Tracer{}
	}

	load := tr.Step("ledger", "account_index").WithDetails(chain.NameToString(account))
	ids, err := h.src.AccountActions(account)
	if err != nil {
		return GetActionsResult{}, fmt.Errorf("read account index: %w", err)
	}
	size := ids.GetCardinality()
	load.WithCount(int(size)).End()

	p, o := rangeArgs(pos, offset)
	start, end, err := resolveRange(p, o, size)
	if err != nil {
		return GetActionsResult{}, err
	}
	tr.SetMetadata("account", account)
	tr.SetMetadata("range", fmt.Sprintf("[%d,%d)", start, end))
	tr.SetMetadata("size", size)

	result, err := h.scan(ctx, start, end, func(i int64) (uint64, bool) {
		id, err := ids.Select(uint64(i))
		return id, err == nil
	}, tr)
	if err != nil {
		return GetActionsResult{}, err
	}
	result.AccountSeqs = make([]uint64, len(result.Actions))
	for i := range result.AccountSeqs {
		result.AccountSeqs[i] = uint64(start) + uint64(i) + 1
	}
	return result, nil
}

// scan walks positions [start, end), mapping each to a ledger id with idAt.
func (h *History) scan(ctx context.Context, start, end int64, idAt func(int64) (uint64, bool), tr *querytrace.Tracer) (GetActionsResult, error) {
	var result GetActionsResult
	var err error
	lib := tr.Step("chain", "last_irreversible_block")
	if result.LastIrreversibleBlock, err = h.chain.LastIrreversibleBlock(ctx); err != nil {
		return GetActionsResult{}, err
	}
	lib.End()

	step := tr.Step("ledger", "scan")
	startTime := h.now()
	for i := start; i < end; i++ {
		id, ok := idAt(i)
		if !ok {
			break
		}
		a, ok, err := h.src.Get(id)
		if err != nil {
			return GetActionsResult{}, fmt.Errorf("read action %d: %w", id, err)
		}
		if !ok {
			break
		}
		result.Actions = append(result.Actions, a)

		if h.now().Sub(startTime) > h.budget {
			result.TimeLimitExceeded = true
			metrics.HistoryTimeLimited.Inc()
			break
		}
	}
	step.WithCount(len(result.Actions)).End()
	tr.SetMetadata("time_limit_exceeded", result.TimeLimitExceeded)

	if result.Actions == nil {
		result.Actions = []ledger.Action{}
	}
	return result, nil
}
