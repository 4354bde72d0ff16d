// Package ingest derives RAM ledger entries from applied transaction traces.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/greymass/ramindex/libraries/abicache"
	"github.com/greymass/ramindex/libraries/chain"
	"github.com/greymass/ramindex/libraries/encoding"
	"github.com/greymass/ramindex/libraries/logger"
	"github.com/greymass/ramindex/services/ramindex/internal/apierr"
	"github.com/greymass/ramindex/services/ramindex/internal/ledger"
	"github.com/greymass/ramindex/services/ramindex/internal/metrics"
)

// RAMLimits reads an account's current RAM quota from the chain.
type RAMLimits interface {
	RAMLimit(ctx context.Context, account uint64) (int64, error)
}

type Config struct {
	SystemAccount  uint64
	RAMAccount     uint64
	RAMFeeAccount  uint64
	BuyAction      uint64
	BuyBytesAction uint64
	SellAction     uint64
	TokenSymbol    uint64

	// MatchAnyContract matches the RAM actions by name regardless of contract.
	MatchAnyContract bool
	// SkipMalformed drops a malformed trace and advances past it instead of failing.
	SkipMalformed bool
}

func DefaultConfig() Config {
	return Config{
		SystemAccount:  chain.StringToName("enumivo"),
		RAMAccount:     chain.StringToName("enu.ram"),
		RAMFeeAccount:  chain.StringToName("enu.ramfee"),
		BuyAction:      chain.StringToName("buyram"),
		BuyBytesAction: chain.StringToName("buyrambytes"),
		SellAction:     chain.StringToName("sellram"),
		TokenSymbol:    chain.NewSymbolFromString(4, "ENU"),
	}
}

type Interpreter struct {
	cfg    Config
	ledger *ledger.Ledger
	limits RAMLimits
	render Renderer
	abis   *abicache.Cache

	mu           sync.Mutex
	unsyncedABIs bool
}

// New builds an interpreter. abis may be nil, in which case setabi actions
// are not captured.
func New(cfg Config, l *ledger.Ledger, limits RAMLimits, render Renderer, abis *abicache.Cache) *Interpreter {
	return &Interpreter{cfg: cfg, ledger: l, limits: limits, render: render, abis: abis}
}

// traceContext carries the per-transaction fields every record shares.
type traceContext struct {
	blockNum  uint32
	blockTime uint32
	trxID     chain.Checksum256
}

// OnAppliedTransaction applies one trace delivered at feed position seq.
// Everything derived from the trace is committed atomically with seq; a trace
// at or below the committed position is ignored.
func (in *Interpreter) OnAppliedTransaction(ctx context.Context, seq uint64, trace *chain.TransactionTrace) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if seq != 0 && seq <= in.ledger.Properties().FeedSeq {
		return nil
	}

	tx := in.ledger.Begin()
	defer func() { tx.Discard() }()

	records, err := in.apply(ctx, tx, trace)
	if err != nil {
		if !errors.Is(err, apierr.ErrMalformedTrace) {
			return err
		}
		metrics.MalformedTraces.Inc()
		if !in.cfg.SkipMalformed {
			return err
		}
		logger.Warning("Skipping malformed trace %s at feed position %d: %v", trace.ID, seq, err)

		tx.Discard()
		tx = in.ledger.Begin()
		records = nil
	}

	// Captured ABIs must be durable before the feed position moves past them.
	if in.unsyncedABIs {
		if err := in.abis.Sync(); err != nil {
			return fmt.Errorf("sync ABI cache: %w", err)
		}
		in.unsyncedABIs = false
	}

	tx.SetFeedPosition(seq, trace.BlockNum)
	if err := tx.Commit(); err != nil {
		return err
	}

	metrics.TracesProcessed.Inc()
	metrics.LedgerSize.Set(float64(in.ledger.Size()))
	metrics.LastBlock.Set(float64(trace.BlockNum))
	for _, r := range records {
		name := chain.NameToString(r.Name)
		metrics.ActionsRecorded.WithLabelValues(name).Inc()
		logger.Printf("ram", "RAM action #%d %s payer=%s receiver=%s token=%s fee=%s exp_ram=%d act_ram=%d block=%d",
			r.Sequence, name, chain.NameToString(r.Payer), chain.NameToString(r.Receiver),
			r.Token, r.Fee, r.RAMRequested, r.RAMRealized, r.BlockNum)
	}
	return nil
}

func (in *Interpreter) apply(ctx context.Context, tx *ledger.Tx, trace *chain.TransactionTrace) ([]ledger.Action, error) {
	// The header is only parsed once a RAM action needs it.
	var tc *traceContext

	var records []ledger.Action
	for i := range trace.ActionTraces {
		at := &trace.ActionTraces[i]

		// A name that does not parse cannot match a configured action.
		contract, err := chain.ParseName(at.Act.Account)
		if err != nil {
			continue
		}
		name, err := chain.ParseName(at.Act.Name)
		if err != nil {
			continue
		}

		if in.abis != nil && abicache.IsSetabi(in.cfg.SystemAccount, contract, name) {
			in.captureABI(at, blockNumOf(trace))
			continue
		}
		if !in.cfg.MatchAnyContract && contract != in.cfg.SystemAccount {
			continue
		}
		if name != in.cfg.BuyAction && name != in.cfg.BuyBytesAction && name != in.cfg.SellAction {
			continue
		}

		if tc == nil {
			parsed, err := in.traceContext(trace)
			if err != nil {
				return nil, err
			}
			tc = &parsed
		}

		var rec ledger.Action
		switch name {
		case in.cfg.BuyAction:
			rec, err = in.onBuy(ctx, tx, at, *tc, false)
		case in.cfg.BuyBytesAction:
			rec, err = in.onBuy(ctx, tx, at, *tc, true)
		case in.cfg.SellAction:
			rec, err = in.onSell(ctx, tx, at, *tc)
		}
		if err != nil {
			return nil, fmt.Errorf("%s in %s: %w", at.Act.Name, trace.ID, err)
		}

		rec.Name = name
		if rec.Sequence, err = tx.Append(rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func blockNumOf(trace *chain.TransactionTrace) uint32 {
	if trace.BlockNum == 0 && len(trace.ActionTraces) > 0 {
		return trace.ActionTraces[0].BlockNum
	}
	return trace.BlockNum
}

func (in *Interpreter) traceContext(trace *chain.TransactionTrace) (traceContext, error) {
	var tc traceContext
	var err error

	if tc.trxID, err = chain.ParseChecksum256(trace.ID); err != nil {
		return tc, malformed(err, "transaction id")
	}
	tc.blockNum = blockNumOf(trace)
	blockTime := trace.BlockTime
	if blockTime == "" && len(trace.ActionTraces) > 0 {
		blockTime = trace.ActionTraces[0].BlockTime
	}
	if tc.blockTime, err = chain.ParseBlockTime(blockTime); err != nil {
		return tc, malformed(err, "block time")
	}
	return tc, nil
}

func (in *Interpreter) captureABI(at *chain.ActionTrace, blockNum uint32) {
	var contract uint64
	var abiJSON []byte
	var err error

	if raw, ok := at.Act.RawData(); ok {
		contract, abiJSON, err = abicache.ParseSetabi(raw)
	} else {
		var data map[string]any
		if data, err = in.render.Render(&at.Act, blockNum); err == nil {
			contract, abiJSON, err = abicache.ParseSetabiJSON(data)
		}
	}
	if err != nil {
		logger.Warning("Ignoring unreadable setabi at block %d: %v", blockNum, err)
		return
	}
	if err := in.abis.Put(blockNum, contract, abiJSON); err != nil {
		logger.Error("Failed to store ABI for %s: %v", chain.NameToString(contract), err)
		return
	}
	in.unsyncedABIs = true
	logger.Printf("sync", "Captured ABI for %s at block %d", chain.NameToString(contract), blockNum)
}

func (in *Interpreter) onBuy(ctx context.Context, tx *ledger.Tx, at *chain.ActionTrace, tc traceContext, byBytes bool) (ledger.Action, error) {
	data, err := in.render.Render(&at.Act, tc.blockNum)
	if err != nil {
		return ledger.Action{}, malformed(err, "render")
	}
	payer, err := nameOf(data, "payer")
	if err != nil {
		return ledger.Action{}, err
	}
	receiver, err := nameOf(data, "receiver")
	if err != nil {
		return ledger.Action{}, err
	}

	delta, err := in.ramDelta(ctx, tx, receiver)
	if err != nil {
		return ledger.Action{}, err
	}

	tokenSubFee := chain.NewAsset(0, in.cfg.TokenSymbol)
	fee := chain.NewAsset(0, in.cfg.TokenSymbol)
	for i := range at.InlineTraces {
		t, ok, err := in.transfer(&at.InlineTraces[i], tc.blockNum)
		if err != nil {
			return ledger.Action{}, err
		}
		if !ok {
			continue
		}
		switch t.to {
		case in.cfg.RAMAccount:
			tokenSubFee = t.quantity
		case in.cfg.RAMFeeAccount:
			fee = t.quantity
		}
	}
	token, err := tokenSubFee.Add(fee)
	if err != nil {
		return ledger.Action{}, malformed(err, "payment")
	}

	requested := delta
	if byBytes {
		bytes, ok := encoding.MaybeGetInt64(data["bytes"])
		if !ok {
			return ledger.Action{}, apierr.New(apierr.KindMalformedTrace, "bytes: expected integer, got %T", data["bytes"])
		}
		requested = bytes
	}

	return ledger.Action{
		Payer:        payer,
		Receiver:     receiver,
		Token:        token,
		Fee:          fee,
		RAMRequested: requested,
		RAMRealized:  delta,
		BlockNum:     tc.blockNum,
		BlockTime:    tc.blockTime,
		TrxID:        tc.trxID,
	}, nil
}

func (in *Interpreter) onSell(ctx context.Context, tx *ledger.Tx, at *chain.ActionTrace, tc traceContext) (ledger.Action, error) {
	data, err := in.render.Render(&at.Act, tc.blockNum)
	if err != nil {
		return ledger.Action{}, malformed(err, "render")
	}
	account, err := nameOf(data, "account")
	if err != nil {
		return ledger.Action{}, err
	}

	delta, err := in.ramDelta(ctx, tx, account)
	if err != nil {
		return ledger.Action{}, err
	}

	token := chain.NewAsset(0, in.cfg.TokenSymbol)
	for i := range at.InlineTraces {
		t, ok, err := in.transfer(&at.InlineTraces[i], tc.blockNum)
		if err != nil {
			return ledger.Action{}, err
		}
		if ok && t.from == in.cfg.RAMAccount {
			token = t.quantity
		}
	}

	return ledger.Action{
		Payer:        account,
		Receiver:     account,
		Token:        token,
		Fee:          chain.NewAsset(0, in.cfg.TokenSymbol),
		RAMRequested: delta,
		RAMRealized:  delta,
		BlockNum:     tc.blockNum,
		BlockTime:    tc.blockTime,
		TrxID:        tc.trxID,
	}, nil
}

// ramDelta records the account's live RAM quota and returns the absolute
// change from the last known value (zero for an unseen account).
func (in *Interpreter) ramDelta(ctx context.Context, tx *ledger.Tx, account uint64) (int64, error) {
	current, err := in.limits.RAMLimit(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("ram limit of %s: %w", chain.NameToString(account), err)
	}
	old, err := tx.Update(account, current)
	if err != nil {
		return 0, err
	}
	delta := current - old
	if delta < 0 {
		delta = -delta
	}
	return delta, nil
}

type transfer struct {
	from, to uint64
	quantity chain.Asset
}

// transfer extracts a token transfer from an inline trace. Inline actions
// that are not transfers are reported with ok=false.
func (in *Interpreter) transfer(it *chain.ActionTrace, blockNum uint32) (transfer, bool, error) {
	if it.Act.Name != "transfer" {
		return transfer{}, false, nil
	}
	data, err := in.render.Render(&it.Act, blockNum)
	if err != nil {
		return transfer{}, false, malformed(err, "inline transfer")
	}

	var t transfer
	if t.from, err = nameOf(data, "from"); err != nil {
		return t, false, err
	}
	if t.to, err = nameOf(data, "to"); err != nil {
		return t, false, err
	}
	s, ok := encoding.MaybeGetString(data["quantity"])
	if !ok {
		return t, false, apierr.New(apierr.KindMalformedTrace, "quantity: expected asset, got %T", data["quantity"])
	}
	if t.quantity, err = chain.ParseAsset(s); err != nil {
		return t, false, malformed(err, "quantity")
	}
	return t, true, nil
}

func nameOf(data map[string]any, key string) (uint64, error) {
	s, ok := encoding.MaybeGetString(data[key])
	if !ok {
		return 0, apierr.New(apierr.KindMalformedTrace, "%s: expected account name, got %T", key, data[key])
	}
	n, err := chain.ParseName(s)
	if err != nil {
		return 0, malformed(err, "%s", key)
	}
	return n, nil
}

func malformed(err error, format string, args ...any) error {
	return apierr.Wrap(apierr.KindMalformedTrace, err, format, args...)
}
