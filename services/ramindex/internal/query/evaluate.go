package query

import (
	"context"

	"github.com/greymass/ramindex/libraries/chain"
	"github.com/greymass/ramindex/services/ramindex/internal/apierr"
	"github.com/greymass/ramindex/services/ramindex/internal/market"
)

// MarketReader loads the current RAM market row.
type MarketReader interface {
	RAMMarket(ctx context.Context) (market.State, error)
}

type Evaluator struct {
	market      MarketReader
	chain       ChainInfo
	tokenSymbol uint64
	ramSymbol   uint64
}

func NewEvaluator(m MarketReader, chain ChainInfo, tokenSymbol, ramSymbol uint64) *Evaluator {
	return &Evaluator{market: m, chain: chain, tokenSymbol: tokenSymbol, ramSymbol: ramSymbol}
}

type EvaluateResult struct {
	To                    chain.Asset
	Fee                   chain.Asset
	MarketBase            chain.Asset
	MarketQuote           chain.Asset
	LastIrreversibleBlock uint32
}

func (r EvaluateResult) ToVariant() map[string]any {
	return map[string]any{
		"to":                      r.To.String(),
		"fee":                     r.Fee.String(),
		"rammarket_base":          r.MarketBase.String(),
		"rammarket_quote":         r.MarketQuote.String(),
		"last_irreversible_block": r.LastIrreversibleBlock,
	}
}

// Evaluate simulates selling from on the current market: tokens for RAM or
// RAM for tokens, net of the 0.5% fee. The market is read fresh on every call.
func (e *Evaluator) Evaluate(ctx context.Context, from chain.Asset) (EvaluateResult, error) {
	var to uint64
	switch from.Symbol {
	case e.tokenSymbol:
		to = e.ramSymbol
	case e.ramSymbol:
		to = e.tokenSymbol
	default:
		return EvaluateResult{}, apierr.New(apierr.KindIllegalSymbol, "illegal symbol %s, expected %s or %s",
			chain.SymbolString(from.Symbol), chain.SymbolString(e.tokenSymbol), chain.SymbolString(e.ramSymbol))
	}
	if from.Amount < 0 {
		return EvaluateResult{}, apierr.New(apierr.KindBadRequest, "amount must not be negative")
	}
	if from.Amount > chain.MaxAssetAmount {
		return EvaluateResult{}, apierr.New(apierr.KindBadRequest, "amount %s out of range", from)
	}

	state, err := e.market.RAMMarket(ctx)
	if err != nil {
		return EvaluateResult{}, err
	}
	result := EvaluateResult{
		MarketBase:  state.Base.Balance,
		MarketQuote: state.Quote.Balance,
	}

	if from.Symbol == e.tokenSymbol {
		fee := chain.NewAsset(market.Fee(from.Amount), from.Symbol)
		afterFee := chain.NewAsset(from.Amount-fee.Amount, from.Symbol)
		if result.To, err = state.Convert(afterFee, to); err != nil {
			return EvaluateResult{}, err
		}
		result.Fee = fee
	} else {
		out, err := state.Convert(from, to)
		if err != nil {
			return EvaluateResult{}, err
		}
		result.Fee = chain.NewAsset(market.Fee(out.Amount), out.Symbol)
		result.To = chain.NewAsset(out.Amount-result.Fee.Amount, out.Symbol)
	}

	if result.LastIrreversibleBlock, err = e.chain.LastIrreversibleBlock(ctx); err != nil {
		return EvaluateResult{}, err
	}
	return result, nil
}
