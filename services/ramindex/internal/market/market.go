// Package market implements the Bancor bonding curve of the system RAM market.
package market

import (
	"math"

	"github.com/greymass/ramindex/libraries/chain"
	"github.com/greymass/ramindex/services/ramindex/internal/apierr"
)

// Connector is one reserve of the market. Weight is the value the market
// table holds; the curve exponent is Weight/1000.
type Connector struct {
	Balance chain.Asset
	Weight  float64
}

// State is a snapshot of the market row: a share supply between two connectors.
type State struct {
	Supply chain.Asset
	Base   Connector
	Quote  Connector
}

// Fee is the 0.5% RAM market fee, rounded up.
func Fee(amount int64) int64 {
	return (amount + 199) / 200
}

// ConvertToExchange deposits in into c and issues shares.
func (s *State) ConvertToExchange(c *Connector, in chain.Asset) chain.Asset {
	r := float64(s.Supply.Amount)
	cb := float64(c.Balance.Amount + in.Amount)
	f := c.Weight / 1000.0
	t := float64(in.Amount)

	issued := int64(-r * (1.0 - math.Pow(1.0+t/cb, f)))

	s.Supply.Amount += issued
	c.Balance.Amount += in.Amount
	return chain.Asset{Amount: issued, Symbol: s.Supply.Symbol}
}

// ConvertFromExchange redeems in shares against c.
func (s *State) ConvertFromExchange(c *Connector, in chain.Asset) chain.Asset {
	r := float64(s.Supply.Amount - in.Amount)
	cb := float64(c.Balance.Amount)
	f := 1000.0 / c.Weight
	e := float64(in.Amount)

	out := int64(cb * (math.Pow(1.0+e/r, f) - 1.0))

	s.Supply.Amount -= in.Amount
	c.Balance.Amount -= out
	return chain.Asset{Amount: out, Symbol: c.Balance.Symbol}
}

// Convert routes from through the share supply until it is denominated in to,
// mutating the state the way the on-chain exchange would.
func (s *State) Convert(from chain.Asset, to uint64) (chain.Asset, error) {
	sellSymbol := from.Symbol
	shareSymbol := s.Supply.Symbol
	baseSymbol := s.Base.Balance.Symbol
	quoteSymbol := s.Quote.Balance.Symbol

	if sellSymbol != shareSymbol {
		switch sellSymbol {
		case baseSymbol:
			from = s.ConvertToExchange(&s.Base, from)
		case quoteSymbol:
			from = s.ConvertToExchange(&s.Quote, from)
		default:
			return chain.Asset{}, apierr.New(apierr.KindInvalidConversion, "invalid sell symbol %s", chain.SymbolString(sellSymbol))
		}
		sellSymbol = from.Symbol
	} else {
		switch to {
		case baseSymbol:
			from = s.ConvertFromExchange(&s.Base, from)
		case quoteSymbol:
			from = s.ConvertFromExchange(&s.Quote, from)
		default:
			return chain.Asset{}, apierr.New(apierr.KindInvalidConversion, "invalid conversion to %s", chain.SymbolString(to))
		}
		sellSymbol = from.Symbol
	}

	if sellSymbol != to {
		return s.Convert(from, to)
	}
	return from, nil
}
