package ingest

import (
	"bytes"
	"fmt"

	"github.com/greymass/ramindex/libraries/abicache"
	"github.com/greymass/ramindex/libraries/chain"
	"github.com/greymass/ramindex/libraries/encoding"
)

// Renderer turns an action's payload into a generic field map.
type Renderer interface {
	Render(act *chain.Action, blockNum uint32) (map[string]any, error)
}

// DataRenderer uses the JSON data the feed already rendered and falls back to
// decoding the binary payload with the contract ABI in effect at the block.
type DataRenderer struct {
	ABIs *abicache.Cache
}

func (r DataRenderer) Render(act *chain.Action, blockNum uint32) (map[string]any, error) {
	if data := bytes.TrimSpace(act.Data); len(data) > 0 && data[0] == '{' {
		var v map[string]any
		if err := encoding.JSONiter.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("action data: %w", err)
		}
		return v, nil
	}

	if r.ABIs == nil {
		return nil, fmt.Errorf("%s::%s has no rendered data and no ABI cache is configured", act.Account, act.Name)
	}
	contract, err := chain.ParseName(act.Account)
	if err != nil {
		return nil, err
	}
	name, err := chain.ParseName(act.Name)
	if err != nil {
		return nil, err
	}
	if act.HexData != "" {
		return r.ABIs.DecodeHex(contract, name, act.HexData, blockNum)
	}
	raw, ok := act.RawData()
	if !ok {
		return nil, fmt.Errorf("%s::%s has no action data", act.Account, act.Name)
	}
	return r.ABIs.Decode(contract, name, raw, blockNum)
}
