package ledger

import (
	"fmt"

	"github.com/greymass/ramindex/libraries/chain"
	"github.com/greymass/ramindex/libraries/encoding"
)

// Action is one RAM market operation as recorded in the ledger.
// RAMRequested is what the caller asked for; RAMRealized is the observed change.
type Action struct {
	Sequence     uint64
	Payer        uint64
	Receiver     uint64
	Name         uint64
	Token        chain.Asset
	Fee          chain.Asset
	RAMRequested int64
	RAMRealized  int64
	BlockNum     uint32
	BlockTime    uint32
	TrxID        chain.Checksum256
}

// ToVariant is the single serialization of an Action: it is what gets stored
// and what the history endpoint renders.
func (a Action) ToVariant() map[string]any {
	return map[string]any{
		"action_seq": a.Sequence,
		"payer":      chain.NameToString(a.Payer),
		"receiver":   chain.NameToString(a.Receiver),
		"name":       chain.NameToString(a.Name),
		"token":      a.Token.String(),
		"fee":        a.Fee.String(),
		"exp_ram":    a.RAMRequested,
		"act_ram":    a.RAMRealized,
		"block_num":  a.BlockNum,
		"block_time": chain.Uint32ToTime(a.BlockTime),
		"trx_id":     a.TrxID.String(),
	}
}

func ActionFromVariant(v map[string]any) (Action, error) {
	var a Action
	var ok bool
	var err error

	if a.Sequence, ok = encoding.MaybeGetUint64(v["action_seq"]); !ok {
		return a, fmt.Errorf("action_seq: expected number, got %T", v["action_seq"])
	}
	if a.Payer, err = nameField(v, "payer"); err != nil {
		return a, err
	}
	if a.Receiver, err = nameField(v, "receiver"); err != nil {
		return a, err
	}
	if a.Name, err = nameField(v, "name"); err != nil {
		return a, err
	}
	if a.Token, err = assetField(v, "token"); err != nil {
		return a, err
	}
	if a.Fee, err = assetField(v, "fee"); err != nil {
		return a, err
	}
	if a.RAMRequested, ok = encoding.MaybeGetInt64(v["exp_ram"]); !ok {
		return a, fmt.Errorf("exp_ram: expected number, got %T", v["exp_ram"])
	}
	if a.RAMRealized, ok = encoding.MaybeGetInt64(v["act_ram"]); !ok {
		return a, fmt.Errorf("act_ram: expected number, got %T", v["act_ram"])
	}
	blockNum, ok := encoding.MaybeGetUint64(v["block_num"])
	if !ok || blockNum > 0xFFFFFFFF {
		return a, fmt.Errorf("block_num: expected uint32, got %v", v["block_num"])
	}
	a.BlockNum = uint32(blockNum)

	s, ok := encoding.MaybeGetString(v["block_time"])
	if !ok {
		return a, fmt.Errorf("block_time: expected string, got %T", v["block_time"])
	}
	if a.BlockTime, err = chain.ParseBlockTime(s); err != nil {
		return a, fmt.Errorf("block_time: %w", err)
	}

	s, ok = encoding.MaybeGetString(v["trx_id"])
	if !ok {
		return a, fmt.Errorf("trx_id: expected string, got %T", v["trx_id"])
	}
	if a.TrxID, err = chain.ParseChecksum256(s); err != nil {
		return a, fmt.Errorf("trx_id: %w", err)
	}
	return a, nil
}

// Snapshot is the last RAM quota observed for an account.
type Snapshot struct {
	Account uint64
	RAM     int64
}

func (s Snapshot) ToVariant() map[string]any {
	return map[string]any{
		"account": chain.NameToString(s.Account),
		"ram":     s.RAM,
	}
}

func SnapshotFromVariant(v map[string]any) (Snapshot, error) {
	var s Snapshot
	var err error
	if s.Account, err = nameField(v, "account"); err != nil {
		return s, err
	}
	ram, ok := encoding.MaybeGetInt64(v["ram"])
	if !ok {
		return s, fmt.Errorf("ram: expected number, got %T", v["ram"])
	}
	s.RAM = ram
	return s, nil
}

func nameField(v map[string]any, key string) (uint64, error) {
	s, ok := encoding.MaybeGetString(v[key])
	if !ok {
		return 0, fmt.Errorf("%s: expected name string, got %T", key, v[key])
	}
	n, err := chain.ParseName(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func assetField(v map[string]any, key string) (chain.Asset, error) {
	s, ok := encoding.MaybeGetString(v[key])
	if !ok {
		return chain.Asset{}, fmt.Errorf("%s: expected asset string, got %T", key, v[key])
	}
	a, err := chain.ParseAsset(s)
	if err != nil {
		return chain.Asset{}, fmt.Errorf("%s: %w", key, err)
	}
	return a, nil
}

func encodeVariant(v map[string]any) ([]byte, error) {
	return encoding.JSONiter.Marshal(v)
}

func decodeVariant(data []byte) (map[string]any, error) {
	var v map[string]any
	if err := encoding.JSONiter.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
