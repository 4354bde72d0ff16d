package chain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

type PermissionLevel struct {
	Actor      string `json:"actor"`
	Permission string `json:"permission"`
}

// Action carries its payload either as rendered JSON in Data or as raw bytes in HexData.
// Nodes that cannot render an action put the hex string into Data instead.
type Action struct {
	Account       string            `json:"account"`
	Name          string            `json:"name"`
	Authorization []PermissionLevel `json:"authorization"`
	Data          json.RawMessage   `json:"data,omitempty"`
	HexData       string            `json:"hex_data,omitempty"`
}

// RawData returns the binary payload when one is available.
func (act *Action) RawData() ([]byte, bool) {
	hexStr := act.HexData
	if hexStr == "" && len(act.Data) > 0 && act.Data[0] == '"' {
		if err := json.Unmarshal(act.Data, &hexStr); err != nil {
			return nil, false
		}
	}
	if hexStr == "" {
		return nil, false
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, false
	}
	return b, true
}

type AccountDelta struct {
	Account string `json:"account"`
	Delta   int64  `json:"delta"`
}

type ActionTrace struct {
	Receiver         string         `json:"receiver"`
	Act              Action         `json:"act"`
	TrxID            string         `json:"trx_id,omitempty"`
	BlockNum         uint32         `json:"block_num,omitempty"`
	BlockTime        string         `json:"block_time,omitempty"`
	AccountRAMDeltas []AccountDelta `json:"account_ram_deltas,omitempty"`
	InlineTraces     []ActionTrace  `json:"inline_traces,omitempty"`
}

// TransactionTrace is one applied transaction as delivered by the trace feed.
// Block fields describe the block the transaction was applied in.
type TransactionTrace struct {
	ID           string        `json:"id"`
	BlockNum     uint32        `json:"block_num"`
	BlockTime    string        `json:"block_time"`
	ActionTraces []ActionTrace `json:"action_traces"`
}

type Checksum256 [32]byte

func ParseChecksum256(s string) (Checksum256, error) {
	var c Checksum256
	if len(s) != 64 {
		return c, fmt.Errorf("checksum %q must be 64 hex characters", s)
	}
	if _, err := hex.Decode(c[:], []byte(s)); err != nil {
		return c, fmt.Errorf("checksum %q: %w", s, err)
	}
	return c, nil
}

func (c Checksum256) String() string {
	return hex.EncodeToString(c[:])
}
