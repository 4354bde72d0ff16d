package ledger

import (
	"encoding/binary"
)

const (
	PrefixActions    = 0x10
	PrefixSnapshots  = 0x20
	PrefixAccounts   = 0x30
	PrefixProperties = 0x90
)

var propertiesKey = []byte{PrefixProperties}

func makeActionKey(id uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = PrefixActions
	binary.BigEndian.PutUint64(buf[1:9], id)
	return buf
}

func parseActionKey(key []byte) (id uint64, ok bool) {
	if len(key) != 9 || key[0] != PrefixActions {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[1:9]), true
}

func makeSnapshotKey(account uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = PrefixSnapshots
	binary.BigEndian.PutUint64(buf[1:9], account)
	return buf
}

func parseSnapshotKey(key []byte) (account uint64, ok bool) {
	if len(key) != 9 || key[0] != PrefixSnapshots {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[1:9]), true
}

// makeAccountKey addresses the roaring64 bitmap of action ids an account
// took part in as payer or receiver.
func makeAccountKey(account uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = PrefixAccounts
	binary.BigEndian.PutUint64(buf[1:9], account)
	return buf
}

// Properties is the ledger's persisted bookkeeping, written with every commit.
type Properties struct {
	Size      uint64 // number of actions in the ledger
	FeedSeq   uint64 // last feed position applied
	LastBlock uint32 // block of the last applied trace
}

func makePropertiesValue(p Properties) []byte {
	buf := make([]byte, 20)
	binary.BigEndian.PutUint64(buf[0:8], p.Size)
	binary.BigEndian.PutUint64(buf[8:16], p.FeedSeq)
	binary.BigEndian.PutUint32(buf[16:20], p.LastBlock)
	return buf
}

func parsePropertiesValue(val []byte) (Properties, bool) {
	if len(val) != 20 {
		return Properties{}, false
	}
	return Properties{
		Size:      binary.BigEndian.Uint64(val[0:8]),
		FeedSeq:   binary.BigEndian.Uint64(val[8:16]),
		LastBlock: binary.BigEndian.Uint32(val[16:20]),
	}, true
}
