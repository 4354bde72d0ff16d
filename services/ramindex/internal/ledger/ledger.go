// Package ledger persists the RAM action log and per-account RAM snapshots.
//
// There is a single writer. A Tx groups every change derived from one
// transaction trace into one Pebble batch, together with the ledger size and
// feed position, so a trace is either applied completely or not at all.
// Readers only observe committed state.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/cockroachdb/pebble/v2"
	"github.com/greymass/ramindex/libraries/logger"
)

type Ledger struct {
	store *Store
	props atomic.Pointer[Properties]
	write sync.Mutex
}

func Open(store *Store) (*Ledger, error) {
	l := &Ledger{store: store}

	props := Properties{}
	val, ok, err := store.Get(propertiesKey)
	if err != nil {
		return nil, fmt.Errorf("read ledger properties: %w", err)
	}
	if ok {
		if props, ok = parsePropertiesValue(val); !ok {
			return nil, fmt.Errorf("corrupt ledger properties (%d bytes)", len(val))
		}
	}
	l.props.Store(&props)

	if err := l.checkTail(); err != nil {
		return nil, err
	}

	logger.Printf("startup", "Ledger: %s actions, feed position %d, last block %d",
		logger.FormatCount(int64(props.Size)), props.FeedSeq, props.LastBlock)
	return l, nil
}

// checkTail verifies the highest stored action id agrees with the persisted size.
func (l *Ledger) checkTail() error {
	iter, err := l.store.NewIterator([]byte{PrefixActions})
	if err != nil {
		return err
	}
	defer iter.Close()

	var next uint64
	if iter.Last() {
		id, ok := parseActionKey(iter.Key())
		if !ok {
			return fmt.Errorf("unexpected key %x in action range", iter.Key())
		}
		next = id + 1
	}
	if size := l.Size(); next != size {
		return fmt.Errorf("ledger size %d does not match stored actions (%d)", size, next)
	}
	return iter.Error()
}

// Snapshots calls fn for each account snapshot in account order until fn returns false.
func (l *Ledger) Snapshots(fn func(Snapshot) bool) error {
	iter, err := l.store.NewIterator([]byte{PrefixSnapshots})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		account, ok := parseSnapshotKey(iter.Key())
		if !ok {
			continue
		}
		s, err := decodeSnapshot(iter.Value())
		if err != nil {
			return fmt.Errorf("snapshot %d: %w", account, err)
		}
		if !fn(s) {
			break
		}
	}
	return iter.Error()
}

// Size is the number of committed actions. Valid ids are [0, Size).
func (l *Ledger) Size() uint64 {
	return l.props.Load().Size
}

func (l *Ledger) Properties() Properties {
	return *l.props.Load()
}

// Get returns the action with internal id (sequence - 1).
func (l *Ledger) Get(id uint64) (Action, bool, error) {
	if id >= l.Size() {
		return Action{}, false, nil
	}
	val, ok, err := l.store.Get(makeActionKey(id))
	if err != nil || !ok {
		return Action{}, false, err
	}
	a, err := decodeAction(val)
	if err != nil {
		return Action{}, false, fmt.Errorf("action %d: %w", id, err)
	}
	return a, true, nil
}

// Snapshot returns the committed RAM balance recorded for account.
func (l *Ledger) Snapshot(account uint64) (Snapshot, bool, error) {
	val, ok, err := l.store.Get(makeSnapshotKey(account))
	if err != nil || !ok {
		return Snapshot{}, false, err
	}
	s, err := decodeSnapshot(val)
	if err != nil {
		return Snapshot{}, false, err
	}
	return s, true, nil
}

// AccountActions returns the ids of the committed actions account took part
// in as payer or receiver. An unseen account yields an empty bitmap.
func (l *Ledger) AccountActions(account uint64) (*roaring64.Bitmap, error) {
	val, _, err := l.store.Get(makeAccountKey(account))
	if err != nil {
		return nil, err
	}
	bm, err := decodeBitmap(val)
	if err != nil {
		return nil, fmt.Errorf("account index %d: %w", account, err)
	}
	return bm, nil
}

// Begin starts the write transaction for one trace. It blocks while another
// Tx is open; the caller must Commit or Discard.
func (l *Ledger) Begin() *Tx {
	l.write.Lock()
	return &Tx{
		l:     l,
		batch: l.store.NewIndexedBatch(),
		props: *l.props.Load(),
	}
}

type Tx struct {
	l     *Ledger
	batch *pebble.Batch
	props Properties
	done  bool
}

func (tx *Tx) snapshot(account uint64) (Snapshot, bool, error) {
	val, closer, err := tx.batch.Get(makeSnapshotKey(account))
	if errors.Is(err, pebble.ErrNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	defer closer.Close()
	s, err := decodeSnapshot(val)
	if err != nil {
		return Snapshot{}, false, err
	}
	return s, true, nil
}

// GetOrInit returns the account's last known RAM balance, creating a zero
// snapshot when the account has never been seen.
func (tx *Tx) GetOrInit(account uint64) (int64, error) {
	s, ok, err := tx.snapshot(account)
	if err != nil {
		return 0, err
	}
	if ok {
		return s.RAM, nil
	}
	if err := tx.putSnapshot(Snapshot{Account: account}); err != nil {
		return 0, err
	}
	return 0, nil
}

// Update stores ram as the account's balance and returns the previous one.
func (tx *Tx) Update(account uint64, ram int64) (int64, error) {
	old, err := tx.GetOrInit(account)
	if err != nil {
		return 0, err
	}
	return old, tx.putSnapshot(Snapshot{Account: account, RAM: ram})
}

func (tx *Tx) putSnapshot(s Snapshot) error {
	val, err := encodeVariant(s.ToVariant())
	if err != nil {
		return err
	}
	return tx.batch.Set(makeSnapshotKey(s.Account), val, nil)
}

// Append assigns the next sequence to a and stages it, along with its entry
// in the payer and receiver account indexes.
func (tx *Tx) Append(a Action) (uint64, error) {
	id := tx.props.Size
	a.Sequence = id + 1
	val, err := encodeVariant(a.ToVariant())
	if err != nil {
		return 0, err
	}
	if err := tx.batch.Set(makeActionKey(id), val, nil); err != nil {
		return 0, err
	}
	ids, err := encodeBitmap(id)
	if err != nil {
		return 0, err
	}
	for _, account := range participants(a) {
		if err := tx.batch.Merge(makeAccountKey(account), ids, nil); err != nil {
			return 0, err
		}
	}
	tx.props.Size++
	return a.Sequence, nil
}

// SetFeedPosition records the feed position and block the Tx was derived from.
func (tx *Tx) SetFeedPosition(seq uint64, blockNum uint32) {
	tx.props.FeedSeq = seq
	tx.props.LastBlock = blockNum
}

// Appended is the number of actions staged in this Tx.
func (tx *Tx) Appended() uint64 {
	return tx.props.Size - tx.l.Size()
}

func (tx *Tx) Commit() error {
	if tx.done {
		return fmt.Errorf("ledger transaction already finished")
	}
	defer tx.finish()

	if err := tx.batch.Set(propertiesKey, makePropertiesValue(tx.props), nil); err != nil {
		return err
	}
	if err := tx.l.store.Commit(tx.batch); err != nil {
		return fmt.Errorf("commit ledger batch: %w", err)
	}
	props := tx.props
	tx.l.props.Store(&props)
	return nil
}

// Discard drops every staged change. It is safe to call after Commit.
func (tx *Tx) Discard() {
	if !tx.done {
		tx.finish()
	}
}

func (tx *Tx) finish() {
	tx.done = true
	tx.batch.Close()
	tx.l.write.Unlock()
}

func participants(a Action) []uint64 {
	if a.Payer == a.Receiver {
		return []uint64{a.Payer}
	}
	return []uint64{a.Payer, a.Receiver}
}

func decodeAction(val []byte) (Action, error) {
	v, err := decodeVariant(val)
	if err != nil {
		return Action{}, err
	}
	return ActionFromVariant(v)
}

func decodeSnapshot(val []byte) (Snapshot, error) {
	v, err := decodeVariant(val)
	if err != nil {
		return Snapshot{}, err
	}
	return SnapshotFromVariant(v)
}
