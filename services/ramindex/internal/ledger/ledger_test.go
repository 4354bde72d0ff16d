package ledger

import (
	"testing"

	"github.com/greymass/ramindex/libraries/chain"
)

var enu = chain.NewSymbolFromString(4, "ENU")

func openTestLedger(t *testing.T, dir string) (*Ledger, *Store) {
	t.Helper()
	store, err := NewStore(dir, StoreConfig{})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	l, err := Open(store)
	if err != nil {
		store.Close()
		t.Fatalf("Open() error = %v", err)
	}
	return l, store
}

func testAction(payer string, ram int64) Action {
	trx, _ := chain.ParseChecksum256("6b86b273ff34fce19d6b804eff5a3f5747ada4eaa22f1d49c01e52ddb7875b4b")
	return Action{
		Payer:        chain.StringToName(payer),
		Receiver:     chain.StringToName(payer),
		Name:         chain.StringToName("buyrambytes"),
		Token:        chain.NewAsset(10050, enu),
		Fee:          chain.NewAsset(50, enu),
		RAMRequested: ram,
		RAMRealized:  ram,
		BlockNum:     1234,
		BlockTime:    1000,
		TrxID:        trx,
	}
}

func TestAppendIsDense(t *testing.T) {
	l, store := openTestLedger(t, t.TempDir())
	defer store.Close()

	for i := 0; i < 3; i++ {
		tx := l.Begin()
		for j := 0; j < 2; j++ {
			seq, err := tx.Append(testAction("alice", int64(100*i+j)))
			if err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if want := uint64(2*i + j + 1); seq != want {
				t.Errorf("Append() seq = %d, want %d", seq, want)
			}
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
	}

	if l.Size() != 6 {
		t.Fatalf("Size() = %d, want 6", l.Size())
	}
	for id := uint64(0); id < 6; id++ {
		a, ok, err := l.Get(id)
		if err != nil || !ok {
			t.Fatalf("Get(%d) = %v, %v", id, ok, err)
		}
		if a.Sequence != id+1 {
			t.Errorf("Get(%d).Sequence = %d", id, a.Sequence)
		}
	}
	if _, ok, _ := l.Get(6); ok {
		t.Error("Get(6) should be missing")
	}
}

func TestDiscardLeavesNoTrace(t *testing.T) {
	l, store := openTestLedger(t, t.TempDir())
	defer store.Close()

	alice := chain.StringToName("alice")

	tx := l.Begin()
	if _, err := tx.Update(alice, 5000); err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Append(testAction("alice", 5000)); err != nil {
		t.Fatal(err)
	}
	if tx.Appended() != 1 {
		t.Errorf("Appended() = %d, want 1", tx.Appended())
	}
	tx.SetFeedPosition(9, 99)
	tx.Discard()
	tx.Discard()

	if l.Size() != 0 {
		t.Errorf("Size() after discard = %d", l.Size())
	}
	if _, ok, _ := l.Snapshot(alice); ok {
		t.Error("snapshot visible after discard")
	}
	if p := l.Properties(); p.FeedSeq != 0 || p.LastBlock != 0 {
		t.Errorf("Properties() after discard = %+v", p)
	}

	// The write lock must have been released.
	tx = l.Begin()
	tx.Discard()
}

func TestAccountIndex(t *testing.T) {
	dir := t.TempDir()
	l, store := openTestLedger(t, dir)

	gift := testAction("alice", 10)
	gift.Receiver = chain.StringToName("bob")
	for _, a := range []Action{testAction("alice", 1), gift, testAction("bob", 2), testAction("carol", 3)} {
		tx := l.Begin()
		if _, err := tx.Append(a); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
	}

	tx := l.Begin()
	if _, err := tx.Append(testAction("alice", 4)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	tx.Discard()

	want := map[string][]uint64{
		"alice": {0, 1},
		"bob":   {1, 2},
		"carol": {3},
		"dave":  nil,
	}
	check := func(l *Ledger) {
		t.Helper()
		for name, ids := range want {
			bm, err := l.AccountActions(chain.StringToName(name))
			if err != nil {
				t.Fatalf("AccountActions(%s) error = %v", name, err)
			}
			got := bm.ToArray()
			if len(got) != len(ids) {
				t.Errorf("AccountActions(%s) = %v, want %v", name, got, ids)
				continue
			}
			for i := range ids {
				if got[i] != ids[i] {
					t.Errorf("AccountActions(%s) = %v, want %v", name, got, ids)
					break
				}
			}
		}
	}
	check(l)
	store.Close()

	l, store = openTestLedger(t, dir)
	defer store.Close()
	check(l)
}

func TestSnapshots(t *testing.T) {
	l, store := openTestLedger(t, t.TempDir())
	defer store.Close()

	alice := chain.StringToName("alice")
	bob := chain.StringToName("bob")

	tx := l.Begin()
	bal, err := tx.GetOrInit(alice)
	if err != nil || bal != 0 {
		t.Fatalf("GetOrInit(new) = %d, %v", bal, err)
	}
	old, err := tx.Update(alice, 8000)
	if err != nil || old != 0 {
		t.Fatalf("Update() old = %d, %v", old, err)
	}
	// Reads inside the Tx see its own writes.
	old, err = tx.Update(alice, 6000)
	if err != nil || old != 8000 {
		t.Fatalf("Update() old = %d, want 8000 (%v)", old, err)
	}
	if _, err := tx.GetOrInit(bob); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err == nil {
		t.Error("second Commit() should fail")
	}

	s, ok, err := l.Snapshot(alice)
	if err != nil || !ok || s.RAM != 6000 {
		t.Errorf("Snapshot(alice) = %+v, %v, %v", s, ok, err)
	}

	var seen []Snapshot
	if err := l.Snapshots(func(s Snapshot) bool {
		seen = append(seen, s)
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0].Account != alice || seen[1].Account != bob || seen[1].RAM != 0 {
		t.Errorf("Snapshots() = %+v", seen)
	}
}

func TestReopenRestoresProperties(t *testing.T) {
	dir := t.TempDir()
	l, store := openTestLedger(t, dir)

	tx := l.Begin()
	if _, err := tx.Append(testAction("carol", 4096)); err != nil {
		t.Fatal(err)
	}
	tx.SetFeedPosition(42, 777)
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	store.Close()

	l, store = openTestLedger(t, dir)
	defer store.Close()

	want := Properties{Size: 1, FeedSeq: 42, LastBlock: 777}
	if got := l.Properties(); got != want {
		t.Errorf("Properties() = %+v, want %+v", got, want)
	}
	a, ok, err := l.Get(0)
	if err != nil || !ok {
		t.Fatalf("Get(0) = %v, %v", ok, err)
	}
	if a.Payer != chain.StringToName("carol") || a.RAMRealized != 4096 || a.Token.String() != "1.0050 ENU" {
		t.Errorf("Get(0) = %+v", a)
	}
}

func TestActionVariant(t *testing.T) {
	a := testAction("alice", 4096)
	a.Sequence = 7
	v := a.ToVariant()

	for key, want := range map[string]any{
		"payer":      "alice",
		"name":       "buyrambytes",
		"token":      "1.0050 ENU",
		"fee":        "0.0050 ENU",
		"block_time": "2000-01-01T00:08:20.000",
		"trx_id":     "6b86b273ff34fce19d6b804eff5a3f5747ada4eaa22f1d49c01e52ddb7875b4b",
	} {
		if v[key] != want {
			t.Errorf("variant[%s] = %v, want %v", key, v[key], want)
		}
	}

	data, err := encodeVariant(v)
	if err != nil {
		t.Fatal(err)
	}
	back, err := decodeAction(data)
	if err != nil {
		t.Fatalf("decodeAction() error = %v", err)
	}
	if back != a {
		t.Errorf("decodeAction() = %+v, want %+v", back, a)
	}

	delete(v, "trx_id")
	if _, err := ActionFromVariant(v); err == nil {
		t.Error("ActionFromVariant() without trx_id should fail")
	}
}

func TestPropertiesValue(t *testing.T) {
	if _, ok := parsePropertiesValue([]byte{1, 2, 3}); ok {
		t.Error("short properties value should not parse")
	}
	key := makeActionKey(258)
	if id, ok := parseActionKey(key); !ok || id != 258 {
		t.Errorf("parseActionKey() = %d, %v", id, ok)
	}
	if _, ok := parseSnapshotKey(key); ok {
		t.Error("action key parsed as snapshot key")
	}
}
