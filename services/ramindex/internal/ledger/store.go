package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/bloom"
	"github.com/cockroachdb/pebble/v2/sstable/block"
	"github.com/greymass/ramindex/libraries/logger"
)

// accountMerger ORs the roaring64 bitmaps merged into an account key, so
// appending an action only writes the new id.
var accountMerger = &pebble.Merger{
	Name: "ramindex.roaring64_or",
	Merge: func(key, value []byte) (pebble.ValueMerger, error) {
		m := &bitmapValueMerger{bitmap: roaring64.New()}
		if err := m.or(value); err != nil {
			return nil, err
		}
		return m, nil
	},
}

type bitmapValueMerger struct {
	bitmap *roaring64.Bitmap
}

func (m *bitmapValueMerger) or(value []byte) error {
	if len(value) == 0 {
		return nil
	}
	other := roaring64.New()
	if _, err := other.ReadFrom(bytes.NewReader(value)); err != nil {
		return err
	}
	m.bitmap.Or(other)
	return nil
}

func (m *bitmapValueMerger) MergeNewer(value []byte) error { return m.or(value) }
func (m *bitmapValueMerger) MergeOlder(value []byte) error { return m.or(value) }

func (m *bitmapValueMerger) Finish(includesBase bool) ([]byte, io.Closer, error) {
	m.bitmap.RunOptimize()
	var buf bytes.Buffer
	if _, err := m.bitmap.WriteTo(&buf); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), nil, nil
}

func encodeBitmap(ids ...uint64) ([]byte, error) {
	bm := roaring64.BitmapOf(ids...)
	var buf bytes.Buffer
	if _, err := bm.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBitmap(val []byte) (*roaring64.Bitmap, error) {
	bm := roaring64.New()
	if len(val) == 0 {
		return bm, nil
	}
	if _, err := bm.ReadFrom(bytes.NewReader(val)); err != nil {
		return nil, err
	}
	return bm, nil
}

type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	if strings.Contains(msg, "sstable created") ||
		strings.Contains(msg, "sstable deleted") ||
		strings.Contains(msg, "WAL deleted") ||
		strings.Contains(msg, "WAL created") ||
		strings.Contains(msg, "MANIFEST deleted") ||
		strings.Contains(msg, "MANIFEST created") ||
		strings.Contains(msg, "all initial table stats loaded") ||
		strings.Contains(msg, "compacting(") ||
		strings.Contains(msg, "compacting:") ||
		strings.Contains(msg, "flushing:") {
		return
	}

	if strings.Contains(msg, "stopped reading at offset") {
		if idx := strings.Index(msg, "replayed"); idx != -1 {
			logger.Printf("pebble", "WAL recovery: %s", msg[idx:])
			return
		}
	}

	logger.Printf("debug-pebble", "%s", msg)
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	logger.Fatal(format, args...)
}

func (pebbleLogger) Errorf(format string, args ...interface{}) {
	logger.Printf("pebble", "ERROR: "+format, args...)
}

func makeEventListener() pebble.EventListener {
	return pebble.EventListener{
		FlushEnd: func(info pebble.FlushInfo) {
			var outputSize uint64
			for _, t := range info.Output {
				outputSize += t.Size
			}
			logger.Printf("debug-pebble", "Flush: %d memtables → %d files (%s) in %.1fs",
				info.Input, len(info.Output), logger.FormatBytes(int64(outputSize)), info.Duration.Seconds())
		},
		CompactionEnd: func(info pebble.CompactionInfo) {
			inputLevel := 0
			if len(info.Input) > 0 {
				inputLevel = info.Input[0].Level
			}
			logger.Printf("debug-pebble", "Compaction L%d→L%d: %d files in %.1fs",
				inputLevel, info.Output.Level, len(info.Output.Tables), info.TotalDuration.Seconds())
		},
		WriteStallBegin: func(info pebble.WriteStallBeginInfo) {
			logger.Printf("pebble", "WARNING: Write stall: %s", info.Reason)
		},
		WriteStallEnd: func() {
			logger.Printf("pebble", "Write stall ended")
		},
		BackgroundError: func(err error) {
			logger.Printf("pebble", "ERROR: Background error: %v", err)
		},
	}
}

// Store wraps the Pebble database holding the actions, snapshots and properties.
type Store struct {
	db *pebble.DB
}

type StoreConfig struct {
	CacheSizeMB int64 // Block cache size in MB
	Compactors  int   // Number of concurrent compaction threads
	ReadOnly    bool
}

func NewStore(path string, cfg StoreConfig) (*Store, error) {
	logger.Printf("startup", "Opening Pebble database: %s", path)

	compactors := cfg.Compactors
	if compactors < 1 {
		compactors = 2
	}

	cacheSize := cfg.CacheSizeMB << 20
	if cacheSize < 8<<20 {
		cacheSize = 8 << 20
	}
	cache := pebble.NewCache(cacheSize)
	defer cache.Unref()

	eventListener := makeEventListener()
	snappyFn := func() *block.CompressionProfile { return block.SnappyCompression }

	opts := &pebble.Options{
		Logger:                pebbleLogger{},
		EventListener:         &eventListener,
		Cache:                 cache,
		Merger:                accountMerger,
		MemTableSize:          32 << 20,
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 12,
		LBaseMaxBytes:         64 << 20,
		ReadOnly:              cfg.ReadOnly,
	}
	opts.Experimental.L0CompactionConcurrency = compactors

	for i := range opts.Levels {
		opts.Levels[i] = pebble.LevelOptions{FilterPolicy: bloom.FilterPolicy(10), Compression: snappyFn}
	}

	openStart := time.Now()
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}

	logger.Printf("startup", "Pebble database opened in %v", time.Since(openStart))
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns a copy of the value, or ok=false when the key is absent.
func (s *Store) Get(key []byte) (val []byte, ok bool, err error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	result := make([]byte, len(v))
	copy(result, v)
	return result, true, nil
}

// NewIndexedBatch returns a batch whose reads observe its own pending writes.
func (s *Store) NewIndexedBatch() *pebble.Batch {
	return s.db.NewIndexedBatch()
}

func (s *Store) Commit(batch *pebble.Batch) error {
	return batch.Commit(pebble.Sync)
}

func (s *Store) NewIterator(prefix []byte) (*pebble.Iterator, error) {
	upperBound := make([]byte, len(prefix))
	copy(upperBound, prefix)
	for i := len(upperBound) - 1; i >= 0; i-- {
		upperBound[i]++
		if upperBound[i] != 0 {
			break
		}
	}
	return s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound})
}

type PebbleMetrics struct {
	MemTableCount  int64
	MemTableSize   uint64
	L0FileCount    int64
	DiskSpaceUsage uint64
}

func (s *Store) GetMetrics() PebbleMetrics {
	m := s.db.Metrics()
	return PebbleMetrics{
		MemTableCount:  m.MemTable.Count,
		MemTableSize:   m.MemTable.Size,
		L0FileCount:    m.Levels[0].TablesCount,
		DiskSpaceUsage: m.DiskSpaceUsage(),
	}
}

func (s *Store) LogMetrics() {
	m := s.GetMetrics()
	logger.Printf("debug-pebble", "MemTables=%d (%s) | L0Files=%d | Disk=%s",
		m.MemTableCount, logger.FormatBytes(int64(m.MemTableSize)),
		m.L0FileCount, logger.FormatBytes(int64(m.DiskSpaceUsage)))
}
