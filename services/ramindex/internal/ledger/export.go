package ledger

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/greymass/ramindex/libraries/compression"
	"github.com/greymass/ramindex/libraries/encoding"
)

// An export is a magic header followed by frames of
// [kind u8][length u32 BE][zstd block]. Action and snapshot frames hold up to
// exportChunk newline separated variants; the properties frame comes last.
const (
	frameActions    byte = 1
	frameSnapshots  byte = 2
	frameProperties byte = 3

	exportChunk    = 1000
	maxFrameLength = 64 << 20
)

var exportMagic = []byte("RAMINDEX-LEDGER\x01")

type ExportStats struct {
	Actions   uint64
	Snapshots uint64
	Frames    int
	Bytes     int64
}

type frameWriter struct {
	w     io.Writer
	buf   bytes.Buffer
	kind  byte
	count int
	stats *ExportStats
}

func (fw *frameWriter) add(kind byte, v map[string]any) error {
	if fw.count > 0 && fw.kind != kind {
		if err := fw.flush(); err != nil {
			return err
		}
	}
	fw.kind = kind
	line, err := encoding.JSONiter.Marshal(v)
	if err != nil {
		return err
	}
	fw.buf.Write(line)
	fw.buf.WriteByte('\n')
	fw.count++
	if fw.count >= exportChunk {
		return fw.flush()
	}
	return nil
}

func (fw *frameWriter) flush() error {
	if fw.count == 0 {
		return nil
	}
	err := fw.write(fw.kind, fw.buf.Bytes())
	fw.buf.Reset()
	fw.count = 0
	return err
}

func (fw *frameWriter) write(kind byte, payload []byte) error {
	compressed, err := compression.ZstdCompressLevel(nil, payload, compression.DefaultLevel)
	if err != nil {
		return fmt.Errorf("compress frame: %w", err)
	}
	var header [5]byte
	header[0] = kind
	binary.BigEndian.PutUint32(header[1:5], uint32(len(compressed)))
	if _, err := fw.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := fw.w.Write(compressed); err != nil {
		return err
	}
	fw.stats.Frames++
	fw.stats.Bytes += int64(len(header) + len(compressed))
	return nil
}

// Export writes every committed action and snapshot plus the ledger
// properties to w. Writers are blocked for the duration.
func (l *Ledger) Export(w io.Writer) (ExportStats, error) {
	l.write.Lock()
	defer l.write.Unlock()

	var stats ExportStats
	if _, err := w.Write(exportMagic); err != nil {
		return stats, err
	}
	stats.Bytes = int64(len(exportMagic))
	fw := &frameWriter{w: w, stats: &stats}

	props := l.Properties()
	for id := uint64(0); id < props.Size; id++ {
		a, ok, err := l.Get(id)
		if err != nil {
			return stats, err
		}
		if !ok {
			return stats, fmt.Errorf("action %d missing from ledger of size %d", id, props.Size)
		}
		if err := fw.add(frameActions, a.ToVariant()); err != nil {
			return stats, err
		}
		stats.Actions++
	}

	var addErr error
	err := l.Snapshots(func(s Snapshot) bool {
		if addErr = fw.add(frameSnapshots, s.ToVariant()); addErr != nil {
			return false
		}
		stats.Snapshots++
		return true
	})
	if err == nil {
		err = addErr
	}
	if err != nil {
		return stats, err
	}
	if err := fw.flush(); err != nil {
		return stats, err
	}
	return stats, fw.write(frameProperties, makePropertiesValue(props))
}

// Import loads an export into an empty ledger. Each frame commits on its own;
// a failed import leaves a partial ledger that should be removed.
func (l *Ledger) Import(r io.Reader) (ExportStats, error) {
	var stats ExportStats
	if l.Size() != 0 {
		return stats, fmt.Errorf("import requires an empty ledger (size %d)", l.Size())
	}

	br := bufio.NewReader(r)
	magic := make([]byte, len(exportMagic))
	if _, err := io.ReadFull(br, magic); err != nil || !bytes.Equal(magic, exportMagic) {
		return stats, errors.New("not a ledger export")
	}

	var header [5]byte
	for {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return stats, errors.New("export truncated: missing properties frame")
			}
			return stats, err
		}
		length := binary.BigEndian.Uint32(header[1:5])
		if length > maxFrameLength {
			return stats, fmt.Errorf("frame %d too large (%d bytes)", stats.Frames, length)
		}
		compressed := make([]byte, length)
		if _, err := io.ReadFull(br, compressed); err != nil {
			return stats, fmt.Errorf("frame %d: %w", stats.Frames, err)
		}
		payload, err := compression.ZstdDecompress(nil, compressed)
		if err != nil {
			return stats, fmt.Errorf("frame %d: %w", stats.Frames, err)
		}
		stats.Frames++
		stats.Bytes += int64(len(header)) + int64(length)

		if header[0] == frameProperties {
			return stats, l.importProperties(payload)
		}
		if err := l.importFrame(header[0], payload, &stats); err != nil {
			return stats, fmt.Errorf("frame %d: %w", stats.Frames-1, err)
		}
	}
}

func (l *Ledger) importFrame(kind byte, payload []byte, stats *ExportStats) error {
	tx := l.Begin()
	defer tx.Discard()

	for _, line := range bytes.Split(bytes.TrimSuffix(payload, []byte{'\n'}), []byte{'\n'}) {
		v, err := decodeVariant(line)
		if err != nil {
			return err
		}
		switch kind {
		case frameActions:
			a, err := ActionFromVariant(v)
			if err != nil {
				return err
			}
			seq, err := tx.Append(a)
			if err != nil {
				return err
			}
			if seq != a.Sequence {
				return fmt.Errorf("action_seq %d out of order, expected %d", a.Sequence, seq)
			}
			stats.Actions++
		case frameSnapshots:
			s, err := SnapshotFromVariant(v)
			if err != nil {
				return err
			}
			if err := tx.putSnapshot(s); err != nil {
				return err
			}
			stats.Snapshots++
		default:
			return fmt.Errorf("unknown frame kind %d", kind)
		}
	}
	return tx.Commit()
}

func (l *Ledger) importProperties(payload []byte) error {
	props, ok := parsePropertiesValue(payload)
	if !ok {
		return fmt.Errorf("corrupt properties frame (%d bytes)", len(payload))
	}
	if props.Size != l.Size() {
		return fmt.Errorf("export declares %d actions, imported %d", props.Size, l.Size())
	}
	tx := l.Begin()
	defer tx.Discard()
	tx.SetFeedPosition(props.FeedSeq, props.LastBlock)
	return tx.Commit()
}
