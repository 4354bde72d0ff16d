// Package compression wraps zstd block compression. cgo builds use the
// reference C library; pure Go builds use klauspost/compress. Both produce
// standard zstd frames, so data written by one is readable by the other.
package compression

import "encoding/binary"

const DefaultLevel = 3

// IsZstd reports whether data starts with the zstd frame magic.
func IsZstd(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data[0:4]) == 0xfd2fb528
}
