// Binary envelope for cached trees.
//
// Entry format (big-endian):
//
//	version:  uint8
//	storedAt: int64 (unix nanoseconds)
//	payload:  wire-encoded tree (JSON)
package bbolt

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	entryVersion    = 1
	entryHeaderSize = 1 + 8
)

// encodeEntry wraps payload with the envelope header. A single buffer is
// allocated for header and payload.
func encodeEntry(payload []byte, storedAt time.Time) []byte {
	buf := make([]byte, entryHeaderSize+len(payload))
	buf[0] = entryVersion
	binary.BigEndian.PutUint64(buf[1:entryHeaderSize], uint64(storedAt.UnixNano()))
	copy(buf[entryHeaderSize:], payload)
	return buf
}

// decodeEntry splits an envelope. The returned payload is a fresh copy, so it
// stays valid after the bbolt transaction ends.
func decodeEntry(raw []byte) ([]byte, time.Time, error) {
	if len(raw) < entryHeaderSize {
		return nil, time.Time{}, fmt.Errorf("entry too short: %d bytes", len(raw))
	}
	if raw[0] != entryVersion {
		return nil, time.Time{}, fmt.Errorf("unsupported entry version %d", raw[0])
	}
	storedAt := time.Unix(0, int64(binary.BigEndian.Uint64(raw[1:entryHeaderSize])))
	payload := make([]byte, len(raw)-entryHeaderSize)
	copy(payload, raw[entryHeaderSize:])
	return payload, storedAt, nil
}
