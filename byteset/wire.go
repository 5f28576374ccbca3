package byteset

import (
	"encoding/binary"
	"fmt"
)

// BitmapSize is the wire size, in bytes, of a MiniNez character-class pool
// entry: eight little-endian uint32 words.
const BitmapSize = 32

// DecodeBitmap parses a 256-bit bitmap in the form a MiniNez bytecode file
// uses for its character-class pool: eight little-endian uint32 words,
// where bit k of word j means byte value j*32+k is a member of the set.
//
// The result is always the dense Matcher, since that is the implementation
// whose in-memory layout already matches the wire layout word-for-word.
func DecodeBitmap(data []byte) (Matcher, error) {
	if len(data) != BitmapSize {
		return nil, fmt.Errorf("byteset: bitmap must be exactly %d bytes, got %d", BitmapSize, len(data))
	}
	m := &mDense{}
	for i := 0; i < 8; i++ {
		m.Set[i] = binary.LittleEndian.Uint32(data[i*4 : i*4+4])
	}
	return m, nil
}

// EncodeBitmap serializes m into the 32-byte wire form that DecodeBitmap
// parses. Any Matcher may be passed; non-dense implementations are folded
// into dense form first.
func EncodeBitmap(m Matcher) [BitmapSize]byte {
	dm, ok := asDense(m).(*mDense)
	if !ok {
		// asDense always returns *mDense; this is unreachable but kept
		// defensive since Optimize() implementations are user-extensible.
		dm = &mDense{}
		m.ForEach(func(b byte) {
			index, mask := denseIM(b)
			dm.Set[index] |= mask
		})
	}
	var out [BitmapSize]byte
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], dm.Set[i])
	}
	return out
}
